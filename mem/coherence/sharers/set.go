// Package sharers provides the representations a directory entry uses to
// remember which tiles hold a copy of its line.
package sharers

import (
	"log"
	"math/rand"

	"github.com/sarchlab/tilesim/mem/coherence"
)

// A Factory creates sharer sets that all use the same scheme.
type Factory struct {
	scheme              Scheme
	maxHWSharers        int
	numTiles            int
	softwareTrapPenalty uint64
	rng                 *rand.Rand
}

// FactoryBuilder can build Factories.
type FactoryBuilder struct {
	scheme              Scheme
	maxHWSharers        int
	numTiles            int
	softwareTrapPenalty uint64
	seed                int64
}

// MakeFactoryBuilder creates a FactoryBuilder with default parameters.
func MakeFactoryBuilder() FactoryBuilder {
	return FactoryBuilder{
		scheme:       FullMap,
		maxHWSharers: 4,
		numTiles:     16,
		seed:         1,
	}
}

// WithScheme sets the tracking scheme.
func (b FactoryBuilder) WithScheme(s Scheme) FactoryBuilder {
	b.scheme = s
	return b
}

// WithMaxHWSharers sets K, the number of sharers tracked in hardware.
func (b FactoryBuilder) WithMaxHWSharers(k int) FactoryBuilder {
	b.maxHWSharers = k
	return b
}

// WithNumTiles sets the number of tiles in the system.
func (b FactoryBuilder) WithNumTiles(n int) FactoryBuilder {
	b.numTiles = n
	return b
}

// WithSoftwareTrapPenalty sets the extra cycles Limitless charges per access
// once it tracks sharers in software.
func (b FactoryBuilder) WithSoftwareTrapPenalty(cycles uint64) FactoryBuilder {
	b.softwareTrapPenalty = cycles
	return b
}

// WithSeed sets the seed of the random sharer picker.
func (b FactoryBuilder) WithSeed(seed int64) FactoryBuilder {
	b.seed = seed
	return b
}

// Build creates the Factory.
func (b FactoryBuilder) Build() *Factory {
	if b.numTiles <= 0 {
		log.Panicf("number of tiles must be positive, got %d", b.numTiles)
	}

	if b.scheme != FullMap && b.maxHWSharers <= 0 {
		log.Panicf("%s needs at least one hardware sharer slot", b.scheme)
	}

	return &Factory{
		scheme:              b.scheme,
		maxHWSharers:        b.maxHWSharers,
		numTiles:            b.numTiles,
		softwareTrapPenalty: b.softwareTrapPenalty,
		rng:                 rand.New(rand.NewSource(b.seed)),
	}
}

// Scheme returns the scheme of the sets that the factory creates.
func (f *Factory) Scheme() Scheme {
	return f.scheme
}

// NumTiles returns the number of tiles in the system.
func (f *Factory) NumTiles() int {
	return f.numTiles
}

// New creates an empty set.
func (f *Factory) New() *Set {
	return &Set{
		factory: f,
		tracked: newBitVector(f.numTiles),
	}
}

// A Set is the collection of tiles that hold a copy of a line.
//
// Every scheme names its sharers in tracked. The escalated flag means global
// mode for LimitedBroadcast and Ackwise and software mode for Limitless. For
// LimitedBroadcast, count is the number of tiles that still have to answer
// while in global mode. For Ackwise, count is the number of sharers that are
// not named.
type Set struct {
	factory   *Factory
	tracked   bitVector
	escalated bool
	count     int
}

// Scheme returns the tracking scheme of the set.
func (s *Set) Scheme() Scheme {
	return s.factory.scheme
}

func (s *Set) mustBeValidTile(id coherence.TileID) {
	if id < 0 || int(id) >= s.factory.numTiles {
		log.Panicf("tile %d is out of range [0, %d)", id, s.factory.numTiles)
	}
}

func (s *Set) hwFull() bool {
	return s.tracked.size >= s.factory.maxHWSharers
}

// HasSharer tells if the tile is a named sharer.
func (s *Set) HasSharer(id coherence.TileID) bool {
	s.mustBeValidTile(id)

	return s.tracked.at(id)
}

// AddSharer adds a tile to the set. It returns false only for
// LimitedNoBroadcast when all the hardware slots are taken. The other schemes
// always succeed and escalate when needed.
func (s *Set) AddSharer(id coherence.TileID) bool {
	s.mustBeValidTile(id)

	switch s.factory.scheme {
	case FullMap:
		s.mustNotBeSharer(id)
		s.tracked.set(id)
	case LimitedNoBroadcast:
		s.mustNotBeSharer(id)

		if s.hwFull() {
			return false
		}

		s.tracked.set(id)
	case LimitedBroadcast:
		s.addLimitedBroadcast(id)
	case Ackwise:
		s.addAckwise(id)
	case Limitless:
		s.mustNotBeSharer(id)

		if !s.escalated && s.hwFull() {
			s.escalated = true
		}

		s.tracked.set(id)
	default:
		log.Panicf("unknown scheme %d", s.factory.scheme)
	}

	return true
}

func (s *Set) addLimitedBroadcast(id coherence.TileID) {
	if s.escalated {
		if s.count != s.factory.numTiles {
			log.Panicf("adding sharer %d while a broadcast is collecting "+
				"replies, %d replies left", id, s.count)
		}

		return
	}

	s.mustNotBeSharer(id)

	if s.hwFull() {
		s.escalated = true
		s.count = s.factory.numTiles

		return
	}

	s.tracked.set(id)
}

func (s *Set) addAckwise(id coherence.TileID) {
	s.mustNotBeSharer(id)

	if s.escalated || s.hwFull() {
		s.escalated = true
		s.count++

		return
	}

	s.tracked.set(id)
}

func (s *Set) mustNotBeSharer(id coherence.TileID) {
	if s.tracked.at(id) {
		log.Panicf("tile %d is already a sharer", id)
	}
}

func (s *Set) mustBeSharer(id coherence.TileID) {
	if !s.tracked.at(id) {
		log.Panicf("tile %d is not a sharer", id)
	}
}

// RemoveSharer removes a tile from the set. replyExpected marks a removal
// caused by a reply to a broadcast that every tile answers, which is only
// used by LimitedBroadcast in global mode.
//
// In global mode the schemes deal with unnamed tiles differently.
// LimitedBroadcast ignores them. Ackwise assumes the tile is one of the
// sharers it counts. Limitless never has unnamed sharers and panics.
func (s *Set) RemoveSharer(id coherence.TileID, replyExpected bool) {
	s.mustBeValidTile(id)

	switch s.factory.scheme {
	case FullMap, LimitedNoBroadcast:
		s.mustBeSharer(id)
		s.tracked.clear(id)
	case LimitedBroadcast:
		s.removeLimitedBroadcast(id, replyExpected)
	case Ackwise:
		s.removeAckwise(id)
	case Limitless:
		if replyExpected {
			log.Panic("limitless entries never broadcast")
		}

		s.mustBeSharer(id)
		s.tracked.clear(id)
	default:
		log.Panicf("unknown scheme %d", s.factory.scheme)
	}
}

func (s *Set) removeLimitedBroadcast(id coherence.TileID, replyExpected bool) {
	if s.escalated {
		s.tracked.clear(id)
	} else {
		s.mustBeSharer(id)
		s.tracked.clear(id)
	}

	if !replyExpected {
		return
	}

	if !s.escalated {
		log.Panicf("broadcast reply from tile %d outside of global mode", id)
	}

	s.count--
	if s.count == 0 {
		s.escalated = false

		if s.tracked.size != 0 {
			log.Panicf("%d named sharers left after all tiles replied",
				s.tracked.size)
		}
	}
}

func (s *Set) removeAckwise(id coherence.TileID) {
	if !s.escalated {
		s.mustBeSharer(id)
		s.tracked.clear(id)

		return
	}

	if s.tracked.at(id) {
		s.tracked.clear(id)
		return
	}

	s.count--
	if s.count == 0 {
		s.escalated = false
	}
}

// SharersList returns the named sharers. The boolean is true when the set
// cannot name all its sharers and every tile must be treated as one.
func (s *Set) SharersList() (bool, []coherence.TileID) {
	return s.InBroadcastMode(), s.tracked.list()
}

// OneSharer returns a named sharer picked at random. It returns
// InvalidTileID if the set is in broadcast mode and names no sharer.
func (s *Set) OneSharer() coherence.TileID {
	all, ids := s.SharersList()

	if len(ids) == 0 {
		if !all {
			log.Panic("picking a sharer from an empty set")
		}

		return coherence.InvalidTileID
	}

	return ids[s.factory.rng.Intn(len(ids))]
}

// NumSharers returns the number of sharers.
func (s *Set) NumSharers() int {
	switch s.factory.scheme {
	case LimitedBroadcast:
		if s.escalated {
			return s.count
		}
	case Ackwise:
		return s.tracked.size + s.count
	}

	return s.tracked.size
}

// NumUntracked returns the number of sharers that the set counts without
// naming them.
func (s *Set) NumUntracked() int {
	if s.factory.scheme == Ackwise {
		return s.count
	}

	return 0
}

// IsEmpty tells if the set has no sharer.
func (s *Set) IsEmpty() bool {
	return s.NumSharers() == 0
}

// InBroadcastMode tells if the set has lost track of some sharers.
func (s *Set) InBroadcastMode() bool {
	switch s.factory.scheme {
	case LimitedBroadcast, Ackwise:
		return s.escalated
	}

	return false
}

// InSoftwareMode tells if a Limitless set has trapped to software.
func (s *Set) InSoftwareMode() bool {
	return s.factory.scheme == Limitless && s.escalated
}

// Latency returns the extra cycles that an access to the entry costs.
func (s *Set) Latency() uint64 {
	if s.InSoftwareMode() {
		return s.factory.softwareTrapPenalty
	}

	return 0
}
