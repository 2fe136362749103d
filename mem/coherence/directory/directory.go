// Package directory provides the set-associative storage of a home
// directory.
package directory

import (
	"log"
	"math/bits"
	"sort"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/sharers"
)

// A Set is a group of slots that an address can be stored at.
type Set struct {
	// Slots holds an arena index per way, or -1 for a free way.
	Slots    []int
	LRUQueue []int
}

// Stats are the counters of a directory.
type Stats struct {
	Accesses          uint64
	Evictions         uint64
	BackInvalidations uint64
}

// Directory keeps the entries of the lines homed at one tile.
//
// Entries live in an arena and keep their index until they are retired. A
// replaced entry leaves its slot right away but stays in the arena, flagged
// Retiring and reachable by address, until its sharers are gone.
type Directory struct {
	numSets   int
	numWays   int
	lineSize  uint64
	numSlices uint64
	setBits   int

	factory *sharers.Factory

	arena  []*Entry
	free   []int
	sets   []Set
	byAddr map[uint64]int
	stats  Stats
}

// New creates a directory with numSets sets of numWays slots. numSlices is
// the number of directories that lines are interleaved over.
func New(
	numSets, numWays, lineSize, numSlices int,
	factory *sharers.Factory,
) *Directory {
	if numSets <= 0 || numSets&(numSets-1) != 0 {
		log.Panicf("number of sets must be a power of 2, got %d", numSets)
	}

	if numWays <= 0 {
		log.Panicf("associativity must be positive, got %d", numWays)
	}

	if lineSize <= 0 || lineSize&(lineSize-1) != 0 {
		log.Panicf("line size must be a power of 2, got %d", lineSize)
	}

	if numSlices <= 0 {
		log.Panicf("number of slices must be positive, got %d", numSlices)
	}

	d := &Directory{
		numSets:   numSets,
		numWays:   numWays,
		lineSize:  uint64(lineSize),
		numSlices: uint64(numSlices),
		setBits:   bits.TrailingZeros(uint(numSets)),
		factory:   factory,
		byAddr:    make(map[uint64]int),
	}

	d.Reset()

	return d
}

// Reset drops every entry.
func (d *Directory) Reset() {
	d.arena = nil
	d.free = nil
	d.byAddr = make(map[uint64]int)
	d.sets = make([]Set, d.numSets)

	for i := range d.sets {
		d.sets[i].Slots = make([]int, d.numWays)
		d.sets[i].LRUQueue = make([]int, d.numWays)

		for j := 0; j < d.numWays; j++ {
			d.sets[i].Slots[j] = -1
			d.sets[i].LRUQueue[j] = j
		}
	}
}

// NumSets returns the number of sets.
func (d *Directory) NumSets() int {
	return d.numSets
}

// NumWays returns the associativity.
func (d *Directory) NumWays() int {
	return d.numWays
}

// Stats returns the counters.
func (d *Directory) Stats() Stats {
	return d.stats
}

// SetID returns the set that an address maps to. The line number, with the
// slice interleaving removed, is folded with XOR into the set index bits.
func (d *Directory) SetID(addr uint64) int {
	if d.numSets == 1 {
		return 0
	}

	line := addr / d.lineSize / d.numSlices
	mask := uint64(d.numSets - 1)
	setID := uint64(0)

	for line != 0 {
		setID ^= line & mask
		line >>= d.setBits
	}

	return int(setID)
}

// Lookup finds the entry of an address, including retiring entries.
func (d *Directory) Lookup(addr uint64) (*Entry, bool) {
	idx, ok := d.byAddr[addr]
	if !ok {
		return nil, false
	}

	return d.arena[idx], true
}

// GetOrAllocate returns the entry of the address, allocating one in a free
// slot when needed. It returns false if the address has no entry and its set
// is full.
func (d *Directory) GetOrAllocate(addr uint64) (*Entry, bool) {
	if e, ok := d.Lookup(addr); ok {
		if e.Retiring {
			log.Panicf("allocating address 0x%x while it is retiring", addr)
		}

		d.stats.Accesses++
		d.Visit(e)

		return e, true
	}

	setID := d.SetID(addr)
	set := &d.sets[setID]

	for _, way := range set.LRUQueue {
		if set.Slots[way] != -1 {
			continue
		}

		e := d.install(addr, setID, way)
		d.stats.Accesses++

		return e, true
	}

	return nil, false
}

func (d *Directory) install(addr uint64, setID, way int) *Entry {
	e := &Entry{
		Address: addr,
		State:   coherence.DirUncached,
		Owner:   coherence.InvalidTileID,
		Sharers: d.factory.New(),
		SetID:   setID,
		WayID:   way,
	}

	if n := len(d.free); n > 0 {
		e.index = d.free[n-1]
		d.free = d.free[:n-1]
		d.arena[e.index] = e
	} else {
		e.index = len(d.arena)
		d.arena = append(d.arena, e)
	}

	d.byAddr[addr] = e.index
	d.sets[setID].Slots[way] = e.index
	d.Visit(e)

	return e
}

// ReplacementCandidates returns the live entries of the set that the address
// maps to, least recently used first.
func (d *Directory) ReplacementCandidates(addr uint64) []*Entry {
	set := &d.sets[d.SetID(addr)]
	candidates := make([]*Entry, 0, d.numWays)

	for _, way := range set.LRUQueue {
		idx := set.Slots[way]
		if idx == -1 {
			continue
		}

		candidates = append(candidates, d.arena[idx])
	}

	return candidates
}

// Replace moves the victim out of its slot, flags it as retiring, and
// installs a fresh entry for newAddr in the slot.
func (d *Directory) Replace(victimAddr, newAddr uint64) *Entry {
	victim, ok := d.Lookup(victimAddr)
	if !ok || victim.Retiring {
		log.Panicf("replacing address 0x%x that has no live entry", victimAddr)
	}

	if _, ok := d.Lookup(newAddr); ok {
		log.Panicf("replacing into address 0x%x that already has an entry",
			newAddr)
	}

	if d.SetID(newAddr) != victim.SetID {
		log.Panicf("address 0x%x and victim 0x%x are in different sets",
			newAddr, victimAddr)
	}

	victim.Retiring = true
	d.stats.Evictions++

	if victim.State != coherence.DirUncached {
		d.stats.BackInvalidations++
	}

	return d.install(newAddr, victim.SetID, victim.WayID)
}

// Retire drops a retiring entry.
func (d *Directory) Retire(addr uint64) {
	e, ok := d.Lookup(addr)
	if !ok || !e.Retiring {
		log.Panicf("retiring address 0x%x that is not retiring", addr)
	}

	if e.State != coherence.DirUncached {
		log.Panicf("retiring address 0x%x in state %s", addr, e.State)
	}

	delete(d.byAddr, addr)
	d.arena[e.index] = nil
	d.free = append(d.free, e.index)
}

// Visit moves the entry to the most recently used end of its set.
func (d *Directory) Visit(e *Entry) {
	set := &d.sets[e.SetID]
	queue := set.LRUQueue[:0]

	for _, way := range set.LRUQueue {
		if way != e.WayID {
			queue = append(queue, way)
		}
	}

	set.LRUQueue = append(queue, e.WayID)
}

// Entries returns all the entries, including the retiring ones, by address.
func (d *Directory) Entries() []*Entry {
	entries := make([]*Entry, 0, len(d.byAddr))
	for _, idx := range d.byAddr {
		entries = append(entries, d.arena[idx])
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})

	return entries
}

// CheckInvariants checks every entry and returns the first violation.
func (d *Directory) CheckInvariants() error {
	for _, e := range d.Entries() {
		if err := e.Check(); err != nil {
			return err
		}
	}

	return nil
}
