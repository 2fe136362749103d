package cachectrl

import (
	"log"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/sim"
)

// A Builder can build private caches.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	tile       coherence.TileID
	homes      coherence.AddressHomeLookup
	numSets    int
	numWays    int
	lineSize   int
	hitLatency uint64
	bufferSize int
	width      int
}

// MakeBuilder returns a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * sim.GHz,
		numSets:    64,
		numWays:    4,
		lineSize:   64,
		hitLatency: 2,
		bufferSize: 16,
		width:      1,
	}
}

// WithEngine sets the event engine.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithTile sets the tile that the cache belongs to.
func (b Builder) WithTile(tile coherence.TileID) Builder {
	b.tile = tile
	return b
}

// WithHomeLookup sets how the cache finds the home directory of a line.
func (b Builder) WithHomeLookup(homes coherence.AddressHomeLookup) Builder {
	b.homes = homes
	return b
}

// WithNumSets sets the number of sets.
func (b Builder) WithNumSets(n int) Builder {
	b.numSets = n
	return b
}

// WithNumWays sets the associativity.
func (b Builder) WithNumWays(n int) Builder {
	b.numWays = n
	return b
}

// WithLineSize sets the line size in bytes.
func (b Builder) WithLineSize(n int) Builder {
	b.lineSize = n
	return b
}

// WithHitLatency sets the cycles of serving a load or a store.
func (b Builder) WithHitLatency(cycles uint64) Builder {
	b.hitLatency = cycles
	return b
}

// WithBufferSize sets the size of the port buffers.
func (b Builder) WithBufferSize(n int) Builder {
	b.bufferSize = n
	return b
}

// WithWidth sets the number of messages handled per cycle.
func (b Builder) WithWidth(n int) Builder {
	b.width = n
	return b
}

// Build creates a private cache.
func (b Builder) Build(name string) *Comp {
	if b.homes == nil {
		log.Panic("a cache needs a home lookup")
	}

	if b.lineSize <= 0 || b.lineSize&(b.lineSize-1) != 0 {
		log.Panicf("line size must be a power of 2, got %d", b.lineSize)
	}

	c := &Comp{
		tile:       b.tile,
		homes:      b.homes,
		tags:       newTagArray(b.numSets, b.numWays, uint64(b.lineSize)),
		lineSize:   uint64(b.lineSize),
		hitLatency: b.hitLatency,
		width:      b.width,
		misses:     make(map[uint64]*miss),
		maxQueue:   b.bufferSize,
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.topPort = sim.NewPort(c, b.bufferSize, b.bufferSize, name+".TopPort")
	c.AddPort("Top", c.topPort)

	c.netPort = sim.NewPort(c, b.bufferSize, b.bufferSize, name+".NetPort")
	c.AddPort("Net", c.netPort)

	return c
}
