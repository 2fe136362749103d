package workload

import (
	"log"
	"math/rand"

	"github.com/sarchlab/tilesim/sim"
)

// A Builder can build workload agents.
type Builder struct {
	engine      sim.Engine
	freq        sim.Freq
	numTiles    int
	numReads    int
	numWrites   int
	maxAddress  uint64
	concurrent  bool
	maxInFlight int
	seed        int64
	bufferSize  int
}

// MakeBuilder returns a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:        1 * sim.GHz,
		numTiles:    4,
		numReads:    1000,
		numWrites:   1000,
		maxAddress:  4096,
		maxInFlight: 4,
		seed:        1,
		bufferSize:  4,
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

// WithNumTiles sets the number of tiles to drive.
func (b Builder) WithNumTiles(n int) Builder {
	b.numTiles = n
	return b
}

// WithNumReads sets the number of loads to issue.
func (b Builder) WithNumReads(n int) Builder {
	b.numReads = n
	return b
}

// WithNumWrites sets the number of stores to issue.
func (b Builder) WithNumWrites(n int) Builder {
	b.numWrites = n
	return b
}

// WithMaxAddress sets the size of the address range that is accessed.
func (b Builder) WithMaxAddress(addr uint64) Builder {
	b.maxAddress = addr
	return b
}

// WithConcurrent lets every tile keep several accesses in flight. Otherwise
// only one access is in flight in the whole system.
func (b Builder) WithConcurrent(concurrent bool) Builder {
	b.concurrent = concurrent
	return b
}

// WithMaxInFlight sets the number of accesses in flight per tile in the
// concurrent mode.
func (b Builder) WithMaxInFlight(n int) Builder {
	b.maxInFlight = n
	return b
}

// WithSeed sets the seed of the random access stream.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithBufferSize sets the size of the port buffers.
func (b Builder) WithBufferSize(n int) Builder {
	b.bufferSize = n
	return b
}

// Build creates an agent.
func (b Builder) Build(name string) *Agent {
	if b.numTiles <= 0 {
		log.Panicf("agent needs at least one tile, got %d", b.numTiles)
	}

	if b.maxAddress < wordSize {
		log.Panicf("address range of %d bytes is too small", b.maxAddress)
	}

	a := &Agent{
		ports:       make([]sim.Port, b.numTiles),
		targets:     make([]sim.RemotePort, b.numTiles),
		rand:        rand.New(rand.NewSource(b.seed)),
		maxAddress:  b.maxAddress,
		concurrent:  b.concurrent,
		maxInFlight: b.maxInFlight,
		readLeft:    b.numReads,
		writeLeft:   b.numWrites,
		inFlight:    make([]int, b.numTiles),
		pending:     make(map[string]access),
		known:       make(map[uint64]uint32),
	}

	a.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, a)

	for i := range a.ports {
		portName := sim.BuildNameWithIndex(name, "Port", i)
		a.ports[i] = sim.NewPort(a, b.bufferSize, b.bufferSize, portName)
		a.AddPort(sim.BuildNameWithIndex("", "Port", i), a.ports[i])
	}

	return a
}
