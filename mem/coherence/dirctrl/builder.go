package dirctrl

import (
	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/directory"
	"github.com/sarchlab/tilesim/mem/coherence/pending"
	"github.com/sarchlab/tilesim/mem/coherence/sharers"
	"github.com/sarchlab/tilesim/mem/mem"
	"github.com/sarchlab/tilesim/sim"
)

// A Builder can build home directories.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq

	home      coherence.TileID
	protocol  coherence.Protocol
	numTiles  int
	numSlices int
	lineSize  int

	numSets      int
	numWays      int
	sharerScheme sharers.Scheme
	maxHWSharers int
	trapPenalty  uint64
	seed         int64
	victimFinder directory.VictimFinder

	accessCycles uint64
	dramCycles   uint64

	store      BackingStore
	capacity   uint64
	bufferSize int
	width      int
	tilePorts  []sim.RemotePort
}

// MakeBuilder returns a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:         1 * sim.GHz,
		protocol:     coherence.MSI,
		numTiles:     4,
		numSlices:    1,
		lineSize:     64,
		numSets:      64,
		numWays:      8,
		sharerScheme: sharers.FullMap,
		maxHWSharers: 4,
		trapPenalty:  100,
		seed:         1,
		accessCycles: 10,
		dramCycles:   100,
		capacity:     4 * mem.GB,
		bufferSize:   64,
		width:        1,
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

// WithHome sets the tile that hosts the directory.
func (b Builder) WithHome(home coherence.TileID) Builder {
	b.home = home
	return b
}

// WithProtocol sets MSI or MOSI.
func (b Builder) WithProtocol(p coherence.Protocol) Builder {
	b.protocol = p
	return b
}

// WithNumTiles sets the number of tiles in the system.
func (b Builder) WithNumTiles(n int) Builder {
	b.numTiles = n
	return b
}

// WithNumSlices sets the number of directories that lines interleave over.
func (b Builder) WithNumSlices(n int) Builder {
	b.numSlices = n
	return b
}

// WithLineSize sets the cache line size in bytes.
func (b Builder) WithLineSize(n int) Builder {
	b.lineSize = n
	return b
}

// WithNumSets sets the number of directory sets.
func (b Builder) WithNumSets(n int) Builder {
	b.numSets = n
	return b
}

// WithNumWays sets the directory associativity.
func (b Builder) WithNumWays(n int) Builder {
	b.numWays = n
	return b
}

// WithSharerScheme sets how entries track their sharers.
func (b Builder) WithSharerScheme(s sharers.Scheme) Builder {
	b.sharerScheme = s
	return b
}

// WithMaxHWSharers sets the number of sharers an entry names in hardware.
func (b Builder) WithMaxHWSharers(k int) Builder {
	b.maxHWSharers = k
	return b
}

// WithSoftwareTrapPenalty sets the extra cycles of software-tracked entries.
func (b Builder) WithSoftwareTrapPenalty(cycles uint64) Builder {
	b.trapPenalty = cycles
	return b
}

// WithSeed sets the seed of the random sharer picker.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithVictimFinder sets the eviction policy.
func (b Builder) WithVictimFinder(vf directory.VictimFinder) Builder {
	b.victimFinder = vf
	return b
}

// WithAccessCycles sets the cycles of one directory access.
func (b Builder) WithAccessCycles(cycles uint64) Builder {
	b.accessCycles = cycles
	return b
}

// WithDRAMCycles sets the cycles of one memory access.
func (b Builder) WithDRAMCycles(cycles uint64) Builder {
	b.dramCycles = cycles
	return b
}

// WithBackingStore sets the memory behind the directory. A new storage is
// created if none is given.
func (b Builder) WithBackingStore(store BackingStore) Builder {
	b.store = store
	return b
}

// WithCapacity sets the size of the storage created when no backing store
// is given.
func (b Builder) WithCapacity(capacity uint64) Builder {
	b.capacity = capacity
	return b
}

// WithBufferSize sets the size of the port buffers and the send queue.
func (b Builder) WithBufferSize(n int) Builder {
	b.bufferSize = n
	return b
}

// WithWidth sets the number of messages handled per cycle.
func (b Builder) WithWidth(n int) Builder {
	b.width = n
	return b
}

// WithTilePorts sets the ports of the caches, indexed by tile.
func (b Builder) WithTilePorts(ports []sim.RemotePort) Builder {
	b.tilePorts = ports
	return b
}

// BuildEngine creates a protocol engine that sends through the outbox.
func (b Builder) BuildEngine(outbox Outbox) *Engine {
	factory := sharers.MakeFactoryBuilder().
		WithScheme(b.sharerScheme).
		WithMaxHWSharers(b.maxHWSharers).
		WithNumTiles(b.numTiles).
		WithSoftwareTrapPenalty(b.trapPenalty).
		WithSeed(b.seed).
		Build()

	store := b.store
	if store == nil {
		store = NewStorageBackingStore(
			mem.NewStorage(b.capacity), uint64(b.lineSize))
	}

	vf := b.victimFinder
	if vf == nil {
		vf = directory.NewFewestSharersVictimFinder()
	}

	return &Engine{
		home:         b.home,
		protocol:     b.protocol,
		numTiles:     b.numTiles,
		lineSize:     uint64(b.lineSize),
		accessCycles: b.accessCycles,
		dramCycles:   b.dramCycles,
		dir: directory.New(
			b.numSets, b.numWays, b.lineSize, b.numSlices, factory),
		queue:        pending.NewQueue(),
		victimFinder: vf,
		store:        store,
		outbox:       outbox,
		stalled:      make(map[int][]*pending.Request),
		blocked:      make(map[uint64]*pending.Request),
	}
}

// Build creates a home directory component.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		width:        b.width,
		sendCapacity: b.bufferSize,
		tilePorts:    b.tilePorts,
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.port = sim.NewPort(c, b.bufferSize, b.bufferSize, name+".Port")
	c.AddPort("Port", c.port)

	c.engine = b.BuildEngine(c)
	c.engine.domain = c

	c.AddMiddleware(&sendMW{Comp: c})
	c.AddMiddleware(&handleMW{Comp: c})

	return c
}
