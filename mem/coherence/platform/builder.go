package platform

import (
	"log"

	"github.com/sarchlab/tilesim/config"
	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/cachectrl"
	"github.com/sarchlab/tilesim/mem/coherence/dirctrl"
	"github.com/sarchlab/tilesim/mem/coherence/workload"
	"github.com/sarchlab/tilesim/mem/mem"
	"github.com/sarchlab/tilesim/sim"
)

// A Builder can build platforms.
type Builder struct {
	cfg    config.Config
	engine sim.Engine
}

// MakeBuilder returns a builder that uses the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: config.Default(),
	}
}

// WithConfig sets the configuration of the system.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithEngine sets the engine. A serial engine is created if not set.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// Build creates the system.
func (b Builder) Build() *Platform {
	if err := b.cfg.Validate(); err != nil {
		log.Panicf("cannot build platform: %v", err)
	}

	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}

	p := &Platform{
		Engine:     engine,
		Simulation: sim.NewSimulation(engine),
		dirByTile:  make(map[coherence.TileID]*dirctrl.Comp),
	}

	freq := sim.Freq(b.cfg.FreqGHz) * sim.GHz

	p.Connection = sim.NewDirectConnection("Conn", engine, freq)

	b.buildDirectories(p, freq)
	b.buildCaches(p, freq)
	b.buildAgent(p, freq)

	tilePorts := make([]sim.RemotePort, len(p.Caches))
	for i, c := range p.Caches {
		tilePorts[i] = c.NetPort().AsRemote()
	}

	for _, d := range p.Directories {
		d.SetTilePorts(tilePorts)
	}

	p.Simulation.RegisterComponent(p.Connection)

	return p
}

func (b Builder) buildDirectories(p *Platform, freq sim.Freq) {
	cfg := b.cfg

	protocol, _ := cfg.ProtocolKind()
	scheme, _ := cfg.Scheme()

	capacity := (cfg.MaxAddress + 4*mem.KB - 1) / (4 * mem.KB) * (4 * mem.KB)
	storage := mem.NewStorage(capacity)
	store := dirctrl.NewStorageBackingStore(storage, uint64(cfg.CacheLineSize))

	homes := make([]coherence.TileID, cfg.NumDirectories)
	ports := make([]sim.RemotePort, cfg.NumDirectories)

	builder := dirctrl.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(freq).
		WithProtocol(protocol).
		WithNumTiles(cfg.NumTiles).
		WithNumSlices(cfg.NumDirectories).
		WithLineSize(cfg.CacheLineSize).
		WithNumSets(cfg.DirectorySets()).
		WithNumWays(cfg.DirectoryAssociativity).
		WithSharerScheme(scheme).
		WithMaxHWSharers(cfg.MaxHWSharers).
		WithSoftwareTrapPenalty(cfg.SoftwareTrapPenalty).
		WithAccessCycles(cfg.DirectoryAccessCycles).
		WithDRAMCycles(cfg.DRAMLatency).
		WithBackingStore(store)

	for i := 0; i < cfg.NumDirectories; i++ {
		tile := cfg.DirectoryTile(i)
		name := sim.BuildName(
			sim.BuildNameWithIndex("", "Tile", int(tile)), "Directory")

		d := builder.
			WithHome(tile).
			WithSeed(cfg.Seed + int64(i)).
			Build(name)

		p.Directories = append(p.Directories, d)
		p.dirByTile[tile] = d
		p.Connection.PlugIn(d.Port())
		p.Simulation.RegisterComponent(d)

		homes[i] = tile
		ports[i] = d.Port().AsRemote()
	}

	p.homes = coherence.NewLineInterleavedHomeLookup(
		uint64(cfg.CacheLineSize), homes, ports)
}

func (b Builder) buildCaches(p *Platform, freq sim.Freq) {
	cfg := b.cfg

	builder := cachectrl.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(freq).
		WithHomeLookup(p.homes).
		WithNumSets(cfg.CacheSets).
		WithNumWays(cfg.CacheWays).
		WithLineSize(cfg.CacheLineSize).
		WithHitLatency(cfg.CacheHitLatency)

	for i := 0; i < cfg.NumTiles; i++ {
		name := sim.BuildName(sim.BuildNameWithIndex("", "Tile", i), "Cache")

		c := builder.WithTile(coherence.TileID(i)).Build(name)

		p.Caches = append(p.Caches, c)
		p.Connection.PlugIn(c.TopPort())
		p.Connection.PlugIn(c.NetPort())
		p.Simulation.RegisterComponent(c)
	}
}

func (b Builder) buildAgent(p *Platform, freq sim.Freq) {
	cfg := b.cfg

	p.Agent = workload.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(freq).
		WithNumTiles(cfg.NumTiles).
		WithNumReads(cfg.NumReads).
		WithNumWrites(cfg.NumWrites).
		WithMaxAddress(cfg.MaxAddress).
		WithConcurrent(cfg.Concurrent).
		WithMaxInFlight(cfg.MaxInFlight).
		WithSeed(cfg.Seed).
		Build("Agent")

	for i, c := range p.Caches {
		p.Agent.SetTarget(i, c.TopPort().AsRemote())
		p.Connection.PlugIn(p.Agent.Port(i))
	}

	p.Simulation.RegisterComponent(p.Agent)
}
