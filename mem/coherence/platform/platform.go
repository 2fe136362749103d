// Package platform assembles a tiled system with private caches and home
// directories, drives it with a workload agent and checks the result.
package platform

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/cachectrl"
	"github.com/sarchlab/tilesim/mem/coherence/dirctrl"
	"github.com/sarchlab/tilesim/mem/coherence/workload"
	"github.com/sarchlab/tilesim/sim"
)

// Platform is a built tiled system.
type Platform struct {
	Engine      sim.Engine
	Simulation  *sim.Simulation
	Connection  *sim.DirectConnection
	Agent       *workload.Agent
	Caches      []*cachectrl.Comp
	Directories []*dirctrl.Comp

	homes     coherence.AddressHomeLookup
	dirByTile map[coherence.TileID]*dirctrl.Comp
}

// ErrUnfinished is returned when the engine runs out of events before the
// workload completes.
var ErrUnfinished = errors.New("simulation ended with accesses in flight")

// Run starts the workload and runs the engine until no event is left.
func (p *Platform) Run() error {
	p.Agent.TickLater()

	if err := p.Engine.Run(); err != nil {
		return err
	}

	p.Engine.Finished()

	if !p.Agent.Done() {
		return ErrUnfinished
	}

	return nil
}

// DirectoryOf returns the home directory of the address.
func (p *Platform) DirectoryOf(addr uint64) *dirctrl.Comp {
	return p.dirByTile[p.homes.Home(addr)]
}

// CheckInvariants checks that the system is quiescent and coherent. Every
// directory entry must be consistent, a line held in the exclusive state
// must have no other copy, at most one cache may own a line, and every
// cached copy must be known to its home directory.
func (p *Platform) CheckInvariants() error {
	for _, d := range p.Directories {
		if !d.Engine().Idle() {
			return fmt.Errorf("%s still has transactions in flight", d.Name())
		}

		if err := d.Engine().Directory().CheckInvariants(); err != nil {
			return fmt.Errorf("%s: %w", d.Name(), err)
		}
	}

	holders := make(map[uint64]map[coherence.TileID]coherence.CacheState)

	for _, c := range p.Caches {
		if !c.Idle() {
			return fmt.Errorf("%s still has misses in flight", c.Name())
		}

		for line, state := range c.HeldLines() {
			if holders[line] == nil {
				holders[line] = make(map[coherence.TileID]coherence.CacheState)
			}

			holders[line][c.Tile()] = state
		}
	}

	lines := make([]uint64, 0, len(holders))
	for line := range holders {
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })

	for _, line := range lines {
		if err := p.checkLine(line, holders[line]); err != nil {
			return err
		}
	}

	return nil
}

func (p *Platform) checkLine(
	line uint64,
	holders map[coherence.TileID]coherence.CacheState,
) error {
	owners := 0

	for tile, state := range holders {
		switch state {
		case coherence.CacheExclusive:
			if len(holders) > 1 {
				return fmt.Errorf(
					"line 0x%x is exclusive at tile %d and held by %d tiles",
					line, tile, len(holders))
			}
		case coherence.CacheOwned:
			owners++
		}
	}

	if owners > 1 {
		return fmt.Errorf("line 0x%x has %d owners", line, owners)
	}

	d := p.DirectoryOf(line)

	entry, found := d.Engine().Directory().Lookup(line)
	if !found || entry.State == coherence.DirUncached {
		return fmt.Errorf("line 0x%x is cached but untracked by %s",
			line, d.Name())
	}

	if entry.Sharers.InBroadcastMode() {
		return nil
	}

	for tile, state := range holders {
		if !entry.Sharers.HasSharer(tile) {
			return fmt.Errorf("tile %d holds line 0x%x but %s does not list it",
				tile, line, d.Name())
		}

		if state == coherence.CacheExclusive && entry.Owner != tile {
			return fmt.Errorf("tile %d holds line 0x%x exclusively "+
				"but %s records owner %d", tile, line, d.Name(), entry.Owner)
		}
	}

	return nil
}
