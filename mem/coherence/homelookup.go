package coherence

import (
	"log"

	"github.com/sarchlab/tilesim/mem/mem"
	"github.com/sarchlab/tilesim/sim"
)

// AddressHomeLookup finds the home directory of a line.
type AddressHomeLookup interface {
	Home(address uint64) TileID
	HomePort(address uint64) sim.RemotePort
}

// LineInterleavedHomeLookup spreads consecutive cache lines over the home
// directories in round-robin order.
type LineInterleavedHomeLookup struct {
	mapper *mem.InterleavedAddressPortMapper
	homes  []TileID
}

// NewLineInterleavedHomeLookup creates a lookup over the given directories.
// homes[i] is the tile that hosts the directory reachable at ports[i].
func NewLineInterleavedHomeLookup(
	lineSize uint64,
	homes []TileID,
	ports []sim.RemotePort,
) *LineInterleavedHomeLookup {
	if len(homes) == 0 || len(homes) != len(ports) {
		log.Panicf("need one port per home, got %d homes and %d ports",
			len(homes), len(ports))
	}

	mapper := mem.NewInterleavedAddressPortMapper(lineSize)
	mapper.LowModules = append(mapper.LowModules, ports...)

	return &LineInterleavedHomeLookup{
		mapper: mapper,
		homes:  homes,
	}
}

// Home returns the tile that hosts the directory of the address.
func (l *LineInterleavedHomeLookup) Home(address uint64) TileID {
	return l.homes[l.mapper.Index(address)]
}

// HomePort returns the port of the directory of the address.
func (l *LineInterleavedHomeLookup) HomePort(address uint64) sim.RemotePort {
	return l.mapper.Find(address)
}

// NumHomes returns the number of directories.
func (l *LineInterleavedHomeLookup) NumHomes() int {
	return len(l.homes)
}
