package mem

import (
	"log"

	"github.com/sarchlab/tilesim/sim"
)

// Units of memory sizes.
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
	GB uint64 = 1 << 30
)

// AddressToPortMapper finds the port of the home directory that is
// responsible for an address.
type AddressToPortMapper interface {
	Find(address uint64) sim.RemotePort
}

// SinglePortMapper is used when there is only one home directory.
type SinglePortMapper struct {
	Port sim.RemotePort
}

// Find returns the only home directory.
func (f *SinglePortMapper) Find(_ uint64) sim.RemotePort {
	return f.Port
}

// InterleavedAddressPortMapper spreads consecutive blocks of InterleavingSize
// bytes over the home directories in round-robin order.
type InterleavedAddressPortMapper struct {
	InterleavingSize uint64
	LowModules       []sim.RemotePort
}

// NewInterleavedAddressPortMapper creates a new mapper that interleaves at
// the given granularity, typically one cache line.
func NewInterleavedAddressPortMapper(
	interleavingSize uint64,
) *InterleavedAddressPortMapper {
	if interleavingSize == 0 {
		log.Panic("interleaving size must be positive")
	}

	finder := new(InterleavedAddressPortMapper)
	finder.LowModules = make([]sim.RemotePort, 0)
	finder.InterleavingSize = interleavingSize

	return finder
}

// Find returns the home directory of the address.
func (f *InterleavedAddressPortMapper) Find(address uint64) sim.RemotePort {
	return f.LowModules[f.Index(address)]
}

// Index returns the position of the home directory in LowModules.
func (f *InterleavedAddressPortMapper) Index(address uint64) int {
	return int(address / f.InterleavingSize % uint64(len(f.LowModules)))
}
