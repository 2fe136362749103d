package mem

import (
	"fmt"
)

// A Storage holds the content of the simulated main memory.
//
// The content is kept in fixed-size units that are allocated on first touch,
// so untouched addresses cost nothing and read as zero.
type Storage struct {
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity.
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4 * KB
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) unit(address uint64) ([]byte, error) {
	if address >= s.capacity {
		return nil, fmt.Errorf(
			"address 0x%x is beyond the storage capacity 0x%x",
			address, s.capacity)
	}

	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit, nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return baseAddr, inUnitAddr
}

// Read returns a copy of byteSize bytes starting at address.
func (s *Storage) Read(address uint64, byteSize uint64) ([]byte, error) {
	res := make([]byte, byteSize)
	offset := uint64(0)

	for offset < byteSize {
		currAddr := address + offset

		unit, err := s.unit(currAddr)
		if err != nil {
			return nil, err
		}

		_, inUnitAddr := s.parseAddress(currAddr)
		n := min(byteSize-offset, s.unitSize-inUnitAddr)

		copy(res[offset:offset+n], unit[inUnitAddr:inUnitAddr+n])
		offset += n
	}

	return res, nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	length := uint64(len(data))
	offset := uint64(0)

	for offset < length {
		currAddr := address + offset

		unit, err := s.unit(currAddr)
		if err != nil {
			return err
		}

		_, inUnitAddr := s.parseAddress(currAddr)
		n := min(length-offset, s.unitSize-inUnitAddr)

		copy(unit[inUnitAddr:inUnitAddr+n], data[offset:offset+n])
		offset += n
	}

	return nil
}
