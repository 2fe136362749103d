package dirctrl

import (
	"log"

	"github.com/sarchlab/tilesim/mem/mem"
)

// StorageBackingStore keeps the lines in a mem.Storage.
type StorageBackingStore struct {
	Storage  *mem.Storage
	LineSize uint64
}

// NewStorageBackingStore creates a backing store over the storage.
func NewStorageBackingStore(
	storage *mem.Storage,
	lineSize uint64,
) *StorageBackingStore {
	return &StorageBackingStore{
		Storage:  storage,
		LineSize: lineSize,
	}
}

// ReadLine returns a copy of the line.
func (s *StorageBackingStore) ReadLine(addr uint64) []byte {
	data, err := s.Storage.Read(addr, s.LineSize)
	if err != nil {
		log.Panicf("reading line 0x%x: %v", addr, err)
	}

	return data
}

// WriteLine replaces the content of the line.
func (s *StorageBackingStore) WriteLine(addr uint64, data []byte) {
	if uint64(len(data)) != s.LineSize {
		log.Panicf("writing %d bytes to the %d-byte line 0x%x",
			len(data), s.LineSize, addr)
	}

	if err := s.Storage.Write(addr, data); err != nil {
		log.Panicf("writing line 0x%x: %v", addr, err)
	}
}
