// Package coherence defines the vocabulary of the directory-based cache
// coherence protocol: tile identities, directory and cache line states, and
// the messages exchanged between private caches and home directories.
package coherence

import (
	"fmt"
	"strings"
)

// TileID identifies a tile. Every tile has one private cache and may host
// one home directory.
type TileID int

// InvalidTileID marks the absence of a tile, for example an entry that has no
// owner.
const InvalidTileID TileID = -1

// DirState is the state of a line as recorded by its home directory.
type DirState int

// Directory states.
const (
	DirUncached DirState = iota
	DirShared
	DirExclusive
	DirOwned
)

func (s DirState) String() string {
	switch s {
	case DirUncached:
		return "UNCACHED"
	case DirShared:
		return "SHARED"
	case DirExclusive:
		return "EXCLUSIVE"
	case DirOwned:
		return "OWNED"
	}

	return fmt.Sprintf("DirState(%d)", int(s))
}

// CacheState is the state of a line in a private cache.
type CacheState int

// Cache line states.
const (
	CacheInvalid CacheState = iota
	CacheShared
	CacheExclusive
	CacheOwned
)

func (s CacheState) String() string {
	switch s {
	case CacheInvalid:
		return "INVALID"
	case CacheShared:
		return "SHARED"
	case CacheExclusive:
		return "EXCLUSIVE"
	case CacheOwned:
		return "OWNED"
	}

	return fmt.Sprintf("CacheState(%d)", int(s))
}

// CanRead tells if a line in this state can serve loads locally.
func (s CacheState) CanRead() bool {
	return s != CacheInvalid
}

// CanWrite tells if a line in this state can serve stores locally.
func (s CacheState) CanWrite() bool {
	return s == CacheExclusive
}

// HoldsDirtyData tells if a line in this state may be the only up to date
// copy of the data.
func (s CacheState) HoldsDirtyData() bool {
	return s == CacheExclusive || s == CacheOwned
}

// ReqType is the kind of a coherence request.
type ReqType int

// Request types. ReqNullify is never sent by a cache. The directory creates
// it internally to drive an evicted entry back to UNCACHED.
const (
	ReqRead ReqType = iota
	ReqWrite
	ReqNullify
)

func (t ReqType) String() string {
	switch t {
	case ReqRead:
		return "READ"
	case ReqWrite:
		return "WRITE"
	case ReqNullify:
		return "NULLIFY"
	}

	return fmt.Sprintf("ReqType(%d)", int(t))
}

// Protocol selects the family of states the system uses.
type Protocol int

// Supported protocols.
const (
	MSI Protocol = iota
	MOSI
)

func (p Protocol) String() string {
	if p == MOSI {
		return "mosi"
	}

	return "msi"
}

// ParseProtocol converts a protocol name into a Protocol.
func ParseProtocol(name string) (Protocol, error) {
	switch strings.ToLower(name) {
	case "msi":
		return MSI, nil
	case "mosi":
		return MOSI, nil
	}

	return MSI, fmt.Errorf("unknown coherence protocol %q", name)
}
