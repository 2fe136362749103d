// Package config holds the parameters of a simulated tiled system and loads
// them from dotenv files and the environment.
package config

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/sharers"
)

// Config describes a system and the workload that runs on it.
type Config struct {
	NumTiles       int
	NumDirectories int
	CacheLineSize  int
	Protocol       string

	DirectoryType          string
	MaxHWSharers           int
	DirectoryTotalEntries  int
	DirectoryAssociativity int
	DirectoryAccessCycles  uint64
	SoftwareTrapPenalty    uint64
	DRAMLatency            uint64

	CacheSets       int
	CacheWays       int
	CacheHitLatency uint64

	FreqGHz float64
	Seed    int64

	NumReads    int
	NumWrites   int
	MaxAddress  uint64
	Concurrent  bool
	MaxInFlight int
}

// Default returns a small 16-tile MSI system with full-map directories.
func Default() Config {
	return Config{
		NumTiles:       16,
		NumDirectories: 4,
		CacheLineSize:  64,
		Protocol:       "msi",

		DirectoryType:          "full_map",
		MaxHWSharers:           4,
		DirectoryTotalEntries:  1024,
		DirectoryAssociativity: 8,
		DirectoryAccessCycles:  10,
		SoftwareTrapPenalty:    100,
		DRAMLatency:            100,

		CacheSets:       64,
		CacheWays:       4,
		CacheHitLatency: 2,

		FreqGHz: 1,
		Seed:    1,

		NumReads:    2000,
		NumWrites:   2000,
		MaxAddress:  16384,
		MaxInFlight: 4,
	}
}

// ProtocolKind returns the parsed protocol.
func (c Config) ProtocolKind() (coherence.Protocol, error) {
	return coherence.ParseProtocol(c.Protocol)
}

// Scheme returns the parsed sharer tracking scheme.
func (c Config) Scheme() (sharers.Scheme, error) {
	return sharers.ParseScheme(c.DirectoryType)
}

// DirectorySets returns the number of sets of each directory.
func (c Config) DirectorySets() int {
	return c.DirectoryTotalEntries / c.DirectoryAssociativity
}

// DirectoryTile returns the tile that hosts the i-th directory.
func (c Config) DirectoryTile(i int) coherence.TileID {
	return coherence.TileID(i * c.NumTiles / c.NumDirectories)
}

func isPowerOf2(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

// Validate checks that the parameters describe a system that can be built.
func (c Config) Validate() error {
	var errs []error

	if c.NumTiles <= 0 {
		errs = append(errs, fmt.Errorf("num tiles must be positive, got %d",
			c.NumTiles))
	}

	if c.NumDirectories <= 0 || c.NumDirectories > c.NumTiles {
		errs = append(errs, fmt.Errorf(
			"num directories must be in [1, %d], got %d",
			c.NumTiles, c.NumDirectories))
	}

	if !isPowerOf2(c.CacheLineSize) || c.CacheLineSize < 4 {
		errs = append(errs, fmt.Errorf(
			"cache line size must be a power of 2 of at least 4, got %d",
			c.CacheLineSize))
	}

	if _, err := c.ProtocolKind(); err != nil {
		errs = append(errs, err)
	}

	scheme, err := c.Scheme()
	if err != nil {
		errs = append(errs, err)
	} else if scheme != sharers.FullMap && c.MaxHWSharers <= 0 {
		errs = append(errs, fmt.Errorf(
			"%s needs a positive max hw sharers, got %d",
			scheme, c.MaxHWSharers))
	}

	errs = append(errs, c.validateDirectoryShape()...)

	if c.CacheSets <= 0 || c.CacheWays <= 0 {
		errs = append(errs, fmt.Errorf("cache shape %dx%d is not valid",
			c.CacheSets, c.CacheWays))
	}

	if c.FreqGHz <= 0 {
		errs = append(errs, fmt.Errorf("frequency must be positive, got %g",
			c.FreqGHz))
	}

	if c.NumReads < 0 || c.NumWrites < 0 {
		errs = append(errs, errors.New("access counts must not be negative"))
	}

	if c.MaxAddress < uint64(c.CacheLineSize) {
		errs = append(errs, fmt.Errorf(
			"max address 0x%x is smaller than a cache line", c.MaxAddress))
	}

	if c.Concurrent && c.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf(
			"max in flight must be positive, got %d", c.MaxInFlight))
	}

	return errors.Join(errs...)
}

func (c Config) validateDirectoryShape() []error {
	if c.DirectoryAssociativity <= 0 {
		return []error{fmt.Errorf(
			"directory associativity must be positive, got %d",
			c.DirectoryAssociativity)}
	}

	if c.DirectoryTotalEntries%c.DirectoryAssociativity != 0 {
		return []error{fmt.Errorf(
			"%d directory entries cannot be split into %d ways",
			c.DirectoryTotalEntries, c.DirectoryAssociativity)}
	}

	if !isPowerOf2(c.DirectorySets()) {
		return []error{fmt.Errorf(
			"number of directory sets must be a power of 2, got %d",
			c.DirectorySets())}
	}

	return nil
}
