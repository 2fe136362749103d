package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix starts the name of every variable that overrides a parameter.
const EnvPrefix = "TILESIM_"

type setter func(c *Config, value string) error

func intSetter(field func(c *Config) *int) setter {
	return func(c *Config, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}

		*field(c) = v

		return nil
	}
}

func uintSetter(field func(c *Config) *uint64) setter {
	return func(c *Config, value string) error {
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return err
		}

		*field(c) = v

		return nil
	}
}

func stringSetter(field func(c *Config) *string) setter {
	return func(c *Config, value string) error {
		*field(c) = value
		return nil
	}
}

var setters = map[string]setter{
	"NUM_TILES": intSetter(func(c *Config) *int { return &c.NumTiles }),
	"NUM_DIRECTORIES": intSetter(
		func(c *Config) *int { return &c.NumDirectories }),
	"CACHE_LINE_SIZE": intSetter(
		func(c *Config) *int { return &c.CacheLineSize }),
	"PROTOCOL": stringSetter(func(c *Config) *string { return &c.Protocol }),
	"DIRECTORY_TYPE": stringSetter(
		func(c *Config) *string { return &c.DirectoryType }),
	"MAX_HW_SHARERS": intSetter(func(c *Config) *int { return &c.MaxHWSharers }),
	"DIRECTORY_TOTAL_ENTRIES": intSetter(
		func(c *Config) *int { return &c.DirectoryTotalEntries }),
	"DIRECTORY_ASSOCIATIVITY": intSetter(
		func(c *Config) *int { return &c.DirectoryAssociativity }),
	"DIRECTORY_ACCESS_CYCLES": uintSetter(
		func(c *Config) *uint64 { return &c.DirectoryAccessCycles }),
	"SOFTWARE_TRAP_PENALTY": uintSetter(
		func(c *Config) *uint64 { return &c.SoftwareTrapPenalty }),
	"DRAM_LATENCY": uintSetter(
		func(c *Config) *uint64 { return &c.DRAMLatency }),
	"CACHE_SETS": intSetter(func(c *Config) *int { return &c.CacheSets }),
	"CACHE_WAYS": intSetter(func(c *Config) *int { return &c.CacheWays }),
	"CACHE_HIT_LATENCY": uintSetter(
		func(c *Config) *uint64 { return &c.CacheHitLatency }),
	"FREQ_GHZ": func(c *Config, value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}

		c.FreqGHz = v

		return nil
	},
	"SEED": func(c *Config, value string) error {
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return err
		}

		c.Seed = v

		return nil
	},
	"NUM_READS":  intSetter(func(c *Config) *int { return &c.NumReads }),
	"NUM_WRITES": intSetter(func(c *Config) *int { return &c.NumWrites }),
	"MAX_ADDRESS": uintSetter(
		func(c *Config) *uint64 { return &c.MaxAddress }),
	"CONCURRENT": func(c *Config, value string) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		c.Concurrent = v

		return nil
	},
	"MAX_IN_FLIGHT": intSetter(func(c *Config) *int { return &c.MaxInFlight }),
}

// Apply overrides the parameters named by TILESIM_* keys. Keys without the
// prefix are ignored. Unknown TILESIM_* keys are errors.
func (c *Config) Apply(env map[string]string) error {
	for key, value := range env {
		if len(key) <= len(EnvPrefix) || key[:len(EnvPrefix)] != EnvPrefix {
			continue
		}

		set, ok := setters[key[len(EnvPrefix):]]
		if !ok {
			return fmt.Errorf("unknown parameter %s", key)
		}

		if err := set(c, value); err != nil {
			return fmt.Errorf("parsing %s=%q: %w", key, value, err)
		}
	}

	return nil
}

// ApplyEnv overrides the parameters with the TILESIM_* variables of the
// process environment.
func (c *Config) ApplyEnv() error {
	env := make(map[string]string)

	for key := range setters {
		if value, ok := os.LookupEnv(EnvPrefix + key); ok {
			env[EnvPrefix+key] = value
		}
	}

	return c.Apply(env)
}

// LoadEnvFile starts from the defaults, applies the dotenv file at path and
// then the process environment, and validates the result. An empty path
// skips the file.
func LoadEnvFile(path string) (Config, error) {
	return Load(path, nil)
}

// Load is LoadEnvFile with a last layer of TILESIM_* overrides, such as the
// ones collected from command-line flags.
func Load(path string, overrides map[string]string) (Config, error) {
	c := Default()

	if path != "" {
		env, err := godotenv.Read(path)
		if err != nil {
			return c, fmt.Errorf("reading %s: %w", path, err)
		}

		if err := c.Apply(env); err != nil {
			return c, fmt.Errorf("applying %s: %w", path, err)
		}
	}

	if err := c.ApplyEnv(); err != nil {
		return c, err
	}

	if err := c.Apply(overrides); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

// Keys returns the parameter names that follow EnvPrefix, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
