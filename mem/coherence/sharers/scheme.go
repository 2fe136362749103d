package sharers

import (
	"fmt"
	"math/bits"
	"strings"
)

// Scheme is the encoding a directory entry uses to remember its sharers.
type Scheme int

// Sharer tracking schemes.
const (
	// FullMap keeps one bit per tile.
	FullMap Scheme = iota

	// LimitedNoBroadcast keeps at most K sharers. Adding one more fails and
	// the directory must invalidate a sharer first.
	LimitedNoBroadcast

	// LimitedBroadcast keeps at most K sharers. On overflow the entry counts
	// every tile as a sharer until all tiles answer a broadcast.
	LimitedBroadcast

	// Ackwise keeps at most K sharers and counts the ones it cannot name.
	Ackwise

	// Limitless keeps at most K sharers in hardware and traps to software on
	// overflow, where every tile is tracked exactly at a latency penalty.
	Limitless
)

var schemeNames = map[Scheme]string{
	FullMap:            "full_map",
	LimitedNoBroadcast: "limited_no_broadcast",
	LimitedBroadcast:   "limited_broadcast",
	Ackwise:            "ackwise",
	Limitless:          "limitless",
}

// Schemes lists all the schemes.
var Schemes = []Scheme{
	FullMap, LimitedNoBroadcast, LimitedBroadcast, Ackwise, Limitless,
}

func (s Scheme) String() string {
	if name, ok := schemeNames[s]; ok {
		return name
	}

	return fmt.Sprintf("Scheme(%d)", int(s))
}

// ParseScheme converts a configuration name into a Scheme.
func ParseScheme(name string) (Scheme, error) {
	for s, n := range schemeNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}

	return FullMap, fmt.Errorf("unknown directory type %q", name)
}

// StorageBits returns the number of bits one entry spends on sharer tracking.
func StorageBits(s Scheme, maxHWSharers, numTiles int) int {
	idBits := bits.Len(uint(numTiles - 1))
	if idBits == 0 {
		idBits = 1
	}

	switch s {
	case FullMap:
		return numTiles
	case LimitedNoBroadcast:
		return maxHWSharers * idBits
	case LimitedBroadcast:
		return maxHWSharers*idBits + 1
	case Ackwise:
		return maxHWSharers*idBits + bits.Len(uint(numTiles)) + 1
	case Limitless:
		return maxHWSharers*idBits + 1
	}

	panic(fmt.Sprintf("unknown scheme %d", int(s)))
}
