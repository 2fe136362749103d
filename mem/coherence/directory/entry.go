package directory

import (
	"fmt"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/sharers"
)

// An Entry is the directory record of one cache line.
type Entry struct {
	Address  uint64
	State    coherence.DirState
	Owner    coherence.TileID
	Sharers  *sharers.Set
	Retiring bool

	SetID int
	WayID int
	index int
}

// Index returns the arena slot of the entry. A retired entry's slot is
// given to the next installed entry.
func (e *Entry) Index() int {
	return e.index
}

// Check returns an error if the state, the owner, and the sharers of the
// entry contradict each other.
func (e *Entry) Check() error {
	n := e.Sharers.NumSharers()

	switch e.State {
	case coherence.DirUncached:
		if n != 0 {
			return e.errorf("UNCACHED with %d sharers", n)
		}
	case coherence.DirShared:
		if n == 0 {
			return e.errorf("SHARED without sharers")
		}
	case coherence.DirExclusive:
		if n != 1 {
			return e.errorf("EXCLUSIVE with %d sharers", n)
		}

		if e.Owner == coherence.InvalidTileID || !e.Sharers.HasSharer(e.Owner) {
			return e.errorf("EXCLUSIVE owner %d is not a sharer", e.Owner)
		}
	case coherence.DirOwned:
		if e.Owner == coherence.InvalidTileID || !e.Sharers.HasSharer(e.Owner) {
			return e.errorf("OWNED owner %d is not a sharer", e.Owner)
		}
	default:
		return e.errorf("unknown state %d", int(e.State))
	}

	return nil
}

func (e *Entry) errorf(format string, args ...any) error {
	return fmt.Errorf("entry 0x%x: %s", e.Address, fmt.Sprintf(format, args...))
}

// Sharing returns the named sharers in ascending order.
func (e *Entry) Sharing() []coherence.TileID {
	_, ids := e.Sharers.SharersList()
	return ids
}
