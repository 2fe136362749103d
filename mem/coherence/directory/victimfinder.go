package directory

// BusyChecker tells if an address has queued transactions.
type BusyChecker interface {
	Busy(addr uint64) bool
}

// A VictimFinder decides which entry to evict to make room for an address.
type VictimFinder interface {
	FindVictim(d *Directory, addr uint64, busy BusyChecker) (*Entry, bool)
}

// FewestSharersVictimFinder evicts the entry with the fewest sharers. Ties go
// to the least recently used entry.
type FewestSharersVictimFinder struct{}

// NewFewestSharersVictimFinder creates a FewestSharersVictimFinder.
func NewFewestSharersVictimFinder() *FewestSharersVictimFinder {
	return &FewestSharersVictimFinder{}
}

// FindVictim returns the entry to evict.
func (f *FewestSharersVictimFinder) FindVictim(
	d *Directory,
	addr uint64,
	busy BusyChecker,
) (*Entry, bool) {
	var victim *Entry

	for _, e := range d.ReplacementCandidates(addr) {
		if busy.Busy(e.Address) {
			continue
		}

		if victim == nil ||
			e.Sharers.NumSharers() < victim.Sharers.NumSharers() {
			victim = e
		}
	}

	return victim, victim != nil
}

// LRUVictimFinder evicts the least recently used entry.
type LRUVictimFinder struct{}

// NewLRUVictimFinder creates an LRUVictimFinder.
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns the entry to evict.
func (f *LRUVictimFinder) FindVictim(
	d *Directory,
	addr uint64,
	busy BusyChecker,
) (*Entry, bool) {
	for _, e := range d.ReplacementCandidates(addr) {
		if !busy.Busy(e.Address) {
			return e, true
		}
	}

	return nil, false
}
