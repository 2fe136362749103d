package cachectrl

import (
	"github.com/sarchlab/tilesim/mem/coherence"
)

// A Block is a cache line slot.
type Block struct {
	Tag    uint64
	SetID  int
	WayID  int
	Valid  bool
	State  coherence.CacheState
	Dirty  bool
	Locked bool
	Data   []byte
}

// Held tells if the block holds a readable copy of its line.
func (b *Block) Held() bool {
	return b.Valid && b.State != coherence.CacheInvalid
}

type set struct {
	blocks   []*Block
	lruQueue []int
}

type tagArray struct {
	numSets  int
	numWays  int
	lineSize uint64
	sets     []set
}

func newTagArray(numSets, numWays int, lineSize uint64) *tagArray {
	t := &tagArray{
		numSets:  numSets,
		numWays:  numWays,
		lineSize: lineSize,
	}

	t.reset()

	return t
}

func (t *tagArray) reset() {
	t.sets = make([]set, t.numSets)

	for i := range t.sets {
		for j := 0; j < t.numWays; j++ {
			t.sets[i].blocks = append(t.sets[i].blocks, &Block{
				SetID: i,
				WayID: j,
			})
			t.sets[i].lruQueue = append(t.sets[i].lruQueue, j)
		}
	}
}

func (t *tagArray) getSet(addr uint64) *set {
	return &t.sets[int(addr/t.lineSize%uint64(t.numSets))]
}

// lookup returns the block allocated to the line, whether or not it holds a
// readable copy.
func (t *tagArray) lookup(line uint64) (*Block, bool) {
	for _, b := range t.getSet(line).blocks {
		if b.Valid && b.Tag == line {
			return b, true
		}
	}

	return nil, false
}

// visit moves the block to the most recently used end of its set.
func (t *tagArray) visit(b *Block) {
	s := &t.sets[b.SetID]
	queue := s.lruQueue[:0]

	for _, way := range s.lruQueue {
		if way != b.WayID {
			queue = append(queue, way)
		}
	}

	s.lruQueue = append(queue, b.WayID)
}

// findVictim prefers an empty block and otherwise returns the least recently
// used block that is not waiting for the directory.
func (t *tagArray) findVictim(line uint64) (*Block, bool) {
	s := t.getSet(line)

	for _, way := range s.lruQueue {
		b := s.blocks[way]
		if !b.Valid && !b.Locked {
			return b, true
		}
	}

	for _, way := range s.lruQueue {
		b := s.blocks[way]
		if !b.Locked {
			return b, true
		}
	}

	return nil, false
}

func (t *tagArray) blocks() []*Block {
	all := make([]*Block, 0, t.numSets*t.numWays)
	for _, s := range t.sets {
		all = append(all, s.blocks...)
	}

	return all
}
