package sharers

import (
	"math/bits"

	"github.com/sarchlab/tilesim/mem/coherence"
)

type bitVector struct {
	words []uint64
	size  int
}

func newBitVector(n int) bitVector {
	return bitVector{words: make([]uint64, (n+63)/64)}
}

func (v *bitVector) at(i coherence.TileID) bool {
	return v.words[i/64]&(1<<(uint(i)%64)) != 0
}

func (v *bitVector) set(i coherence.TileID) {
	if v.at(i) {
		return
	}

	v.words[i/64] |= 1 << (uint(i) % 64)
	v.size++
}

func (v *bitVector) clear(i coherence.TileID) {
	if !v.at(i) {
		return
	}

	v.words[i/64] &^= 1 << (uint(i) % 64)
	v.size--
}

func (v *bitVector) list() []coherence.TileID {
	ids := make([]coherence.TileID, 0, v.size)

	for w, word := range v.words {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			ids = append(ids, coherence.TileID(w*64+b))
			word &= word - 1
		}
	}

	return ids
}
