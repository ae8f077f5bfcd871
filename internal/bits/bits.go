// Package bits provides low-level bit manipulation primitives.
package bits

import "math/bits"

const bitsPerWord = 64

// Vector is a fixed-length bitvector used to track occupied slots.
// The zero value is an empty vector of length 0.
type Vector struct {
	words []uint64
	n     uint32
}

// NewVector returns a vector of n cleared bits.
func NewVector(n uint32) *Vector {
	return &Vector{
		words: make([]uint64, (uint64(n)+bitsPerWord-1)/bitsPerWord),
		n:     n,
	}
}

// Len returns the number of bits in the vector.
func (v *Vector) Len() uint32 {
	return v.n
}

// IsSet reports whether bit i is set. Out-of-range indices report false.
func (v *Vector) IsSet(i uint32) bool {
	if i >= v.n {
		return false
	}
	return v.words[i/bitsPerWord]&(1<<(i%bitsPerWord)) != 0
}

// Set sets bit i. Panics if i is out of range.
func (v *Vector) Set(i uint32) {
	if i >= v.n {
		panic("bits: Set index out of range")
	}
	v.words[i/bitsPerWord] |= 1 << (i % bitsPerWord)
}

// Count returns the number of set bits.
func (v *Vector) Count() int {
	c := 0
	for _, w := range v.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// AppendClear appends the indices of all cleared bits to dst in ascending
// order and returns the extended slice.
func (v *Vector) AppendClear(dst []uint32) []uint32 {
	for wi, w := range v.words {
		free := ^w
		for free != 0 {
			i := uint32(wi*bitsPerWord + bits.TrailingZeros64(free))
			if i >= v.n {
				break
			}
			dst = append(dst, i)
			free &= free - 1
		}
	}
	return dst
}
