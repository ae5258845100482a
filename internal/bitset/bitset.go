// Package bitset provides a dense set of small unsigned integers.
//
// Liveness dataflow and the live value tracker index it by SSA value id.
package bitset

import "math/bits"

// BitSet is a compact set of uint32 values using a bitmap.
// Optimized for dense sets (value ids are allocated sequentially per function).
type BitSet struct {
	bits []uint64
}

// New creates a BitSet that can hold values up to maxVal (inclusive) without growing.
func New(maxVal int) *BitSet {
	words := (maxVal + 64) / 64
	return &BitSet{bits: make([]uint64, words)}
}

// Set adds val to the set.
func (b *BitSet) Set(val uint32) {
	word := val / 64
	if int(word) >= len(b.bits) {
		b.grow(int(word) + 1)
	}
	b.bits[word] |= 1 << (val % 64)
}

// Clear removes val from the set.
func (b *BitSet) Clear(val uint32) {
	word := val / 64
	if int(word) < len(b.bits) {
		b.bits[word] &^= 1 << (val % 64)
	}
}

// Has returns true if val is in the set.
func (b *BitSet) Has(val uint32) bool {
	word := val / 64
	if int(word) >= len(b.bits) {
		return false
	}
	return b.bits[word]&(1<<(val%64)) != 0
}

// Union adds all elements from other into this set.
// Reports whether the set changed.
func (b *BitSet) Union(other *BitSet) bool {
	if len(other.bits) > len(b.bits) {
		b.grow(len(other.bits))
	}
	changed := false
	for i := range other.bits {
		old := b.bits[i]
		b.bits[i] |= other.bits[i]
		if b.bits[i] != old {
			changed = true
		}
	}
	return changed
}

// AndNot removes all elements of other from this set.
func (b *BitSet) AndNot(other *BitSet) {
	n := min(len(b.bits), len(other.bits))
	for i := 0; i < n; i++ {
		b.bits[i] &^= other.bits[i]
	}
}

// Copy makes b hold exactly the elements of other.
func (b *BitSet) Copy(other *BitSet) {
	if len(other.bits) > len(b.bits) {
		b.grow(len(other.bits))
	}
	n := copy(b.bits, other.bits)
	for i := n; i < len(b.bits); i++ {
		b.bits[i] = 0
	}
}

// Clone returns an independent copy of the set.
func (b *BitSet) Clone() *BitSet {
	c := &BitSet{bits: make([]uint64, len(b.bits))}
	copy(c.bits, b.bits)
	return c
}

// Equal reports whether both sets hold the same elements.
func (b *BitSet) Equal(other *BitSet) bool {
	long, short := b.bits, other.bits
	if len(short) > len(long) {
		long, short = short, long
	}
	for i := range short {
		if long[i] != short[i] {
			return false
		}
	}
	for i := len(short); i < len(long); i++ {
		if long[i] != 0 {
			return false
		}
	}
	return true
}

// Reset clears all elements from the set.
func (b *BitSet) Reset() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// ToSlice returns sorted slice of all values in the set.
func (b *BitSet) ToSlice() []uint32 {
	result := make([]uint32, 0, b.Count())
	b.ForEach(func(v uint32) {
		result = append(result, v)
	})
	return result
}

// ForEach calls fn for every element in ascending order.
func (b *BitSet) ForEach(fn func(uint32)) {
	for i, word := range b.bits {
		base := uint32(i * 64)
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			fn(base + uint32(tz))
			word &= word - 1
		}
	}
}

// Count returns the number of elements in the set.
func (b *BitSet) Count() int {
	count := 0
	for _, word := range b.bits {
		count += bits.OnesCount64(word)
	}
	return count
}

// grow expands the bitset to n words.
// Callers guarantee n > len(b.bits).
func (b *BitSet) grow(n int) {
	newBits := make([]uint64, n)
	copy(newBits, b.bits)
	b.bits = newBits
}
