// Package bitfield wraps a fixed-length piece bitmap in BitTorrent wire
// order: big-endian bit order within each byte, with any leftover bits
// in the final byte zero-padded.
package bitfield

import (
	bitmap "github.com/boljen/go-bitmap"
)

// Bitfield is a fixed-length array of bits indexed by piece number.
type Bitfield struct {
	bm     bitmap.Bitmap
	length int
}

// New allocates a Bitfield of the given length, all bits clear.
func New(length int) *Bitfield {
	return &Bitfield{
		bm:     bitmap.New(length),
		length: length,
	}
}

// FromBytes builds a Bitfield from wire-order bytes as sent in a
// BITFIELD message. Trailing bits beyond length are ignored.
func FromBytes(data []byte, length int) *Bitfield {
	bf := New(length)
	for i := 0; i < length; i++ {
		if data[i/8]&(0x80>>uint(i%8)) != 0 {
			bf.bm.Set(i, true)
		}
	}
	return bf
}

// Len returns the number of bits in the bitfield.
func (bf *Bitfield) Len() int {
	return bf.length
}

// Get reports whether the bit at index is set.
func (bf *Bitfield) Get(index int) bool {
	if index < 0 || index >= bf.length {
		return false
	}
	return bf.bm.Get(index)
}

// Set assigns the bit at index.
func (bf *Bitfield) Set(index int, value bool) {
	if index < 0 || index >= bf.length {
		return
	}
	bf.bm.Set(index, value)
}

// Count returns the number of set bits.
func (bf *Bitfield) Count() int {
	n := 0
	for i := 0; i < bf.length; i++ {
		if bf.bm.Get(i) {
			n++
		}
	}
	return n
}

// SetIndices returns the ordered list of set bit positions.
func (bf *Bitfield) SetIndices() []int {
	indices := make([]int, 0, bf.Count())
	for i := 0; i < bf.length; i++ {
		if bf.bm.Get(i) {
			indices = append(indices, i)
		}
	}
	return indices
}

// ToBytes returns the wire-order byte representation, zero-padded.
func (bf *Bitfield) ToBytes() []byte {
	out := make([]byte, (bf.length+7)/8)
	for i := 0; i < bf.length; i++ {
		if bf.bm.Get(i) {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}

// Clone returns a deep copy.
func (bf *Bitfield) Clone() *Bitfield {
	out := New(bf.length)
	for i := 0; i < bf.length; i++ {
		if bf.bm.Get(i) {
			out.bm.Set(i, true)
		}
	}
	return out
}

// And returns the bitwise AND of bf and other. Both must share length.
func (bf *Bitfield) And(other *Bitfield) *Bitfield {
	return bf.combine(other, func(a, b bool) bool { return a && b })
}

// Or returns the bitwise OR of bf and other. Both must share length.
func (bf *Bitfield) Or(other *Bitfield) *Bitfield {
	return bf.combine(other, func(a, b bool) bool { return a || b })
}

// Xor returns the bitwise XOR of bf and other. Both must share length.
func (bf *Bitfield) Xor(other *Bitfield) *Bitfield {
	return bf.combine(other, func(a, b bool) bool { return a != b })
}

// AndNot returns the set of bits set in bf but not in other (bf \ other).
func (bf *Bitfield) AndNot(other *Bitfield) *Bitfield {
	return bf.combine(other, func(a, b bool) bool { return a && !b })
}

func (bf *Bitfield) combine(other *Bitfield, op func(a, b bool) bool) *Bitfield {
	length := bf.length
	if other.length < length {
		length = other.length
	}
	out := New(bf.length)
	for i := 0; i < length; i++ {
		if op(bf.Get(i), other.Get(i)) {
			out.Set(i, true)
		}
	}
	return out
}

// IsEmpty reports whether no bits are set.
func (bf *Bitfield) IsEmpty() bool {
	for i := 0; i < bf.length; i++ {
		if bf.bm.Get(i) {
			return false
		}
	}
	return true
}
