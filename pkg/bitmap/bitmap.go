// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bitmap provides a fixed-size allocation bitmap, used for disk
// blocks, inodes and physical frames.
package bitmap

import (
	"fmt"
	"math/bits"
)

// NoBit is returned by FirstZero when every bit is set.
const NoBit = ^uint32(0)

// Bitmap is a fixed-size set of bits.
//
// Bitmap is not synchronized; callers provide their own locking.
type Bitmap struct {
	// size is the number of valid bits.
	size uint32

	// numOnes is the number of set bits.
	numOnes uint32

	// words holds the bits, 64 per word.
	words []uint64
}

// New creates a new empty Bitmap of size bits.
func New(size uint32) Bitmap {
	return Bitmap{
		size:  size,
		words: make([]uint64, (size+63)/64),
	}
}

// Size returns the number of bits in b.
func (b *Bitmap) Size() uint32 {
	return b.size
}

// Count returns the number of set bits.
func (b *Bitmap) Count() uint32 {
	return b.numOnes
}

// Full returns true if every bit is set.
func (b *Bitmap) Full() bool {
	return b.numOnes == b.size
}

// Contains returns true if bit i is set.
func (b *Bitmap) Contains(i uint32) bool {
	b.check(i)
	return b.words[i/64]&(uint64(1)<<(i%64)) != 0
}

// Add sets bit i.
func (b *Bitmap) Add(i uint32) {
	b.check(i)
	w, mask := &b.words[i/64], uint64(1)<<(i%64)
	if *w&mask == 0 {
		*w |= mask
		b.numOnes++
	}
}

// Remove clears bit i.
func (b *Bitmap) Remove(i uint32) {
	b.check(i)
	w, mask := &b.words[i/64], uint64(1)<<(i%64)
	if *w&mask != 0 {
		*w &^= mask
		b.numOnes--
	}
}

// FirstZero returns the first unset bit at or after start, wrapping around
// to the beginning of the bitmap. It returns NoBit if every bit is set.
func (b *Bitmap) FirstZero(start uint32) uint32 {
	if b.Full() {
		return NoBit
	}
	if start >= b.size {
		start = 0
	}
	if bit := b.firstZeroIn(start, b.size); bit != NoBit {
		return bit
	}
	return b.firstZeroIn(0, start)
}

// firstZeroIn searches [begin, end).
func (b *Bitmap) firstZeroIn(begin, end uint32) uint32 {
	for i := begin; i < end; {
		w := b.words[i/64] | ((uint64(1) << (i % 64)) - 1)
		if w != ^uint64(0) {
			bit := (i/64)*64 + uint32(bits.TrailingZeros64(^w))
			if bit < end {
				return bit
			}
			return NoBit
		}
		i = (i/64 + 1) * 64
	}
	return NoBit
}

func (b *Bitmap) check(i uint32) {
	if i >= b.size {
		panic(fmt.Sprintf("bit %d out of range for bitmap of size %d", i, b.size))
	}
}
