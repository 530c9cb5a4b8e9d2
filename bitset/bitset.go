// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package bitset provides a fixed-capacity set of small non-negative
// integers backed by a contiguous array of 64-bit words. The hashtable
// package uses it as per-bucket occupancy metadata; it is equally usable
// as a general small-integer set.
package bitset

import (
	"fmt"
	"math/bits"
)

const wordBits = 64

// Bitset is a set of integers in [0, Cap()). The capacity is fixed at
// creation; bits at or beyond the capacity are always zero.
type Bitset struct {
	words []uint64
	nbits int
}

// New returns an empty Bitset able to hold integers in [0, capacity).
func New(capacity int) *Bitset {
	if capacity < 0 {
		panic(fmt.Sprintf("bitset: negative capacity %d", capacity))
	}
	return &Bitset{
		words: make([]uint64, (capacity+wordBits-1)/wordBits),
		nbits: capacity,
	}
}

func (s *Bitset) check(i int) {
	if i < 0 || i >= s.nbits {
		panic(fmt.Sprintf("bitset: index %d out of range [0, %d)", i, s.nbits))
	}
}

func split(i int) (word int, bit uint) {
	return i / wordBits, uint(i % wordBits)
}

// Cap returns the capacity the set was created with.
func (s *Bitset) Cap() int {
	return s.nbits
}

// Contains reports whether i is in the set.
func (s *Bitset) Contains(i int) bool {
	s.check(i)
	w, b := split(i)
	return s.words[w]&(1<<b) != 0
}

// Insert adds i to the set and reports whether it was newly added.
func (s *Bitset) Insert(i int) bool {
	s.check(i)
	w, b := split(i)
	had := s.words[w]&(1<<b) != 0
	s.words[w] |= 1 << b
	return !had
}

// Remove takes i out of the set and reports whether it was present.
func (s *Bitset) Remove(i int) bool {
	s.check(i)
	w, b := split(i)
	had := s.words[w]&(1<<b) != 0
	s.words[w] &^= 1 << b
	return had
}

// Count returns the number of integers in the set.
func (s *Bitset) Count() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// RemoveAll empties the set.
func (s *Bitset) RemoveAll() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// ForEach calls f on each member in ascending order until f returns
// false.
func (s *Bitset) ForEach(f func(i int) bool) {
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			if !f(wi*wordBits + b) {
				return
			}
			w &= w - 1
		}
	}
}

// Next returns the smallest member at or after i, or Cap() when there is
// none. i may equal Cap(), so advancing from the last member is safe.
func (s *Bitset) Next(i int) int {
	if i < 0 || i > s.nbits {
		panic(fmt.Sprintf("bitset: index %d out of range [0, %d]", i, s.nbits))
	}
	if i == s.nbits {
		return s.nbits
	}
	wi, b := split(i)
	w := s.words[wi] >> b << b // clear bits below i
	for {
		if w != 0 {
			return wi*wordBits + bits.TrailingZeros64(w)
		}
		wi++
		if wi == len(s.words) {
			return s.nbits
		}
		w = s.words[wi]
	}
}

// Words exposes the backing words. Callers must not keep the slice
// across a RemoveAll and must preserve the zero-tail invariant.
func (s *Bitset) Words() []uint64 {
	return s.words
}

// CopyFrom overwrites s with the contents of other. The two sets must
// have the same capacity.
func (s *Bitset) CopyFrom(other *Bitset) {
	if s.nbits != other.nbits {
		panic(fmt.Sprintf("bitset: copy between capacities %d and %d", other.nbits, s.nbits))
	}
	copy(s.words, other.words)
}
