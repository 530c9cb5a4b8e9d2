// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashset

// Index is an opaque position inside one storage generation of a Set.
// Indices are produced by StartIndex, EndIndex and After, and consumed
// by At. An Index is only valid against the storage generation that
// produced it: after any mutation of the set, using a stale Index
// panics.
type Index[E any] struct {
	st     *storage[E]
	gen    uint64
	bucket int
}

// Equal reports whether two indices denote the same position.
func (i Index[E]) Equal(j Index[E]) bool {
	return i.st == j.st && i.bucket == j.bucket
}

// endBucket is the position one past the last bucket. The empty set has
// a single conceptual bucket, so its end position is 1.
func (s Set[E]) endBucket() int {
	if s.storage == nil {
		return 1
	}
	return s.storage.table.BucketCount()
}

func (s Set[E]) index(bucket int) Index[E] {
	idx := Index[E]{st: s.storage, bucket: bucket}
	if s.storage != nil {
		idx.gen = s.storage.gen
	}
	return idx
}

// StartIndex returns the position of the first element, or EndIndex for
// an empty set.
func (s Set[E]) StartIndex() Index[E] {
	if s.storage == nil {
		return s.index(s.endBucket())
	}
	return s.index(s.storage.table.FirstOccupied())
}

// EndIndex returns the position one past the last element. It is valid
// only for comparison.
func (s Set[E]) EndIndex() Index[E] {
	return s.index(s.endBucket())
}

func (s Set[E]) checkIndex(i Index[E]) {
	if i.st != s.storage || (s.storage != nil && i.gen != s.storage.gen) {
		panic("hashset: invalid Index used after Set mutation")
	}
}

// After returns the position following i, skipping unoccupied buckets.
func (s Set[E]) After(i Index[E]) Index[E] {
	s.checkIndex(i)
	if i.bucket >= s.endBucket() {
		panic("hashset: After called on the end Index")
	}
	return s.index(s.storage.table.NextOccupied(i.bucket))
}

// At returns the element at i, which must be a valid, occupied
// position.
func (s Set[E]) At(i Index[E]) E {
	s.checkIndex(i)
	st := s.storage
	if st == nil || i.bucket >= st.table.BucketCount() || !st.table.IsOccupied(i.bucket) {
		panic("hashset: accessing an element with an invalid Index")
	}
	return st.elems[i.bucket]
}
