// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashset provides a hashed set with copy-on-write value
// semantics.
//
// A Set is a small handle over reference-counted storage. Clone is O(1)
// and shares the storage; the first mutation through a non-unique
// handle deep-copies it first, so clones never observe each other's
// writes. A Set handle must be duplicated with Clone, not by struct
// assignment: assignment produces two handles that do not know about
// each other.
//
// Elements are hashed through a siphash.Hasher keyed with the process
// key (hashkey package) and seeded per table, with the element's
// HashFunc feeding the element's identity bits. Equal elements must
// feed equal bit streams.
//
// A Set is thread-compatible, not thread-safe: distinct handles over
// shared storage may be read concurrently, but a handle must not be
// mutated while any goroutine uses it.
package hashset

import (
	"fmt"
	"sync/atomic"

	"github.com/aristanetworks/hashkit/hashkey"
	"github.com/aristanetworks/hashkit/hashtable"
	"github.com/aristanetworks/hashkit/siphash"
)

// HashFunc feeds the identity bits of e into h. It must be
// deterministic and must agree with the set's EqualFunc: equal elements
// feed equal bytes.
type HashFunc[E any] func(h *siphash.Hasher, e E)

// EqualFunc reports whether two elements are the same member.
type EqualFunc[E any] func(a, b E) bool

// storage is one generation of backing memory: the bucket metadata and
// the element slots, with a reference count for copy-on-write and a
// generation counter for iterator invalidation.
type storage[E any] struct {
	refs  atomic.Int32
	gen   uint64
	table *hashtable.Table
	elems []E
}

func newStorage[E any](scale uint8) *storage[E] {
	st := &storage[E]{
		table: hashtable.NewTable(scale),
		elems: make([]E, 1<<scale),
	}
	st.refs.Store(1)
	return st
}

// Set is a hashed set of E with copy-on-write value semantics. The zero
// value is not usable; construct with New or NewWithCapacity.
type Set[E any] struct {
	hash    HashFunc[E]
	equal   EqualFunc[E]
	storage *storage[E] // nil is the shared empty state
}

// New returns an empty Set. Reads on an empty set never allocate.
func New[E any](hash HashFunc[E], equal EqualFunc[E]) Set[E] {
	if hash == nil || equal == nil {
		panic("hashset: New called with a nil hash or equal function")
	}
	return Set[E]{hash: hash, equal: equal}
}

// NewWithCapacity returns an empty Set that can hold n elements without
// rehashing.
func NewWithCapacity[E any](n int, hash HashFunc[E], equal EqualFunc[E]) Set[E] {
	s := New(hash, equal)
	if n > 0 {
		s.storage = newStorage[E](hashtable.ScaleFor(n))
	}
	return s
}

// Len returns the number of elements.
func (s Set[E]) Len() int {
	if s.storage == nil {
		return 0
	}
	return s.storage.table.Count()
}

// IsEmpty reports whether the set has no elements.
func (s Set[E]) IsEmpty() bool {
	return s.Len() == 0
}

// Capacity returns the number of elements the set can hold before the
// next insert rehashes.
func (s Set[E]) Capacity() int {
	if s.storage == nil {
		return 0
	}
	return s.storage.table.Capacity()
}

// Clone returns a handle sharing s's storage. The copy is O(1); the
// storages diverge at the first mutation of either handle.
func (s Set[E]) Clone() Set[E] {
	if s.storage != nil {
		s.storage.refs.Add(1)
	}
	return s
}

// hashValue hashes e for st's table: process key, per-table seed, then
// the element's own bits.
func (s *Set[E]) hashValue(st *storage[E], e E) uint64 {
	k0, k1 := hashkey.Get()
	h := siphash.NewSeeded(k0, k1, st.table.Seed())
	s.hash(h, e)
	return h.Finalize()
}

// find runs the probe protocol: follow payload matches, confirming each
// with element equality. On a miss the returned bucket is the first
// hole on the probe sequence.
func (s *Set[E]) find(st *storage[E], e E, hash uint64) (bucket int, found bool) {
	b, found := st.table.LookupFirst(hash)
	for found {
		if s.equal(st.elems[b], e) {
			return b, true
		}
		b, found = st.table.LookupNext(hash, b)
	}
	return b, false
}

// Get returns the member equal to e, if any.
func (s Set[E]) Get(e E) (E, bool) {
	var zero E
	st := s.storage
	if st == nil || st.table.Count() == 0 {
		return zero, false
	}
	b, found := s.find(st, e, s.hashValue(st, e))
	if !found {
		return zero, false
	}
	return st.elems[b], true
}

// Contains reports whether the set has a member equal to e.
func (s Set[E]) Contains(e E) bool {
	_, ok := s.Get(e)
	return ok
}

// Insert adds e unless an equal member exists. It reports whether e was
// inserted, and returns the member after the call: e itself when
// inserted, the preexisting member otherwise.
func (s *Set[E]) Insert(e E) (inserted bool, member E) {
	if st := s.storage; st != nil {
		h := s.hashValue(st, e)
		b, found := s.find(st, e, h)
		if found {
			return false, st.elems[b]
		}
		if st.refs.Load() == 1 && st.table.Count() < st.table.Capacity() {
			st.table.Insert(h, b)
			st.elems[b] = e
			st.gen++
			return true, e
		}
	}
	s.insertAbsent(e)
	return true, e
}

// Update adds e, replacing an existing equal member. It returns the
// replaced member, if any.
func (s *Set[E]) Update(e E) (prior E, replaced bool) {
	var zero E
	if st := s.storage; st != nil {
		h := s.hashValue(st, e)
		b, found := s.find(st, e, h)
		if found {
			if st.refs.Load() != 1 {
				// Same scale: the copied table keeps b valid.
				st = s.copyStorage()
			}
			prior = st.elems[b]
			st.elems[b] = e
			st.gen++
			return prior, true
		}
		if st.refs.Load() == 1 && st.table.Count() < st.table.Capacity() {
			st.table.Insert(h, b)
			st.elems[b] = e
			st.gen++
			return zero, false
		}
	}
	s.insertAbsent(e)
	return zero, false
}

// insertAbsent adds an element known not to be present, growing or
// copying storage first as needed.
func (s *Set[E]) insertAbsent(e E) {
	st := s.makeUniqueWithRoom(1)
	// Growth changes the scale and with it the seed, the payloads and
	// the bucket mapping, so the hash and probe are re-derived here.
	h := s.hashValue(st, e)
	b, _ := s.find(st, e, h)
	st.table.Insert(h, b)
	st.elems[b] = e
	st.gen++
}

// Remove takes out the member equal to e and returns it.
func (s *Set[E]) Remove(e E) (removed E, ok bool) {
	var zero E
	st := s.storage
	if st == nil || st.table.Count() == 0 {
		return zero, false
	}
	h := s.hashValue(st, e)
	b, found := s.find(st, e, h)
	if !found {
		return zero, false
	}
	if st.refs.Load() != 1 {
		st = s.copyStorage()
	}
	removed = st.elems[b]
	st.elems[b] = zero
	st.table.Delete(h, b, &setDelegate[E]{set: s, st: st})
	st.gen++
	return removed, true
}

// ReserveCapacity grows the set so that at least n elements fit without
// another rehash. It never shrinks.
func (s *Set[E]) ReserveCapacity(n int) {
	if n < 0 {
		panic(fmt.Sprintf("hashset: negative capacity %d", n))
	}
	st := s.storage
	if st == nil {
		if n > 0 {
			s.storage = newStorage[E](hashtable.ScaleFor(n))
		}
		return
	}
	if st.table.Capacity() >= n {
		return
	}
	s.rehashStorage(hashtable.ScaleFor(n))
}

// makeUniqueWithRoom returns storage that is uniquely referenced and
// has room for extra more elements, copying or growing as required.
func (s *Set[E]) makeUniqueWithRoom(extra int) *storage[E] {
	st := s.storage
	if st == nil {
		ns := newStorage[E](hashtable.ScaleFor(extra))
		s.storage = ns
		return ns
	}
	count := st.table.Count()
	scale := st.table.Scale()
	for hashtable.CapacityFor(scale) < count+extra {
		scale++
	}
	if scale == st.table.Scale() {
		if st.refs.Load() == 1 {
			return st
		}
		return s.copyStorage()
	}
	return s.rehashStorage(scale)
}

// copyStorage replaces s's shared storage with a same-scale deep copy:
// metadata verbatim, element slots cloned.
func (s *Set[E]) copyStorage() *storage[E] {
	old := s.storage
	ns := newStorage[E](old.table.Scale())
	ns.table.CopyFrom(old.table)
	copy(ns.elems, old.elems)
	old.refs.Add(-1)
	s.storage = ns
	return ns
}

// rehashStorage replaces s's storage with one of the given scale,
// reinserting every element under the new seed and bucket mapping.
func (s *Set[E]) rehashStorage(scale uint8) *storage[E] {
	old := s.storage
	ns := newStorage[E](scale)
	for b := old.table.FirstOccupied(); b < old.table.BucketCount(); b = old.table.NextOccupied(b) {
		e := old.elems[b]
		nb := ns.table.InsertNew(s.hashValue(ns, e))
		ns.elems[nb] = e
	}
	old.refs.Add(-1)
	s.storage = ns
	return ns
}

// setDelegate moves element slots on behalf of the table's deletion
// repair.
type setDelegate[E any] struct {
	set *Set[E]
	st  *storage[E]
}

func (d *setDelegate[E]) IdealBucket(b int) int {
	return d.st.table.IdealBucket(d.set.hashValue(d.st, d.st.elems[b]))
}

func (d *setDelegate[E]) Move(from, to int) {
	var zero E
	d.st.elems[to] = d.st.elems[from]
	d.st.elems[from] = zero
}
