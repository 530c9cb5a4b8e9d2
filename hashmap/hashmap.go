// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashmap provides a hashed map with copy-on-write value
// semantics, the dictionary sibling of hashset.Set.
//
// A Map is a handle over reference-counted storage holding the bucket
// metadata, the key slots and the value slots. Clone is O(1); the first
// mutation through a non-unique handle deep-copies the storage. Like
// hashset.Set, a Map handle must be duplicated with Clone, not by
// struct assignment, and is thread-compatible rather than thread-safe.
package hashmap

import (
	"fmt"
	"sync/atomic"

	"github.com/aristanetworks/hashkit/hashkey"
	"github.com/aristanetworks/hashkit/hashtable"
	"github.com/aristanetworks/hashkit/siphash"
)

// HashFunc feeds the identity bits of k into h. Equal keys must feed
// equal bytes.
type HashFunc[K any] func(h *siphash.Hasher, k K)

// EqualFunc reports whether two keys are the same.
type EqualFunc[K any] func(a, b K) bool

type storage[K, V any] struct {
	refs   atomic.Int32
	gen    uint64
	table  *hashtable.Table
	keys   []K
	values []V
}

func newStorage[K, V any](scale uint8) *storage[K, V] {
	st := &storage[K, V]{
		table:  hashtable.NewTable(scale),
		keys:   make([]K, 1<<scale),
		values: make([]V, 1<<scale),
	}
	st.refs.Store(1)
	return st
}

// Map is a hashed map from K to V with copy-on-write value semantics.
// The zero value is not usable; construct with New or NewWithCapacity.
type Map[K, V any] struct {
	hash    HashFunc[K]
	equal   EqualFunc[K]
	storage *storage[K, V] // nil is the shared empty state
}

// New returns an empty Map.
func New[K, V any](hash HashFunc[K], equal EqualFunc[K]) Map[K, V] {
	if hash == nil || equal == nil {
		panic("hashmap: New called with a nil hash or equal function")
	}
	return Map[K, V]{hash: hash, equal: equal}
}

// NewWithCapacity returns an empty Map that can hold n entries without
// rehashing.
func NewWithCapacity[K, V any](n int, hash HashFunc[K], equal EqualFunc[K]) Map[K, V] {
	m := New[K, V](hash, equal)
	if n > 0 {
		m.storage = newStorage[K, V](hashtable.ScaleFor(n))
	}
	return m
}

// Len returns the number of entries.
func (m Map[K, V]) Len() int {
	if m.storage == nil {
		return 0
	}
	return m.storage.table.Count()
}

// IsEmpty reports whether the map has no entries.
func (m Map[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

// Capacity returns the number of entries the map can hold before the
// next insert rehashes.
func (m Map[K, V]) Capacity() int {
	if m.storage == nil {
		return 0
	}
	return m.storage.table.Capacity()
}

// Clone returns a handle sharing m's storage until either handle
// mutates.
func (m Map[K, V]) Clone() Map[K, V] {
	if m.storage != nil {
		m.storage.refs.Add(1)
	}
	return m
}

func (m *Map[K, V]) hashValue(st *storage[K, V], k K) uint64 {
	k0, k1 := hashkey.Get()
	h := siphash.NewSeeded(k0, k1, st.table.Seed())
	m.hash(h, k)
	return h.Finalize()
}

func (m *Map[K, V]) find(st *storage[K, V], k K, hash uint64) (bucket int, found bool) {
	b, found := st.table.LookupFirst(hash)
	for found {
		if m.equal(st.keys[b], k) {
			return b, true
		}
		b, found = st.table.LookupNext(hash, b)
	}
	return b, false
}

// Get returns the value stored for k.
func (m Map[K, V]) Get(k K) (V, bool) {
	var zero V
	st := m.storage
	if st == nil || st.table.Count() == 0 {
		return zero, false
	}
	b, found := m.find(st, k, m.hashValue(st, k))
	if !found {
		return zero, false
	}
	return st.values[b], true
}

// Contains reports whether k is present.
func (m Map[K, V]) Contains(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// GetKey returns the stored key equal to k. Useful when keys carry
// state beyond their identity.
func (m Map[K, V]) GetKey(k K) (K, bool) {
	var zero K
	st := m.storage
	if st == nil || st.table.Count() == 0 {
		return zero, false
	}
	b, found := m.find(st, k, m.hashValue(st, k))
	if !found {
		return zero, false
	}
	return st.keys[b], true
}

// Set associates k with v, replacing the value of any existing entry;
// the stored key of that entry is kept. It returns the prior value, if
// any.
func (m *Map[K, V]) Set(k K, v V) (prior V, replaced bool) {
	var zero V
	if st := m.storage; st != nil {
		h := m.hashValue(st, k)
		b, found := m.find(st, k, h)
		if found {
			if st.refs.Load() != 1 {
				st = m.copyStorage()
			}
			prior = st.values[b]
			st.values[b] = v
			st.gen++
			return prior, true
		}
		if st.refs.Load() == 1 && st.table.Count() < st.table.Capacity() {
			st.table.Insert(h, b)
			st.keys[b] = k
			st.values[b] = v
			st.gen++
			return zero, false
		}
	}
	m.insertAbsent(k, v)
	return zero, false
}

// SetIfAbsent associates k with v unless k is already present, in which
// case it returns the existing value.
func (m *Map[K, V]) SetIfAbsent(k K, v V) (existing V, inserted bool) {
	if st := m.storage; st != nil {
		h := m.hashValue(st, k)
		b, found := m.find(st, k, h)
		if found {
			return st.values[b], false
		}
		if st.refs.Load() == 1 && st.table.Count() < st.table.Capacity() {
			st.table.Insert(h, b)
			st.keys[b] = k
			st.values[b] = v
			st.gen++
			return v, true
		}
	}
	m.insertAbsent(k, v)
	return v, true
}

func (m *Map[K, V]) insertAbsent(k K, v V) {
	st := m.makeUniqueWithRoom(1)
	h := m.hashValue(st, k)
	b, _ := m.find(st, k, h)
	st.table.Insert(h, b)
	st.keys[b] = k
	st.values[b] = v
	st.gen++
}

// Delete removes k and returns the value it mapped to.
func (m *Map[K, V]) Delete(k K) (removed V, ok bool) {
	var (
		zeroK K
		zeroV V
	)
	st := m.storage
	if st == nil || st.table.Count() == 0 {
		return zeroV, false
	}
	h := m.hashValue(st, k)
	b, found := m.find(st, k, h)
	if !found {
		return zeroV, false
	}
	if st.refs.Load() != 1 {
		st = m.copyStorage()
	}
	removed = st.values[b]
	st.keys[b] = zeroK
	st.values[b] = zeroV
	st.table.Delete(h, b, &mapDelegate[K, V]{m: m, st: st})
	st.gen++
	return removed, true
}

// ReserveCapacity grows the map so that at least n entries fit without
// another rehash. It never shrinks.
func (m *Map[K, V]) ReserveCapacity(n int) {
	if n < 0 {
		panic(fmt.Sprintf("hashmap: negative capacity %d", n))
	}
	st := m.storage
	if st == nil {
		if n > 0 {
			m.storage = newStorage[K, V](hashtable.ScaleFor(n))
		}
		return
	}
	if st.table.Capacity() >= n {
		return
	}
	m.rehashStorage(hashtable.ScaleFor(n))
}

// Iter calls f on every entry in bucket order until f returns a non-nil
// error, which is returned. The map must not be mutated in place during
// the iteration; doing so panics.
func (m Map[K, V]) Iter(f func(k K, v V) error) error {
	st := m.storage
	if st == nil {
		return nil
	}
	gen := st.gen
	for b := st.table.FirstOccupied(); b < st.table.BucketCount(); b = st.table.NextOccupied(b) {
		if st.gen != gen {
			panic("hashmap: Map mutated during iteration")
		}
		if err := f(st.keys[b], st.values[b]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map[K, V]) makeUniqueWithRoom(extra int) *storage[K, V] {
	st := m.storage
	if st == nil {
		ns := newStorage[K, V](hashtable.ScaleFor(extra))
		m.storage = ns
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
		return m.copyStorage()
	}
	return m.rehashStorage(scale)
}

func (m *Map[K, V]) copyStorage() *storage[K, V] {
	old := m.storage
	ns := newStorage[K, V](old.table.Scale())
	ns.table.CopyFrom(old.table)
	copy(ns.keys, old.keys)
	copy(ns.values, old.values)
	old.refs.Add(-1)
	m.storage = ns
	return ns
}

func (m *Map[K, V]) rehashStorage(scale uint8) *storage[K, V] {
	old := m.storage
	ns := newStorage[K, V](scale)
	for b := old.table.FirstOccupied(); b < old.table.BucketCount(); b = old.table.NextOccupied(b) {
		nb := ns.table.InsertNew(m.hashValue(ns, old.keys[b]))
		ns.keys[nb] = old.keys[b]
		ns.values[nb] = old.values[b]
	}
	old.refs.Add(-1)
	m.storage = ns
	return ns
}

type mapDelegate[K, V any] struct {
	m  *Map[K, V]
	st *storage[K, V]
}

func (d *mapDelegate[K, V]) IdealBucket(b int) int {
	return d.st.table.IdealBucket(d.m.hashValue(d.st, d.st.keys[b]))
}

func (d *mapDelegate[K, V]) Move(from, to int) {
	var (
		zeroK K
		zeroV V
	)
	d.st.keys[to] = d.st.keys[from]
	d.st.values[to] = d.st.values[from]
	d.st.keys[from] = zeroK
	d.st.values[from] = zeroV
}
