// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashset

import (
	"errors"
	"os"
	"sort"
	"testing"

	"github.com/aristanetworks/hashkit/hashkey"
	"github.com/aristanetworks/hashkit/siphash"
	"github.com/aristanetworks/hashkit/test"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	// A fixed key makes failures reproducible; the containers behave
	// the same under any key.
	hashkey.SetForTest(0x0706050403020100, 0x0f0e0d0c0b0a0908)
	os.Exit(m.Run())
}

func hashInt(h *siphash.Hasher, e int) {
	h.AppendInt(e)
}

func equalInt(a, b int) bool {
	return a == b
}

func newIntSet() Set[int] {
	return New[int](hashInt, equalInt)
}

// checkInvariants verifies the structural invariants of the backing
// table against the actual elements.
func checkInvariants(t *testing.T, s *Set[int]) {
	t.Helper()
	st := s.storage
	if st == nil {
		return
	}
	tbl := st.table
	n := tbl.BucketCount()
	if n&(n-1) != 0 {
		t.Fatalf("bucket count %d is not a power of two", n)
	}
	occupied := 0
	for b := 0; b < n; b++ {
		if !tbl.IsOccupied(b) {
			continue
		}
		occupied++
		hash := s.hashValue(st, st.elems[b])
		if want := byte(hash>>tbl.Scale()) & 0x7f; tbl.Payload(b) != want {
			t.Fatalf("bucket %d: payload %#x, want %#x", b, tbl.Payload(b), want)
		}
		for i := tbl.IdealBucket(hash); i != b; i = (i + 1) & tbl.Mask() {
			if !tbl.IsOccupied(i) {
				t.Fatalf("hole at %d inside the chain of bucket %d", i, b)
			}
		}
	}
	if occupied != tbl.Count() {
		t.Fatalf("Count() = %d but %d buckets are occupied", tbl.Count(), occupied)
	}
	if tbl.Count() > tbl.Capacity() {
		t.Fatalf("Count() = %d exceeds Capacity() = %d", tbl.Count(), tbl.Capacity())
	}
	if occupied == n {
		t.Fatal("no unoccupied bucket left")
	}
}

func elements(s Set[int]) []int {
	var out []int
	s.Iter(func(e int) error {
		out = append(out, e)
		return nil
	})
	sort.Ints(out)
	return out
}

func TestBasic(t *testing.T) {
	s := newIntSet()
	if !s.IsEmpty() || s.Len() != 0 || s.Capacity() != 0 {
		t.Fatalf("fresh set: Len %d, Capacity %d", s.Len(), s.Capacity())
	}
	for _, e := range []int{10, 20, 30, 40, 50, 60} {
		inserted, member := s.Insert(e)
		if !inserted || member != e {
			t.Fatalf("Insert(%d) = (%t, %d)", e, inserted, member)
		}
		checkInvariants(t, &s)
	}
	if s.Len() != 6 {
		t.Errorf("Len() = %d, want 6", s.Len())
	}
	if !s.Contains(30) {
		t.Error("Contains(30) = false")
	}
	if s.Contains(35) {
		t.Error("Contains(35) = true")
	}
	if got, ok := s.Get(40); !ok || got != 40 {
		t.Errorf("Get(40) = (%d, %t)", got, ok)
	}
}

func TestInsertIdempotence(t *testing.T) {
	s := newIntSet()
	s.Insert(7)
	n := s.Len()
	inserted, member := s.Insert(7)
	if inserted {
		t.Error("second Insert(7) reported inserted")
	}
	if member != 7 {
		t.Errorf("second Insert(7) returned member %d", member)
	}
	if s.Len() != n {
		t.Errorf("Len changed from %d to %d on duplicate insert", n, s.Len())
	}
}

func TestInsertThenRemoveRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := newIntSet()
	elems := rng.Perm(500)
	for _, e := range elems {
		s.Insert(e)
		checkInvariants(t, &s)
	}
	if s.Len() != len(elems) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(elems))
	}
	// Remove in a different order than inserted.
	order := rng.Perm(len(elems))
	for i, oi := range order {
		e := elems[oi]
		removed, ok := s.Remove(e)
		if !ok || removed != e {
			t.Fatalf("Remove(%d) = (%d, %t)", e, removed, ok)
		}
		checkInvariants(t, &s)
		if s.Len() != len(elems)-i-1 {
			t.Fatalf("Len() = %d after %d removals", s.Len(), i+1)
		}
	}
	if !s.IsEmpty() {
		t.Errorf("set not empty after removing everything: %d left", s.Len())
	}
}

func TestRemoveAbsent(t *testing.T) {
	s := newIntSet()
	if _, ok := s.Remove(1); ok {
		t.Error("Remove on empty set reported success")
	}
	s.Insert(1)
	if _, ok := s.Remove(2); ok {
		t.Error("Remove of absent element reported success")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestUpdate(t *testing.T) {
	// Elements equal on one field, distinguishable on another, so the
	// replace is observable.
	type entry struct {
		id  int
		tag string
	}
	s := New[entry](
		func(h *siphash.Hasher, e entry) { h.AppendInt(e.id) },
		func(a, b entry) bool { return a.id == b.id },
	)
	if _, replaced := s.Update(entry{1, "a"}); replaced {
		t.Error("Update on empty set reported replacement")
	}
	prior, replaced := s.Update(entry{1, "b"})
	if !replaced || prior.tag != "a" {
		t.Errorf("Update = (%+v, %t), want tag a", prior, replaced)
	}
	if got, _ := s.Get(entry{id: 1}); got.tag != "b" {
		t.Errorf("member tag after Update = %q, want b", got.tag)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestGrowth(t *testing.T) {
	s := newIntSet()
	s.ReserveCapacity(0)
	var inserted []int
	var buckets int
	for i := 0; ; i++ {
		s.Insert(i)
		inserted = append(inserted, i)
		if s.storage != nil && buckets == 0 {
			buckets = s.storage.table.BucketCount()
		}
		if s.storage.table.BucketCount() > buckets && buckets > 0 {
			// First growth observed.
			if got := s.storage.table.BucketCount(); got != buckets*2 {
				t.Fatalf("bucket count after growth = %d, want %d", got, buckets*2)
			}
			break
		}
		if i > 100 {
			t.Fatal("no growth after 100 inserts")
		}
	}
	if s.Len() != len(inserted) {
		t.Errorf("Len() = %d across growth, want %d", s.Len(), len(inserted))
	}
	for _, e := range inserted {
		if !s.Contains(e) {
			t.Errorf("Contains(%d) = false after growth", e)
		}
	}
	checkInvariants(t, &s)
}

func TestReserveCapacity(t *testing.T) {
	s := newIntSet()
	s.ReserveCapacity(100)
	if got := s.Capacity(); got < 100 {
		t.Fatalf("Capacity() = %d after ReserveCapacity(100)", got)
	}
	buckets := s.storage.table.BucketCount()
	for i := 0; i < 100; i++ {
		s.Insert(i)
	}
	if got := s.storage.table.BucketCount(); got != buckets {
		t.Errorf("bucket count changed from %d to %d despite reservation", buckets, got)
	}
	checkInvariants(t, &s)

	// Reserving less than the current capacity is a no-op.
	s.ReserveCapacity(1)
	if got := s.storage.table.BucketCount(); got != buckets {
		t.Errorf("ReserveCapacity(1) shrank the table to %d buckets", got)
	}
	test.ShouldPanic(t, func() {
		s.ReserveCapacity(-1)
	})
}

func TestCopyOnWrite(t *testing.T) {
	c1 := newIntSet()
	for i := 0; i < 100; i++ {
		c1.Insert(i)
	}
	c2 := c1.Clone()
	inserted, _ := c2.Insert(1000)
	if !inserted {
		t.Fatal("Insert(1000) on the clone failed")
	}
	if c1.Len() != 100 {
		t.Errorf("original Len() = %d after mutating the clone, want 100", c1.Len())
	}
	if c2.Len() != 101 {
		t.Errorf("clone Len() = %d, want 101", c2.Len())
	}
	if c1.Contains(1000) {
		t.Error("original observed the clone's insert")
	}
	if !c2.Contains(1000) {
		t.Error("clone lost its own insert")
	}
	checkInvariants(t, &c1)
	checkInvariants(t, &c2)

	// And the other direction: mutating the original leaves the clone
	// alone.
	c3 := c2.Clone()
	c2.Remove(0)
	if !c3.Contains(0) {
		t.Error("clone observed the original's removal")
	}
	if c2.Contains(0) {
		t.Error("removal did not stick")
	}
}

func TestCloneOfEmpty(t *testing.T) {
	c1 := newIntSet()
	c2 := c1.Clone()
	c2.Insert(5)
	if c1.Len() != 0 || c2.Len() != 1 {
		t.Errorf("Len() = (%d, %d), want (0, 1)", c1.Len(), c2.Len())
	}
}

func TestDeletionRepair(t *testing.T) {
	// Fill a set far enough that collision chains exist, then delete
	// chain heads and verify every survivor stays reachable.
	s := newIntSet()
	const n = 200
	for i := 0; i < n; i++ {
		s.Insert(i)
	}
	for i := 0; i < n; i += 3 {
		if _, ok := s.Remove(i); !ok {
			t.Fatalf("Remove(%d) failed", i)
		}
		checkInvariants(t, &s)
	}
	for i := 0; i < n; i++ {
		want := i%3 != 0
		if got := s.Contains(i); got != want {
			t.Errorf("Contains(%d) = %t, want %t", i, got, want)
		}
	}
}

func TestIterCoversAllOnce(t *testing.T) {
	s := newIntSet()
	want := make([]int, 300)
	for i := range want {
		want[i] = i * 7
		s.Insert(i * 7)
	}
	got := elements(s)
	if d := test.Diff(want, got); d != "" {
		t.Errorf("iteration multiset: %s", d)
	}

	// Error from the callback stops the walk and is returned.
	boom := errors.New("boom")
	seen := 0
	err := s.Iter(func(int) error {
		seen++
		if seen == 10 {
			return boom
		}
		return nil
	})
	if err != boom || seen != 10 {
		t.Errorf("Iter stopped after %d elements with %v", seen, err)
	}
}

func TestIteratorCoversAllOnce(t *testing.T) {
	s := newIntSet()
	want := map[int]int{}
	for i := 0; i < 100; i++ {
		s.Insert(i)
		want[i] = 1
	}
	got := map[int]int{}
	for it := s.Iterator(); it.Next(); {
		got[it.Elem()]++
	}
	if d := test.Diff(want, got); d != "" {
		t.Errorf("iterator multiset: %s", d)
	}

	// Exhausted iterator stays exhausted.
	it := s.Iterator()
	for it.Next() {
	}
	if it.Next() {
		t.Error("Next() = true after exhaustion")
	}
}

func TestIteratorInvalidation(t *testing.T) {
	s := newIntSet()
	s.ReserveCapacity(100)
	for i := 0; i < 10; i++ {
		s.Insert(i)
	}
	it := s.Iterator()
	it.Next()
	s.Insert(50) // in-place: storage is unique and has room
	test.ShouldPanicWithStr(t, "hashset: iterator invalidated by mutation", func() {
		it.Next()
	})

	test.ShouldPanicWithStr(t, "hashset: Set mutated during iteration", func() {
		s.Iter(func(e int) error {
			s.Remove(e)
			return nil
		})
	})
}

func TestIteratorSnapshotAcrossCOW(t *testing.T) {
	s := newIntSet()
	for i := 0; i < 10; i++ {
		s.Insert(i)
	}
	clone := s.Clone()
	it := s.Iterator()
	// This mutation copies storage (the clone shares it), so the
	// iterator keeps walking the prior snapshot.
	s.Insert(100)
	n := 0
	for it.Next() {
		n++
	}
	if n != 10 {
		t.Errorf("snapshot iterator saw %d elements, want 10", n)
	}
	_ = clone
}

func TestIndexing(t *testing.T) {
	s := newIntSet()
	want := map[int]bool{}
	for i := 0; i < 50; i++ {
		s.Insert(i * 3)
		want[i*3] = true
	}
	got := map[int]bool{}
	n := 0
	for i := s.StartIndex(); !i.Equal(s.EndIndex()); i = s.After(i) {
		got[s.At(i)] = true
		n++
	}
	if n != 50 {
		t.Fatalf("index walk visited %d positions, want 50", n)
	}
	if d := test.Diff(want, got); d != "" {
		t.Errorf("index walk elements: %s", d)
	}
}

func TestIndexOnEmptySet(t *testing.T) {
	s := newIntSet()
	if !s.StartIndex().Equal(s.EndIndex()) {
		t.Error("StartIndex != EndIndex on an empty set")
	}
}

func TestStaleIndexPanics(t *testing.T) {
	s := newIntSet()
	s.ReserveCapacity(10)
	s.Insert(1)
	i := s.StartIndex()
	s.Insert(2) // in-place mutation bumps the generation
	test.ShouldPanicWithStr(t, "hashset: invalid Index used after Set mutation", func() {
		s.At(i)
	})

	s2 := newIntSet()
	s2.Insert(1)
	j := s2.StartIndex()
	s2.ReserveCapacity(1000) // reallocates storage
	test.ShouldPanicWithStr(t, "hashset: invalid Index used after Set mutation", func() {
		s2.At(j)
	})

	s3 := newIntSet()
	s3.Insert(1)
	test.ShouldPanicWithStr(t, "hashset: accessing an element with an invalid Index", func() {
		s3.At(s3.EndIndex())
	})
}

func TestEqualHashLaw(t *testing.T) {
	// Equal elements must produce equal digests through any hasher
	// with the same key and seed.
	for _, e := range []int{0, 1, -1, 1 << 40} {
		a := siphash.NewSeeded(1, 2, 3)
		hashInt(a, e)
		b := siphash.NewSeeded(1, 2, 3)
		hashInt(b, e)
		if x, y := a.Finalize(), b.Finalize(); x != y {
			t.Errorf("element %d hashed to %#x and %#x", e, x, y)
		}
	}
}

func TestConcurrentCloneReaders(t *testing.T) {
	s := newIntSet()
	for i := 0; i < 1000; i++ {
		s.Insert(i)
	}
	// Readers share the storage through clones while the writer
	// mutates its own handle; copy-on-write isolates them.
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		c := s.Clone()
		g.Go(func() error {
			for i := 0; i < 1000; i++ {
				if !c.Contains(i) {
					return errors.New("clone lost an element")
				}
			}
			n := 0
			c.Iter(func(int) error {
				n++
				return nil
			})
			if n != 1000 {
				return errors.New("clone iteration incomplete")
			}
			return nil
		})
	}
	for i := 1000; i < 2000; i++ {
		s.Insert(i)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2000 {
		t.Errorf("writer Len() = %d, want 2000", s.Len())
	}
}

func TestNilFuncsPanic(t *testing.T) {
	test.ShouldPanicWithStr(t, "hashset: New called with a nil hash or equal function", func() {
		New[int](nil, equalInt)
	})
	test.ShouldPanicWithStr(t, "hashset: New called with a nil hash or equal function", func() {
		New[int](hashInt, nil)
	})
}

func BenchmarkInsert(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s := newIntSet()
		for j := 0; j < 1000; j++ {
			s.Insert(j)
		}
	}
}

func BenchmarkContains(b *testing.B) {
	s := newIntSet()
	for j := 0; j < 1000; j++ {
		s.Insert(j)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !s.Contains(i % 1000) {
			b.Fatal("missing element")
		}
	}
}

func BenchmarkCloneAndMutate(b *testing.B) {
	s := newIntSet()
	for j := 0; j < 1000; j++ {
		s.Insert(j)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := s.Clone()
		c.Insert(1000 + i)
	}
}
