// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashtable implements the bucket metadata engine shared by the
// hashset and hashmap containers.
//
// The table knows nothing about elements. It tracks, per bucket, one
// metadata byte (an occupied flag plus a 7-bit payload derived from the
// element's hash) and an occupancy bitset, and it implements linear
// probing, slot allocation and deletion with backward-shift repair.
// Callers own the element slots and participate in deletion through the
// Delegate capability set.
//
// Invariants, for every occupied bucket b with ideal bucket
// i = hash & Mask():
//   - every bucket on the arc [i, b) is occupied (contiguous chain),
//   - the payload at b equals byte(hash>>scale) & 0x7f,
//   - Count() <= Capacity() and at least one bucket is unoccupied, so
//     probe loops terminate.
package hashtable

import (
	"fmt"

	"github.com/aristanetworks/hashkit/bitset"
)

const (
	// Metadata byte layout: high bit occupied, low 7 bits payload.
	occupiedFlag = 0x80
	payloadBits  = 7
	payloadMask  = 1<<payloadBits - 1

	// Maximum load is 3/4 of the bucket count. Open addressing with
	// linear probing degrades sharply past that; growth doubles the
	// bucket count and rehashes.
	maxLoadNum = 3
	maxLoadDen = 4

	// maxScale keeps bucket counts addressable with int arithmetic.
	maxScale = 56
)

// Table is the metadata of one storage generation: scale, live count,
// per-table hash seed, the occupancy bitset and the per-bucket metadata
// bytes.
type Table struct {
	scale    uint8
	count    int
	seed     uint64
	occupied *bitset.Bitset
	entries  []byte
}

// Delegate is the capability set the table uses to repair a collision
// chain after a deletion. Implementations move element slots; the table
// moves the matching metadata itself.
type Delegate interface {
	// IdealBucket returns hash(element at bucket) & Mask() for the
	// current table seed.
	IdealBucket(bucket int) int
	// Move relocates the element in bucket from into the unoccupied
	// bucket to, leaving from empty.
	Move(from, to int)
}

// NewTable returns an empty table with 1<<scale buckets. The table seed
// is derived from the scale, so two tables of the same size hash alike
// while any growth (which changes the scale) reorders every bucket.
func NewTable(scale uint8) *Table {
	if scale > maxScale {
		panic(fmt.Sprintf("hashtable: scale %d out of range [0, %d]", scale, maxScale))
	}
	n := 1 << scale
	return &Table{
		scale:    scale,
		seed:     uint64(scale),
		occupied: bitset.New(n),
		entries:  make([]byte, n),
	}
}

// ScaleFor returns the smallest scale whose capacity holds n entries.
func ScaleFor(n int) uint8 {
	if n < 0 {
		panic(fmt.Sprintf("hashtable: negative capacity %d", n))
	}
	scale := uint8(0)
	for CapacityFor(scale) < n {
		scale++
		if scale > maxScale {
			panic(fmt.Sprintf("hashtable: capacity %d not representable", n))
		}
	}
	return scale
}

// CapacityFor returns floor(1<<scale * 3/4).
func CapacityFor(scale uint8) int {
	return (1 << scale) * maxLoadNum / maxLoadDen
}

// Scale returns the base-2 log of the bucket count.
func (t *Table) Scale() uint8 {
	return t.scale
}

// BucketCount returns the number of buckets, always a power of two.
func (t *Table) BucketCount() int {
	return 1 << t.scale
}

// Mask returns BucketCount() - 1.
func (t *Table) Mask() int {
	return t.BucketCount() - 1
}

// Capacity returns the entry count at which the next insert must grow.
func (t *Table) Capacity() int {
	return CapacityFor(t.scale)
}

// Count returns the number of occupied buckets.
func (t *Table) Count() int {
	return t.count
}

// Seed returns the value containers mix into every hash computed
// against this table.
func (t *Table) Seed() uint64 {
	return t.seed
}

// payload derives the 7-bit metadata tag from a hash value. It reads
// bits above the scale so that the tag stays independent of the bucket
// selection bits.
func (t *Table) payload(hash uint64) byte {
	return byte(hash>>t.scale) & payloadMask
}

// IdealBucket returns the bucket the hash maps to absent collisions.
func (t *Table) IdealBucket(hash uint64) int {
	return int(hash) & t.Mask()
}

// IsOccupied reports whether bucket holds an entry.
func (t *Table) IsOccupied(bucket int) bool {
	return t.entries[bucket]&occupiedFlag != 0
}

// Payload returns the 7-bit tag stored at an occupied bucket.
func (t *Table) Payload(bucket int) byte {
	return t.entries[bucket] & payloadMask
}

// LookupFirst probes from the hash's ideal bucket. It returns the first
// bucket whose payload matches with found true, or the first unoccupied
// bucket with found false. The caller confirms a match with element
// equality and continues with LookupNext on a mismatch.
func (t *Table) LookupFirst(hash uint64) (bucket int, found bool) {
	mask := t.Mask()
	return t.probe(occupiedFlag|t.payload(hash), int(hash)&mask, mask)
}

// LookupNext continues a probe past bucket, looking for further payload
// matches of the same hash.
func (t *Table) LookupNext(hash uint64, after int) (bucket int, found bool) {
	mask := t.Mask()
	return t.probe(occupiedFlag|t.payload(hash), (after+1)&mask, mask)
}

func (t *Table) probe(want byte, start, mask int) (int, bool) {
	for b := start; ; b = (b + 1) & mask {
		e := t.entries[b]
		if e&occupiedFlag == 0 {
			return b, false
		}
		if e == want {
			return b, true
		}
	}
}

// Insert marks bucket occupied with the payload of hash. The bucket
// must be unoccupied and must have been produced by a lookup for the
// same hash against this table.
func (t *Table) Insert(hash uint64, bucket int) {
	if t.entries[bucket]&occupiedFlag != 0 {
		panic(fmt.Sprintf("hashtable: insert into occupied bucket %d", bucket))
	}
	if t.count >= t.Capacity() {
		panic("hashtable: insert into a full table")
	}
	t.entries[bucket] = occupiedFlag | t.payload(hash)
	t.occupied.Insert(bucket)
	t.count++
}

// InsertNew claims the first unoccupied bucket on the hash's probe
// sequence and returns it. It skips the payload comparison and is only
// correct when the element is known to be absent, as during a rehash.
func (t *Table) InsertNew(hash uint64) int {
	mask := t.Mask()
	b := int(hash) & mask
	for t.entries[b]&occupiedFlag != 0 {
		b = (b + 1) & mask
	}
	t.Insert(hash, b)
	return b
}

// Delete clears bucket, which must hold an entry with the given hash,
// and repairs the collision chain with a backward shift: elements later
// in the chain that are probe-reachable from the hole are moved into it
// so that the contiguous-chain invariant keeps holding. Element slots
// are moved through the delegate.
func (t *Table) Delete(hash uint64, bucket int, d Delegate) {
	if t.entries[bucket]&occupiedFlag == 0 {
		panic(fmt.Sprintf("hashtable: delete of unoccupied bucket %d", bucket))
	}
	mask := t.Mask()
	ideal := int(hash) & mask

	// start is the hole preceding the chain the deleted entry was in;
	// end is the last occupied bucket of that chain. Both walks
	// terminate because the table always keeps at least one hole.
	start := (ideal - 1) & mask
	for t.entries[start]&occupiedFlag != 0 {
		start = (start - 1) & mask
	}
	end := bucket
	for t.entries[(end+1)&mask]&occupiedFlag != 0 {
		end = (end + 1) & mask
	}

	t.entries[bucket] = 0
	t.occupied.Remove(bucket)
	t.count--

	hole := bucket
	for hole != end {
		// Scan from the chain's tail toward the hole for an element
		// whose ideal bucket lies on the wrap-aware arc (start, hole];
		// such an element may legally fill the hole.
		b := end
		for b != hole {
			i := d.IdealBucket(b)
			var fills bool
			if start <= hole {
				fills = i >= start && i <= hole
			} else {
				fills = i >= start || i <= hole
			}
			if fills {
				break
			}
			b = (b - 1) & mask
		}
		if b == hole {
			// Nothing left in the chain belongs before the hole.
			return
		}
		d.Move(b, hole)
		t.entries[hole] = t.entries[b]
		t.entries[b] = 0
		t.occupied.Insert(hole)
		t.occupied.Remove(b)
		hole = b
	}
}

// FirstOccupied returns the lowest occupied bucket, or BucketCount()
// when the table is empty.
func (t *Table) FirstOccupied() int {
	return t.occupied.Next(0)
}

// NextOccupied returns the lowest occupied bucket after the given one,
// or BucketCount() when there is none.
func (t *Table) NextOccupied(after int) int {
	return t.occupied.Next(after + 1)
}

// CopyFrom overwrites t with the metadata of other. Both tables must
// have the same scale; bucket assignments carry over verbatim.
func (t *Table) CopyFrom(other *Table) {
	if t.scale != other.scale {
		panic(fmt.Sprintf("hashtable: metadata copy between scales %d and %d",
			other.scale, t.scale))
	}
	copy(t.entries, other.entries)
	t.occupied.CopyFrom(other.occupied)
	t.count = other.count
	t.seed = other.seed
}
