// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// hashbench floods the hashkit containers with randomized workloads,
// verifying their structural guarantees as it goes, and optionally
// compares throughput against the standard map and gomap.
//
// Usage:
//
//	hashbench -n 1000000 -value-bytes 32 -workers 8 -compare -logtostderr
package main

import (
	"encoding/binary"
	"flag"
	"hash/maphash"
	"time"

	"github.com/aristanetworks/hashkit/hashmap"
	"github.com/aristanetworks/hashkit/hashset"
	"github.com/aristanetworks/hashkit/logger"
	"github.com/aristanetworks/hashkit/siphash"

	"github.com/aristanetworks/gomap"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

var (
	n          = flag.Int("n", 1_000_000, "number of elements per phase")
	valueBytes = flag.Int("value-bytes", 16, "value size in the map phase (minimum 8)")
	workers    = flag.Int("workers", 4, "concurrent readers in the clone phase")
	seed       = flag.Uint64("seed", 0, "workload seed (0 picks the current time)")
	compare    = flag.Bool("compare", false, "also time the standard map, gomap and raw hashing")
)

func hashUint64(h *siphash.Hasher, e uint64) {
	h.AppendUint64(e)
}

func equalUint64(a, b uint64) bool {
	return a == b
}

func keys(rng *rand.Rand, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = rng.Uint64()
	}
	return out
}

// buildPhase inserts every key, then verifies membership and size.
func buildPhase(log logger.Logger, ks []uint64) hashset.Set[uint64] {
	s := hashset.New[uint64](hashUint64, equalUint64)
	start := time.Now()
	dups := 0
	for _, k := range ks {
		if inserted, _ := s.Insert(k); !inserted {
			dups++
		}
	}
	log.Infof("build: %d inserts in %v (%d duplicates, capacity %d)",
		len(ks), time.Since(start), dups, s.Capacity())
	if s.Len() != len(ks)-dups {
		log.Fatalf("build: Len() = %d, want %d", s.Len(), len(ks)-dups)
	}
	start = time.Now()
	for _, k := range ks {
		if !s.Contains(k) {
			log.Fatalf("build: lost key %#x", k)
		}
	}
	log.Infof("build: %d lookups in %v", len(ks), time.Since(start))
	return s
}

// churnPhase deletes every other key and verifies the survivors.
func churnPhase(log logger.Logger, s *hashset.Set[uint64], ks []uint64) {
	start := time.Now()
	removed := 0
	for i := 0; i < len(ks); i += 2 {
		if _, ok := s.Remove(ks[i]); ok {
			removed++
		}
	}
	log.Infof("churn: %d removals in %v", removed, time.Since(start))
	for i := 1; i < len(ks); i += 2 {
		if !s.Contains(ks[i]) {
			log.Fatalf("churn: survivor %#x unreachable", ks[i])
		}
	}
	count := 0
	s.Iter(func(uint64) error {
		count++
		return nil
	})
	if count != s.Len() {
		log.Fatalf("churn: iteration saw %d elements, Len() = %d", count, s.Len())
	}
}

// mapPhase mirrors the build phase on the dictionary, storing values of
// the configured size and verifying them on the way back out.
func mapPhase(log logger.Logger, ks []uint64) {
	size := *valueBytes
	if size < 8 {
		size = 8
	}
	m := hashmap.New[uint64, []byte](hashUint64, equalUint64)
	start := time.Now()
	for _, k := range ks {
		v := make([]byte, size)
		binary.LittleEndian.PutUint64(v, k)
		m.Set(k, v)
	}
	log.Infof("map: %d sets of %d-byte values in %v (capacity %d)",
		len(ks), size, time.Since(start), m.Capacity())
	start = time.Now()
	for _, k := range ks {
		v, ok := m.Get(k)
		if !ok || len(v) != size || binary.LittleEndian.Uint64(v) != k {
			log.Fatalf("map: bad value for key %#x", k)
		}
	}
	log.Infof("map: %d gets in %v", len(ks), time.Since(start))
}

// clonePhase shares the set with concurrent readers while the writer
// keeps mutating its own handle.
func clonePhase(log logger.Logger, s *hashset.Set[uint64], extra []uint64) {
	want := s.Len()
	var g errgroup.Group
	for w := 0; w < *workers; w++ {
		c := s.Clone()
		g.Go(func() error {
			for i := 0; i < 4; i++ {
				got := 0
				c.Iter(func(uint64) error {
					got++
					return nil
				})
				if got != want {
					log.Fatalf("clone: reader saw %d elements, want %d", got, want)
				}
			}
			return nil
		})
	}
	start := time.Now()
	for _, k := range extra {
		s.Insert(k)
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("clone: %v", err)
	}
	log.Infof("clone: %d writer inserts behind %d readers in %v",
		len(extra), *workers, time.Since(start))
}

// comparePhase times the same workload against the standard map, gomap
// and two raw hash functions.
func comparePhase(log logger.Logger, ks []uint64) {
	start := time.Now()
	std := make(map[uint64]struct{}, len(ks))
	for _, k := range ks {
		std[k] = struct{}{}
	}
	for _, k := range ks {
		if _, ok := std[k]; !ok {
			log.Fatalf("compare: standard map lost %#x", k)
		}
	}
	log.Infof("compare: standard map build+lookup in %v", time.Since(start))

	start = time.Now()
	gm := gomap.New[uint64, struct{}](equalUint64,
		func(seed maphash.Seed, k uint64) uint64 {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], k)
			return maphash.Bytes(seed, buf[:])
		})
	for _, k := range ks {
		gm.Set(k, struct{}{})
	}
	for _, k := range ks {
		if _, ok := gm.Get(k); !ok {
			log.Fatalf("compare: gomap lost %#x", k)
		}
	}
	log.Infof("compare: gomap build+lookup in %v", time.Since(start))

	var buf [8]byte
	var sink uint64
	start = time.Now()
	for _, k := range ks {
		binary.LittleEndian.PutUint64(buf[:], k)
		sink ^= xxhash.Sum64(buf[:])
	}
	log.Infof("compare: xxhash over %d words in %v", len(ks), time.Since(start))
	start = time.Now()
	for _, k := range ks {
		binary.LittleEndian.PutUint64(buf[:], k)
		sink ^= siphash.Hash(1, 2, buf[:])
	}
	log.Infof("compare: siphash-1-3 over %d words in %v (%#x)", len(ks), time.Since(start), sink&1)
}

func main() {
	flag.Parse()
	log := &logger.Glog{}

	workloadSeed := *seed
	if workloadSeed == 0 {
		workloadSeed = uint64(time.Now().UnixNano())
	}
	log.Infof("workload seed %d", workloadSeed)
	rng := rand.New(rand.NewSource(workloadSeed))

	ks := keys(rng, *n)
	s := buildPhase(log, ks)
	churnPhase(log, &s, ks)
	mapPhase(log, ks)
	clonePhase(log, &s, keys(rng, *n/10))
	if *compare {
		comparePhase(log, ks)
	}
	log.Infof("ok")
}
