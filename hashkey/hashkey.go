// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashkey owns the process-wide 128-bit key that seeds every
// siphash.Hasher created by the container packages.
//
// The key is published exactly once. By default it is read from the
// platform's secure random source on first use, which gives every
// process its own bucket ordering. Tests that need reproducible hashes
// install a fixed key with SetForTest before any container is touched.
package hashkey

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

type key struct {
	k0, k1 uint64
}

// current is nil until the first publication. Publication is a single
// compare-and-swap: racing first callers each generate a candidate and
// the losers discard theirs and adopt the winner's.
var current atomic.Pointer[key]

// Get returns the process key. Every call in the life of the process
// returns the same pair.
func Get() (k0, k1 uint64) {
	k := current.Load()
	if k == nil {
		current.CompareAndSwap(nil, generate())
		k = current.Load()
	}
	return k.k0, k.k1
}

// SetForTest publishes a fixed key and reports whether it won the
// publication. A false return means hashing already started (or another
// key was installed first) and the fixed key was not adopted.
func SetForTest(k0, k1 uint64) bool {
	return current.CompareAndSwap(nil, &key{k0: k0, k1: k1})
}

func generate() *key {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Very little we can do here: without a key no container can
		// hash anything.
		panic("hashkey: reading random bytes: " + err.Error())
	}
	return &key{
		k0: binary.LittleEndian.Uint64(buf[:8]),
		k1: binary.LittleEndian.Uint64(buf[8:]),
	}
}
