// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package siphash implements the SipHash-1-3 keyed hash function as an
// incremental, single-use hasher.
//
// SipHash-1-3 runs one compression round per 8-byte block and three
// finalization rounds. It is not a cryptographic hash; keyed with a
// per-process random key (see the hashkey package) it makes bucket
// distributions unpredictable enough to resist casual hash flooding.
//
// A Hasher is used for exactly one value: create it, append the value's
// bits, then call Finalize. Using a Hasher after Finalize panics.
package siphash

import "encoding/binary"

const (
	magic0 = 0x736f6d6570736575
	magic1 = 0x646f72616e646f6d
	magic2 = 0x6c7967656e657261
	magic3 = 0x7465646279746573
)

// Hasher holds the running state of a SipHash-1-3 computation.
type Hasher struct {
	v0, v1, v2, v3 uint64

	// Pending input, little-endian, low ntail bytes valid. Whenever the
	// buffer reaches 8 bytes it is consumed by one compression round.
	tail  uint64
	ntail uint

	length    uint64 // total bytes appended
	finalized bool
}

// New returns a Hasher keyed with (k0, k1).
func New(k0, k1 uint64) *Hasher {
	return &Hasher{
		v0: k0 ^ magic0,
		v1: k1 ^ magic1,
		v2: k0 ^ magic2,
		v3: k1 ^ magic3,
	}
}

// NewSeeded returns a Hasher keyed with (k0, k1) that has already
// consumed seed as its first 64-bit word. Containers use this to give
// each table its own bucket ordering while sharing the process key.
func NewSeeded(k0, k1, seed uint64) *Hasher {
	h := New(k0, k1)
	h.AppendUint64(seed)
	return h
}

// Hash is the one-shot form: it hashes b keyed with (k0, k1).
func Hash(k0, k1 uint64, b []byte) uint64 {
	h := New(k0, k1)
	h.AppendBytes(b)
	return h.Finalize()
}

func (h *Hasher) checkUsable() {
	if h.finalized {
		panic("siphash: Hasher used after Finalize")
	}
}

func (h *Hasher) sipRound() {
	h.v0 += h.v1
	h.v1 = h.v1<<13 | h.v1>>(64-13)
	h.v1 ^= h.v0
	h.v0 = h.v0<<32 | h.v0>>32
	h.v2 += h.v3
	h.v3 = h.v3<<16 | h.v3>>(64-16)
	h.v3 ^= h.v2
	h.v0 += h.v3
	h.v3 = h.v3<<21 | h.v3>>(64-21)
	h.v3 ^= h.v0
	h.v2 += h.v1
	h.v1 = h.v1<<17 | h.v1>>(64-17)
	h.v1 ^= h.v2
	h.v2 = h.v2<<32 | h.v2>>32
}

// compress consumes one full 8-byte block. c = 1.
func (h *Hasher) compress(m uint64) {
	h.v3 ^= m
	h.sipRound()
	h.v0 ^= m
}

// AppendBytes feeds b into the hasher, little-endian, byte by byte.
func (h *Hasher) AppendBytes(b []byte) {
	h.checkUsable()
	h.length += uint64(len(b))
	if h.ntail > 0 {
		for len(b) > 0 && h.ntail < 8 {
			h.tail |= uint64(b[0]) << (8 * h.ntail)
			h.ntail++
			b = b[1:]
		}
		if h.ntail < 8 {
			return
		}
		h.compress(h.tail)
		h.tail = 0
		h.ntail = 0
	}
	for len(b) >= 8 {
		h.compress(binary.LittleEndian.Uint64(b))
		b = b[8:]
	}
	for i, c := range b {
		h.tail |= uint64(c) << (8 * uint(i))
	}
	h.ntail = uint(len(b))
}

// AppendUint64 feeds the 8 little-endian bytes of x.
func (h *Hasher) AppendUint64(x uint64) {
	h.checkUsable()
	if h.ntail == 0 {
		// Aligned fast path: the word is a whole block.
		h.length += 8
		h.compress(x)
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x)
	h.AppendBytes(buf[:])
}

// AppendUint32 feeds the 4 little-endian bytes of x. The width is part
// of the message: appending a uint32 is distinguishable from appending
// a uint64 with the same numeric value.
func (h *Hasher) AppendUint32(x uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], x)
	h.AppendBytes(buf[:])
}

// AppendInt feeds x at the native width. Go's int is 64 bits on all
// supported targets, so this is always the 8-byte encoding.
func (h *Hasher) AppendInt(x int) {
	h.AppendUint64(uint64(x))
}

// Finalize pads the message with its length byte, runs the three
// finalization rounds and returns the digest. The Hasher must not be
// used afterwards.
func (h *Hasher) Finalize() uint64 {
	h.checkUsable()
	h.finalized = true
	b := h.length<<56 | h.tail
	h.compress(b)
	h.v2 ^= 0xff
	h.sipRound()
	h.sipRound()
	h.sipRound()
	return h.v0 ^ h.v1 ^ h.v2 ^ h.v3
}
