// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

// Package crc64xz implements the CRC-64/XZ checksum: polynomial
// 0x42F0E1EBA9EA3693, reflected input and output, with the register
// initialised to and finally XORed with all-ones.
//
// The checksum is exposed in two styles: the rolling free functions
// Init/Update/Finalize, which thread an explicit uint64 accumulator
// through the computation, and New, which wraps the same computation
// in a hash.Hash64 for callers that want the standard library shape.
// Both operate on a single package-level lookup table which is built
// once at init time and never mutated, so any number of goroutines
// may checksum independently without synchronisation.
package crc64xz

import "math/bits"

// Poly is the CRC-64/XZ generator polynomial in normal (MSB-first) form.
const Poly = 0x42F0E1EBA9EA3693

// Size of a CRC-64 checksum in bytes.
const Size = 8

// mask is the XorIn/XorOut constant shared by Init and Finalize.
const mask = 0xFFFFFFFFFFFFFFFF

// crcTable holds the per-byte contribution of every possible input byte.
// Built once before main runs; read-only afterwards.
var crcTable = makeTable()

// makeTable derives the reflected table from Poly, the same way the
// table-driven generators do: reflect the index into the top byte of
// the register, run eight rounds of MSB-first polynomial division,
// then reflect the register back into LSB-first order.
func makeTable() *[256]uint64 {
	var t [256]uint64
	for i := range t {
		crc := Reflect(uint64(i), 8) << 56
		for range 8 {
			if crc&(1<<63) != 0 {
				crc = crc<<1 ^ Poly
			} else {
				crc <<= 1
			}
		}
		t[i] = Reflect(crc, 64)
	}
	return &t
}

// Reflect reverses the order of the low width bits of v. Bits above
// width are discarded. The width must be at most 64; in practice the
// package only relies on widths 8 and 64.
func Reflect(v uint64, width uint) uint64 {
	return bits.Reverse64(v) >> (64 - width)
}

// Init returns the starting accumulator value.
func Init() uint64 {
	return mask
}

// Update folds p into the accumulator, one byte at a time, and returns
// the new accumulator. The accumulator is the raw register state, not
// a reportable checksum; pass it through Finalize once all data has
// been folded in. An empty p returns crc unchanged.
func Update(crc uint64, p []byte) uint64 {
	for _, b := range p {
		crc = crc>>8 ^ crcTable[byte(crc)^b]
	}
	return crc
}

// Finalize converts the accumulator into the externally meaningful
// CRC-64/XZ value. It must be called exactly once, after the last
// Update; feeding the result back into Update has no defined meaning.
func Finalize(crc uint64) uint64 {
	return crc ^ mask
}

// Checksum returns the CRC-64/XZ of p in a single call.
func Checksum(p []byte) uint64 {
	return Finalize(Update(Init(), p))
}
