// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package crc64xz

import "hash"

// digest is the partial evaluation of a checksum. It holds the raw
// register state; Sum64 applies the final XOR without disturbing it,
// so the digest can keep accepting writes.
type digest struct {
	crc uint64
}

// New returns a hash.Hash64 computing the CRC-64/XZ checksum. Its Sum
// method lays the value out in big-endian byte order, matching
// hash/crc64.
func New() hash.Hash64 {
	return &digest{crc: Init()}
}

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return 1 }

func (d *digest) Reset() { d.crc = Init() }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, p)
	return len(p), nil
}

func (d *digest) Sum64() uint64 { return Finalize(d.crc) }

func (d *digest) Sum(in []byte) []byte {
	s := d.Sum64()
	return append(in, byte(s>>56), byte(s>>48), byte(s>>40), byte(s>>32),
		byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}
