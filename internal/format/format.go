// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

// Package format implements the zarc binary file format: the magic
// values, the fixed header layout, and the length-prefixed block and
// record framing. Every header and block carries a CRC-64/XZ trailer;
// all multi-byte integers are little-endian, and variable lengths use
// unsigned LEB128 (Go uvarint) encoding.
package format

import "errors"

// Magic marks a complete, coherent archive.
var Magic = []byte{0xAB, 'Z', 'R', 'f', 'i', 'L', 'e', 0x01}

// IncompleteMagic is written while an archive is under construction
// and replaced by Magic only once the header has been finalised.
var IncompleteMagic = []byte{0xAB, 'Z', 'R', 't', 'o', 'B', 'e', 0x01}

// MagicLength is the length of both magic values.
const MagicLength = 8

// CRCLength is the length of the CRC-64/XZ trailer on headers and blocks.
const CRCLength = 8

// CodecNameLength is the fixed size of the NUL-padded codec field.
const CodecNameLength = 16

// FirstExtensionLevel is the lowest block level reserved for future
// extensions. Readers skip extension blocks; writers must not emit them.
const FirstExtensionLevel = 64

// MaxBlockLength bounds a single block's contents. It exists to keep a
// corrupted length prefix from provoking a giant allocation.
const MaxBlockLength = 1 << 31

var (
	// ErrCorrupt indicates a malformed or corrupted archive.
	ErrCorrupt = errors.New("corrupt archive")

	// ErrIncomplete indicates a file still carrying IncompleteMagic,
	// i.e. a writer crashed or has not finished yet.
	ErrIncomplete = errors.New("incomplete archive (writer never finished)")
)
