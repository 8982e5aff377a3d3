// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/zarc-io/zarc/internal/crc64xz"
)

// Header is the fixed archive header. It lives immediately after the
// magic, preceded by its own u64le length and followed by its
// CRC-64/XZ. The encoded size must not change between the placeholder
// written at creation time and the final header, so Encode is
// deterministic for a fixed metadata payload.
type Header struct {
	// RootIndexOffset is the file offset of the root index block.
	RootIndexOffset uint64

	// RootIndexLength is the total on-disk length of the root index block.
	RootIndexLength uint64

	// TotalFileLength lets readers detect truncation.
	TotalFileLength uint64

	// SHA256 is the hash of all uncompressed data-block payloads,
	// concatenated in file order. It uniquely identifies the contents.
	SHA256 [32]byte

	// Codec names the compression applied to block payloads.
	Codec string

	// Metadata is an arbitrary JSON object supplied at write time.
	Metadata json.RawMessage
}

// Encode serialises the header fields (everything between the length
// prefix and the CRC trailer).
func (h *Header) Encode() ([]byte, error) {
	if len(h.Codec) > CodecNameLength {
		return nil, fmt.Errorf("codec name %q longer than %d bytes", h.Codec, CodecNameLength)
	}
	metadata := h.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	if !json.Valid(metadata) {
		return nil, fmt.Errorf("header metadata is not valid JSON")
	}

	var buf bytes.Buffer
	var u64 [8]byte
	for _, v := range []uint64{h.RootIndexOffset, h.RootIndexLength, h.TotalFileLength} {
		binary.LittleEndian.PutUint64(u64[:], v)
		buf.Write(u64[:])
	}
	buf.Write(h.SHA256[:])
	var codec [CodecNameLength]byte
	copy(codec[:], h.Codec)
	buf.Write(codec[:])
	binary.LittleEndian.PutUint64(u64[:], uint64(len(metadata)))
	buf.Write(u64[:])
	buf.Write(metadata)
	return buf.Bytes(), nil
}

// CRC returns the header's CRC-64/XZ trailer value.
func (h *Header) CRC() (uint64, error) {
	encoded, err := h.Encode()
	if err != nil {
		return 0, err
	}
	return crc64xz.Checksum(encoded), nil
}

// DecodeHeader parses encoded header bytes. It does not verify the CRC
// trailer; callers hold that separately.
func DecodeHeader(encoded []byte) (*Header, error) {
	const fixed = 8 + 8 + 8 + 32 + CodecNameLength + 8
	if len(encoded) < fixed {
		return nil, fmt.Errorf("header too short (%d bytes): %w", len(encoded), ErrCorrupt)
	}
	h := &Header{}
	h.RootIndexOffset = binary.LittleEndian.Uint64(encoded[0:8])
	h.RootIndexLength = binary.LittleEndian.Uint64(encoded[8:16])
	h.TotalFileLength = binary.LittleEndian.Uint64(encoded[16:24])
	copy(h.SHA256[:], encoded[24:56])
	h.Codec = string(bytes.TrimRight(encoded[56:56+CodecNameLength], "\x00"))
	metadataLen := binary.LittleEndian.Uint64(encoded[56+CodecNameLength : fixed])
	rest := encoded[fixed:]
	if metadataLen != uint64(len(rest)) {
		return nil, fmt.Errorf("header metadata length %d does not match remaining %d bytes: %w",
			metadataLen, len(rest), ErrCorrupt)
	}
	h.Metadata = json.RawMessage(bytes.Clone(rest))
	if !json.Valid(h.Metadata) {
		return nil, fmt.Errorf("header metadata is not valid JSON: %w", ErrCorrupt)
	}
	return h, nil
}
