// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"fmt"
)

// Data-block payloads are a plain sequence of uvarint-length-prefixed
// records. Index-block payloads interleave each key with the offset
// and total on-disk length of the block it refers to:
//
//	uvarint key length, key, uvarint block offset, uvarint block length

// IndexEntry is one reference inside an index block. Key is the first
// record of the referenced block's subtree.
type IndexEntry struct {
	Key    []byte
	Offset uint64
	Length uint64
}

// PackDataRecords encodes records as a data-block payload.
func PackDataRecords(records [][]byte) []byte {
	size := 0
	for _, r := range records {
		size += uvarintLen(uint64(len(r))) + len(r)
	}
	out := make([]byte, 0, size)
	for _, r := range records {
		out = binary.AppendUvarint(out, uint64(len(r)))
		out = append(out, r...)
	}
	return out
}

// UnpackDataRecords decodes a data-block payload. The returned slices
// alias payload.
func UnpackDataRecords(payload []byte) ([][]byte, error) {
	var records [][]byte
	for len(payload) > 0 {
		n, width := binary.Uvarint(payload)
		if width <= 0 || n > uint64(len(payload)-width) {
			return nil, fmt.Errorf("data payload ends mid-record: %w", ErrCorrupt)
		}
		records = append(records, payload[width:width+int(n)])
		payload = payload[width+int(n):]
	}
	return records, nil
}

// PackIndexEntries encodes entries as an index-block payload.
func PackIndexEntries(entries []IndexEntry) []byte {
	var out []byte
	for _, e := range entries {
		out = binary.AppendUvarint(out, uint64(len(e.Key)))
		out = append(out, e.Key...)
		out = binary.AppendUvarint(out, e.Offset)
		out = binary.AppendUvarint(out, e.Length)
	}
	return out
}

// UnpackIndexEntries decodes an index-block payload.
func UnpackIndexEntries(payload []byte) ([]IndexEntry, error) {
	var entries []IndexEntry
	for len(payload) > 0 {
		n, width := binary.Uvarint(payload)
		if width <= 0 || n > uint64(len(payload)-width) {
			return nil, fmt.Errorf("index payload ends mid-key: %w", ErrCorrupt)
		}
		e := IndexEntry{Key: payload[width : width+int(n)]}
		payload = payload[width+int(n):]
		var w2 int
		e.Offset, w2 = binary.Uvarint(payload)
		if w2 <= 0 {
			return nil, fmt.Errorf("index payload ends mid-offset: %w", ErrCorrupt)
		}
		payload = payload[w2:]
		e.Length, w2 = binary.Uvarint(payload)
		if w2 <= 0 {
			return nil, fmt.Errorf("index payload ends mid-length: %w", ErrCorrupt)
		}
		payload = payload[w2:]
		entries = append(entries, e)
	}
	return entries, nil
}

func uvarintLen(v uint64) int {
	var scratch [binary.MaxVarintLen64]byte
	return binary.PutUvarint(scratch[:], v)
}
