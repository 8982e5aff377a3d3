// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/zarc-io/zarc/internal/format"
)

// ValidateResult summarises a successful full-file validation.
type ValidateResult struct {
	Blocks      int64
	DataBlocks  int64
	IndexBlocks int64
	Records     int64
	RootLevel   int
}

// blockInfo is what the validation walk remembers about each block.
type blockInfo struct {
	level      uint8
	length     int64
	firstKey   []byte
	entries    []format.IndexEntry // index blocks only
	referenced int
}

// Validate walks the entire archive and checks everything the format
// promises: per-block CRCs (done by the block reader), record order
// within and across data blocks, the data sha256, the header's root
// pointer and total length, and that the index tree references every
// block exactly once with the correct keys, offsets, lengths, and
// levels. A nil error means the file is well-formed; the walk stops
// at the first problem.
func (r *Reader) Validate(ctx context.Context) (*ValidateResult, error) {
	stream, err := r.t.StreamFrom(ctx, r.firstBlockOffset())
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	br := bufio.NewReaderSize(stream, 256*1024)

	result := &ValidateResult{}
	blocks := make(map[int64]*blockInfo)
	var order []int64
	hasher := sha256.New()
	var prevLast []byte
	seenData := false
	offset := r.firstBlockOffset()

	for {
		level, zpayload, total, err := format.ReadBlock(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: block at offset %d: %w", r.t.Name(), offset, err)
		}
		result.Blocks++

		if level >= format.FirstExtensionLevel {
			// Extension blocks are opaque to this version: checksum
			// verified above, contents and references unchecked.
			offset += total
			continue
		}

		payload, err := r.codec.Decompress(zpayload)
		if err != nil {
			return nil, fmt.Errorf("%s: block at offset %d: %w", r.t.Name(), offset, err)
		}
		info := &blockInfo{level: level, length: total}

		if level == 0 {
			result.DataBlocks++
			hasher.Write(payload)
			records, err := format.UnpackDataRecords(payload)
			if err != nil {
				return nil, fmt.Errorf("%s: data block at offset %d: %w", r.t.Name(), offset, err)
			}
			if len(records) == 0 {
				return nil, fmt.Errorf("%s: empty data block at offset %d: %w", r.t.Name(), offset, ErrCorrupt)
			}
			for i, record := range records {
				if i == 0 {
					if seenData && bytes.Compare(record, prevLast) < 0 {
						return nil, fmt.Errorf("%s: data block at offset %d starts before the previous block ends: %w",
							r.t.Name(), offset, ErrCorrupt)
					}
				} else if bytes.Compare(record, records[i-1]) < 0 {
					return nil, fmt.Errorf("%s: records out of order inside data block at offset %d: %w",
						r.t.Name(), offset, ErrCorrupt)
				}
			}
			result.Records += int64(len(records))
			info.firstKey = bytes.Clone(records[0])
			prevLast = bytes.Clone(records[len(records)-1])
			seenData = true
		} else {
			result.IndexBlocks++
			entries, err := format.UnpackIndexEntries(payload)
			if err != nil {
				return nil, fmt.Errorf("%s: index block at offset %d: %w", r.t.Name(), offset, err)
			}
			if len(entries) == 0 {
				return nil, fmt.Errorf("%s: empty index block at offset %d: %w", r.t.Name(), offset, ErrCorrupt)
			}
			for i := 1; i < len(entries); i++ {
				if bytes.Compare(entries[i].Key, entries[i-1].Key) < 0 {
					return nil, fmt.Errorf("%s: index keys out of order at offset %d: %w", r.t.Name(), offset, ErrCorrupt)
				}
			}
			info.firstKey = bytes.Clone(entries[0].Key)
			info.entries = entries
		}

		blocks[offset] = info
		order = append(order, offset)
		offset += total
	}

	// Header consistency.
	if uint64(offset) != r.header.TotalFileLength {
		return nil, fmt.Errorf("%s: file is %d bytes but header says %d: %w",
			r.t.Name(), offset, r.header.TotalFileLength, ErrCorrupt)
	}
	if length, err := r.t.Length(ctx); err != nil {
		return nil, err
	} else if length != offset {
		return nil, fmt.Errorf("%s: trailing garbage after final block (%d of %d bytes used): %w",
			r.t.Name(), offset, length, ErrCorrupt)
	}
	var digest [32]byte
	hasher.Sum(digest[:0])
	if digest != r.header.SHA256 {
		return nil, fmt.Errorf("%s: data sha256 mismatch: %w", r.t.Name(), ErrCorrupt)
	}

	root, ok := blocks[int64(r.header.RootIndexOffset)]
	if !ok {
		return nil, fmt.Errorf("%s: header root offset %d does not point at a block: %w",
			r.t.Name(), r.header.RootIndexOffset, ErrCorrupt)
	}
	if root.level == 0 {
		return nil, fmt.Errorf("%s: header root points at a data block: %w", r.t.Name(), ErrCorrupt)
	}
	if uint64(root.length) != r.header.RootIndexLength {
		return nil, fmt.Errorf("%s: root index length %d does not match header %d: %w",
			r.t.Name(), root.length, r.header.RootIndexLength, ErrCorrupt)
	}
	result.RootLevel = int(root.level)

	// Every index entry must point at a real block, one level down,
	// keyed by that block's first record.
	for _, off := range order {
		parent := blocks[off]
		for _, entry := range parent.entries {
			child, ok := blocks[int64(entry.Offset)]
			if !ok {
				return nil, fmt.Errorf("%s: index block at offset %d references nonexistent offset %d: %w",
					r.t.Name(), off, entry.Offset, ErrCorrupt)
			}
			if uint64(child.length) != entry.Length {
				return nil, fmt.Errorf("%s: index entry for offset %d has length %d, block spans %d: %w",
					r.t.Name(), entry.Offset, entry.Length, child.length, ErrCorrupt)
			}
			if child.level != parent.level-1 {
				return nil, fmt.Errorf("%s: level %d index block at offset %d references level %d block: %w",
					r.t.Name(), parent.level, off, child.level, ErrCorrupt)
			}
			if !bytes.Equal(entry.Key, child.firstKey) {
				return nil, fmt.Errorf("%s: index key %q does not match first record %q of block at offset %d: %w",
					r.t.Name(), entry.Key, child.firstKey, entry.Offset, ErrCorrupt)
			}
			child.referenced++
		}
	}
	for _, off := range order {
		info := blocks[off]
		isRoot := off == int64(r.header.RootIndexOffset)
		if isRoot && info.referenced != 0 {
			return nil, fmt.Errorf("%s: root index block is referenced by another index: %w", r.t.Name(), ErrCorrupt)
		}
		if !isRoot && info.referenced != 1 {
			return nil, fmt.Errorf("%s: block at offset %d referenced %d times, want exactly once: %w",
				r.t.Name(), off, info.referenced, ErrCorrupt)
		}
	}

	return result, nil
}
