// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zarc-io/zarc/internal/crc64xz"
)

// Block framing on disk:
//
//	uvarint  length of contents
//	1 byte   level (0 = data, 1..63 = index, >= 64 = extension)
//	[]byte   compressed payload
//	u64le    CRC-64/XZ of contents (level byte + payload)

// BlockOverhead returns the framing bytes a block of the given
// contents length adds on disk (length prefix + CRC trailer).
func BlockOverhead(contentsLen int) int {
	var scratch [binary.MaxVarintLen64]byte
	return binary.PutUvarint(scratch[:], uint64(contentsLen)) + CRCLength
}

// WriteBlock frames and writes one block, returning the total number
// of bytes written.
func WriteBlock(w io.Writer, level uint8, zpayload []byte) (int64, error) {
	if level >= FirstExtensionLevel {
		return 0, fmt.Errorf("invalid block level %d", level)
	}
	contentsLen := 1 + len(zpayload)
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(contentsLen))
	if _, err := w.Write(prefix[:n]); err != nil {
		return 0, fmt.Errorf("failed to write block length: %w", err)
	}
	crc := crc64xz.Update(crc64xz.Init(), []byte{level})
	if _, err := w.Write([]byte{level}); err != nil {
		return 0, fmt.Errorf("failed to write block level: %w", err)
	}
	crc = crc64xz.Update(crc, zpayload)
	if _, err := w.Write(zpayload); err != nil {
		return 0, fmt.Errorf("failed to write block payload: %w", err)
	}
	var trailer [CRCLength]byte
	binary.LittleEndian.PutUint64(trailer[:], crc64xz.Finalize(crc))
	if _, err := w.Write(trailer[:]); err != nil {
		return 0, fmt.Errorf("failed to write block CRC: %w", err)
	}
	return int64(n + contentsLen + CRCLength), nil
}

// ReadBlock reads and verifies the next block from r. It returns the
// block level, the (still compressed) payload, and the total on-disk
// length consumed. io.EOF is returned untouched when r is positioned
// exactly at the end of the block stream.
func ReadBlock(r *bufio.Reader) (level uint8, zpayload []byte, total int64, err error) {
	// Only a stream positioned exactly at the end of the block stream
	// yields a clean io.EOF; running dry inside the length prefix is a
	// truncated file.
	if _, err := r.ReadByte(); err != nil {
		if err == io.EOF {
			return 0, nil, 0, io.EOF
		}
		return 0, nil, 0, fmt.Errorf("failed to read block length: %w", err)
	}
	if err := r.UnreadByte(); err != nil {
		return 0, nil, 0, fmt.Errorf("failed to read block length: %w", err)
	}
	contentsLen, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("block cut off mid-length prefix: %w", ErrCorrupt)
	}
	if contentsLen == 0 || contentsLen > MaxBlockLength {
		return 0, nil, 0, fmt.Errorf("implausible block length %d: %w", contentsLen, ErrCorrupt)
	}
	contents := make([]byte, contentsLen)
	if _, err := io.ReadFull(r, contents); err != nil {
		return 0, nil, 0, fmt.Errorf("block cut off mid-contents: %w", ErrCorrupt)
	}
	var trailer [CRCLength]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return 0, nil, 0, fmt.Errorf("block cut off mid-CRC: %w", ErrCorrupt)
	}
	stored := binary.LittleEndian.Uint64(trailer[:])
	if computed := crc64xz.Checksum(contents); computed != stored {
		return 0, nil, 0, fmt.Errorf("block CRC mismatch: stored %#016x, computed %#016x: %w",
			stored, computed, ErrCorrupt)
	}
	var scratch [binary.MaxVarintLen64]byte
	prefixLen := binary.PutUvarint(scratch[:], contentsLen)
	total = int64(prefixLen) + int64(contentsLen) + CRCLength
	return contents[0], contents[1:], total, nil
}
