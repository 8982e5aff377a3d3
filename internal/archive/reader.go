// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/zarc-io/zarc/internal/codec"
	"github.com/zarc-io/zarc/internal/crc64xz"
	"github.com/zarc-io/zarc/internal/format"
	"github.com/zarc-io/zarc/internal/transport"
)

// maxHeaderLength bounds the header length prefix so a corrupted file
// cannot provoke a giant allocation before the CRC check runs.
const maxHeaderLength = 16 << 20

// indexCacheSize is the number of decoded index blocks kept hot. The
// root and the first level below it dominate lookups.
const indexCacheSize = 32

// Reader reads an archive through a transport. It is safe for
// concurrent use: the header is immutable after Open and the index
// cache is guarded by a mutex, while every Search gets its own
// stream.
type Reader struct {
	t         transport.Transport
	header    *format.Header
	headerLen int
	codec     codec.Codec

	mu    sync.Mutex
	cache *blockCache
}

type indexBlock struct {
	level   uint8
	entries []format.IndexEntry
}

// Open reads and verifies the archive header over t. The caller keeps
// ownership of t until Close.
func Open(ctx context.Context, t transport.Transport) (*Reader, error) {
	var intro [format.MagicLength + 8]byte
	if _, err := t.ReadAt(ctx, intro[:], 0); err != nil {
		// A short file is corruption; anything else (network,
		// permissions) is the transport's error to report.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%s: file too short for magic: %w", t.Name(), ErrCorrupt)
		}
		return nil, fmt.Errorf("%s: failed to read magic: %w", t.Name(), err)
	}
	magic := intro[:format.MagicLength]
	if bytes.Equal(magic, format.IncompleteMagic) {
		return nil, fmt.Errorf("%s: %w", t.Name(), ErrIncomplete)
	}
	if !bytes.Equal(magic, format.Magic) {
		return nil, fmt.Errorf("%s: bad magic (not a zarc file): %w", t.Name(), ErrCorrupt)
	}
	headerLen := binary.LittleEndian.Uint64(intro[format.MagicLength:])
	if headerLen == 0 || headerLen > maxHeaderLength {
		return nil, fmt.Errorf("%s: implausible header length %d: %w", t.Name(), headerLen, ErrCorrupt)
	}
	buf := make([]byte, headerLen+format.CRCLength)
	if _, err := t.ReadAt(ctx, buf, format.MagicLength+8); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%s: file too short for header: %w", t.Name(), ErrCorrupt)
		}
		return nil, fmt.Errorf("%s: failed to read header: %w", t.Name(), err)
	}
	encoded, trailer := buf[:headerLen], buf[headerLen:]
	stored := binary.LittleEndian.Uint64(trailer)
	if computed := crc64xz.Checksum(encoded); computed != stored {
		return nil, fmt.Errorf("%s: header CRC mismatch (stored %#016x, computed %#016x): %w",
			t.Name(), stored, computed, ErrCorrupt)
	}
	header, err := format.DecodeHeader(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	c, err := codec.New(header.Codec, codec.DefaultCompressLevel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	return &Reader{
		t:         t,
		header:    header,
		headerLen: int(headerLen),
		codec:     c,
		cache:     newBlockCache(indexCacheSize),
	}, nil
}

// OpenFile opens a local archive. Close releases the file handle.
func OpenFile(ctx context.Context, path string) (*Reader, error) {
	t, err := transport.OpenFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Open(ctx, t)
	if err != nil {
		t.Close()
		return nil, err
	}
	return r, nil
}

// Header returns the verified archive header.
func (r *Reader) Header() *format.Header { return r.header }

// Metadata returns the archive's JSON metadata object.
func (r *Reader) Metadata() json.RawMessage { return r.header.Metadata }

// Codec returns the codec name blocks were written with.
func (r *Reader) Codec() string { return r.codec.Name() }

// Close closes the underlying transport.
func (r *Reader) Close() error { return r.t.Close() }

// firstBlockOffset is where the block stream begins.
func (r *Reader) firstBlockOffset() int64 {
	return int64(format.MagicLength + 8 + r.headerLen + format.CRCLength)
}

// RootIndexLevel returns the level of the root index block. A search
// costs at most RootIndexLevel+1 block fetches before streaming.
func (r *Reader) RootIndexLevel(ctx context.Context) (int, error) {
	blk, err := r.indexBlockAt(ctx, int64(r.header.RootIndexOffset), int64(r.header.RootIndexLength))
	if err != nil {
		return 0, err
	}
	return int(blk.level), nil
}

// indexBlockAt fetches, verifies, and decodes one index block,
// consulting the LRU cache first.
func (r *Reader) indexBlockAt(ctx context.Context, offset, length int64) (*indexBlock, error) {
	r.mu.Lock()
	blk, ok := r.cache.get(offset)
	r.mu.Unlock()
	if ok {
		return blk, nil
	}

	if length <= 0 || length > format.MaxBlockLength {
		return nil, fmt.Errorf("%s: implausible index block length %d at offset %d: %w",
			r.t.Name(), length, offset, ErrCorrupt)
	}
	buf := make([]byte, length)
	if _, err := r.t.ReadAt(ctx, buf, offset); err != nil {
		return nil, fmt.Errorf("%s: failed to read index block at offset %d: %w", r.t.Name(), offset, err)
	}
	level, zpayload, total, err := format.ReadBlock(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return nil, fmt.Errorf("%s: index block at offset %d: %w", r.t.Name(), offset, err)
	}
	if total != length {
		return nil, fmt.Errorf("%s: index block at offset %d spans %d bytes, expected %d: %w",
			r.t.Name(), offset, total, length, ErrCorrupt)
	}
	if level == 0 {
		return nil, fmt.Errorf("%s: expected index block at offset %d but found a data block: %w",
			r.t.Name(), offset, ErrCorrupt)
	}
	if level >= format.FirstExtensionLevel {
		return nil, fmt.Errorf("%s: index descent hit a level %d extension block at offset %d: %w",
			r.t.Name(), level, offset, ErrCorrupt)
	}
	payload, err := r.codec.Decompress(zpayload)
	if err != nil {
		return nil, fmt.Errorf("%s: index block at offset %d: %w", r.t.Name(), offset, err)
	}
	entries, err := format.UnpackIndexEntries(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: index block at offset %d: %w", r.t.Name(), offset, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: empty index block at offset %d: %w", r.t.Name(), offset, ErrCorrupt)
	}
	blk = &indexBlock{level: level, entries: entries}
	r.mu.Lock()
	r.cache.put(offset, blk)
	r.mu.Unlock()
	return blk, nil
}

// findStartBlock descends the index to the offset of the first data
// block that could contain needle (rounding down, since the block
// holding the needle may start before it).
func (r *Reader) findStartBlock(ctx context.Context, needle []byte) (int64, error) {
	offset := int64(r.header.RootIndexOffset)
	length := int64(r.header.RootIndexLength)
	for {
		blk, err := r.indexBlockAt(ctx, offset, length)
		if err != nil {
			return 0, err
		}
		entries := blk.entries
		// First entry whose key sorts at or after needle, minus one.
		// Rounding down past equal keys matters: duplicate records can
		// span a block boundary, giving adjacent blocks the same first
		// key, and the needle's run may begin in the earlier one.
		i := sort.Search(len(entries), func(i int) bool {
			return bytes.Compare(entries[i].Key, needle) >= 0
		})
		if i > 0 {
			i--
		}
		child := entries[i]
		if blk.level == 1 {
			return int64(child.Offset), nil
		}
		offset = int64(child.Offset)
		length = int64(child.Length)
	}
}

// SearchOptions restricts a Search to records in [Start, Stop), both
// optional, intersected with records having Prefix.
type SearchOptions struct {
	Start  []byte
	Stop   []byte
	Prefix []byte
}

// normalize folds Prefix into the Start/Stop bounds.
func (o SearchOptions) normalize() (start, stop []byte) {
	start, stop = o.Start, o.Stop
	if len(o.Prefix) > 0 {
		if bytes.Compare(o.Prefix, start) > 0 {
			start = o.Prefix
		}
		if upper := prefixUpperBound(o.Prefix); upper != nil {
			if stop == nil || bytes.Compare(upper, stop) < 0 {
				stop = upper
			}
		}
	}
	return start, stop
}

// prefixUpperBound returns the smallest byte string greater than
// every string with the given prefix, or nil if there is none (the
// prefix is all 0xFF).
func prefixUpperBound(prefix []byte) []byte {
	upper := bytes.Clone(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// Search returns a Scan over the records selected by opts, in sorted
// order. The Scan must be closed.
func (r *Reader) Search(ctx context.Context, opts SearchOptions) (*Scan, error) {
	start, stop := opts.normalize()
	offset, err := r.findStartBlock(ctx, start)
	if err != nil {
		return nil, err
	}
	stream, err := r.t.StreamFrom(ctx, offset)
	if err != nil {
		return nil, err
	}
	return &Scan{
		r:      r,
		stream: stream,
		br:     bufio.NewReaderSize(stream, 256*1024),
		start:  start,
		stop:   stop,
	}, nil
}

// Scan iterates over records in the bufio.Scanner style:
//
//	scan, err := reader.Search(ctx, opts)
//	defer scan.Close()
//	for scan.Next() {
//	    use(scan.Record())
//	}
//	err = scan.Err()
type Scan struct {
	r       *Reader
	stream  io.ReadCloser
	br      *bufio.Reader
	start   []byte
	stop    []byte
	records [][]byte
	record  []byte
	err     error
	done    bool
}

// Next advances to the next record, returning false at the end of the
// selected range or on error.
func (s *Scan) Next() bool {
	if s.done {
		return false
	}
	for {
		for len(s.records) > 0 {
			record := s.records[0]
			s.records = s.records[1:]
			if bytes.Compare(record, s.start) < 0 {
				continue
			}
			if s.stop != nil && bytes.Compare(record, s.stop) >= 0 {
				s.finish(nil)
				return false
			}
			s.record = record
			return true
		}

		// The block stream interleaves data blocks with the index
		// blocks that reference them; skip everything above level 0.
		level, zpayload, _, err := format.ReadBlock(s.br)
		if err == io.EOF {
			s.finish(nil)
			return false
		}
		if err != nil {
			s.finish(fmt.Errorf("%s: %w", s.r.t.Name(), err))
			return false
		}
		if level > 0 {
			continue
		}
		payload, err := s.r.codec.Decompress(zpayload)
		if err != nil {
			s.finish(fmt.Errorf("%s: %w", s.r.t.Name(), err))
			return false
		}
		records, err := format.UnpackDataRecords(payload)
		if err != nil {
			s.finish(fmt.Errorf("%s: %w", s.r.t.Name(), err))
			return false
		}
		// Records are sorted, so a block starting at or past stop
		// means no further block can match.
		if s.stop != nil && len(records) > 0 && bytes.Compare(records[0], s.stop) >= 0 {
			s.finish(nil)
			return false
		}
		s.records = records
	}
}

// Record returns the current record. Valid until the next call to
// Next; copy it to retain it.
func (s *Scan) Record() []byte { return s.record }

// Err returns the error that terminated the scan, if any.
func (s *Scan) Err() error { return s.err }

// Close releases the underlying stream. Always returns nil after the
// first call.
func (s *Scan) Close() error {
	s.finish(nil)
	return nil
}

func (s *Scan) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	if err != nil {
		s.err = err
	}
	s.record = nil
	s.records = nil
	s.stream.Close()
}

// DumpOptions controls Dump output framing. With LengthPrefix unset,
// each record is followed by Terminator (default "\n").
type DumpOptions struct {
	SearchOptions
	Terminator   []byte
	LengthPrefix string // "uleb128" or "u64le"
}

// Dump writes the selected records to w.
func (r *Reader) Dump(ctx context.Context, w io.Writer, opts DumpOptions) (int64, error) {
	var writeRecord func(record []byte) error
	bw := bufio.NewWriter(w)
	switch opts.LengthPrefix {
	case "":
		terminator := opts.Terminator
		if len(terminator) == 0 {
			terminator = []byte("\n")
		}
		writeRecord = func(record []byte) error {
			if _, err := bw.Write(record); err != nil {
				return err
			}
			_, err := bw.Write(terminator)
			return err
		}
	case "uleb128":
		var prefix [binary.MaxVarintLen64]byte
		writeRecord = func(record []byte) error {
			n := binary.PutUvarint(prefix[:], uint64(len(record)))
			if _, err := bw.Write(prefix[:n]); err != nil {
				return err
			}
			_, err := bw.Write(record)
			return err
		}
	case "u64le":
		var prefix [8]byte
		writeRecord = func(record []byte) error {
			binary.LittleEndian.PutUint64(prefix[:], uint64(len(record)))
			if _, err := bw.Write(prefix[:]); err != nil {
				return err
			}
			_, err := bw.Write(record)
			return err
		}
	default:
		return 0, fmt.Errorf("length-prefix mode must be uleb128 or u64le, not %q", opts.LengthPrefix)
	}

	scan, err := r.Search(ctx, opts.SearchOptions)
	if err != nil {
		return 0, err
	}
	defer scan.Close()
	var count int64
	for scan.Next() {
		if err := writeRecord(scan.Record()); err != nil {
			return count, fmt.Errorf("failed writing output: %w", err)
		}
		count++
	}
	if err := scan.Err(); err != nil {
		return count, err
	}
	return count, bw.Flush()
}
