// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive implements writing, reading, and validating zarc
// archives: sorted records packed into compressed, CRC-64/XZ
// checksummed blocks beneath a multi-level index.
package archive

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/zarc-io/zarc/internal/codec"
	"github.com/zarc-io/zarc/internal/format"
)

const (
	// DefaultBranchingFactor is the number of keys per index block.
	DefaultBranchingFactor = 1024

	// DefaultApproxBlockSize is the approximate uncompressed size of
	// the records in each data block, in bytes. Records are never
	// split, so blocks can exceed this by one record.
	DefaultApproxBlockSize = 128 * 1024

	// DefaultCodec compresses block payloads unless overridden.
	DefaultCodec = "zstd"
)

// Options configures a Writer. Zero values select the defaults above;
// Parallelism 0 means one compression worker per CPU.
type Options struct {
	Metadata        json.RawMessage
	BranchingFactor int
	ApproxBlockSize int
	Codec           string
	CompressLevel   int
	Parallelism     int
}

type compressJob struct {
	seq      int64
	firstKey []byte
	payload  []byte
}

type writeItem struct {
	seq      int64
	firstKey []byte
	payload  []byte
	zpayload []byte
	err      error
}

// Writer builds an archive. Records are added in sorted order, packed
// into data blocks of roughly ApproxBlockSize uncompressed bytes,
// compressed by a pool of worker goroutines, and written strictly in
// submission order while index levels accumulate above them. Nothing
// is visible at the target path until Finish renames the temp file
// into place with the final magic in place.
//
// A Writer is not safe for concurrent use; add records from one
// goroutine and call Finish (or Close) exactly once.
type Writer struct {
	path      string
	tmpPath   string
	file      *os.File
	bufw      *bufio.Writer
	codec     codec.Codec
	branching int
	approx    int
	headerLen int
	metadata  json.RawMessage

	// data block under construction
	curPayload  []byte
	curFirstKey []byte
	curStarted  bool
	lastRecord  []byte
	haveRecord  bool
	nextSeq     int64

	jobs       chan compressJob
	results    chan writeItem
	workers    sync.WaitGroup
	writerDone chan struct{}
	failed     chan struct{}

	// owned by the write loop until writerDone is closed
	offset       int64
	hasher       hash.Hash
	levelEntries [][]format.IndexEntry
	writeErr     error
	failOnce     sync.Once

	finished bool
	closed   bool
}

// NewWriter creates an archive at path. The file is written next to
// its final location and renamed into place by Finish.
func NewWriter(path string, opts Options) (*Writer, error) {
	if opts.BranchingFactor == 0 {
		opts.BranchingFactor = DefaultBranchingFactor
	}
	if opts.BranchingFactor < 2 {
		return nil, fmt.Errorf("branching factor %d too small (minimum 2)", opts.BranchingFactor)
	}
	if opts.ApproxBlockSize == 0 {
		opts.ApproxBlockSize = DefaultApproxBlockSize
	}
	if opts.ApproxBlockSize < 1 {
		return nil, fmt.Errorf("approx block size %d too small", opts.ApproxBlockSize)
	}
	if opts.Codec == "" {
		opts.Codec = DefaultCodec
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}

	c, err := codec.New(opts.Codec, opts.CompressLevel)
	if err != nil {
		return nil, err
	}

	metadata := opts.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	if trimmed := bytes.TrimSpace(metadata); !json.Valid(metadata) || len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("metadata must be a JSON object")
	}

	dir := filepath.Dir(path)
	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}

	w := &Writer{
		path:       path,
		tmpPath:    file.Name(),
		file:       file,
		bufw:       bufio.NewWriter(file),
		codec:      c,
		branching:  opts.BranchingFactor,
		approx:     opts.ApproxBlockSize,
		metadata:   metadata,
		jobs:       make(chan compressJob, 2*opts.Parallelism),
		results:    make(chan writeItem, 2*opts.Parallelism),
		writerDone: make(chan struct{}),
		failed:     make(chan struct{}),
		hasher:     sha256.New(),
	}

	// Placeholder header with an invalid root and a zeroed CRC; the
	// encoded length must match the final header exactly, so the
	// metadata bytes are fixed from here on.
	placeholder := &format.Header{
		RootIndexOffset: 1<<63 - 1,
		Codec:           c.Name(),
		Metadata:        metadata,
	}
	encoded, err := placeholder.Encode()
	if err != nil {
		w.discard()
		return nil, err
	}
	w.headerLen = len(encoded)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(len(encoded)))
	for _, part := range [][]byte{format.IncompleteMagic, u64[:], encoded, make([]byte, format.CRCLength)} {
		if _, err := w.bufw.Write(part); err != nil {
			w.discard()
			return nil, fmt.Errorf("failed to write preliminary header: %w", err)
		}
	}
	w.offset = int64(format.MagicLength + 8 + w.headerLen + format.CRCLength)

	for i := 0; i < opts.Parallelism; i++ {
		w.workers.Add(1)
		go w.compressWorker()
	}
	go w.writeLoop()

	return w, nil
}

func (w *Writer) compressWorker() {
	defer w.workers.Done()
	for job := range w.jobs {
		zpayload, err := w.codec.Compress(job.payload)
		w.results <- writeItem{
			seq:      job.seq,
			firstKey: job.firstKey,
			payload:  job.payload,
			zpayload: zpayload,
			err:      err,
		}
	}
}

// writeLoop serialises compressed data blocks back into submission
// order and appends them, flushing index levels as they fill.
func (w *Writer) writeLoop() {
	defer close(w.writerDone)
	pending := make(map[int64]writeItem)
	next := int64(0)
	for item := range w.results {
		if w.writeErr != nil {
			continue // drain
		}
		pending[item.seq] = item
		for {
			it, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if it.err != nil {
				w.fail(fmt.Errorf("compression failed: %w", it.err))
				break
			}
			if _, err := w.hasher.Write(it.payload); err != nil {
				w.fail(err)
				break
			}
			if err := w.writeBlock(0, it.firstKey, it.zpayload); err != nil {
				w.fail(err)
				break
			}
		}
	}
}

func (w *Writer) fail(err error) {
	w.failOnce.Do(func() {
		w.writeErr = err
		close(w.failed)
	})
}

// writeBlock appends one framed block and registers it at its level.
func (w *Writer) writeBlock(level uint8, firstKey []byte, zpayload []byte) error {
	blockOffset := w.offset
	n, err := format.WriteBlock(w.bufw, level, zpayload)
	if err != nil {
		return err
	}
	w.offset += n
	return w.addEntry(int(level), format.IndexEntry{
		Key:    firstKey,
		Offset: uint64(blockOffset),
		Length: uint64(n),
	})
}

func (w *Writer) addEntry(level int, entry format.IndexEntry) error {
	if level == len(w.levelEntries) {
		w.levelEntries = append(w.levelEntries, nil)
	}
	w.levelEntries[level] = append(w.levelEntries[level], entry)
	if len(w.levelEntries[level]) >= w.branching {
		return w.flushIndex(level)
	}
	return nil
}

// flushIndex packs a level's accumulated entries into an index block
// one level up. Index payloads are compressed inline; they are rare
// compared to data blocks.
func (w *Writer) flushIndex(level int) error {
	if level+1 >= format.FirstExtensionLevel {
		return fmt.Errorf("index depth exceeds %d levels", format.FirstExtensionLevel-1)
	}
	entries := w.levelEntries[level]
	w.levelEntries[level] = nil
	payload := format.PackIndexEntries(entries)
	zpayload, err := w.codec.Compress(payload)
	if err != nil {
		return fmt.Errorf("failed to compress index block: %w", err)
	}
	return w.writeBlock(uint8(level+1), entries[0].Key, zpayload)
}

// AddRecord appends one record. Records must arrive in bytewise
// sorted order; duplicates are allowed.
func (w *Writer) AddRecord(record []byte) error {
	if w.closed || w.finished {
		return ErrClosed
	}
	select {
	case <-w.failed:
		return fmt.Errorf("archive write already failed: %w", w.writeErr)
	default:
	}
	if w.haveRecord && bytes.Compare(record, w.lastRecord) < 0 {
		return fmt.Errorf("record %q sorts before previous record %q: %w",
			record, w.lastRecord, ErrUnsorted)
	}
	if !w.curStarted {
		w.curFirstKey = bytes.Clone(record)
		w.curStarted = true
	}
	w.curPayload = binary.AppendUvarint(w.curPayload, uint64(len(record)))
	w.curPayload = append(w.curPayload, record...)
	w.lastRecord = append(w.lastRecord[:0], record...)
	w.haveRecord = true
	if len(w.curPayload) >= w.approx {
		w.submitCurrent()
	}
	return nil
}

// AddRecords appends records in order.
func (w *Writer) AddRecords(records [][]byte) error {
	for _, record := range records {
		if err := w.AddRecord(record); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) submitCurrent() {
	w.jobs <- compressJob{seq: w.nextSeq, firstKey: w.curFirstKey, payload: w.curPayload}
	w.nextSeq++
	w.curPayload = nil
	w.curFirstKey = nil
	w.curStarted = false
}

// Finish flushes everything, builds the root index, rewrites the
// header with the real root/length/sha256, and renames the archive
// into place. The file is not readable until Finish returns nil.
func (w *Writer) Finish() error {
	if w.closed || w.finished {
		return ErrClosed
	}
	if w.curStarted {
		w.submitCurrent()
	}

	// Shut the pipeline down and collect any error.
	close(w.jobs)
	w.workers.Wait()
	close(w.results)
	<-w.writerDone
	if w.writeErr != nil {
		w.discard()
		return w.writeErr
	}
	if !w.haveRecord {
		w.discard()
		return ErrEmpty
	}

	// Cascade partial index levels upward until a single index block
	// remains; that block is the root.
	for !w.haveRoot() {
		for level := range w.levelEntries {
			if len(w.levelEntries[level]) > 0 {
				if err := w.flushIndex(level); err != nil {
					w.discard()
					return err
				}
				break
			}
		}
	}
	root := w.levelEntries[len(w.levelEntries)-1][0]

	if err := w.bufw.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("failed to flush archive: %w", err)
	}

	header := &format.Header{
		RootIndexOffset: root.Offset,
		RootIndexLength: root.Length,
		TotalFileLength: uint64(w.offset),
		SHA256:          [32]byte(w.hasher.Sum(nil)),
		Codec:           w.codec.Name(),
		Metadata:        w.metadata,
	}
	encoded, err := header.Encode()
	if err != nil {
		w.discard()
		return err
	}
	if len(encoded) != w.headerLen {
		w.discard()
		return fmt.Errorf("header length changed from %d to %d bytes", w.headerLen, len(encoded))
	}
	crc, err := header.CRC()
	if err != nil {
		w.discard()
		return err
	}
	var trailer [format.CRCLength]byte
	binary.LittleEndian.PutUint64(trailer[:], crc)

	// Rewrite the header, sync, and only then stamp the final magic,
	// so a crash at any point leaves a file readers refuse to open.
	if _, err := w.file.WriteAt(encoded, format.MagicLength+8); err != nil {
		w.discard()
		return fmt.Errorf("failed to rewrite header: %w", err)
	}
	if _, err := w.file.WriteAt(trailer[:], format.MagicLength+8+int64(w.headerLen)); err != nil {
		w.discard()
		return fmt.Errorf("failed to write header CRC: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if _, err := w.file.WriteAt(format.Magic, 0); err != nil {
		w.discard()
		return fmt.Errorf("failed to write magic: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.discard()
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	w.finished = true
	w.closed = true
	return nil
}

// Close aborts the write if Finish has not succeeded, removing the
// temp file. Safe to defer alongside Finish.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	close(w.jobs)
	w.workers.Wait()
	close(w.results)
	<-w.writerDone
	w.discard()
	return nil
}

func (w *Writer) discard() {
	w.file.Close()
	os.Remove(w.tmpPath)
	w.closed = true
}

// AddStream splits r into records and adds them. Exactly one of
// terminator or lengthPrefix applies: with a non-empty lengthPrefix
// ("uleb128" or "u64le") the input is binary length-prefixed records;
// otherwise records are separated by terminator (default "\n"), and a
// trailing unterminated chunk still counts as a record.
func (w *Writer) AddStream(r io.Reader, terminator []byte, lengthPrefix string) error {
	switch lengthPrefix {
	case "":
		if len(terminator) == 0 {
			terminator = []byte("\n")
		}
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), format.MaxBlockLength)
		scanner.Split(splitOnTerminator(terminator))
		for scanner.Scan() {
			if err := w.AddRecord(scanner.Bytes()); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed reading input: %w", err)
		}
		return nil
	case "uleb128":
		br := bufio.NewReader(r)
		for {
			length, err := binary.ReadUvarint(br)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("input ended mid-length-prefix: %w", err)
			}
			record := make([]byte, length)
			if _, err := io.ReadFull(br, record); err != nil {
				return fmt.Errorf("input ended mid-record: %w", err)
			}
			if err := w.AddRecord(record); err != nil {
				return err
			}
		}
	case "u64le":
		br := bufio.NewReader(r)
		var prefix [8]byte
		for {
			if _, err := io.ReadFull(br, prefix[:]); err == io.EOF {
				return nil
			} else if err != nil {
				return fmt.Errorf("input ended mid-length-prefix: %w", err)
			}
			record := make([]byte, binary.LittleEndian.Uint64(prefix[:]))
			if _, err := io.ReadFull(br, record); err != nil {
				return fmt.Errorf("input ended mid-record: %w", err)
			}
			if err := w.AddRecord(record); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("length-prefix mode must be uleb128 or u64le, not %q", lengthPrefix)
	}
}

func splitOnTerminator(term []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.Index(data, term); i >= 0 {
			return i + len(term), data[:i], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

func (w *Writer) haveRoot() bool {
	top := w.levelEntries[len(w.levelEntries)-1]
	if len(w.levelEntries) == 1 {
		return false // data blocks need at least one index above them
	}
	for _, entries := range w.levelEntries[:len(w.levelEntries)-1] {
		if len(entries) > 0 {
			return false
		}
	}
	return len(top) == 1
}
