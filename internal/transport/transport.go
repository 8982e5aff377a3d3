// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport abstracts where archive bytes live. The reader
// only ever needs two access patterns: a bounded random read (for
// index descent) and a sequential stream from an arbitrary offset
// (for scanning data blocks), so local files and ranged S3 reads can
// sit behind the same interface.
package transport

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Transport is a read-only view of an archive's bytes.
type Transport interface {
	// Name identifies the source in error messages and logs.
	Name() string

	// Length returns the total size in bytes.
	Length(ctx context.Context) (int64, error)

	// ReadAt fills p from the given offset, exactly like io.ReaderAt.
	ReadAt(ctx context.Context, p []byte, offset int64) (int, error)

	// StreamFrom returns a reader positioned at offset that yields
	// the remainder of the archive. The caller closes it.
	StreamFrom(ctx context.Context, offset int64) (io.ReadCloser, error)

	Close() error
}

// fileTransport serves a local file. *os.File.ReadAt is safe for
// concurrent use, so streams are section readers over one handle.
type fileTransport struct {
	name string
	file *os.File
	size int64
}

// OpenFile returns a Transport over a local file.
func OpenFile(path string) (Transport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	return &fileTransport{name: path, file: file, size: info.Size()}, nil
}

func (t *fileTransport) Name() string { return t.name }

func (t *fileTransport) Length(ctx context.Context) (int64, error) {
	return t.size, nil
}

func (t *fileTransport) ReadAt(ctx context.Context, p []byte, offset int64) (int, error) {
	return t.file.ReadAt(p, offset)
}

func (t *fileTransport) StreamFrom(ctx context.Context, offset int64) (io.ReadCloser, error) {
	if offset > t.size {
		return nil, fmt.Errorf("stream offset %d beyond end of %s (%d bytes)", offset, t.name, t.size)
	}
	section := io.NewSectionReader(t.file, offset, t.size-offset)
	return io.NopCloser(section), nil
}

func (t *fileTransport) Close() error {
	return t.file.Close()
}
