// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the named block-payload compressors an
// archive can be written with. The codec name is recorded in the
// archive header, so readers always decompress with the codec the
// writer used regardless of local configuration.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses block payloads. Implementations
// must be safe for concurrent use; the writer calls Compress from
// multiple worker goroutines.
type Codec interface {
	// Name is the identifier stored in the archive header.
	Name() string

	// Compress returns the compressed form of payload.
	Compress(payload []byte) ([]byte, error)

	// Decompress inverts Compress.
	Decompress(zpayload []byte) ([]byte, error)
}

// DefaultCompressLevel is used when the caller passes level 0.
// It maps to each codec's own notion of a default.
const DefaultCompressLevel = 0

// New returns the codec with the given name. Level 0 selects the
// codec's default compression level; "none" ignores the level.
func New(name string, level int) (Codec, error) {
	switch name {
	case "none":
		return noneCodec{}, nil
	case "deflate":
		if level == DefaultCompressLevel {
			level = 6
		}
		if level < flate.HuffmanOnly || level > flate.BestCompression {
			return nil, fmt.Errorf("deflate compress level %d out of range", level)
		}
		return &deflateCodec{level: level}, nil
	case "zstd":
		if level == DefaultCompressLevel {
			level = int(zstd.SpeedDefault)
		}
		if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
			return nil, fmt.Errorf("zstd compress level %d out of range", level)
		}
		return newZstdCodec(zstd.EncoderLevel(level))
	default:
		return nil, fmt.Errorf("unknown codec %q (should be one of: %s)", name, NamesList())
	}
}

// Names returns the supported codec names, sorted.
func Names() []string {
	names := []string{"deflate", "none", "zstd"}
	sort.Strings(names)
	return names
}

// NamesList returns the supported codec names as a comma-separated string.
func NamesList() string {
	return "deflate, none, zstd"
}

// noneCodec stores payloads verbatim.
type noneCodec struct{}

func (noneCodec) Name() string { return "none" }

func (noneCodec) Compress(payload []byte) ([]byte, error) { return payload, nil }

func (noneCodec) Decompress(zpayload []byte) ([]byte, error) { return zpayload, nil }

// deflateCodec produces raw deflate streams (RFC 1951, no zlib
// framing). Blocks carry their own CRC-64 trailer, so the zlib
// header and Adler-32 checksum would be dead weight.
type deflateCodec struct {
	level int
}

func (c *deflateCodec) Name() string { return "deflate" }

func (c *deflateCodec) Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, fmt.Errorf("deflate compression failed: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("deflate compression failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *deflateCodec) Decompress(zpayload []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(zpayload))
	defer fr.Close()
	payload, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("deflate decompression failed: %w", err)
	}
	return payload, nil
}

// zstdCodec wraps a shared encoder/decoder pair; both are safe for
// concurrent use via EncodeAll/DecodeAll.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec(level zstd.EncoderLevel) (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Name() string { return "zstd" }

func (c *zstdCodec) Compress(payload []byte) ([]byte, error) {
	return c.enc.EncodeAll(payload, nil), nil
}

func (c *zstdCodec) Decompress(zpayload []byte) ([]byte, error) {
	payload, err := c.dec.DecodeAll(zpayload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return payload, nil
}
