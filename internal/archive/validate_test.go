// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validateFile(t *testing.T, path string) (*ValidateResult, error) {
	t.Helper()
	r, err := OpenFile(context.Background(), path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Validate(context.Background())
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.zarc")
	writeTestArchive(t, path, sequentialRecords(300), Options{})

	result, err := validateFile(t, path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Records != 300 {
		t.Errorf("Records = %d, want 300", result.Records)
	}
	if result.Blocks != result.DataBlocks+result.IndexBlocks {
		t.Errorf("Blocks = %d, but %d data + %d index",
			result.Blocks, result.DataBlocks, result.IndexBlocks)
	}
	if result.DataBlocks < 2 {
		t.Errorf("DataBlocks = %d, want several", result.DataBlocks)
	}
	if result.RootLevel < 2 {
		t.Errorf("RootLevel = %d, want a multi-level tree", result.RootLevel)
	}
}

func TestValidateSingleBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.zarc")
	writeTestArchive(t, path, [][]byte{[]byte("only")}, Options{})

	result, err := validateFile(t, path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.DataBlocks != 1 || result.IndexBlocks != 1 || result.Records != 1 {
		t.Errorf("got %+v, want 1 data block, 1 index block, 1 record", result)
	}
	if result.RootLevel != 1 {
		t.Errorf("RootLevel = %d, want 1", result.RootLevel)
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"flipped_byte_in_first_block", func(data []byte) []byte {
			// Past the header region, inside the first data block.
			data[len(data)/2] ^= 0x01
			return data
		}},
		{"flipped_byte_in_root_index", func(data []byte) []byte {
			data[len(data)-20] ^= 0x01
			return data
		}},
		{"truncated", func(data []byte) []byte {
			return data[:len(data)-10]
		}},
		{"trailing_garbage", func(data []byte) []byte {
			return append(data, "extra"...)
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.zarc")
			// The uncompressed codec keeps the byte positions above
			// meaningful regardless of compressor version.
			writeTestArchive(t, path, sequentialRecords(300), Options{Codec: "none"})
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, test.mangle(data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := validateFile(t, path); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Validate = %v, want ErrCorrupt", err)
			}
		})
	}
}
