// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// writeTestArchive builds an archive with deliberately tiny blocks so
// even small fixtures get a multi-level index.
func writeTestArchive(t *testing.T, path string, records [][]byte, opts Options) {
	t.Helper()
	if opts.ApproxBlockSize == 0 {
		opts.ApproxBlockSize = 64
	}
	if opts.BranchingFactor == 0 {
		opts.BranchingFactor = 4
	}
	w, err := NewWriter(path, opts)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()
	if err := w.AddRecords(records); err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func sequentialRecords(n int) [][]byte {
	records := make([][]byte, n)
	for i := range records {
		records[i] = []byte(fmt.Sprintf("key-%05d/payload", i))
	}
	return records
}

func collect(t *testing.T, scan *Scan) [][]byte {
	t.Helper()
	defer scan.Close()
	var got [][]byte
	for scan.Next() {
		got = append(got, bytes.Clone(scan.Record()))
	}
	if err := scan.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return got
}

func TestRoundtrip(t *testing.T) {
	for _, codecName := range []string{"none", "deflate", "zstd"} {
		t.Run(codecName, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "test.zarc")
			records := sequentialRecords(500)
			writeTestArchive(t, path, records, Options{
				Codec:    codecName,
				Metadata: json.RawMessage(`{"purpose":"roundtrip"}`),
			})

			r, err := OpenFile(ctx, path)
			if err != nil {
				t.Fatalf("OpenFile: %v", err)
			}
			defer r.Close()

			if r.Codec() != codecName {
				t.Errorf("Codec() = %q, want %q", r.Codec(), codecName)
			}
			if string(r.Metadata()) != `{"purpose":"roundtrip"}` {
				t.Errorf("Metadata() = %s", r.Metadata())
			}

			scan, err := r.Search(ctx, SearchOptions{})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			got := collect(t, scan)
			if diff := cmp.Diff(records, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}

			// Tiny blocks with 500 records must produce a real tree.
			level, err := r.RootIndexLevel(ctx)
			if err != nil {
				t.Fatalf("RootIndexLevel: %v", err)
			}
			if level < 2 {
				t.Errorf("RootIndexLevel = %d, want >= 2", level)
			}
		})
	}
}

func TestSearchRanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.zarc")
	records := sequentialRecords(300)
	writeTestArchive(t, path, records, Options{})

	r, err := OpenFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	tests := []struct {
		name string
		opts SearchOptions
		want [][]byte
	}{
		{"everything", SearchOptions{}, records},
		{"start_bound", SearchOptions{Start: []byte("key-00298")}, records[298:]},
		{"stop_bound", SearchOptions{Stop: []byte("key-00002")}, records[:2]},
		{"start_and_stop", SearchOptions{Start: []byte("key-00100"), Stop: []byte("key-00110")}, records[100:110]},
		{"start_between_records", SearchOptions{Start: []byte("key-00100z"), Stop: []byte("key-00103")}, records[101:103]},
		{"prefix", SearchOptions{Prefix: []byte("key-0020")}, records[200:210]},
		{"prefix_and_start", SearchOptions{Prefix: []byte("key-0020"), Start: []byte("key-00205")}, records[205:210]},
		{"empty_range", SearchOptions{Start: []byte("key-00100"), Stop: []byte("key-00100")}, nil},
		{"past_the_end", SearchOptions{Start: []byte("zzz")}, nil},
		{"absent_prefix", SearchOptions{Prefix: []byte("nope")}, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			scan, err := r.Search(ctx, test.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			got := collect(t, scan)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDuplicateRecordsAcrossBlockBoundary(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.zarc")
	// A tiny block size splits the run of duplicates across two data
	// blocks ([aa aa bb] [bb bb cc]), so the second block's index key
	// equals the needle and the search must still round down into the
	// first block to find the start of the run.
	records := [][]byte{
		[]byte("aa"), []byte("aa"), []byte("bb"), []byte("bb"), []byte("bb"), []byte("cc"),
	}
	writeTestArchive(t, path, records, Options{ApproxBlockSize: 8})

	r, err := OpenFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	result, err := r.Validate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.DataBlocks < 2 {
		t.Fatalf("fixture produced %d data blocks, the run must span a boundary", result.DataBlocks)
	}

	tests := []struct {
		name string
		opts SearchOptions
		want int
	}{
		{"prefix", SearchOptions{Prefix: []byte("bb")}, 3},
		{"start_at_needle", SearchOptions{Start: []byte("bb")}, 4},
		{"start_and_stop", SearchOptions{Start: []byte("bb"), Stop: []byte("cc")}, 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			scan, err := r.Search(ctx, test.opts)
			if err != nil {
				t.Fatal(err)
			}
			got := collect(t, scan)
			if len(got) != test.want {
				t.Errorf("found %d records, want %d", len(got), test.want)
			}
		})
	}
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.zarc")
	records := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	writeTestArchive(t, path, records, Options{})

	r, err := OpenFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	tests := []struct {
		name string
		opts DumpOptions
		want string
	}{
		{"newlines", DumpOptions{}, "alpha\nbeta\ngamma\n"},
		{"custom_terminator", DumpOptions{Terminator: []byte("\x00")}, "alpha\x00beta\x00gamma\x00"},
		{"uleb128", DumpOptions{LengthPrefix: "uleb128"}, "\x05alpha\x04beta\x05gamma"},
		{
			"u64le",
			DumpOptions{LengthPrefix: "u64le"},
			"\x05\x00\x00\x00\x00\x00\x00\x00alpha\x04\x00\x00\x00\x00\x00\x00\x00beta\x05\x00\x00\x00\x00\x00\x00\x00gamma",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			count, err := r.Dump(ctx, &buf, test.opts)
			if err != nil {
				t.Fatalf("Dump: %v", err)
			}
			if count != 3 {
				t.Errorf("Dump count = %d, want 3", count)
			}
			if buf.String() != test.want {
				t.Errorf("Dump output = %q, want %q", buf.String(), test.want)
			}
		})
	}

	if _, err := r.Dump(ctx, &bytes.Buffer{}, DumpOptions{LengthPrefix: "wat"}); err == nil {
		t.Error("expected error for bad length-prefix mode")
	}
}

func TestAddStream(t *testing.T) {
	want := [][]byte{[]byte("aa"), []byte("bb"), []byte("cc")}
	tests := []struct {
		name         string
		input        string
		terminator   []byte
		lengthPrefix string
	}{
		{"newlines", "aa\nbb\ncc\n", nil, ""},
		{"trailing_unterminated", "aa\nbb\ncc", nil, ""},
		{"crlf", "aa\r\nbb\r\ncc\r\n", []byte("\r\n"), ""},
		{"uleb128", "\x02aa\x02bb\x02cc", nil, "uleb128"},
		{
			"u64le",
			"\x02\x00\x00\x00\x00\x00\x00\x00aa" +
				"\x02\x00\x00\x00\x00\x00\x00\x00bb" +
				"\x02\x00\x00\x00\x00\x00\x00\x00cc",
			nil, "u64le",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "test.zarc")
			w, err := NewWriter(path, Options{})
			if err != nil {
				t.Fatal(err)
			}
			defer w.Close()
			if err := w.AddStream(bytes.NewReader([]byte(test.input)), test.terminator, test.lengthPrefix); err != nil {
				t.Fatalf("AddStream: %v", err)
			}
			if err := w.Finish(); err != nil {
				t.Fatalf("Finish: %v", err)
			}

			r, err := OpenFile(ctx, path)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			scan, err := r.Search(ctx, SearchOptions{})
			if err != nil {
				t.Fatal(err)
			}
			got := collect(t, scan)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriterErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("unsorted", func(t *testing.T) {
		w, err := NewWriter(filepath.Join(dir, "unsorted.zarc"), Options{})
		if err != nil {
			t.Fatal(err)
		}
		defer w.Close()
		if err := w.AddRecord([]byte("bb")); err != nil {
			t.Fatal(err)
		}
		if err := w.AddRecord([]byte("aa")); !errors.Is(err, ErrUnsorted) {
			t.Errorf("AddRecord out of order = %v, want ErrUnsorted", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		w, err := NewWriter(filepath.Join(dir, "empty.zarc"), Options{})
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Finish(); !errors.Is(err, ErrEmpty) {
			t.Errorf("Finish on empty writer = %v, want ErrEmpty", err)
		}
	})

	t.Run("use_after_finish", func(t *testing.T) {
		path := filepath.Join(dir, "finished.zarc")
		w, err := NewWriter(path, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if err := w.AddRecord([]byte("aa")); err != nil {
			t.Fatal(err)
		}
		if err := w.Finish(); err != nil {
			t.Fatal(err)
		}
		if err := w.AddRecord([]byte("bb")); !errors.Is(err, ErrClosed) {
			t.Errorf("AddRecord after Finish = %v, want ErrClosed", err)
		}
	})

	t.Run("bad_metadata", func(t *testing.T) {
		_, err := NewWriter(filepath.Join(dir, "meta.zarc"), Options{
			Metadata: json.RawMessage(`["not","an","object"]`),
		})
		if err == nil {
			t.Error("expected error for non-object metadata")
		}
	})

	t.Run("aborted_writer_leaves_nothing", func(t *testing.T) {
		path := filepath.Join(dir, "aborted.zarc")
		w, err := NewWriter(path, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if err := w.AddRecord([]byte("aa")); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("aborted archive exists at %s", path)
		}
		leftovers, err := filepath.Glob(filepath.Join(dir, ".aborted.zarc.tmp-*"))
		if err != nil {
			t.Fatal(err)
		}
		if len(leftovers) != 0 {
			t.Errorf("temp files left behind: %v", leftovers)
		}
	})
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("incomplete_magic", func(t *testing.T) {
		path := filepath.Join(dir, "incomplete.zarc")
		data := append([]byte{0xAB, 'Z', 'R', 't', 'o', 'B', 'e', 0x01}, make([]byte, 64)...)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenFile(ctx, path); !errors.Is(err, ErrIncomplete) {
			t.Errorf("OpenFile = %v, want ErrIncomplete", err)
		}
	})

	t.Run("not_an_archive", func(t *testing.T) {
		path := filepath.Join(dir, "random.txt")
		if err := os.WriteFile(path, []byte("definitely not a zarc file, but long enough to read"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenFile(ctx, path); !errors.Is(err, ErrCorrupt) {
			t.Errorf("OpenFile = %v, want ErrCorrupt", err)
		}
	})

	t.Run("too_short_for_magic", func(t *testing.T) {
		path := filepath.Join(dir, "short.zarc")
		if err := os.WriteFile(path, []byte{0xAB, 'Z', 'R'}, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenFile(ctx, path); !errors.Is(err, ErrCorrupt) {
			t.Errorf("OpenFile = %v, want ErrCorrupt", err)
		}
	})

	t.Run("corrupted_header", func(t *testing.T) {
		path := filepath.Join(dir, "header.zarc")
		writeTestArchive(t, path, [][]byte{[]byte("aa")}, Options{})
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		data[20] ^= 0xFF // inside the encoded header
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenFile(ctx, path); !errors.Is(err, ErrCorrupt) {
			t.Errorf("OpenFile = %v, want ErrCorrupt", err)
		}
	})
}

// brokenTransport fails every operation with a fixed error, standing
// in for a network or permission failure.
type brokenTransport struct {
	err error
}

func (t *brokenTransport) Name() string { return "broken" }

func (t *brokenTransport) Length(ctx context.Context) (int64, error) { return 0, t.err }

func (t *brokenTransport) ReadAt(ctx context.Context, p []byte, offset int64) (int, error) {
	return 0, t.err
}

func (t *brokenTransport) StreamFrom(ctx context.Context, offset int64) (io.ReadCloser, error) {
	return nil, t.err
}

func (t *brokenTransport) Close() error { return nil }

func TestOpenPropagatesTransportErrors(t *testing.T) {
	sentinel := errors.New("connection reset")
	_, err := Open(context.Background(), &brokenTransport{err: sentinel})
	if !errors.Is(err, sentinel) {
		t.Errorf("Open = %v, want the transport's error", err)
	}
	if errors.Is(err, ErrCorrupt) {
		t.Errorf("Open reported a transport failure as corruption: %v", err)
	}
}
