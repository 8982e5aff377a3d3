// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHeaderRoundtrip(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{
			name: "populated",
			header: Header{
				RootIndexOffset: 12345,
				RootIndexLength: 678,
				TotalFileLength: 99999,
				SHA256:          [32]byte{1, 2, 3, 4},
				Codec:           "zstd",
				Metadata:        json.RawMessage(`{"corpus":"test"}`),
			},
		},
		{
			name:   "zero_values_default_metadata",
			header: Header{Codec: "none"},
		},
		{
			name: "max_length_codec_name",
			header: Header{
				Codec:    "0123456789abcdef",
				Metadata: json.RawMessage(`{}`),
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded, err := test.header.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := DecodeHeader(encoded)
			if err != nil {
				t.Fatalf("DecodeHeader: %v", err)
			}
			want := test.header
			if want.Metadata == nil {
				want.Metadata = json.RawMessage("{}")
			}
			if diff := cmp.Diff(&want, decoded); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeaderEncodeErrors(t *testing.T) {
	tooLong := Header{Codec: "much-too-long-codec-name"}
	if _, err := tooLong.Encode(); err == nil {
		t.Error("expected error for over-long codec name")
	}
	badJSON := Header{Codec: "none", Metadata: json.RawMessage(`{broken`)}
	if _, err := badJSON.Encode(); err == nil {
		t.Error("expected error for invalid metadata JSON")
	}
}

func TestDecodeHeaderCorrupt(t *testing.T) {
	good, err := (&Header{Codec: "none", Metadata: json.RawMessage(`{"a":1}`)}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		encoded []byte
	}{
		{"truncated_fixed_fields", good[:40]},
		{"truncated_metadata", good[:len(good)-3]},
		{"trailing_garbage", append(bytes.Clone(good), 'x')},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeHeader(test.encoded)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("DecodeHeader error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestBlockRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{
		[]byte("first block payload"),
		{},
		bytes.Repeat([]byte{0xAB}, 5000),
	}
	levels := []uint8{0, 1, 63}
	var written int64
	for i, p := range payloads {
		n, err := WriteBlock(&buf, levels[i], p)
		if err != nil {
			t.Fatalf("WriteBlock %d: %v", i, err)
		}
		if n != int64(BlockOverhead(1+len(p))+1+len(p)) {
			t.Errorf("WriteBlock %d reported %d bytes, want %d", i, n, BlockOverhead(1+len(p))+1+len(p))
		}
		written += n
	}
	if int64(buf.Len()) != written {
		t.Fatalf("wrote %d bytes, writers reported %d", buf.Len(), written)
	}

	r := bufio.NewReader(&buf)
	for i, p := range payloads {
		level, zpayload, total, err := ReadBlock(r)
		if err != nil {
			t.Fatalf("ReadBlock %d: %v", i, err)
		}
		if level != levels[i] {
			t.Errorf("block %d level = %d, want %d", i, level, levels[i])
		}
		if !bytes.Equal(zpayload, p) {
			t.Errorf("block %d payload mismatch", i)
		}
		if total != int64(BlockOverhead(1+len(p))+1+len(p)) {
			t.Errorf("block %d total = %d", i, total)
		}
	}
	if _, _, _, err := ReadBlock(r); err != io.EOF {
		t.Errorf("ReadBlock at end = %v, want io.EOF", err)
	}
}

func TestWriteBlockRejectsExtensionLevel(t *testing.T) {
	if _, err := WriteBlock(&bytes.Buffer{}, FirstExtensionLevel, nil); err == nil {
		t.Error("expected error for extension-level block")
	}
}

func TestReadBlockCorrupt(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteBlock(&buf, 0, []byte("some payload")); err != nil {
		t.Fatal(err)
	}
	good := buf.Bytes()

	flipByte := func(b []byte, i int) []byte {
		c := bytes.Clone(b)
		c[i] ^= 0xFF
		return c
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"flipped_payload_byte", flipByte(good, 5)},
		{"flipped_crc_byte", flipByte(good, len(good)-1)},
		{"truncated_contents", good[:4]},
		{"truncated_crc", good[:len(good)-2]},
		{"zero_length_block", []byte{0x00}},
		{"cut_mid_length_prefix", []byte{0x80}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, _, err := ReadBlock(bufio.NewReader(bytes.NewReader(test.data)))
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("ReadBlock error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestDataRecords(t *testing.T) {
	tests := []struct {
		name    string
		records [][]byte
	}{
		{"none", nil},
		{"empty_record", [][]byte{{}}},
		{"mixed", [][]byte{[]byte("a"), {}, []byte("bb"), bytes.Repeat([]byte("z"), 500)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := UnpackDataRecords(PackDataRecords(test.records))
			if err != nil {
				t.Fatalf("UnpackDataRecords: %v", err)
			}
			if diff := cmp.Diff(test.records, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}

	// A length prefix pointing past the end of the payload is corruption.
	if _, err := UnpackDataRecords([]byte{0x05, 'a'}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("UnpackDataRecords on short payload = %v, want ErrCorrupt", err)
	}
}

func TestIndexEntries(t *testing.T) {
	entries := []IndexEntry{
		{Key: []byte("aardvark"), Offset: 100, Length: 50},
		{Key: []byte{}, Offset: 1 << 40, Length: 3},
		{Key: []byte("zebra"), Offset: 12, Length: 1 << 20},
	}
	got, err := UnpackIndexEntries(PackIndexEntries(entries))
	if err != nil {
		t.Fatalf("UnpackIndexEntries: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	packed := PackIndexEntries(entries)
	if _, err := UnpackIndexEntries(packed[:len(packed)-1]); !errors.Is(err, ErrCorrupt) {
		t.Errorf("truncated index payload = %v, want ErrCorrupt", err)
	}
}
