// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestRoundtrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":        {},
		"short":        []byte("hello"),
		"compressible": bytes.Repeat([]byte("abcdefgh"), 10000),
	}
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			c, err := New(name, DefaultCompressLevel)
			if err != nil {
				t.Fatalf("New(%q): %v", name, err)
			}
			if c.Name() != name {
				t.Errorf("Name() = %q, want %q", c.Name(), name)
			}
			for pname, payload := range payloads {
				zpayload, err := c.Compress(payload)
				if err != nil {
					t.Fatalf("%s Compress: %v", pname, err)
				}
				got, err := c.Decompress(zpayload)
				if err != nil {
					t.Fatalf("%s Decompress: %v", pname, err)
				}
				if !bytes.Equal(got, payload) {
					t.Errorf("%s: roundtrip mismatch (%d in, %d out)", pname, len(payload), len(got))
				}
			}
		})
	}
}

func TestCompressionActuallyShrinks(t *testing.T) {
	payload := bytes.Repeat([]byte("zarc archive block payload "), 5000)
	for _, name := range []string{"deflate", "zstd"} {
		c, err := New(name, DefaultCompressLevel)
		if err != nil {
			t.Fatal(err)
		}
		zpayload, err := c.Compress(payload)
		if err != nil {
			t.Fatal(err)
		}
		if len(zpayload) >= len(payload) {
			t.Errorf("%s: %d bytes compressed to %d", name, len(payload), len(zpayload))
		}
	}
}

func TestUnknownCodec(t *testing.T) {
	if _, err := New("bz2", DefaultCompressLevel); err == nil {
		t.Error("expected error for unsupported codec")
	}
}

func TestBadLevels(t *testing.T) {
	tests := []struct {
		name  string
		level int
	}{
		{"deflate", 100},
		{"deflate", -3},
		{"zstd", 100},
	}
	for _, test := range tests {
		if _, err := New(test.name, test.level); err == nil {
			t.Errorf("New(%q, %d) succeeded, want error", test.name, test.level)
		}
	}
}
