// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zarc-io/zarc/internal/s3client"
)

// s3Transport serves an archive stored as a single S3 object via
// ranged GetObject requests. The object length is fetched once at
// open time; S3 objects are immutable for our purposes.
type s3Transport struct {
	client *s3client.S3Client
	key    string
	size   int64
}

// OpenS3 returns a Transport over an S3 object.
func OpenS3(ctx context.Context, client *s3client.S3Client, key string) (Transport, error) {
	size, err := client.ObjectLength(ctx, key)
	if err != nil {
		return nil, err
	}
	return &s3Transport{client: client, key: key, size: size}, nil
}

// SplitS3URL splits an "s3://bucket/key" URL into bucket and key.
func SplitS3URL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3:// URL: %q", url)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3:// URL: %q", url)
	}
	return bucket, key, nil
}

// IsS3URL reports whether the archive argument names an S3 object.
func IsS3URL(arg string) bool {
	return strings.HasPrefix(arg, "s3://")
}

func (t *s3Transport) Name() string {
	return "s3://" + t.client.Bucket() + "/" + t.key
}

func (t *s3Transport) Length(ctx context.Context) (int64, error) {
	return t.size, nil
}

func (t *s3Transport) ReadAt(ctx context.Context, p []byte, offset int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end := offset + int64(len(p)) - 1
	if end >= t.size {
		end = t.size - 1
	}
	if offset > end {
		return 0, io.EOF
	}
	body, err := t.client.GetRange(ctx, t.key, offset, end)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	n, err := io.ReadFull(body, p[:end-offset+1])
	if err != nil {
		return n, fmt.Errorf("short ranged read from %s: %w", t.Name(), err)
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

func (t *s3Transport) StreamFrom(ctx context.Context, offset int64) (io.ReadCloser, error) {
	if offset >= t.size {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return t.client.GetRange(ctx, t.key, offset, -1)
}

func (t *s3Transport) Close() error {
	return nil
}
