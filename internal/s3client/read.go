// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package s3client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-kit/log/level"
)

// ObjectLength returns the size of an object in bytes.
func (s *S3Client) ObjectLength(ctx context.Context, key string) (int64, error) {
	bucketName := s.config.S3BucketName()
	s3Key := s.objectKey(key)
	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucketName,
		Key:    &s3Key,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to head s3://%s/%s: %w", bucketName, s3Key, err)
	}
	if output.ContentLength == nil {
		return 0, fmt.Errorf("no content length for s3://%s/%s", bucketName, s3Key)
	}
	return *output.ContentLength, nil
}

// GetRange returns a reader over bytes [start, end] (inclusive, per
// the HTTP Range grammar) of an object, retrying transient failures.
// Pass end < 0 to read from start to the end of the object.
func (s *S3Client) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	bucketName := s.config.S3BucketName()
	s3Key := s.objectKey(key)

	var rangeHeader string
	if end < 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-", start)
	} else {
		rangeHeader = fmt.Sprintf("bytes=%d-%d", start, end)
	}
	input := &s3.GetObjectInput{
		Bucket: &bucketName,
		Key:    &s3Key,
		Range:  &rangeHeader,
	}

	var lastErr error
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * baseDelay
			level.Debug(s.logger).Log("msg", "retrying ranged get", "key", s3Key, "range", rangeHeader, "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		output, err := s.client.GetObject(ctx, input)
		if err != nil {
			lastErr = err
			level.Debug(s.logger).Log("msg", "ranged get attempt failed", "key", s3Key, "range", rangeHeader, "attempt", attempt+1, "error", err)
			continue
		}

		return output.Body, nil
	}

	return nil, fmt.Errorf("failed ranged get of s3://%s/%s after %d attempts: %w",
		bucketName, s3Key, maxRetries, lastErr)
}
