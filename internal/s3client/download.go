// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package s3client

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-kit/log/level"
)

// DownloadFile downloads a whole archive from S3 to destPath, using
// multipart downloads for large objects.
func (s *S3Client) DownloadFile(ctx context.Context, key, destPath string) (int64, error) {
	size, err := s.ObjectLength(ctx, key)
	if err != nil {
		return 0, err
	}

	destFile, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer destFile.Close()

	// Use the AWS downloader with multipart support for big objects
	downloader := manager.NewDownloader(s.client, func(d *manager.Downloader) {
		if size > 10*1024*1024 {
			d.PartSize = 5 * 1024 * 1024 // 5MB parts
		}
		d.Concurrency = 3 // Download up to 3 parts concurrently
	})

	bucketName := s.config.S3BucketName()
	s3Key := s.objectKey(key)
	level.Debug(s.logger).Log("msg", "downloading from S3", "bucket", bucketName, "key", s3Key, "size", size)
	n, err := downloader.Download(ctx, destFile, &s3.GetObjectInput{
		Bucket: &bucketName,
		Key:    &s3Key,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to download s3://%s/%s: %w", bucketName, s3Key, err)
	}

	level.Info(s.logger).Log("msg", "archive downloaded from S3", "key", s3Key, "dest", destPath, "size", n)
	return n, nil
}
