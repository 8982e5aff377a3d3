// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/zarc-io/zarc/internal/archive"
	"github.com/zarc-io/zarc/internal/config"
	"github.com/zarc-io/zarc/internal/s3client"
)

func newPullCmd(c *config.Config, logger log.Logger) *cobra.Command {
	pullCmd := &cobra.Command{
		Use:   "pull <key> [dest]",
		Short: "Download an archive from the configured S3 bucket",
		Long: `Download a whole archive from S3 to a local file, using multipart
transfers for large objects. The destination defaults to the key's
basename in the current directory (or the configured data dir). The
downloaded file's header is verified before the command succeeds.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(c); err != nil {
				return err
			}
			ctx := cmd.Context()

			dest := filepath.Base(args[0])
			if c.DataDir() != "" {
				dest = filepath.Join(c.DataDir(), dest)
			}
			if len(args) == 2 {
				dest = args[1]
			}

			client, err := s3client.New(c, logger)
			if err != nil {
				return err
			}
			if _, err := client.DownloadFile(ctx, args[0], dest); err != nil {
				return err
			}

			// Verify what landed on disk before declaring success.
			r, err := archive.OpenFile(ctx, dest)
			if err != nil {
				os.Remove(dest)
				return fmt.Errorf("downloaded archive failed verification: %w", err)
			}
			return r.Close()
		},
	}

	return pullCmd
}
