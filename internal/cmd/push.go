// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/zarc-io/zarc/internal/archive"
	"github.com/zarc-io/zarc/internal/config"
	"github.com/zarc-io/zarc/internal/s3client"
)

func newPushCmd(c *config.Config, logger log.Logger) *cobra.Command {
	pushCmd := &cobra.Command{
		Use:   "push <archive> [key]",
		Short: "Upload a local archive to the configured S3 bucket",
		Long: `Upload a finished local archive to S3. The object key defaults to
the archive's filename, under the configured key prefix. The archive
is opened and its header verified first, so a half-written or corrupt
file is never pushed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(c); err != nil {
				return err
			}
			ctx := cmd.Context()

			// Refuse to push anything that does not open cleanly.
			r, err := archive.OpenFile(ctx, args[0])
			if err != nil {
				return fmt.Errorf("refusing to push: %w", err)
			}
			r.Close()

			key := filepath.Base(args[0])
			if len(args) == 2 {
				key = args[1]
			}
			client, err := s3client.New(c, logger)
			if err != nil {
				return err
			}
			return client.UploadFile(ctx, key, args[0])
		},
	}

	return pushCmd
}
