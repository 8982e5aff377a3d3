// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/zarc-io/zarc/internal/archive"
	"github.com/zarc-io/zarc/internal/config"
)

func newValidateCmd(c *config.Config, logger log.Logger) *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate <archive>",
		Short: "Verify every checksum and structural invariant of an archive",
		Long: `Walk the whole archive and verify it: block checksums, record
order, the data sha256, the header, and the index tree. Exits
nonzero if anything is wrong. Reads the entire file, so validating
large remote archives transfers them in full.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(c); err != nil {
				return err
			}
			ctx := cmd.Context()
			t, err := openTransport(ctx, c, logger, args[0])
			if err != nil {
				return err
			}
			r, err := archive.Open(ctx, t)
			if err != nil {
				t.Close()
				return err
			}
			defer r.Close()

			started := time.Now()
			result, err := r.Validate(ctx)
			if err != nil {
				return err
			}
			level.Info(logger).Log(
				"msg", "archive is valid",
				"archive", args[0],
				"records", result.Records,
				"data_blocks", result.DataBlocks,
				"index_blocks", result.IndexBlocks,
				"root_level", result.RootLevel,
				"took", time.Since(started),
			)
			return nil
		},
	}

	return validateCmd
}
