// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/zarc-io/zarc/internal/archive"
	"github.com/zarc-io/zarc/internal/config"
)

// archiveInfo is the JSON document `zarc info` prints.
type archiveInfo struct {
	Codec           string          `json:"codec"`
	RootIndexOffset uint64          `json:"root_index_offset"`
	RootIndexLength uint64          `json:"root_index_length"`
	RootIndexLevel  int             `json:"root_index_level"`
	TotalFileLength uint64          `json:"total_file_length"`
	DataSHA256      string          `json:"data_sha256"`
	Metadata        json.RawMessage `json:"metadata"`
}

func newInfoCmd(c *config.Config, logger log.Logger) *cobra.Command {
	var metadataOnly bool

	infoCmd := &cobra.Command{
		Use:   "info <archive>",
		Short: "Print an archive's header as JSON",
		Args:  cobra.ExactArgs(1),
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

			if metadataOnly {
				return printJSON(r.Metadata())
			}

			rootLevel, err := r.RootIndexLevel(ctx)
			if err != nil {
				return err
			}
			header := r.Header()
			return printJSON(archiveInfo{
				Codec:           header.Codec,
				RootIndexOffset: header.RootIndexOffset,
				RootIndexLength: header.RootIndexLength,
				RootIndexLevel:  rootLevel,
				TotalFileLength: header.TotalFileLength,
				DataSHA256:      hex.EncodeToString(header.SHA256[:]),
				Metadata:        header.Metadata,
			})
		},
	}

	infoCmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "Print only the archive metadata")

	return infoCmd
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
