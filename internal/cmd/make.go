// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zarc-io/zarc/internal/archive"
	"github.com/zarc-io/zarc/internal/buildvars"
	"github.com/zarc-io/zarc/internal/config"
)

func newMakeCmd(c *config.Config, logger log.Logger) *cobra.Command {
	var (
		metadataJSON      string
		noDefaultMetadata bool
		terminator        string
		lengthPrefix      string
	)

	makeCmd := &cobra.Command{
		Use:   "make <archive> [input]",
		Short: "Build an archive from sorted records",
		Long: `Build an archive from records read from a file, or from stdin when
the input is "-" or omitted. Records must arrive in sorted order. By
default records are terminated by newlines; use --terminator for a
different separator or --length-prefix for binary framed input.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(c); err != nil {
				return err
			}

			blockSize, err := c.BlockSize()
			if err != nil {
				return err
			}
			metadata, err := buildMetadata(c, metadataJSON, noDefaultMetadata)
			if err != nil {
				return err
			}

			input := io.Reader(os.Stdin)
			source := "stdin"
			if len(args) == 2 && args[1] != "-" {
				file, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer file.Close()
				input = file
				source = args[1]
			}

			w, err := archive.NewWriter(args[0], archive.Options{
				Metadata:        metadata,
				BranchingFactor: c.Branching(),
				ApproxBlockSize: blockSize,
				Codec:           c.Codec(),
				CompressLevel:   c.CompressLevel(),
				Parallelism:     c.Parallelism(),
			})
			if err != nil {
				return err
			}
			defer w.Close()

			level.Debug(logger).Log("msg", "building archive", "path", args[0], "input", source, "codec", c.Codec())
			started := time.Now()
			if err := w.AddStream(input, unescapeTerminator(terminator), lengthPrefix); err != nil {
				return err
			}
			if err := w.Finish(); err != nil {
				return err
			}
			level.Info(logger).Log("msg", "archive created", "path", args[0], "took", time.Since(started))
			return nil
		},
	}

	flags := makeCmd.Flags()
	flags.StringVar(&metadataJSON, "metadata", "", "JSON object merged into the archive metadata")
	flags.BoolVar(&noDefaultMetadata, "no-default-metadata", false, "Omit the default build-info metadata")
	flags.StringVar(&terminator, "terminator", "", `Record terminator for text input (default "\n")`)
	flags.StringVar(&lengthPrefix, "length-prefix", "", "Binary input framing: uleb128 or u64le")
	flags.String("codec", archive.DefaultCodec, "Block compression codec (none|deflate|zstd)")
	flags.Int("compress-level", 0, "Compression level (0 = codec default)")
	flags.Int("branching", archive.DefaultBranchingFactor, "Keys per index block")
	flags.String("block-size", "128Ki", "Approximate uncompressed data block size")
	flags.Int("parallelism", 0, "Compression workers (0 = one per CPU)")
	viper.BindPFlag("codec", flags.Lookup("codec"))
	viper.BindPFlag("compress_level", flags.Lookup("compress-level"))
	viper.BindPFlag("branching", flags.Lookup("branching"))
	viper.BindPFlag("block_size", flags.Lookup("block-size"))
	viper.BindPFlag("parallelism", flags.Lookup("parallelism"))

	return makeCmd
}

// buildMetadata merges the user's --metadata JSON over the default
// build-info object recording who built the archive, where, and when.
func buildMetadata(c *config.Config, metadataJSON string, noDefault bool) (json.RawMessage, error) {
	merged := map[string]any{}
	if !noDefault {
		buildInfo := map[string]any{
			"time":    time.Now().UTC().Format(time.RFC3339),
			"version": buildvars.BuildVersion(),
		}
		if u, err := user.Current(); err == nil {
			buildInfo["user"] = u.Username
		}
		if host, err := os.Hostname(); err == nil {
			buildInfo["host"] = host
		}
		if c.InstanceID() != "" {
			buildInfo["instance-id"] = c.InstanceID()
		}
		merged["build-info"] = buildInfo
	}
	if metadataJSON != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(metadataJSON), &extra); err != nil {
			return nil, fmt.Errorf("--metadata must be a JSON object: %w", err)
		}
		for key, value := range extra {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}
