// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/zarc-io/zarc/internal/archive"
	"github.com/zarc-io/zarc/internal/config"
)

func newDumpCmd(c *config.Config, logger log.Logger) *cobra.Command {
	var (
		start        string
		stop         string
		prefix       string
		terminator   string
		lengthPrefix string
	)

	dumpCmd := &cobra.Command{
		Use:   "dump <archive>",
		Short: "Write records from an archive to stdout",
		Long: `Write records from a local archive or an s3://bucket/key URL to
stdout, in sorted order. --start/--stop select the half-open range
[start, stop); --prefix selects records beginning with the given
bytes. Remote archives are read with ranged requests, so a narrow
selection fetches only the blocks it needs.`,
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
			count, err := r.Dump(ctx, os.Stdout, archive.DumpOptions{
				SearchOptions: archive.SearchOptions{
					Start:  []byte(start),
					Stop:   stopBytes(stop),
					Prefix: []byte(prefix),
				},
				Terminator:   unescapeTerminator(terminator),
				LengthPrefix: lengthPrefix,
			})
			if err != nil {
				return err
			}
			level.Debug(logger).Log("msg", "dump complete", "archive", args[0], "records", count, "took", time.Since(started))
			return nil
		},
	}

	flags := dumpCmd.Flags()
	flags.StringVar(&start, "start", "", "First record to include (inclusive)")
	flags.StringVar(&stop, "stop", "", "First record to exclude")
	flags.StringVar(&prefix, "prefix", "", "Only records beginning with these bytes")
	flags.StringVar(&terminator, "terminator", "", `Record terminator for output (default "\n")`)
	flags.StringVar(&lengthPrefix, "length-prefix", "", "Binary output framing: uleb128 or u64le")

	return dumpCmd
}

// stopBytes keeps an unset --stop flag as a nil (unbounded) stop; an
// empty []byte would exclude everything.
func stopBytes(stop string) []byte {
	if stop == "" {
		return nil
	}
	return []byte(stop)
}
