// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the zarc CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zarc-io/zarc/internal/buildvars"
	"github.com/zarc-io/zarc/internal/config"
	"github.com/zarc-io/zarc/internal/s3client"
	"github.com/zarc-io/zarc/internal/transport"
)

var rootCmd = &cobra.Command{
	Use:   "zarc",
	Short: "Zarc",
	Long:  `zarc reads and writes sorted record archives: compressed, checksummed, and binary-searchable, locally or straight out of S3.`,
}

func init() {
	pflags := rootCmd.PersistentFlags()
	pflags.BoolP("verbose", "v", false, "Enable verbose output")
	pflags.Bool("version", false, "Show version information")
	pflags.Lookup("verbose").NoOptDefVal = "true"
	pflags.VisitAll(func(flag *pflag.Flag) {
		viper.BindPFlag(flag.Name, flag)
	})
}

func NewRootCmd() *cobra.Command {
	// Create logger
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	// Initialize config
	c, err := config.Init(logger)
	if err != nil {
		fmt.Println("Error initializing config:", err)
		os.Exit(1)
	}

	// Apply log level filtering based on verbose setting
	if !c.Verbose() {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		// check for version flag
		if viper.GetBool("version") {
			fmt.Printf("zarc %s\n", buildvars.BuildVersion())
			if c.Verbose() {
				fmt.Printf("build version: %s\n", buildvars.BuildVersion())
				fmt.Printf("build date: %s\n", buildvars.BuildDate())
				fmt.Printf("commit hash: %s\n", buildvars.CommitHash())
				fmt.Printf("commit date: %s\n", buildvars.CommitDate())
				fmt.Printf("commit branch: %s\n", buildvars.CommitBranch())
			}
			return
		}
		cmd.Help()
	}

	rootCmd.AddCommand(
		newMakeCmd(c, logger),
		newDumpCmd(c, logger),
		newInfoCmd(c, logger),
		newValidateCmd(c, logger),
		newPushCmd(c, logger),
		newPullCmd(c, logger),
	)

	return rootCmd
}

// validateConfig is run by every subcommand before doing work
func validateConfig(c *config.Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config/environment variables: %w", err)
	}
	return nil
}

// openTransport opens an archive argument, which is either a local
// path or an s3://bucket/key URL. For URLs the bucket and key come
// from the URL itself, overriding any configured bucket and prefix.
func openTransport(ctx context.Context, c *config.Config, logger log.Logger, arg string) (transport.Transport, error) {
	if !transport.IsS3URL(arg) {
		return transport.OpenFile(arg)
	}
	bucket, key, err := transport.SplitS3URL(arg)
	if err != nil {
		return nil, err
	}
	viper.Set("s3_bucket_name", bucket)
	viper.Set("s3_key_prefix", "")
	client, err := s3client.New(c, logger)
	if err != nil {
		return nil, err
	}
	return transport.OpenS3(ctx, client, key)
}

// unescapeTerminator interprets backslash escapes in a --terminator
// flag value, so shells can pass "\x00" or "\r\n" literally.
func unescapeTerminator(s string) []byte {
	if s == "" {
		return nil
	}
	if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return []byte(unquoted)
	}
	return []byte(s)
}
