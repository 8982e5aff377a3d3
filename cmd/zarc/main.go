// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/zarc-io/zarc/internal/cmd"
)

func main() {
	err := cmd.NewRootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
