// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"

	"github.com/zarc-io/zarc/internal/format"
)

var (
	// ErrCorrupt re-exports format.ErrCorrupt: the archive bytes are
	// malformed, truncated, or fail a checksum.
	ErrCorrupt = format.ErrCorrupt

	// ErrIncomplete re-exports format.ErrIncomplete: the file was
	// never finished by its writer.
	ErrIncomplete = format.ErrIncomplete

	// ErrClosed is returned by operations on a closed writer or reader.
	ErrClosed = errors.New("archive is closed")

	// ErrUnsorted is returned when records arrive out of bytewise order.
	ErrUnsorted = errors.New("records are not in sorted order")

	// ErrEmpty is returned by Finish when no records were added; the
	// format has no representation for an empty archive.
	ErrEmpty = errors.New("cannot create an empty archive")
)
