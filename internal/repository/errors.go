// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package repository

import "errors"

var (
	// ErrNotFound is returned when no artifact exists for a version.
	ErrNotFound = errors.New("artifact not found")

	// ErrChecksumMismatch is returned when a tarball no longer matches its manifest.
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")

	// ErrMissingEnvironment is returned when an artifact lacks the
	// environment an agent is configured for.
	ErrMissingEnvironment = errors.New("artifact does not contain environment")

	// ErrExists is returned when publishing a version that is already present.
	ErrExists = errors.New("artifact version already published")
)
