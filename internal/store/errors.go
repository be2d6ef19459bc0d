// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package store

import "errors"

// Sentinel errors for store operations, checked with errors.Is.
var (
	// ErrNotFound indicates the requested observation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
