// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package store

import "time"

// StorageConfig controls which backends the store factory opens.
type StorageConfig struct {
	Backend          string        // record + text index backend, "sqlite"
	VectorBackend    string        // "sqlite" (sqlite-vec) or "chromem"
	VectorDimensions int           // 0 uses the default (1024)
	BusyTimeout      time.Duration // SQLite busy wait, 0 uses 5s
}
