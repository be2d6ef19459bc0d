// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDir creates a temp directory removed when the test ends.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "engram-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

func newRecordStore(t *testing.T) *sqlite.RecordStore {
	t.Helper()
	rs, err := sqlite.NewRecordStore(testDBPath(t, "engram"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func obs(content string, typ store.ObservationType, session string, offset time.Duration) *store.Observation {
	return &store.Observation{
		Content:   content,
		Type:      typ,
		SessionID: session,
		CreatedAt: baseTime.Add(offset),
	}
}
