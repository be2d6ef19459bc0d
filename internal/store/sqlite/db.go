// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package sqlite implements the record store, keyword index and pending
// queue on SQLite, and the vector index on sqlite-vec.
//
// The keyword index is an FTS5 table, which mattn/go-sqlite3 only compiles
// in with the sqlite_fts5 build tag:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// openDB opens a SQLite database in WAL mode. Write transactions take the
// lock immediately so concurrent writers wait on busy instead of failing on
// upgrade.
func openDB(path string, busy time.Duration) (*sql.DB, error) {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		path, busy.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "opening sqlite db %s", path)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "pinging sqlite db %s", path)
	}
	return db, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func dbFailure(err error, format string, args ...any) error {
	return engramerr.Wrapf(err, engramerr.CodeStoreDatabaseFailure, format, args...)
}
