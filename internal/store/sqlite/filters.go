// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite

import (
	"strings"

	"github.com/engram-dev/engram/internal/store"
)

// whereFilters renders f as SQL conditions over the observations table
// aliased as alias. The result starts with " AND " when non-empty.
func whereFilters(f store.Filters, alias string) (string, []any) {
	col := func(name string) string { return alias + "." + name }

	var (
		conds []string
		args  []any
	)
	if len(f.Types) > 0 {
		conds = append(conds, col("type")+" IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if f.SessionID != "" {
		conds = append(conds, col("session_id")+" = ?")
		args = append(args, f.SessionID)
	}
	if f.Project != "" {
		conds = append(conds, col("project")+" = ?")
		args = append(args, f.Project)
	}
	if !f.Since.IsZero() {
		conds = append(conds, col("created_at")+" >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, col("created_at")+" < ?")
		args = append(args, formatTime(f.Until))
	}
	if !f.IncludeSuperseded {
		conds = append(conds, col("status")+" = ?")
		args = append(args, string(store.StatusActive))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}
