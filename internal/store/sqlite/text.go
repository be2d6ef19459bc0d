// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"unicode"

	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

var _ store.TextIndex = (*TextIndex)(nil)

// TextIndex implements store.TextIndex over the observations_fts table. Entries
// are written and removed by triggers inside the record transaction, so the
// index itself only reads.
type TextIndex struct {
	db *sql.DB
}

// NewTextIndex wraps a database already migrated by a RecordStore.
func NewTextIndex(db *sql.DB) *TextIndex {
	return &TextIndex{db: db}
}

// Query ranks matches with bm25. FTS5 reports bm25 as a negative number where
// lower is better; hits carry its negation so higher is better.
func (t *TextIndex) Query(ctx context.Context, text string, filters store.Filters, limit int) ([]store.TextHit, error) {
	match := matchExpression(text)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	where, args := whereFilters(filters, "o")
	q := `SELECT o.id, bm25(observations_fts) AS rank
FROM observations_fts
JOIN observations o ON o.id = observations_fts.rowid
WHERE observations_fts MATCH ?` + where + `
ORDER BY rank ASC, o.id ASC
LIMIT ?`

	queryArgs := append([]any{match}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := t.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreTextIndexFailure, "querying text index")
	}
	defer func() { _ = rows.Close() }()

	var hits []store.TextHit
	for rows.Next() {
		var (
			h    store.TextHit
			rank float64
		)
		if err := rows.Scan(&h.ID, &rank); err != nil {
			return nil, engramerr.Wrapf(err, engramerr.CodeStoreTextIndexFailure, "scanning text hit")
		}
		h.Score = -rank
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreTextIndexFailure, "iterating text hits")
	}
	return hits, nil
}

// Verify runs the FTS5 integrity check against the content table.
func (t *TextIndex) Verify(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `INSERT INTO observations_fts(observations_fts, rank) VALUES ('integrity-check', 1)`)
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeIndexInconsistent, "text index disagrees with records")
	}
	return nil
}

func (t *TextIndex) Rebuild(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `INSERT INTO observations_fts(observations_fts) VALUES ('rebuild')`); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreTextIndexFailure, "rebuilding text index")
	}
	return nil
}

// matchExpression turns free text into an FTS5 query that matches any of its
// words. Each word is quoted so punctuation and FTS5 keywords in user input
// cannot change the query syntax.
func matchExpression(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(words))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}
