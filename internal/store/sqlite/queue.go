// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/engram-dev/engram/internal/store"
)

var _ store.EmbeddingQueue = (*EmbeddingQueue)(nil)

// EmbeddingQueue implements store.EmbeddingQueue on the pending_embeddings
// table. RecordStore.Insert writes the first marker; the queue tracks retries.
type EmbeddingQueue struct {
	db  *sql.DB
	now func() time.Time
}

func NewEmbeddingQueue(db *sql.DB) *EmbeddingQueue {
	return &EmbeddingQueue{db: db, now: time.Now}
}

// Enqueue adds a marker for id, keeping the attempt history of an existing one.
func (q *EmbeddingQueue) Enqueue(ctx context.Context, id int64) error {
	stamp := formatTime(q.now())
	const stmt = `INSERT INTO pending_embeddings (observation_id, enqueued_at, next_attempt_at)
SELECT id, ?, ? FROM observations WHERE id = ?
ON CONFLICT(observation_id) DO NOTHING`
	if _, err := q.db.ExecContext(ctx, stmt, stamp, stamp, id); err != nil {
		return dbFailure(err, "enqueueing observation %d", id)
	}
	return nil
}

func (q *EmbeddingQueue) Due(ctx context.Context, now time.Time, limit int) ([]store.PendingEmbedding, error) {
	if limit <= 0 {
		limit = 100
	}
	const stmt = `SELECT observation_id, attempts, last_error, enqueued_at, next_attempt_at
FROM pending_embeddings
WHERE next_attempt_at <= ?
ORDER BY next_attempt_at ASC, observation_id ASC
LIMIT ?`

	rows, err := q.db.QueryContext(ctx, stmt, formatTime(now), limit)
	if err != nil {
		return nil, dbFailure(err, "listing due embeddings")
	}
	defer func() { _ = rows.Close() }()

	var out []store.PendingEmbedding
	for rows.Next() {
		var (
			p              store.PendingEmbedding
			enqueued, next string
		)
		if err := rows.Scan(&p.ObservationID, &p.Attempts, &p.LastError, &enqueued, &next); err != nil {
			return nil, dbFailure(err, "scanning pending embedding")
		}
		p.EnqueuedAt = parseTime(enqueued)
		p.NextAttemptAt = parseTime(next)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbFailure(err, "iterating pending embeddings")
	}
	return out, nil
}

func (q *EmbeddingQueue) Fail(ctx context.Context, id int64, reason string, next time.Time) error {
	const stmt = `UPDATE pending_embeddings
SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
WHERE observation_id = ?`
	if _, err := q.db.ExecContext(ctx, stmt, reason, formatTime(next), id); err != nil {
		return dbFailure(err, "recording failed embedding of %d", id)
	}
	return nil
}

func (q *EmbeddingQueue) Done(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_embeddings WHERE observation_id = ?`, id); err != nil {
		return dbFailure(err, "clearing pending marker %d", id)
	}
	return nil
}

func (q *EmbeddingQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_embeddings`).Scan(&n); err != nil {
		return 0, dbFailure(err, "counting pending embeddings")
	}
	return n, nil
}
