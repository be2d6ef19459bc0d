// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

var _ store.VectorIndex = (*VectorIndex)(nil)

// maxKNN is the largest k sqlite-vec accepts in a single KNN query.
const maxKNN = 4096

// VectorIndex implements store.VectorIndex with a sqlite-vec vec0 table keyed
// by observation id and a companion table holding filterable metadata.
type VectorIndex struct {
	db         *sql.DB
	dimensions int
}

// NewVectorIndex opens (or creates) the vector database at dbPath. Opening an
// index created with a different dimension fails.
func NewVectorIndex(dbPath string, dimensions int, busy time.Duration) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, engramerr.Errorf(engramerr.CodeStoreVectorDimensionInvalid, "vector dimensions must be positive, got %d", dimensions)
	}

	db, err := openDB(dbPath, busy)
	if err != nil {
		return nil, err
	}
	if err := migrateVectors(db, dimensions); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &VectorIndex{db: db, dimensions: dimensions}, nil
}

func migrateVectors(db *sql.DB, dimensions int) error {
	const settingsDDL = `
CREATE TABLE IF NOT EXISTS vector_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := db.Exec(settingsDDL); err != nil {
		return dbFailure(err, "creating vector_settings table")
	}

	var stored int
	err := db.QueryRow(`SELECT CAST(value AS INTEGER) FROM vector_settings WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec(`INSERT INTO vector_settings (key, value) VALUES ('dimensions', ?)`, fmt.Sprint(dimensions)); err != nil {
			return dbFailure(err, "recording vector dimensions")
		}
	case err != nil:
		return dbFailure(err, "reading vector dimensions")
	case stored != dimensions:
		return engramerr.Wrapf(store.ErrDimensionMismatch, engramerr.CodeStoreVectorDimensionInvalid,
			"vector index was created with %d dimensions, configured %d", stored, dimensions)
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS observation_vectors USING vec0(embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return dbFailure(err, "creating observation_vectors virtual table")
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS vector_metadata (
	observation_id INTEGER PRIMARY KEY,
	type           TEXT NOT NULL,
	session_id     TEXT NOT NULL DEFAULT '',
	project        TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active'
)`
	if _, err := db.Exec(metaDDL); err != nil {
		return dbFailure(err, "creating vector_metadata table")
	}
	return nil
}

func (v *VectorIndex) Dimensions() int { return v.dimensions }

// Upsert replaces the vector and metadata stored for id.
func (v *VectorIndex) Upsert(ctx context.Context, id int64, vector []float32, meta store.Metadata) error {
	if len(vector) != v.dimensions {
		return engramerr.Wrapf(store.ErrDimensionMismatch, engramerr.CodeStoreVectorDimensionInvalid,
			"vector for observation %d has %d dimensions, index has %d", id, len(vector), v.dimensions)
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "serializing vector %d", id)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "beginning vector upsert")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first.
	if _, err := tx.ExecContext(ctx, `DELETE FROM observation_vectors WHERE rowid = ?`, id); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "deleting vector %d", id)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO observation_vectors(rowid, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "inserting vector %d", id)
	}

	const metaQ = `INSERT INTO vector_metadata (observation_id, type, session_id, project, created_at, status)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(observation_id) DO UPDATE SET
	type = excluded.type,
	session_id = excluded.session_id,
	project = excluded.project,
	created_at = excluded.created_at,
	status = excluded.status`
	if _, err := tx.ExecContext(ctx, metaQ,
		id, string(meta.Type), meta.SessionID, meta.Project, formatTime(meta.CreatedAt), string(meta.Status),
	); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "upserting vector metadata %d", id)
	}

	if err := tx.Commit(); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "committing vector %d", id)
	}
	return nil
}

// Query runs a KNN search and filters by metadata. When filters reject
// candidates the search widens until limit hits pass or the index is
// exhausted.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, filters store.Filters, limit int) ([]store.VectorHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(vector) != v.dimensions {
		return nil, engramerr.Wrapf(store.ErrDimensionMismatch, engramerr.CodeStoreVectorDimensionInvalid,
			"query vector has %d dimensions, index has %d", len(vector), v.dimensions)
	}

	total, err := v.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "serializing query vector")
	}

	k := min(limit, total, maxKNN)
	for {
		hits, err := v.knn(ctx, blob, k, filters, limit)
		if err != nil {
			return nil, err
		}
		if len(hits) >= limit || k >= total || k >= maxKNN {
			return hits, nil
		}
		k = min(k*4, total, maxKNN)
	}
}

func (v *VectorIndex) knn(ctx context.Context, blob []byte, k int, filters store.Filters, limit int) ([]store.VectorHit, error) {
	const q = `SELECT v.rowid, v.distance,
	COALESCE(m.type, ''), COALESCE(m.session_id, ''), COALESCE(m.project, ''),
	COALESCE(m.created_at, ''), COALESCE(m.status, 'active')
FROM observation_vectors v
LEFT JOIN vector_metadata m ON m.observation_id = v.rowid
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := v.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var hits []store.VectorHit
	for rows.Next() {
		var (
			h                    store.VectorHit
			typ, created, status string
			meta                 store.Metadata
		)
		if err := rows.Scan(&h.ID, &h.Distance, &typ, &meta.SessionID, &meta.Project, &created, &status); err != nil {
			return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "scanning vector hit")
		}
		meta.Type = store.ObservationType(typ)
		meta.CreatedAt = parseTime(created)
		meta.Status = store.Status(status)
		if !filters.Matches(meta) {
			continue
		}
		hits = append(hits, h)
		if len(hits) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "iterating vector hits")
	}
	return hits, nil
}

func (v *VectorIndex) SetStatus(ctx context.Context, ids []int64, status store.Status) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE vector_metadata SET status = ? WHERE observation_id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{string(status)}, int64Args(ids)...)
	if _, err := v.db.ExecContext(ctx, q, args...); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "updating vector status")
	}
	return nil
}

func (v *VectorIndex) Remove(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "beginning vector delete")
	}
	defer func() { _ = tx.Rollback() }()

	in := placeholders(len(ids))
	args := int64Args(ids)
	if _, err := tx.ExecContext(ctx, `DELETE FROM observation_vectors WHERE rowid IN (`+in+`)`, args...); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "deleting vectors")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_metadata WHERE observation_id IN (`+in+`)`, args...); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "deleting vector metadata")
	}

	if err := tx.Commit(); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "committing vector delete")
	}
	return nil
}

func (v *VectorIndex) IDs(ctx context.Context) ([]int64, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT rowid FROM observation_vectors ORDER BY rowid`)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "listing vector ids")
	}
	return scanIDs(rows)
}

func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observation_vectors`).Scan(&n); err != nil {
		return 0, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "counting vectors")
	}
	return n, nil
}

func (v *VectorIndex) Close() error {
	return v.db.Close()
}
