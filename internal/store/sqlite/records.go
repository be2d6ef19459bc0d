// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

var _ store.RecordStore = (*RecordStore)(nil)

// RecordStore implements store.RecordStore on SQLite. The FTS5 text index
// and the pending-embedding queue live in the same database and are kept in
// step by triggers and shared transactions.
type RecordStore struct {
	db     *sql.DB
	ownsDB bool
	now    func() time.Time
}

// NewRecordStore opens (or creates) the database at dbPath.
func NewRecordStore(dbPath string, busy time.Duration) (*RecordStore, error) {
	db, err := openDB(dbPath, busy)
	if err != nil {
		return nil, err
	}
	if err := migrateRecords(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &RecordStore{db: db, ownsDB: true, now: time.Now}, nil
}

// NewRecordStoreWithDB uses an existing connection. The caller keeps
// ownership of db.
func NewRecordStoreWithDB(db *sql.DB) (*RecordStore, error) {
	if err := migrateRecords(db); err != nil {
		return nil, err
	}
	return &RecordStore{db: db, now: time.Now}, nil
}

// DB exposes the connection so the text index and queue can share it.
func (r *RecordStore) DB() *sql.DB { return r.db }

func migrateRecords(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS observations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	content       TEXT NOT NULL,
	type          TEXT NOT NULL,
	session_id    TEXT NOT NULL DEFAULT '',
	project       TEXT NOT NULL DEFAULT '',
	file_refs     TEXT NOT NULL DEFAULT '[]',
	token_count   INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active',
	superseded_by INTEGER NOT NULL DEFAULT 0,
	source_ids    TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_observations_created ON observations(created_at);
CREATE INDEX IF NOT EXISTS idx_observations_status ON observations(status);

CREATE VIRTUAL TABLE IF NOT EXISTS observations_fts USING fts5(
	content,
	content='observations',
	content_rowid='id',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS observations_ai AFTER INSERT ON observations BEGIN
	INSERT INTO observations_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS observations_ad AFTER DELETE ON observations BEGIN
	INSERT INTO observations_fts(observations_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS observations_au AFTER UPDATE OF content ON observations BEGIN
	INSERT INTO observations_fts(observations_fts, rowid, content) VALUES ('delete', old.id, old.content);
	INSERT INTO observations_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TABLE IF NOT EXISTS pending_embeddings (
	observation_id  INTEGER PRIMARY KEY REFERENCES observations(id) ON DELETE CASCADE,
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	enqueued_at     TEXT NOT NULL,
	next_attempt_at TEXT NOT NULL
);
`
	if _, err := db.Exec(ddl); err != nil {
		return dbFailure(err, "migrating observation tables")
	}
	return nil
}

func (r *RecordStore) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}

// Insert assigns the id, stamps CreatedAt when unset and enqueues the record
// for embedding, all in one transaction.
func (r *RecordStore) Insert(ctx context.Context, o *store.Observation) (int64, error) {
	if o.Status == "" {
		o.Status = store.StatusActive
	}
	if err := o.Validate(); err != nil {
		return 0, err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now()
	}
	if o.TokenCount == 0 {
		o.TokenCount = len(strings.Fields(o.Content))
	}

	fileRefs, err := marshalList(o.FileRefs)
	if err != nil {
		return 0, err
	}
	sourceIDs, err := marshalList(o.SourceIDs)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "beginning insert")
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO observations
	(content, type, session_id, project, file_refs, token_count, created_at, status, superseded_by, source_ids)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := tx.ExecContext(ctx, q,
		o.Content,
		string(o.Type),
		o.SessionID,
		o.Project,
		fileRefs,
		o.TokenCount,
		formatTime(o.CreatedAt),
		string(o.Status),
		o.SupersededBy,
		sourceIDs,
	)
	if err != nil {
		return 0, dbFailure(err, "inserting observation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbFailure(err, "reading inserted observation id")
	}

	stamp := formatTime(r.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pending_embeddings (observation_id, enqueued_at, next_attempt_at) VALUES (?, ?, ?)`,
		id, stamp, stamp,
	); err != nil {
		return 0, dbFailure(err, "enqueueing observation %d for embedding", id)
	}

	if err := tx.Commit(); err != nil {
		return 0, dbFailure(err, "committing observation %d", id)
	}

	o.ID = id
	return id, nil
}

const observationColumns = `id, content, type, session_id, project, file_refs, token_count,
	created_at, status, superseded_by, source_ids`

func (r *RecordStore) Get(ctx context.Context, id int64) (*store.Observation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+observationColumns+` FROM observations WHERE id = ?`, id)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engramerr.Wrap(store.ErrNotFound, engramerr.CodeStoreObservationNotFound,
			"observation not found", engramerr.FieldObservationID(id))
	}
	if err != nil {
		return nil, dbFailure(err, "getting observation %d", id)
	}
	return o, nil
}

func (r *RecordStore) GetMany(ctx context.Context, ids []int64) (map[int64]*store.Observation, error) {
	out := make(map[int64]*store.Observation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := `SELECT ` + observationColumns + ` FROM observations WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, q, int64Args(ids)...)
	if err != nil {
		return nil, dbFailure(err, "getting observations")
	}
	obs, err := scanObservations(rows)
	if err != nil {
		return nil, err
	}
	for _, o := range obs {
		out[o.ID] = o
	}
	return out, nil
}

func (r *RecordStore) ListSession(ctx context.Context, sessionID string) ([]*store.Observation, error) {
	const q = `SELECT ` + observationColumns + ` FROM observations
WHERE session_id = ?
ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, dbFailure(err, "listing session %s", sessionID)
	}
	return scanObservations(rows)
}

func (r *RecordStore) ListRecent(ctx context.Context, filters store.Filters, limit int) ([]*store.Observation, error) {
	if limit <= 0 {
		limit = 20
	}
	where, args := whereFilters(filters, "o")
	q := `SELECT ` + prefixColumns("o") + ` FROM observations o WHERE 1 = 1` + where +
		` ORDER BY o.created_at DESC, o.id ASC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, dbFailure(err, "listing recent observations")
	}
	return scanObservations(rows)
}

func (r *RecordStore) MarkSuperseded(ctx context.Context, ids []int64, summaryID int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "beginning supersede")
	}
	defer func() { _ = tx.Rollback() }()

	var found int
	countQ := `SELECT COUNT(*) FROM observations WHERE id IN (` + placeholders(len(ids)) + `)`
	if err := tx.QueryRowContext(ctx, countQ, int64Args(ids)...).Scan(&found); err != nil {
		return dbFailure(err, "checking observations to supersede")
	}
	if found != len(ids) {
		return engramerr.Wrapf(store.ErrNotFound, engramerr.CodeStoreObservationNotFound,
			"superseding: %d of %d observations missing", len(ids)-found, len(ids))
	}

	updateQ := `UPDATE observations SET status = ?, superseded_by = ?
WHERE status = ? AND id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{string(store.StatusSuperseded), summaryID, string(store.StatusActive)}, int64Args(ids)...)
	if _, err := tx.ExecContext(ctx, updateQ, args...); err != nil {
		return dbFailure(err, "superseding observations")
	}

	if err := tx.Commit(); err != nil {
		return dbFailure(err, "committing supersede")
	}
	return nil
}

func (r *RecordStore) Delete(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "beginning delete")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_embeddings WHERE observation_id = ?`, id); err != nil {
		return false, dbFailure(err, "deleting pending marker %d", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE id = ?`, id)
	if err != nil {
		return false, dbFailure(err, "deleting observation %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbFailure(err, "deleting observation %d", id)
	}

	if err := tx.Commit(); err != nil {
		return false, dbFailure(err, "committing delete of %d", id)
	}
	return n > 0, nil
}

func (r *RecordStore) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM observations ORDER BY id`)
	if err != nil {
		return nil, dbFailure(err, "listing observation ids")
	}
	return scanIDs(rows)
}

func (r *RecordStore) Sessions(ctx context.Context, limit int) ([]store.SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT session_id, MAX(project), COUNT(*),
	SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END),
	SUM(CASE WHEN type = 'summary' THEN 1 ELSE 0 END),
	MIN(created_at), MAX(created_at)
FROM observations
GROUP BY session_id
ORDER BY MAX(created_at) DESC
LIMIT ?`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, dbFailure(err, "listing sessions")
	}
	defer func() { _ = rows.Close() }()

	var out []store.SessionInfo
	for rows.Next() {
		var (
			s           store.SessionInfo
			first, last string
		)
		if err := rows.Scan(&s.ID, &s.Project, &s.Observations, &s.Active, &s.Summaries, &first, &last); err != nil {
			return nil, dbFailure(err, "scanning session row")
		}
		s.FirstAt = parseTime(first)
		s.LastAt = parseTime(last)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbFailure(err, "iterating sessions")
	}
	return out, nil
}

func (r *RecordStore) Stats(ctx context.Context) (store.Stats, error) {
	var s store.Stats
	const q = `SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'superseded' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN type = 'summary' THEN 1 ELSE 0 END), 0),
	COUNT(DISTINCT session_id)
FROM observations`
	if err := r.db.QueryRowContext(ctx, q).Scan(&s.Observations, &s.Active, &s.Superseded, &s.Summaries, &s.Sessions); err != nil {
		return s, dbFailure(err, "counting observations")
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_embeddings`).Scan(&s.Pending); err != nil {
		return s, dbFailure(err, "counting pending embeddings")
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*store.Observation, error) {
	var (
		o                    store.Observation
		typ, status, created string
		fileRefs, sourceIDs  string
	)
	if err := row.Scan(
		&o.ID,
		&o.Content,
		&typ,
		&o.SessionID,
		&o.Project,
		&fileRefs,
		&o.TokenCount,
		&created,
		&status,
		&o.SupersededBy,
		&sourceIDs,
	); err != nil {
		return nil, err
	}
	o.Type = store.ObservationType(typ)
	o.Status = store.Status(status)
	o.CreatedAt = parseTime(created)
	if err := unmarshalList(fileRefs, &o.FileRefs); err != nil {
		return nil, err
	}
	if err := unmarshalList(sourceIDs, &o.SourceIDs); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanObservations(rows *sql.Rows) ([]*store.Observation, error) {
	defer func() { _ = rows.Close() }()

	var out []*store.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, dbFailure(err, "scanning observation row")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, dbFailure(err, "iterating observations")
	}
	return out, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbFailure(err, "scanning id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbFailure(err, "iterating ids")
	}
	return ids, nil
}

func prefixColumns(alias string) string {
	cols := strings.Split(observationColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func marshalList[T any](v []T) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", engramerr.Wrapf(err, engramerr.CodeStoreInvalidInput, "encoding list column")
	}
	return string(b), nil
}

func unmarshalList[T any](raw string, dst *[]T) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
