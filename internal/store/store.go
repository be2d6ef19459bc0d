// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package store

import (
	"context"
	"time"
)

// RecordStore holds the authoritative observation records. Insert writes the
// record, its text index entry and its pending-embedding marker in a single
// transaction so a crash can never leave a record the reindexer does not know
// about.
type RecordStore interface {
	Insert(ctx context.Context, o *Observation) (int64, error)
	Get(ctx context.Context, id int64) (*Observation, error)
	// GetMany returns the records that exist among ids; missing ids are absent
	// from the map.
	GetMany(ctx context.Context, ids []int64) (map[int64]*Observation, error)
	// ListSession returns a session's records oldest first.
	ListSession(ctx context.Context, sessionID string) ([]*Observation, error)
	// ListRecent returns the newest records passing filters.
	ListRecent(ctx context.Context, filters Filters, limit int) ([]*Observation, error)
	// MarkSuperseded flips ids to superseded in one transaction. It fails with
	// ErrNotFound, changing nothing, when any id is missing.
	MarkSuperseded(ctx context.Context, ids []int64, summaryID int64) error
	// Delete removes the record, its text entry and its pending marker. It
	// reports whether a record existed.
	Delete(ctx context.Context, id int64) (bool, error)
	// IDs returns every record id in ascending order.
	IDs(ctx context.Context) ([]int64, error)
	// Sessions returns the most recently active sessions first.
	Sessions(ctx context.Context, limit int) ([]SessionInfo, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// TextIndex answers keyword queries over record content.
type TextIndex interface {
	// Query returns up to limit hits passing filters, best first.
	Query(ctx context.Context, text string, filters Filters, limit int) ([]TextHit, error)
	// Verify checks the index against the records and fails with an
	// inconsistency error when they disagree.
	Verify(ctx context.Context) error
	// Rebuild regenerates the index from the records.
	Rebuild(ctx context.Context) error
}

// VectorIndex stores one embedding per observation id and answers
// nearest-neighbour queries.
type VectorIndex interface {
	Upsert(ctx context.Context, id int64, vector []float32, meta Metadata) error
	// Query returns up to limit hits passing filters, closest first.
	Query(ctx context.Context, vector []float32, filters Filters, limit int) ([]VectorHit, error)
	// SetStatus updates the status kept beside existing entries; ids without
	// an entry are ignored.
	SetStatus(ctx context.Context, ids []int64, status Status) error
	// Remove deletes entries by id; absent ids are ignored.
	Remove(ctx context.Context, ids ...int64) error
	IDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
	Dimensions() int
	Close() error
}

// EmbeddingQueue is the durable list of observations still waiting for a
// vector.
type EmbeddingQueue interface {
	Enqueue(ctx context.Context, id int64) error
	// Due returns markers whose next attempt is at or before now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]PendingEmbedding, error)
	// Fail records a failed attempt and schedules the next one.
	Fail(ctx context.Context, id int64, reason string, next time.Time) error
	// Done removes the marker; absent markers are ignored.
	Done(ctx context.Context, id int64) error
	Len(ctx context.Context) (int, error)
}
