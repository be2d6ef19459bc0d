// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/internal/store/sqlite"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	o := obs("switched the session cache to redis", store.TypeDecision, "s1", 0)
	o.Project = "engram"
	o.FileRefs = []string{"internal/cache.go"}

	id, err := rs.Insert(ctx, o)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, o.ID)

	got, err := rs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "switched the session cache to redis", got.Content)
	assert.Equal(t, store.TypeDecision, got.Type)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "engram", got.Project)
	assert.Equal(t, []string{"internal/cache.go"}, got.FileRefs)
	assert.Equal(t, 6, got.TokenCount)
	assert.Equal(t, store.StatusActive, got.Status)
	assert.True(t, baseTime.Equal(got.CreatedAt))
}

func TestRecordStore_IDsAreMonotonicAndNeverReused(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	first, err := rs.Insert(ctx, obs("one", store.TypeObservation, "s1", 0))
	require.NoError(t, err)
	second, err := rs.Insert(ctx, obs("two", store.TypeObservation, "s1", time.Second))
	require.NoError(t, err)
	assert.Greater(t, second, first)

	existed, err := rs.Delete(ctx, second)
	require.NoError(t, err)
	assert.True(t, existed)

	third, err := rs.Insert(ctx, obs("three", store.TypeObservation, "s1", 2*time.Second))
	require.NoError(t, err)
	assert.Greater(t, third, second)
}

func TestRecordStore_InsertRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	tests := []struct {
		name string
		obs  *store.Observation
	}{
		{"empty content", obs("   ", store.TypeObservation, "s1", 0)},
		{"unknown type", obs("text", store.ObservationType("gossip"), "s1", 0)},
		{"sources on non-summary", &store.Observation{Content: "x", Type: store.TypeDecision, SourceIDs: []int64{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rs.Insert(ctx, tt.obs)
			require.Error(t, err)
			assert.True(t, engramerr.IsInvalidInput(err))
		})
	}

	ids, err := rs.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRecordStore_GetMissing(t *testing.T) {
	rs := newRecordStore(t)

	_, err := rs.Get(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, engramerr.IsNotFound(err))
}

func TestRecordStore_ListSessionOldestFirst(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	_, err := rs.Insert(ctx, obs("later", store.TypeObservation, "s1", time.Minute))
	require.NoError(t, err)
	_, err = rs.Insert(ctx, obs("earlier", store.TypeObservation, "s1", 0))
	require.NoError(t, err)
	_, err = rs.Insert(ctx, obs("other session", store.TypeObservation, "s2", 0))
	require.NoError(t, err)

	got, err := rs.ListSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "earlier", got[0].Content)
	assert.Equal(t, "later", got[1].Content)
}

func TestRecordStore_MarkSuperseded(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	a, err := rs.Insert(ctx, obs("a", store.TypeObservation, "s1", 0))
	require.NoError(t, err)
	b, err := rs.Insert(ctx, obs("b", store.TypeObservation, "s1", time.Second))
	require.NoError(t, err)

	summary := obs("a and b", store.TypeSummary, "s1", time.Minute)
	summary.SourceIDs = []int64{a, b}
	sid, err := rs.Insert(ctx, summary)
	require.NoError(t, err)

	require.NoError(t, rs.MarkSuperseded(ctx, []int64{a, b}, sid))
	// Repeating is a no-op.
	require.NoError(t, rs.MarkSuperseded(ctx, []int64{a, b}, sid))

	got, err := rs.GetMany(ctx, []int64{a, b, sid})
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuperseded, got[a].Status)
	assert.Equal(t, sid, got[a].SupersededBy)
	assert.Equal(t, store.StatusSuperseded, got[b].Status)
	assert.Equal(t, store.StatusActive, got[sid].Status)
	assert.Equal(t, []int64{a, b}, got[sid].SourceIDs)
}

func TestRecordStore_MarkSupersededMissingChangesNothing(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	a, err := rs.Insert(ctx, obs("a", store.TypeObservation, "s1", 0))
	require.NoError(t, err)

	err = rs.MarkSuperseded(ctx, []int64{a, 4242}, 1)
	require.Error(t, err)
	assert.True(t, engramerr.IsNotFound(err))

	got, err := rs.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, got.Status)
}

func TestRecordStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)
	q := sqlite.NewEmbeddingQueue(rs.DB())

	id, err := rs.Insert(ctx, obs("to remove", store.TypeObservation, "s1", 0))
	require.NoError(t, err)

	existed, err := rs.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = rs.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, existed)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "pending marker removed with the record")
}

func TestRecordStore_ListRecentFilters(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	a := obs("decision in s1", store.TypeDecision, "s1", 0)
	a.Project = "p1"
	_, err := rs.Insert(ctx, a)
	require.NoError(t, err)
	_, err = rs.Insert(ctx, obs("bugfix in s1", store.TypeBugfix, "s1", time.Hour))
	require.NoError(t, err)
	_, err = rs.Insert(ctx, obs("decision in s2", store.TypeDecision, "s2", 2*time.Hour))
	require.NoError(t, err)

	got, err := rs.ListRecent(ctx, store.Filters{Types: []store.ObservationType{store.TypeDecision}}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "decision in s2", got[0].Content, "newest first")

	got, err = rs.ListRecent(ctx, store.Filters{Project: "p1"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = rs.ListRecent(ctx, store.Filters{Since: baseTime.Add(30 * time.Minute), Until: baseTime.Add(90 * time.Minute)}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bugfix in s1", got[0].Content)
}

func TestRecordStore_SessionsAndStats(t *testing.T) {
	ctx := context.Background()
	rs := newRecordStore(t)

	a, err := rs.Insert(ctx, obs("a", store.TypeObservation, "s1", 0))
	require.NoError(t, err)
	_, err = rs.Insert(ctx, obs("b", store.TypeObservation, "s2", time.Hour))
	require.NoError(t, err)
	sum := obs("summary of a", store.TypeSummary, "s1", time.Minute)
	sum.SourceIDs = []int64{a}
	sid, err := rs.Insert(ctx, sum)
	require.NoError(t, err)
	require.NoError(t, rs.MarkSuperseded(ctx, []int64{a}, sid))

	sessions, err := rs.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].ID)
	assert.Equal(t, 2, sessions[1].Observations)
	assert.Equal(t, 1, sessions[1].Active)
	assert.Equal(t, 1, sessions[1].Summaries)

	stats, err := rs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Observations)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Superseded)
	assert.Equal(t, 1, stats.Summaries)
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 3, stats.Pending)
}
