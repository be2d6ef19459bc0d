// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package chromem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/internal/store/chromem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func meta(typ store.ObservationType, session string) store.Metadata {
	return store.Metadata{Type: typ, SessionID: session, CreatedAt: created, Status: store.StatusActive}
}

func newIndex(t *testing.T) *chromem.VectorIndex {
	t.Helper()
	vi, err := chromem.NewVectorIndex(t.TempDir(), 3)
	require.NoError(t, err)
	return vi
}

func TestVectorIndex_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	vi := newIndex(t)

	require.NoError(t, vi.Upsert(ctx, 1, []float32{1, 0, 0}, meta(store.TypeObservation, "s1")))
	require.NoError(t, vi.Upsert(ctx, 2, []float32{0, 1, 0}, meta(store.TypeObservation, "s1")))
	require.NoError(t, vi.Upsert(ctx, 3, []float32{0.9, 0.1, 0}, meta(store.TypeObservation, "s1")))

	hits, err := vi.Query(ctx, []float32{1, 0, 0}, store.Filters{}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
	assert.Equal(t, int64(3), hits[1].ID)
}

func TestVectorIndex_QueryLimitAboveCount(t *testing.T) {
	ctx := context.Background()
	vi := newIndex(t)

	require.NoError(t, vi.Upsert(ctx, 1, []float32{1, 0, 0}, meta(store.TypeObservation, "s1")))

	hits, err := vi.Query(ctx, []float32{1, 0, 0}, store.Filters{}, 50)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestVectorIndex_Filters(t *testing.T) {
	ctx := context.Background()
	vi := newIndex(t)

	require.NoError(t, vi.Upsert(ctx, 1, []float32{1, 0, 0}, meta(store.TypeDecision, "s1")))
	require.NoError(t, vi.Upsert(ctx, 2, []float32{0.9, 0.1, 0}, meta(store.TypeBugfix, "s1")))
	require.NoError(t, vi.Upsert(ctx, 3, []float32{0, 0, 1}, meta(store.TypeBugfix, "s2")))

	hits, err := vi.Query(ctx, []float32{1, 0, 0}, store.Filters{SessionID: "s2"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(3), hits[0].ID)

	hits, err = vi.Query(ctx, []float32{1, 0, 0}, store.Filters{
		Types: []store.ObservationType{store.TypeDecision, store.TypeRefactor},
	}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)

	hits, err = vi.Query(ctx, []float32{1, 0, 0}, store.Filters{Since: created.Add(time.Hour)}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_SetStatusAndRemove(t *testing.T) {
	ctx := context.Background()
	vi := newIndex(t)

	require.NoError(t, vi.Upsert(ctx, 1, []float32{1, 0, 0}, meta(store.TypeObservation, "s1")))
	require.NoError(t, vi.Upsert(ctx, 2, []float32{0, 1, 0}, meta(store.TypeSummary, "s1")))

	require.NoError(t, vi.SetStatus(ctx, []int64{1, 77}, store.StatusSuperseded))
	hits, err := vi.Query(ctx, []float32{1, 0, 0}, store.Filters{}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ID)

	require.NoError(t, vi.Remove(ctx, 1))
	ids, err := vi.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	n, err := vi.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	vi := newIndex(t)

	err := vi.Upsert(ctx, 1, []float32{1, 0}, meta(store.TypeObservation, "s1"))
	assert.True(t, errors.Is(err, store.ErrDimensionMismatch))
}

func TestVectorIndex_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	vi, err := chromem.NewVectorIndex(dir, 3)
	require.NoError(t, err)
	require.NoError(t, vi.Upsert(ctx, 7, []float32{0, 0, 1}, meta(store.TypeObservation, "s1")))

	reopened, err := chromem.NewVectorIndex(dir, 3)
	require.NoError(t, err)
	ids, err := reopened.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)
}
