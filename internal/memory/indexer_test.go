// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_FixesVectorDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kept := f.write(t, "database tuned", "", "s1")
	lost := f.write(t, "login flow", "", "s1")
	require.NoError(t, f.stores.Vectors.Remove(ctx, lost))

	vec, err := f.embedder.Embed(ctx, "stray")
	require.NoError(t, err)
	require.NoError(t, f.stores.Vectors.Upsert(ctx, 555, vec, store.Metadata{Status: store.StatusActive}))

	rep, err := f.svc.Reindexer.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{555}, rep.OrphanVectors)
	assert.Equal(t, []int64{lost}, rep.MissingVectors)
	assert.False(t, rep.TextRebuilt)
	assert.False(t, rep.Consistent())
	assert.Equal(t, 1, f.stats(t).Pending)

	res, err := f.svc.Reindexer.DrainAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)

	ids, err := f.stores.Vectors.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{kept, lost}, ids)

	again, err := f.svc.Reindexer.Repair(ctx)
	require.NoError(t, err)
	assert.True(t, again.Consistent())
}

func TestDrain_StopsWhileEmbeddingIsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.embedder.fail.Store(true)
	f.write(t, "one", "", "s1")
	f.write(t, "two", "", "s1")
	f.write(t, "three", "", "s1")
	time.Sleep(5 * time.Millisecond)

	res, err := f.svc.Reindexer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Remaining)
	assert.Zero(t, res.Indexed)
	assert.Equal(t, 3, f.stats(t).Pending)
}

func TestDelete_ClearsPendingEmbed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.embedder.fail.Store(true)
	id := f.write(t, "short lived", "", "s1")
	require.Equal(t, 1, f.stats(t).Pending)
	f.embedder.fail.Store(false)

	require.NoError(t, f.svc.Observations.Delete(ctx, id))
	assert.Zero(t, f.stats(t).Pending)

	time.Sleep(5 * time.Millisecond)
	res, err := f.svc.Reindexer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, memory.DrainResult{}, res)
	assert.Zero(t, f.stats(t).Vectors)
}

func TestHealth_ReportsStuckEmbeds(t *testing.T) {
	f := newFixture(t, func(c *memory.Config) { c.Reindexer.MaxAttempts = 2 })
	ctx := context.Background()

	h, err := f.svc.Reindexer.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, memory.IndexHealth{}, h)

	f.embedder.fail.Store(true)
	f.write(t, "never embedded", "", "s1")

	h, err = f.svc.Reindexer.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Pending)
	assert.Zero(t, h.Stuck)
	assert.False(t, h.Degraded)
	assert.Contains(t, h.LastError, "embedding model down")

	time.Sleep(5 * time.Millisecond)
	_, err = f.svc.Reindexer.Drain(ctx)
	require.NoError(t, err)

	h, err = f.svc.Reindexer.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Stuck)
	assert.True(t, h.Degraded)
}

func TestStart_DrainsInBackground(t *testing.T) {
	f := newFixture(t)

	f.embedder.fail.Store(true)
	f.write(t, "queued while offline", "", "s1")
	f.embedder.fail.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.Start(ctx)

	assert.Eventually(t, func() bool {
		st, err := f.svc.Observations.Stats(context.Background())
		return err == nil && st.Pending == 0 && st.Vectors == 1
	}, 2*time.Second, 5*time.Millisecond)
}
