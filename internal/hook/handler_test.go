// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package hook_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/embedding"
	"github.com/engram-dev/engram/internal/hook"
	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/store"
	_ "github.com/engram-dev/engram/internal/store/sqlite"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *memory.Service {
	t.Helper()
	stores, err := store.Open(&store.StorageConfig{VectorDimensions: 64}, t.TempDir())
	require.NoError(t, err)
	svc, err := memory.New(stores, embedding.NewHashEmbedder(64), nil, memory.Config{
		Compressor: memory.CompressorConfig{Threshold: 2},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestHandle_Lifecycle(t *testing.T) {
	svc := newService(t)
	h := hook.NewHandler(svc, nil)
	ctx := context.Background()

	for _, c := range []string{"chose sqlite for storage", "fixed flaky migration test"} {
		res, err := h.Handle(ctx, hook.Event{Kind: hook.KindCapture, SessionID: "s1", Project: "/src/app", Content: c})
		require.NoError(t, err)
		assert.Positive(t, res.ObservationID)
	}

	end, err := h.Handle(ctx, hook.Event{Kind: hook.KindSessionEnd, SessionID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, end.Compression)
	assert.Len(t, end.Compression.SummaryIDs, 1)

	start, err := h.Handle(ctx, hook.Event{Kind: hook.KindSessionStart, Project: "/src/app"})
	require.NoError(t, err)
	require.NotNil(t, start.Context)
	_, err = uuid.Parse(start.SessionID)
	assert.NoError(t, err, "a fresh session id is assigned")
	assert.Contains(t, start.Context.Text, "<engram-context>")
	assert.Contains(t, start.Context.Text, "chose sqlite for storage")
}

func TestHandle_CaptureDefaultsSession(t *testing.T) {
	svc := newService(t)
	h := hook.NewHandler(svc, nil)

	res, err := h.Handle(context.Background(), hook.Event{Kind: hook.KindCapture, Content: "loose note"})
	require.NoError(t, err)
	assert.Equal(t, hook.DefaultSessionID, res.SessionID)

	o, err := svc.Observations.Read(context.Background(), res.ObservationID)
	require.NoError(t, err)
	assert.Equal(t, hook.DefaultSessionID, o.SessionID)
}

func TestHandle_CaptureRejectsBadType(t *testing.T) {
	svc := newService(t)
	h := hook.NewHandler(svc, nil)

	_, err := h.Handle(context.Background(), hook.Event{Kind: hook.KindCapture, Content: "x", Type: "rumor"})
	assert.Error(t, err)
}

// flakyEmbedder fails while down is set.
type flakyEmbedder struct {
	*embedding.HashEmbedder
	down atomic.Bool
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.down.Load() {
		return nil, engramerr.New(engramerr.CodeEmbeddingUnavailable, "embedding model down")
	}
	return e.HashEmbedder.Embed(ctx, text)
}

func TestHandle_RetriesPendingEmbeds(t *testing.T) {
	stores, err := store.Open(&store.StorageConfig{VectorDimensions: 64}, t.TempDir())
	require.NoError(t, err)
	emb := &flakyEmbedder{HashEmbedder: embedding.NewHashEmbedder(64)}
	svc, err := memory.New(stores, emb, nil, memory.Config{
		Store: memory.ObservationStoreConfig{RetryInterval: time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	ctx := context.Background()

	emb.down.Store(true)
	_, err = hook.NewHandler(svc, nil).Handle(ctx, hook.Event{Kind: hook.KindCapture, SessionID: "s1", Content: "captured offline"})
	require.NoError(t, err)
	emb.down.Store(false)
	time.Sleep(5 * time.Millisecond)

	// Without retries the marker waits for a reindexer that never runs.
	_, err = hook.NewHandler(svc, nil).Handle(ctx, hook.Event{Kind: hook.KindSessionStart, Project: "/src/app"})
	require.NoError(t, err)
	st, err := svc.Observations.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Pending)

	_, err = hook.NewHandler(svc, nil).RetryPending(hook.DefaultRetryBatch).
		Handle(ctx, hook.Event{Kind: hook.KindCapture, SessionID: "s1", Content: "back online"})
	require.NoError(t, err)

	st, err = svc.Observations.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Pending)
	assert.Equal(t, 2, st.Vectors)
}
