// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory_test

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/store"
	_ "github.com/engram-dev/engram/internal/store/sqlite"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/stretchr/testify/require"
)

// topics maps words to the dimension of topicEmbedder they light up.
var topics = [][]string{
	{"authentication", "auth", "token", "login", "password"},
	{"database", "storage", "sqlite", "vector", "db", "persist"},
	{"css", "layout", "button", "sidebar", "ui"},
	{"test", "tests", "flaky", "ci"},
}

const topicDims = 8

// topicEmbedder is a deterministic embedder whose geometry follows topics,
// so semantic rankings in tests do not depend on a model.
type topicEmbedder struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (e *topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail.Load() {
		return nil, engramerr.New(engramerr.CodeEmbeddingUnavailable, "embedding model down")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, topicDims)
	vec[topicDims-1] = 0.1
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		for i, words := range topics {
			for _, tw := range words {
				if w == tw {
					vec[i]++
				}
			}
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (e *topicEmbedder) Dimensions() int { return topicDims }
func (e *topicEmbedder) Name() string    { return "topic" }

type fixture struct {
	svc      *memory.Service
	stores   *store.Stores
	embedder *topicEmbedder
}

func newFixture(t *testing.T, mutate ...func(*memory.Config)) *fixture {
	t.Helper()

	stores, err := store.Open(&store.StorageConfig{
		VectorDimensions: topicDims,
		BusyTimeout:      time.Second,
	}, t.TempDir())
	require.NoError(t, err)

	cfg := memory.Config{
		Store:      memory.ObservationStoreConfig{RetryInterval: time.Millisecond},
		Compressor: memory.CompressorConfig{Threshold: 2},
		Reindexer:  memory.ReindexerConfig{Interval: time.Millisecond},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	emb := &topicEmbedder{}
	svc, err := memory.New(stores, emb, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return &fixture{svc: svc, stores: stores, embedder: emb}
}

func (f *fixture) write(t *testing.T, content, typ, session string) int64 {
	t.Helper()
	id, err := f.svc.Observations.Write(context.Background(), memory.WriteRequest{
		Content:   content,
		Type:      typ,
		SessionID: session,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) search(t *testing.T, q memory.Query) []memory.Result {
	t.Helper()
	res, err := f.svc.Engine.Search(context.Background(), q)
	require.NoError(t, err)
	return res
}

func resultIDs(results []memory.Result) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.Observation.ID
	}
	return ids
}

func (f *fixture) stats(t *testing.T) store.Stats {
	t.Helper()
	st, err := f.svc.Observations.Stats(context.Background())
	require.NoError(t, err)
	return st
}
