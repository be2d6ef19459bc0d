// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/engram-dev/engram/internal/embedding"
	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// Mode selects which legs a search runs.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// ParseMode maps "" to ModeHybrid.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeHybrid, nil
	case ModeHybrid, ModeSemantic, ModeKeyword:
		return m, nil
	default:
		return "", engramerr.Errorf(engramerr.CodeMemorySearchInvalidInput, "unknown search mode %q", s)
	}
}

const (
	DefaultLimit               = 10
	DefaultCandidateMultiplier = 4
)

// Query is one search request.
type Query struct {
	Text    string
	Mode    Mode
	K       int
	Filters store.Filters
}

// Result is one ranked observation. SemanticScore and KeywordScore are the
// normalized leg scores Score was fused from.
type Result struct {
	Observation   *store.Observation `json:"observation"`
	Score         float64            `json:"score"`
	SemanticScore float64            `json:"semantic_score"`
	KeywordScore  float64            `json:"keyword_score"`
}

// Report is a search outcome together with how it was produced.
type Report struct {
	Results []Result `json:"results"`
	// Mode is the requested mode.
	Mode Mode `json:"mode"`
	// Degraded is set when a hybrid search fell back to keywords because the
	// embedding model was unavailable.
	Degraded bool `json:"degraded"`
	// DegradedReason holds the embedding error message when Degraded.
	DegradedReason string `json:"degraded_reason,omitempty"`
	// Orphans counts index hits with no record behind them.
	Orphans int `json:"orphans,omitempty"`
}

// EngineConfig tunes an Engine.
type EngineConfig struct {
	Weights Weights
	// CandidateMultiplier sets how many candidates each leg fetches per
	// requested result.
	CandidateMultiplier int
	DefaultLimit        int
	Logger              *slog.Logger
}

// Engine runs keyword and semantic queries side by side and fuses them.
type Engine struct {
	records  store.RecordStore
	text     store.TextIndex
	vectors  store.VectorIndex
	embedder embedding.Embedder

	weights    Weights
	multiplier int
	limit      int
	logger     *slog.Logger
}

func NewEngine(stores *store.Stores, embedder embedding.Embedder, cfg EngineConfig) (*Engine, error) {
	if stores == nil || stores.Records == nil || stores.Text == nil || stores.Vectors == nil {
		return nil, engramerr.New(engramerr.CodeStoreInvalidInput, "engine needs records, text and vector indexes")
	}
	if embedder == nil {
		return nil, engramerr.New(engramerr.CodeEmbeddingConfigInvalid, "engine needs an embedder")
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		records:    stores.Records,
		text:       stores.Text,
		vectors:    stores.Vectors,
		embedder:   embedder,
		weights:    cfg.Weights,
		multiplier: cfg.CandidateMultiplier,
		limit:      cfg.DefaultLimit,
		logger:     cfg.Logger,
	}, nil
}

// Search returns at most q.K observations ranked by fused score.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	r, err := e.SearchReport(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.Results, nil
}

// SearchReport is Search with details on how the ranking was produced.
func (e *Engine) SearchReport(ctx context.Context, q Query) (*Report, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, engramerr.New(engramerr.CodeMemorySearchInvalidInput, "query text must not be empty")
	}
	mode, err := ParseMode(string(q.Mode))
	if err != nil {
		return nil, err
	}
	if err := q.Filters.Validate(); err != nil {
		return nil, engramerr.Wrap(err, engramerr.CodeMemorySearchInvalidInput, "invalid filters")
	}
	k := q.K
	if k <= 0 {
		k = e.limit
	}
	m := k * e.multiplier

	report := &Report{Mode: mode}
	var (
		keyword  map[int64]float64
		semantic map[int64]float64
		embedErr error
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	if mode != ModeSemantic {
		g.Go(func() error {
			hits, err := e.text.Query(gctx, text, q.Filters, m)
			if err != nil {
				return engramerr.Wrap(err, engramerr.CodeStoreTextIndexFailure, "keyword leg")
			}
			keyword = make(map[int64]float64, len(hits))
			for _, h := range hits {
				keyword[h.ID] = h.Score
			}
			return nil
		})
	}
	if mode != ModeKeyword {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, text)
			if err != nil {
				if mode == ModeHybrid && engramerr.IsEmbeddingUnavailable(err) && ctx.Err() == nil {
					embedErr = err
					return nil
				}
				return engramerr.Wrap(err, engramerr.CodeEmbeddingUnavailable, "semantic leg")
			}
			hits, err := e.vectors.Query(gctx, vec, q.Filters, m)
			if err != nil {
				return engramerr.Wrap(err, engramerr.CodeStoreVectorIndexFailure, "semantic leg")
			}
			semantic = make(map[int64]float64, len(hits))
			for _, h := range hits {
				semantic[h.ID] = DistanceToSimilarity(h.Distance)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	weights := e.weights
	switch {
	case mode == ModeSemantic:
		weights = Weights{Semantic: 1}
	case mode == ModeKeyword:
		weights = Weights{Keyword: 1}
	case embedErr != nil:
		weights = Weights{Keyword: 1}
		report.Degraded = true
		report.DegradedReason = embedErr.Error()
		e.logger.Warn("hybrid search degraded to keyword-only",
			"error", embedErr,
		)
	}

	obs, orphans, err := e.hydrate(ctx, q.Filters, semantic, keyword)
	if err != nil {
		return nil, err
	}
	report.Orphans = orphans

	createdAt := make(map[int64]time.Time, len(obs))
	for id, o := range obs {
		createdAt[id] = o.CreatedAt
	}
	fused := Fuse(Normalize(semantic), Normalize(keyword), weights, createdAt)
	if len(fused) > k {
		fused = fused[:k]
	}

	report.Results = make([]Result, 0, len(fused))
	for _, s := range fused {
		report.Results = append(report.Results, Result{
			Observation:   obs[s.ID],
			Score:         s.Score,
			SemanticScore: s.Semantic,
			KeywordScore:  s.Keyword,
		})
	}

	e.logger.Debug("search completed",
		"mode", mode,
		"keyword_hits", len(keyword),
		"semantic_hits", len(semantic),
		"results", len(report.Results),
		"duration", time.Since(start),
	)
	return report, nil
}

// hydrate loads the records behind both legs and drops, from the legs in
// place, any hit whose record is gone or no longer passes filters.
func (e *Engine) hydrate(ctx context.Context, filters store.Filters, legs ...map[int64]float64) (map[int64]*store.Observation, int, error) {
	var ids []int64
	seen := map[int64]struct{}{}
	for _, leg := range legs {
		for id := range leg {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	obs, err := e.records.GetMany(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	orphans := 0
	for _, id := range ids {
		o, ok := obs[id]
		if !ok {
			orphans++
		} else if filters.Matches(store.MetadataOf(o)) {
			continue
		}
		delete(obs, id)
		for _, leg := range legs {
			delete(leg, id)
		}
	}
	if orphans > 0 {
		e.logger.Warn("index entries without records",
			"count", orphans,
		)
	}
	return obs, orphans, nil
}
