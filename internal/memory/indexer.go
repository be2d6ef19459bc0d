// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory

import (
	"context"
	"log/slog"
	"time"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const (
	DefaultMaxAttempts = 8
	DefaultBatchSize   = 50
	maxRetryBackoff    = time.Hour
)

// ReindexerConfig tunes a Reindexer.
type ReindexerConfig struct {
	// Interval is the pause between drain passes and the base retry backoff.
	Interval time.Duration
	// MaxAttempts is how many failures an embed may accumulate before it is
	// reported as stuck. Stuck embeds keep being retried at the longest backoff.
	MaxAttempts int
	BatchSize   int
	Logger      *slog.Logger
}

// DrainResult counts the outcome of one pass over the pending queue.
type DrainResult struct {
	Indexed   int `json:"indexed"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// RepairReport describes what a consistency check found and fixed.
type RepairReport struct {
	OrphanVectors  []int64 `json:"orphan_vectors,omitempty"`
	MissingVectors []int64 `json:"missing_vectors,omitempty"`
	TextRebuilt    bool    `json:"text_rebuilt"`
}

// Consistent reports whether the check found nothing to fix.
func (r RepairReport) Consistent() bool {
	return len(r.OrphanVectors) == 0 && len(r.MissingVectors) == 0 && !r.TextRebuilt
}

// IndexHealth is the state of the vector backlog.
type IndexHealth struct {
	Pending int `json:"pending"`
	// Stuck counts embeds that reached MaxAttempts.
	Stuck     int    `json:"stuck"`
	LastError string `json:"last_error,omitempty"`
	Degraded  bool   `json:"degraded"`
}

// Reindexer retries embeds that failed at write time and repairs drift
// between the records and the indexes.
type Reindexer struct {
	store       *ObservationStore
	interval    time.Duration
	maxAttempts int
	batch       int
	logger      *slog.Logger
}

func NewReindexer(s *ObservationStore, cfg ReindexerConfig) *Reindexer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRetryInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reindexer{
		store:       s,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		batch:       cfg.BatchSize,
		logger:      cfg.Logger,
	}
}

// Run drains the queue every interval until ctx ends.
func (r *Reindexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("draining pending embeddings", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Drain embeds every due pending observation once, up to the batch size. It
// stops early when the embedding model is unavailable, leaving the rest for
// the next pass.
func (r *Reindexer) Drain(ctx context.Context) (DrainResult, error) {
	return r.DrainN(ctx, r.batch)
}

// DrainN is Drain with an explicit limit.
func (r *Reindexer) DrainN(ctx context.Context, limit int) (DrainResult, error) {
	var res DrainResult
	s := r.store
	if limit <= 0 {
		limit = r.batch
	}

	due, err := s.queue.Due(ctx, s.now(), limit)
	if err != nil {
		return res, err
	}

	for i, p := range due {
		o, err := s.records.Get(ctx, p.ObservationID)
		if engramerr.IsNotFound(err) {
			if err := s.queue.Done(ctx, p.ObservationID); err != nil {
				return res, err
			}
			res.Dropped++
			continue
		}
		if err != nil {
			return res, err
		}

		if err := s.index(ctx, o); err != nil {
			res.Failed++
			next := s.now().Add(r.backoff(p.Attempts + 1))
			if qerr := s.queue.Fail(ctx, o.ID, err.Error(), next); qerr != nil {
				return res, qerr
			}
			if p.Attempts+1 == r.maxAttempts {
				r.logger.Warn("embedding stuck",
					"observation_id", o.ID,
					"attempts", p.Attempts+1,
					"error", err,
				)
			}
			if engramerr.IsEmbeddingUnavailable(err) {
				// Later markers would fail the same way.
				res.Remaining = len(due) - i - 1
				break
			}
			continue
		}
		res.Indexed++
	}

	if res.Indexed > 0 || res.Failed > 0 {
		r.logger.Info("pending embeddings drained",
			"indexed", res.Indexed,
			"failed", res.Failed,
			"dropped", res.Dropped,
		)
	}
	return res, nil
}

// DrainAll drains until nothing is due or a pass makes no progress.
func (r *Reindexer) DrainAll(ctx context.Context) (DrainResult, error) {
	var total DrainResult
	for {
		res, err := r.Drain(ctx)
		total.Indexed += res.Indexed
		total.Failed += res.Failed
		total.Dropped += res.Dropped
		total.Remaining = res.Remaining
		if err != nil || res.Indexed+res.Dropped == 0 || res.Failed > 0 {
			return total, err
		}
	}
}

// backoff doubles the interval per attempt up to an hour.
func (r *Reindexer) backoff(attempt int) time.Duration {
	d := r.interval
	for i := 1; i < attempt && d < maxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, maxRetryBackoff)
}

// Repair compares the records with both indexes. Vector entries without a
// record are removed, records without a vector are queued for embedding, and
// a text index that fails its integrity check is rebuilt.
func (r *Reindexer) Repair(ctx context.Context) (RepairReport, error) {
	var rep RepairReport
	s := r.store

	recordIDs, err := s.records.IDs(ctx)
	if err != nil {
		return rep, err
	}
	vectorIDs, err := s.vectors.IDs(ctx)
	if err != nil {
		return rep, err
	}

	records := make(map[int64]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		records[id] = struct{}{}
	}
	vectors := make(map[int64]struct{}, len(vectorIDs))
	for _, id := range vectorIDs {
		vectors[id] = struct{}{}
		if _, ok := records[id]; !ok {
			rep.OrphanVectors = append(rep.OrphanVectors, id)
		}
	}
	for _, id := range recordIDs {
		if _, ok := vectors[id]; !ok {
			rep.MissingVectors = append(rep.MissingVectors, id)
		}
	}

	if len(rep.OrphanVectors) > 0 {
		if err := s.vectors.Remove(ctx, rep.OrphanVectors...); err != nil {
			return rep, err
		}
	}
	for _, id := range rep.MissingVectors {
		if err := s.queue.Enqueue(ctx, id); err != nil {
			return rep, err
		}
	}

	if err := s.text.Verify(ctx); err != nil {
		if !engramerr.IsInconsistent(err) {
			return rep, err
		}
		r.logger.Warn("text index inconsistent, rebuilding", "error", err)
		if err := s.text.Rebuild(ctx); err != nil {
			return rep, err
		}
		rep.TextRebuilt = true
	}

	if !rep.Consistent() {
		r.logger.Warn("index inconsistencies repaired",
			"orphan_vectors", len(rep.OrphanVectors),
			"missing_vectors", len(rep.MissingVectors),
			"text_rebuilt", rep.TextRebuilt,
		)
	}
	return rep, nil
}

// Health reports the vector backlog. The index is degraded while any embed
// is stuck.
func (r *Reindexer) Health(ctx context.Context) (IndexHealth, error) {
	var h IndexHealth
	s := r.store

	n, err := s.queue.Len(ctx)
	if err != nil {
		return h, err
	}
	h.Pending = n

	// A far-future cutoff lists every marker regardless of schedule.
	all, err := s.queue.Due(ctx, s.now().Add(100*365*24*time.Hour), n+1)
	if err != nil {
		return h, err
	}
	for _, p := range all {
		if p.Attempts >= r.maxAttempts {
			h.Stuck++
		}
		if p.LastError != "" {
			h.LastError = p.LastError
		}
	}
	h.Degraded = h.Stuck > 0
	return h, nil
}
