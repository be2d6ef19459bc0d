// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/internal/summarize"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const (
	DefaultCompressThreshold    = 5
	DefaultMaxSourcesPerSummary = 50
)

// CompressorConfig tunes a Compressor.
type CompressorConfig struct {
	// Threshold is the fewest active observations worth compressing.
	Threshold int
	// MaxSourcesPerSummary splits large sessions into several summaries.
	MaxSourcesPerSummary int
	Logger               *slog.Logger
}

// CompressResult describes one compression pass.
type CompressResult struct {
	SessionID  string  `json:"session_id"`
	SummaryIDs []int64 `json:"summary_ids"`
	SourceIDs  []int64 `json:"source_ids"`
	// Skipped is set when the session had too few active observations.
	Skipped bool `json:"skipped"`
	// Repaired lists summaries whose unfinished supersession was completed.
	Repaired []int64 `json:"repaired,omitempty"`
}

// Compressor folds a session's observations into summaries. Passes over the
// same session run one at a time.
type Compressor struct {
	store      *ObservationStore
	summarizer summarize.Summarizer
	lanes      *LanePool
	threshold  int
	chunk      int
	logger     *slog.Logger
}

func NewCompressor(s *ObservationStore, summarizer summarize.Summarizer, cfg CompressorConfig) (*Compressor, error) {
	if s == nil || summarizer == nil {
		return nil, engramerr.New(engramerr.CodeSummarizeConfigInvalid, "compressor needs a store and a summarizer")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCompressThreshold
	}
	if cfg.MaxSourcesPerSummary <= 0 {
		cfg.MaxSourcesPerSummary = DefaultMaxSourcesPerSummary
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Compressor{
		store:      s,
		summarizer: summarizer,
		lanes:      NewLanePool(cfg.Logger),
		threshold:  cfg.Threshold,
		chunk:      cfg.MaxSourcesPerSummary,
		logger:     cfg.Logger,
	}, nil
}

// Compress summarizes the active observations of sessionID and supersedes
// them. Sessions below the threshold are skipped. A pass interrupted after a
// summary was written is finished by the next call instead of summarizing
// again.
func (c *Compressor) Compress(ctx context.Context, sessionID string) (*CompressResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, engramerr.New(engramerr.CodeMemoryWriteInvalidInput, "session id is required")
	}

	// The lane may still be running the task after Do returns on a canceled
	// context, so the result comes back over a channel.
	out := make(chan *CompressResult, 1)
	err := c.lanes.Do(ctx, sessionID, func(ctx context.Context) error {
		result, err := c.compress(ctx, sessionID)
		out <- result
		return err
	})
	select {
	case result := <-out:
		return result, err
	default:
		return nil, err
	}
}

func (c *Compressor) compress(ctx context.Context, sessionID string) (*CompressResult, error) {
	result := &CompressResult{SessionID: sessionID}

	all, err := c.store.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var sources, summaries []*store.Observation
	for _, o := range all {
		if o.Status != store.StatusActive {
			continue
		}
		if o.Type == store.TypeSummary {
			summaries = append(summaries, o)
		} else {
			sources = append(sources, o)
		}
	}

	sources, err = c.repair(ctx, summaries, sources, result)
	if err != nil {
		return result, err
	}

	if len(sources) == 0 || len(sources) < c.threshold {
		result.Skipped = len(result.Repaired) == 0
		c.logger.Debug("compression skipped",
			"session_id", sessionID,
			"active", len(sources),
			"threshold", c.threshold,
		)
		return result, nil
	}

	for chunk := range slices.Chunk(sources, c.chunk) {
		id, err := c.summarizeChunk(ctx, chunk)
		if id != 0 {
			result.SummaryIDs = append(result.SummaryIDs, id)
		}
		if err != nil {
			return result, err
		}
		result.SourceIDs = append(result.SourceIDs, idsOf(chunk)...)
	}

	c.logger.Info("session compressed",
		"session_id", sessionID,
		"sources", len(result.SourceIDs),
		"summaries", len(result.SummaryIDs),
	)
	return result, nil
}

// repair re-applies supersession for summaries whose sources are still
// active and returns the sources no summary covers.
func (c *Compressor) repair(ctx context.Context, summaries, sources []*store.Observation, result *CompressResult) ([]*store.Observation, error) {
	if len(summaries) == 0 {
		return sources, nil
	}

	active := make(map[int64]bool, len(sources))
	for _, o := range sources {
		active[o.ID] = true
	}

	for _, s := range summaries {
		var pending []int64
		for _, id := range s.SourceIDs {
			if active[id] {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			continue
		}
		if err := c.store.MarkSuperseded(ctx, pending, s.ID); err != nil {
			return nil, engramerr.Wrapf(err, engramerr.CodeMemoryCompressFailure,
				"repairing supersession of summary %d", s.ID)
		}
		for _, id := range pending {
			delete(active, id)
		}
		result.Repaired = append(result.Repaired, s.ID)
		c.logger.Warn("completed interrupted compression",
			"summary_id", s.ID,
			"sources", len(pending),
		)
	}

	return slices.DeleteFunc(sources, func(o *store.Observation) bool { return !active[o.ID] }), nil
}

func (c *Compressor) summarizeChunk(ctx context.Context, chunk []*store.Observation) (int64, error) {
	batch := make([]store.Observation, len(chunk))
	for i, o := range chunk {
		batch[i] = *o
	}

	text, err := c.summarizer.Summarize(ctx, batch)
	if err != nil {
		return 0, engramerr.Wrapf(err, engramerr.CodeMemoryCompressFailure, "summarizing with %s", c.summarizer.Name())
	}

	ids := idsOf(chunk)
	first := chunk[0]
	summaryID, err := c.store.Write(ctx, WriteRequest{
		Content:   text,
		Type:      string(store.TypeSummary),
		SessionID: first.SessionID,
		Project:   first.Project,
		SourceIDs: ids,
	})
	if err != nil {
		return 0, engramerr.Wrap(err, engramerr.CodeMemoryCompressFailure, "writing summary")
	}

	if err := c.store.MarkSuperseded(ctx, ids, summaryID); err != nil {
		return summaryID, engramerr.Wrapf(err, engramerr.CodeMemoryCompressFailure,
			"superseding sources of summary %d", summaryID)
	}
	return summaryID, nil
}

// Close stops the per-session lanes.
func (c *Compressor) Close() {
	c.lanes.Close()
}

func idsOf(obs []*store.Observation) []int64 {
	ids := make([]int64, len(obs))
	for i, o := range obs {
		ids[i] = o.ID
	}
	return ids
}
