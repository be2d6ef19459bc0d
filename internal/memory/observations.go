// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/engram-dev/engram/internal/embedding"
	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// WritePolicy decides when a new observation is embedded.
type WritePolicy string

const (
	// PolicySync embeds before Write returns. A failed embed is left queued
	// for the reindexer and is not reported to the caller.
	PolicySync WritePolicy = "sync"
	// PolicyAsync returns as soon as the record is stored and embeds in the
	// background.
	PolicyAsync WritePolicy = "async"
)

const DefaultRetryInterval = time.Minute

// ParseWritePolicy maps "" to PolicySync.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch p := WritePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicySync, nil
	case PolicySync, PolicyAsync:
		return p, nil
	default:
		return "", engramerr.Errorf(engramerr.CodeConfigValidateInvalidValue, "unknown indexing policy %q", s)
	}
}

// WriteRequest carries a new observation.
type WriteRequest struct {
	Content   string
	Type      string
	SessionID string
	Project   string
	FileRefs  []string
	// SourceIDs is only accepted for summaries.
	SourceIDs []int64
}

// Redactor rewrites content before it is stored. An error refuses the write.
type Redactor interface {
	Redact(content string) (string, error)
}

// ObservationStoreConfig tunes an ObservationStore.
type ObservationStoreConfig struct {
	Policy WritePolicy
	// RetryInterval delays the first retry of a failed embed.
	RetryInterval time.Duration
	// Redactor is optional.
	Redactor Redactor
	Logger   *slog.Logger
}

// ObservationStore owns the write path. It is the only component that changes
// the text or vector index, so both stay keyed to the records it holds.
type ObservationStore struct {
	records  store.RecordStore
	text     store.TextIndex
	vectors  store.VectorIndex
	queue    store.EmbeddingQueue
	embedder embedding.Embedder
	redactor Redactor

	policy        WritePolicy
	retryInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	inflight sync.WaitGroup
}

func NewObservationStore(stores *store.Stores, embedder embedding.Embedder, cfg ObservationStoreConfig) (*ObservationStore, error) {
	if stores == nil || stores.Records == nil || stores.Text == nil || stores.Vectors == nil || stores.Queue == nil {
		return nil, engramerr.New(engramerr.CodeStoreInvalidInput, "observation store needs records, indexes and queue")
	}
	if embedder == nil {
		return nil, engramerr.New(engramerr.CodeEmbeddingConfigInvalid, "observation store needs an embedder")
	}
	if embedder.Dimensions() != stores.Vectors.Dimensions() {
		return nil, engramerr.Errorf(engramerr.CodeStoreVectorDimensionInvalid,
			"embedder %s produces %d dimensions but the vector index holds %d",
			embedder.Name(), embedder.Dimensions(), stores.Vectors.Dimensions())
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicySync
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ObservationStore{
		records:       stores.Records,
		text:          stores.Text,
		vectors:       stores.Vectors,
		queue:         stores.Queue,
		embedder:      embedder,
		redactor:      cfg.Redactor,
		policy:        cfg.Policy,
		retryInterval: cfg.RetryInterval,
		logger:        cfg.Logger,
		now:           time.Now,
	}, nil
}

// Write validates and persists a new observation and returns its id. The
// record and its keyword entry are committed together; the vector follows
// according to the write policy.
func (s *ObservationStore) Write(ctx context.Context, req WriteRequest) (int64, error) {
	o, err := s.validate(req)
	if err != nil {
		return 0, err
	}
	if err := s.checkSources(ctx, o.SourceIDs); err != nil {
		return 0, err
	}

	id, err := s.records.Insert(ctx, o)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("observation written",
		"observation_id", id,
		"session_id", o.SessionID,
		"type", o.Type,
	)

	switch s.policy {
	case PolicyAsync:
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.embedOrDefer(context.WithoutCancel(ctx), o)
		}()
	default:
		s.embedOrDefer(ctx, o)
	}
	return id, nil
}

func (s *ObservationStore) validate(req WriteRequest) (*store.Observation, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, engramerr.New(engramerr.CodeMemoryWriteInvalidInput, "content must not be empty")
	}
	if s.redactor != nil {
		var err error
		if content, err = s.redactor.Redact(content); err != nil {
			return nil, engramerr.Wrap(err, engramerr.CodeMemoryWriteInvalidInput, "content refused")
		}
	}
	typ, err := store.ParseObservationType(req.Type)
	if err != nil {
		return nil, engramerr.Wrap(err, engramerr.CodeMemoryWriteInvalidInput, "invalid observation type")
	}
	if typ == store.TypeSummary && len(req.SourceIDs) == 0 {
		return nil, engramerr.New(engramerr.CodeMemoryWriteInvalidInput, "summary must list its source ids")
	}
	if typ != store.TypeSummary && len(req.SourceIDs) > 0 {
		return nil, engramerr.New(engramerr.CodeMemoryWriteInvalidInput, "only summaries carry source ids")
	}

	return &store.Observation{
		Content:   content,
		Type:      typ,
		SessionID: strings.TrimSpace(req.SessionID),
		Project:   strings.TrimSpace(req.Project),
		FileRefs:  req.FileRefs,
		Status:    store.StatusActive,
		SourceIDs: req.SourceIDs,
	}, nil
}

// checkSources rejects provenance that points at records that do not exist.
func (s *ObservationStore) checkSources(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.records.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return engramerr.New(engramerr.CodeMemoryWriteInvalidInput, "summary sources do not exist",
			engramerr.Field("missing_ids", missing))
	}
	return nil
}

// embedOrDefer indexes the vector of o. On failure the pending marker written
// with the record stays, rescheduled for the reindexer.
func (s *ObservationStore) embedOrDefer(ctx context.Context, o *store.Observation) {
	err := s.index(ctx, o)
	if err == nil {
		return
	}

	s.logger.Warn("embedding deferred",
		"observation_id", o.ID,
		"error", err,
	)
	if qerr := s.queue.Fail(ctx, o.ID, err.Error(), s.now().Add(s.retryInterval)); qerr != nil {
		// The marker is still due immediately, so the reindexer picks it up.
		s.logger.Warn("rescheduling pending embedding",
			"observation_id", o.ID,
			"error", qerr,
		)
	}
}

// index embeds o, upserts its vector and clears its pending marker.
func (s *ObservationStore) index(ctx context.Context, o *store.Observation) error {
	vec, err := s.embedder.Embed(ctx, o.Content)
	if err != nil {
		return err
	}
	if err := s.vectors.Upsert(ctx, o.ID, vec, store.MetadataOf(o)); err != nil {
		return err
	}
	return s.queue.Done(ctx, o.ID)
}

// Wait blocks until background embeds started by Write have finished.
func (s *ObservationStore) Wait() {
	s.inflight.Wait()
}

func (s *ObservationStore) Read(ctx context.Context, id int64) (*store.Observation, error) {
	return s.records.Get(ctx, id)
}

// ReadSession returns every record of a session, oldest first.
func (s *ObservationStore) ReadSession(ctx context.Context, sessionID string) ([]*store.Observation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, engramerr.New(engramerr.CodeMemorySearchInvalidInput, "session id is required")
	}
	return s.records.ListSession(ctx, sessionID)
}

// Recent returns the newest records passing filters.
func (s *ObservationStore) Recent(ctx context.Context, filters store.Filters, limit int) ([]*store.Observation, error) {
	if err := filters.Validate(); err != nil {
		return nil, engramerr.Wrap(err, engramerr.CodeMemorySearchInvalidInput, "invalid filters")
	}
	return s.records.ListRecent(ctx, filters, limit)
}

// MarkSuperseded retires ids in favour of summaryID. Nothing changes when any
// id is unknown; ids already superseded are left as they are.
func (s *ObservationStore) MarkSuperseded(ctx context.Context, ids []int64, summaryID int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.records.Get(ctx, summaryID); err != nil {
		return err
	}
	if err := s.records.MarkSuperseded(ctx, ids, summaryID); err != nil {
		return err
	}

	// Search re-checks status against the records, so a stale vector entry
	// only costs a candidate slot until the reindexer catches up.
	if err := s.vectors.SetStatus(ctx, ids, store.StatusSuperseded); err != nil {
		s.logger.Warn("updating vector status",
			"summary_id", summaryID,
			"error", err,
		)
	}
	return nil
}

// Delete removes the record with both index entries. Deleting an unknown id
// is a no-op, so a failed delete can simply be retried.
func (s *ObservationStore) Delete(ctx context.Context, id int64) error {
	existed, err := s.records.Delete(ctx, id)
	if err != nil {
		return err
	}
	if err := s.vectors.Remove(ctx, id); err != nil {
		return err
	}
	if existed {
		s.logger.Debug("observation deleted", "observation_id", id)
	}
	return nil
}

func (s *ObservationStore) Sessions(ctx context.Context, limit int) ([]store.SessionInfo, error) {
	return s.records.Sessions(ctx, limit)
}

// Stats counts records, vectors and pending embeds.
func (s *ObservationStore) Stats(ctx context.Context) (store.Stats, error) {
	st, err := s.records.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.Vectors, err = s.vectors.Count(ctx)
	return st, err
}
