// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package hook

import (
	"context"
	"log/slog"

	"github.com/engram-dev/engram/internal/memory"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/google/uuid"
)

// DefaultSessionID holds captures that arrive without a session.
const DefaultSessionID = "manual"

// Result is the outcome of one handled event. Only the field matching the
// event kind is set.
type Result struct {
	Kind          Kind                   `json:"kind"`
	SessionID     string                 `json:"session_id,omitempty"`
	ObservationID int64                  `json:"observation_id,omitempty"`
	Compression   *memory.CompressResult `json:"compression,omitempty"`
	Context       *memory.Injection      `json:"context,omitempty"`
}

// DefaultRetryBatch bounds the pending embeds retried after one event.
const DefaultRetryBatch = 10

// Handler routes events to the memory service.
type Handler struct {
	svc    *memory.Service
	logger *slog.Logger
	newID  func() string
	retry  int
}

func NewHandler(svc *memory.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, newID: uuid.NewString}
}

// RetryPending makes Handle retry up to n due embeds after each event. It is
// for one-shot processes where no reindexer runs in the background.
func (h *Handler) RetryPending(n int) *Handler {
	h.retry = n
	return h
}

// Handle applies ev. A session_start without a session id gets a fresh one,
// returned in the result.
func (h *Handler) Handle(ctx context.Context, ev Event) (*Result, error) {
	res := &Result{Kind: ev.Kind, SessionID: ev.SessionID}

	switch ev.Kind {
	case KindCapture:
		if res.SessionID == "" {
			res.SessionID = DefaultSessionID
		}
		id, err := h.svc.Observations.Write(ctx, memory.WriteRequest{
			Content:   ev.Content,
			Type:      ev.Type,
			SessionID: res.SessionID,
			Project:   ev.Project,
			FileRefs:  ev.FileRefs,
		})
		if err != nil {
			return nil, err
		}
		res.ObservationID = id
		h.logger.Debug("observation captured", "observation_id", id, "session_id", res.SessionID)

	case KindSessionEnd:
		cr, err := h.svc.Compressor.Compress(ctx, ev.SessionID)
		if err != nil {
			return nil, err
		}
		res.Compression = cr

	case KindSessionStart:
		if res.SessionID == "" {
			res.SessionID = h.newID()
		}
		inj, err := h.svc.Injector.Inject(ctx, memory.InjectRequest{
			SessionID: res.SessionID,
			Project:   ev.Project,
			Query:     ev.Query,
		})
		if err != nil {
			return nil, err
		}
		res.Context = inj

	default:
		return nil, engramerr.Errorf(engramerr.CodeHookEventInvalid, "unknown hook event %q", ev.Kind)
	}

	h.retryPending(ctx)
	return res, nil
}

// retryPending never fails the event; a marker that still fails stays queued.
func (h *Handler) retryPending(ctx context.Context) {
	if h.retry <= 0 {
		return
	}
	dr, err := h.svc.Reindexer.DrainN(ctx, h.retry)
	if err != nil {
		h.logger.Warn("retrying pending embeddings", "error", err)
		return
	}
	if dr.Indexed > 0 || dr.Failed > 0 {
		h.logger.Debug("pending embeddings retried", "indexed", dr.Indexed, "failed", dr.Failed)
	}
}
