// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/engram-dev/engram/internal/hook"
	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// WriteInput is the body of a new observation.
type WriteInput struct {
	Body struct {
		Content   string   `json:"content" minLength:"1" doc:"Observation text"`
		Type      string   `json:"type,omitempty" doc:"Observation type, defaults to observation"`
		SessionID string   `json:"session_id,omitempty" doc:"Session the observation belongs to"`
		Project   string   `json:"project,omitempty"`
		FileRefs  []string `json:"file_refs,omitempty"`
	}
}

// WriteOutput returns the id of a stored observation.
type WriteOutput struct {
	Body struct {
		ID int64 `json:"id"`
	}
}

// ObservationIDInput selects an observation by id.
type ObservationIDInput struct {
	ID int64 `path:"id" minimum:"1"`
}

// ObservationOutput wraps a single observation.
type ObservationOutput struct {
	Body ObservationBody
}

// ListSessionsInput pages the session list.
type ListSessionsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"1000"`
}

// ListSessionsOutput lists sessions, most recent first.
type ListSessionsOutput struct {
	Body struct {
		Sessions []SessionBody `json:"sessions"`
	}
}

// SessionIDInput selects a session.
type SessionIDInput struct {
	SessionID string `path:"sessionId" minLength:"1"`
}

// SessionObservationsOutput lists the records of a session.
type SessionObservationsOutput struct {
	Body struct {
		Observations []ObservationBody `json:"observations"`
	}
}

// SearchInput is a retrieval query.
type SearchInput struct {
	Body struct {
		Query             string    `json:"query" minLength:"1"`
		Mode              string    `json:"mode,omitempty" enum:"hybrid,semantic,keyword" doc:"Retrieval mode, defaults to hybrid"`
		Limit             int       `json:"limit,omitempty" minimum:"0" maximum:"200"`
		Types             []string  `json:"types,omitempty"`
		SessionID         string    `json:"session_id,omitempty"`
		Project           string    `json:"project,omitempty"`
		Since             time.Time `json:"since,omitempty"`
		Until             time.Time `json:"until,omitempty"`
		IncludeSuperseded bool      `json:"include_superseded,omitempty"`
	}
}

// SearchOutput is the ranked result list.
type SearchOutput struct {
	Body SearchBody
}

// CompressOutput reports a compression run.
type CompressOutput struct {
	Body *memory.CompressResult
}

// ContextInput asks for session-start context.
type ContextInput struct {
	Body memory.InjectRequest
}

// ContextOutput is the rendered context block.
type ContextOutput struct {
	Body *memory.Injection
}

// HookInput carries a raw host hook payload.
type HookInput struct {
	Event   string `path:"event" doc:"capture, session_end or session_start"`
	RawBody []byte
}

// HookOutput reports what the hook did.
type HookOutput struct {
	Body *hook.Result
}

// StatusOutput reports store, index and embedder state.
type StatusOutput struct {
	Body StatusBody
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "write-observation",
		Method:        http.MethodPost,
		Path:          "/api/v1/observations",
		Summary:       "Store an observation",
		Tags:          []string{"observations"},
		DefaultStatus: http.StatusCreated,
	}, s.handleWrite)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-observation",
		Method:      http.MethodGet,
		Path:        "/api/v1/observations/{id}",
		Summary:     "Get an observation",
		Tags:        []string{"observations"},
	}, s.handleRead)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-observation",
		Method:        http.MethodDelete,
		Path:          "/api/v1/observations/{id}",
		Summary:       "Delete an observation",
		Tags:          []string{"observations"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDelete)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-session-observations",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{sessionId}/observations",
		Summary:     "List the observations of a session",
		Tags:        []string{"sessions"},
	}, s.handleSessionObservations)

	huma.Register(s.api, huma.Operation{
		OperationID: "compress-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{sessionId}/compress",
		Summary:     "Compress a session into summaries",
		Tags:        []string{"sessions"},
	}, s.handleCompress)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Search observations",
		Tags:        []string{"retrieval"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "session-context",
		Method:      http.MethodPost,
		Path:        "/api/v1/context",
		Summary:     "Build session-start context",
		Tags:        []string{"retrieval"},
	}, s.handleContext)

	huma.Register(s.api, huma.Operation{
		OperationID: "hook-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/hooks/{event}",
		Summary:     "Handle a host hook event",
		Tags:        []string{"hooks"},
	}, s.handleHook)

	huma.Register(s.api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Store and index status",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

func (s *Server) handleWrite(ctx context.Context, input *WriteInput) (*WriteOutput, error) {
	sessionID := input.Body.SessionID
	if sessionID == "" {
		sessionID = hook.DefaultSessionID
	}
	id, err := s.svc.Observations.Write(ctx, memory.WriteRequest{
		Content:   input.Body.Content,
		Type:      input.Body.Type,
		SessionID: sessionID,
		Project:   input.Body.Project,
		FileRefs:  input.Body.FileRefs,
	})
	if err != nil {
		return nil, s.apiError(err, "write")
	}
	out := &WriteOutput{}
	out.Body.ID = id
	return out, nil
}

func (s *Server) handleRead(ctx context.Context, input *ObservationIDInput) (*ObservationOutput, error) {
	o, err := s.svc.Observations.Read(ctx, input.ID)
	if err != nil {
		return nil, s.apiError(err, "read")
	}
	return &ObservationOutput{Body: toObservationBody(o)}, nil
}

func (s *Server) handleDelete(ctx context.Context, input *ObservationIDInput) (*struct{}, error) {
	if err := s.svc.Observations.Delete(ctx, input.ID); err != nil {
		return nil, s.apiError(err, "delete")
	}
	return nil, nil
}

func (s *Server) handleListSessions(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	sessions, err := s.svc.Observations.Sessions(ctx, input.Limit)
	if err != nil {
		return nil, s.apiError(err, "sessions")
	}
	out := &ListSessionsOutput{}
	out.Body.Sessions = make([]SessionBody, 0, len(sessions))
	for _, si := range sessions {
		out.Body.Sessions = append(out.Body.Sessions, SessionBody{
			ID:           si.ID,
			Project:      si.Project,
			Observations: si.Observations,
			Active:       si.Active,
			Summaries:    si.Summaries,
			FirstAt:      si.FirstAt,
			LastAt:       si.LastAt,
		})
	}
	return out, nil
}

func (s *Server) handleSessionObservations(ctx context.Context, input *SessionIDInput) (*SessionObservationsOutput, error) {
	obs, err := s.svc.Observations.ReadSession(ctx, input.SessionID)
	if err != nil {
		return nil, s.apiError(err, "session observations")
	}
	out := &SessionObservationsOutput{}
	out.Body.Observations = toObservationBodies(obs)
	return out, nil
}

func (s *Server) handleCompress(ctx context.Context, input *SessionIDInput) (*CompressOutput, error) {
	result, err := s.svc.Compressor.Compress(ctx, input.SessionID)
	if err != nil {
		return nil, s.apiError(err, "compress")
	}
	return &CompressOutput{Body: result}, nil
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	mode, err := memory.ParseMode(input.Body.Mode)
	if err != nil {
		return nil, s.apiError(err, "search")
	}
	types, err := store.ParseObservationTypes(input.Body.Types)
	if err != nil {
		return nil, s.apiError(engramerr.Wrap(err, engramerr.CodeMemorySearchInvalidInput, "invalid type filter"), "search")
	}

	report, err := s.svc.Engine.SearchReport(ctx, memory.Query{
		Text: input.Body.Query,
		Mode: mode,
		K:    input.Body.Limit,
		Filters: store.Filters{
			Types:             types,
			SessionID:         input.Body.SessionID,
			Project:           input.Body.Project,
			Since:             input.Body.Since,
			Until:             input.Body.Until,
			IncludeSuperseded: input.Body.IncludeSuperseded,
		},
	})
	if err != nil {
		return nil, s.apiError(err, "search")
	}
	return &SearchOutput{Body: toSearchBody(report)}, nil
}

func (s *Server) handleContext(ctx context.Context, input *ContextInput) (*ContextOutput, error) {
	inj, err := s.svc.Injector.Inject(ctx, input.Body)
	if err != nil {
		return nil, s.apiError(err, "context")
	}
	return &ContextOutput{Body: inj}, nil
}

func (s *Server) handleHook(ctx context.Context, input *HookInput) (*HookOutput, error) {
	kind, err := hook.ParseKind(input.Event)
	if err != nil {
		return nil, s.apiError(err, "hook")
	}
	ev, err := hook.Parse(kind, input.RawBody)
	if err != nil {
		return nil, s.apiError(err, "hook")
	}
	result, err := s.hooks.Handle(ctx, ev)
	if err != nil {
		return nil, s.apiError(err, "hook")
	}
	return &HookOutput{Body: result}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*StatusOutput, error) {
	stats, err := s.svc.Observations.Stats(ctx)
	if err != nil {
		return nil, s.apiError(err, "status")
	}
	idx, err := s.svc.Reindexer.Health(ctx)
	if err != nil {
		return nil, s.apiError(err, "status")
	}

	out := &StatusOutput{Body: StatusBody{
		Stats: StatsBody{
			Observations: stats.Observations,
			Active:       stats.Active,
			Superseded:   stats.Superseded,
			Summaries:    stats.Summaries,
			Vectors:      stats.Vectors,
			Pending:      stats.Pending,
			Sessions:     stats.Sessions,
		},
		Index: idx,
	}}
	if s.embedder != nil {
		out.Body.Embedder = &EmbedderBody{Name: s.embedder.Name(), Health: s.embedder.Health()}
	}
	return out, nil
}
