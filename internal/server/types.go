// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package server

import (
	"time"

	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/pkg/health"
)

// ObservationBody is the wire form of an observation.
type ObservationBody struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	Type         string    `json:"type"`
	SessionID    string    `json:"session_id"`
	Project      string    `json:"project,omitempty"`
	FileRefs     []string  `json:"file_refs,omitempty"`
	TokenCount   int       `json:"token_count"`
	CreatedAt    time.Time `json:"created_at"`
	Status       string    `json:"status"`
	SupersededBy int64     `json:"superseded_by,omitempty"`
	SourceIDs    []int64   `json:"source_ids,omitempty"`
}

func toObservationBody(o *store.Observation) ObservationBody {
	return ObservationBody{
		ID:           o.ID,
		Content:      o.Content,
		Type:         string(o.Type),
		SessionID:    o.SessionID,
		Project:      o.Project,
		FileRefs:     o.FileRefs,
		TokenCount:   o.TokenCount,
		CreatedAt:    o.CreatedAt,
		Status:       string(o.Status),
		SupersededBy: o.SupersededBy,
		SourceIDs:    o.SourceIDs,
	}
}

func toObservationBodies(obs []*store.Observation) []ObservationBody {
	out := make([]ObservationBody, 0, len(obs))
	for _, o := range obs {
		out = append(out, toObservationBody(o))
	}
	return out
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Observation   ObservationBody `json:"observation"`
	Score         float64         `json:"score"`
	SemanticScore float64         `json:"semantic_score"`
	KeywordScore  float64         `json:"keyword_score"`
}

// SearchBody is the search response.
type SearchBody struct {
	Results        []SearchHit `json:"results"`
	Mode           string      `json:"mode"`
	Degraded       bool        `json:"degraded"`
	DegradedReason string      `json:"degraded_reason,omitempty"`
	Orphans        int         `json:"orphans,omitempty"`
}

func toSearchBody(r *memory.Report) SearchBody {
	hits := make([]SearchHit, 0, len(r.Results))
	for _, res := range r.Results {
		hits = append(hits, SearchHit{
			Observation:   toObservationBody(res.Observation),
			Score:         res.Score,
			SemanticScore: res.SemanticScore,
			KeywordScore:  res.KeywordScore,
		})
	}
	return SearchBody{
		Results:        hits,
		Mode:           string(r.Mode),
		Degraded:       r.Degraded,
		DegradedReason: r.DegradedReason,
		Orphans:        r.Orphans,
	}
}

// SessionBody summarises one session.
type SessionBody struct {
	ID           string    `json:"id"`
	Project      string    `json:"project,omitempty"`
	Observations int       `json:"observations"`
	Active       int       `json:"active"`
	Summaries    int       `json:"summaries"`
	FirstAt      time.Time `json:"first_at"`
	LastAt       time.Time `json:"last_at"`
}

// StatsBody counts what the storage root holds.
type StatsBody struct {
	Observations int `json:"observations"`
	Active       int `json:"active"`
	Superseded   int `json:"superseded"`
	Summaries    int `json:"summaries"`
	Vectors      int `json:"vectors"`
	Pending      int `json:"pending"`
	Sessions     int `json:"sessions"`
}

// EmbedderBody reports the embedding model.
type EmbedderBody struct {
	Name   string         `json:"name"`
	Health health.Metrics `json:"health"`
}

// StatusBody is the /status response.
type StatusBody struct {
	Stats    StatsBody          `json:"stats"`
	Index    memory.IndexHealth `json:"index"`
	Embedder *EmbedderBody      `json:"embedder,omitempty"`
}
