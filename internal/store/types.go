// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package store

import (
	"slices"
	"time"
)

// ObservationType is the closed set of tags an observation can carry.
type ObservationType string

const (
	TypeObservation ObservationType = "observation"
	TypeDecision    ObservationType = "decision"
	TypeSummary     ObservationType = "summary"
	TypeBugfix      ObservationType = "bugfix"
	TypeFeature     ObservationType = "feature"
	TypeRefactor    ObservationType = "refactor"
	TypeDiscovery   ObservationType = "discovery"
)

// ObservationTypes lists every accepted tag in display order.
var ObservationTypes = []ObservationType{
	TypeObservation,
	TypeDecision,
	TypeSummary,
	TypeBugfix,
	TypeFeature,
	TypeRefactor,
	TypeDiscovery,
}

// Status is the lifecycle state of an observation.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
)

// Observation is one captured unit of session knowledge. Content and
// CreatedAt never change after the record is written; only Status and
// SupersededBy move when a summary absorbs the record.
type Observation struct {
	ID           int64           `json:"id"`
	Content      string          `json:"content"`
	Type         ObservationType `json:"type"`
	SessionID    string          `json:"session_id"`
	Project      string          `json:"project,omitempty"`
	FileRefs     []string        `json:"file_refs,omitempty"`
	TokenCount   int             `json:"token_count"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       Status          `json:"status"`
	SupersededBy int64           `json:"superseded_by,omitempty"` // summary id, zero while active
	SourceIDs    []int64         `json:"source_ids,omitempty"`    // summaries only
}

// Metadata is the subset of an observation the indexes keep alongside each
// entry so filters can be evaluated inside the index.
type Metadata struct {
	Type      ObservationType
	SessionID string
	Project   string
	CreatedAt time.Time
	Status    Status
}

// MetadataOf extracts the index metadata of o.
func MetadataOf(o *Observation) Metadata {
	return Metadata{
		Type:      o.Type,
		SessionID: o.SessionID,
		Project:   o.Project,
		CreatedAt: o.CreatedAt,
		Status:    o.Status,
	}
}

// Filters restrict which observations a query may return. Zero values mean
// "no restriction" except IncludeSuperseded, which defaults to excluding
// superseded records.
type Filters struct {
	Types             []ObservationType
	SessionID         string
	Project           string
	Since             time.Time // inclusive
	Until             time.Time // exclusive
	IncludeSuperseded bool
}

// Matches reports whether an entry with metadata m passes f.
func (f Filters) Matches(m Metadata) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, m.Type) {
		return false
	}
	if f.SessionID != "" && f.SessionID != m.SessionID {
		return false
	}
	if f.Project != "" && f.Project != m.Project {
		return false
	}
	if !f.Since.IsZero() && m.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !m.CreatedAt.Before(f.Until) {
		return false
	}
	if !f.IncludeSuperseded && m.Status == StatusSuperseded {
		return false
	}
	return true
}

// TextHit is a keyword match. Score is a relevance where higher is better.
type TextHit struct {
	ID    int64
	Score float64
}

// VectorHit is a nearest-neighbour match. Distance is non-negative, lower is
// closer.
type VectorHit struct {
	ID       int64
	Distance float64
}

// PendingEmbedding marks an observation whose vector has not been written yet.
type PendingEmbedding struct {
	ObservationID int64
	Attempts      int
	LastError     string
	EnqueuedAt    time.Time
	NextAttemptAt time.Time
}

// SessionInfo summarises the records of one session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Project      string    `json:"project,omitempty"`
	Observations int       `json:"observations"`
	Active       int       `json:"active"`
	Summaries    int       `json:"summaries"`
	FirstAt      time.Time `json:"first_at"`
	LastAt       time.Time `json:"last_at"`
}

// Stats is a point-in-time count of what the storage root holds.
type Stats struct {
	Observations int `json:"observations"`
	Active       int `json:"active"`
	Superseded   int `json:"superseded"`
	Summaries    int `json:"summaries"`
	Vectors      int `json:"vectors"`
	Pending      int `json:"pending"`
	Sessions     int `json:"sessions"`
}
