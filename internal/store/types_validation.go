// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package store

import (
	"strings"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// Valid reports whether t is one of the known observation tags.
func (t ObservationType) Valid() bool {
	switch t {
	case TypeObservation, TypeDecision, TypeSummary, TypeBugfix, TypeFeature, TypeRefactor, TypeDiscovery:
		return true
	default:
		return false
	}
}

// ParseObservationType normalises s and rejects unknown tags. An empty string
// maps to TypeObservation.
func ParseObservationType(s string) (ObservationType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeObservation, nil
	}
	t := ObservationType(s)
	if !t.Valid() {
		return "", engramerr.Errorf(engramerr.CodeStoreInvalidInput, "unknown observation type %q", s)
	}
	return t, nil
}

// ParseObservationTypes parses a list of tags, failing on the first unknown one.
func ParseObservationTypes(raw []string) ([]ObservationType, error) {
	out := make([]ObservationType, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		t, err := ParseObservationType(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuperseded
}

// Validate checks the fields a new observation must carry before it is
// persisted.
func (o Observation) Validate() error {
	if strings.TrimSpace(o.Content) == "" {
		return engramerr.New(engramerr.CodeStoreInvalidInput, "observation: content is required")
	}
	if !o.Type.Valid() {
		return engramerr.Errorf(engramerr.CodeStoreInvalidInput, "observation: invalid type %q", o.Type)
	}
	if o.Status != "" && !o.Status.Valid() {
		return engramerr.Errorf(engramerr.CodeStoreInvalidInput, "observation: invalid status %q", o.Status)
	}
	if o.Type != TypeSummary && len(o.SourceIDs) > 0 {
		return engramerr.New(engramerr.CodeStoreInvalidInput, "observation: only summaries carry source ids")
	}
	return nil
}

// Validate checks that the time bounds of f are ordered and every type is known.
func (f Filters) Validate() error {
	for _, t := range f.Types {
		if !t.Valid() {
			return engramerr.Errorf(engramerr.CodeStoreInvalidInput, "filters: invalid type %q", t)
		}
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Since.Before(f.Until) {
		return engramerr.New(engramerr.CodeStoreInvalidInput, "filters: since must be before until")
	}
	return nil
}
