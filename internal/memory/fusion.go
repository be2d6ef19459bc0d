// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory

import (
	"cmp"
	"slices"
	"time"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// Weights scale each leg's normalized score in the fused score.
type Weights struct {
	Semantic float64
	Keyword  float64
}

var DefaultWeights = Weights{Semantic: 0.5, Keyword: 0.5}

func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Keyword < 0 {
		return engramerr.New(engramerr.CodeConfigValidateInvalidValue, "retrieval weights must not be negative")
	}
	if w.Semantic+w.Keyword == 0 {
		return engramerr.New(engramerr.CodeConfigValidateInvalidValue, "retrieval weights must not both be zero")
	}
	return nil
}

// Scored is one fused candidate.
type Scored struct {
	ID        int64
	CreatedAt time.Time
	Score     float64
	Semantic  float64
	Keyword   float64
}

// Normalize divides every score by the largest one so the best candidate
// scores 1. When the largest score is not positive every candidate scores 0.
func Normalize(scores map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(scores))
	var top float64
	for _, s := range scores {
		top = max(top, s)
	}
	for id, s := range scores {
		if top <= 0 || s <= 0 {
			out[id] = 0
			continue
		}
		out[id] = s / top
	}
	return out
}

// DistanceToSimilarity maps a non-negative distance to (0, 1].
func DistanceToSimilarity(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}

// Fuse merges two normalized score maps into one ranking. A candidate missing
// from a leg scores 0 there. Ties on score go to the newer createdAt, then to
// the lower id, so the order is total. createdAt must hold every candidate id.
func Fuse(semantic, keyword map[int64]float64, w Weights, createdAt map[int64]time.Time) []Scored {
	out := make([]Scored, 0, len(semantic)+len(keyword))
	seen := make(map[int64]struct{}, cap(out))

	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		sem, kw := semantic[id], keyword[id]
		out = append(out, Scored{
			ID:        id,
			CreatedAt: createdAt[id],
			Score:     w.Semantic*sem + w.Keyword*kw,
			Semantic:  sem,
			Keyword:   kw,
		})
	}
	for id := range semantic {
		add(id)
	}
	for id := range keyword {
		add(id)
	}

	slices.SortFunc(out, compareScored)
	return out
}

func compareScored(a, b Scored) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
