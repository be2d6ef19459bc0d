// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a local, deterministic embedder based on feature hashing:
// each word adds a signed unit to two buckets chosen from its hash. Texts that
// share words end up close together, which is enough for offline use and
// tests, though it carries no real semantics.
type HashEmbedder struct {
	dimensions int
}

// DefaultHashDimensions is used when NewHashEmbedder gets a non-positive size.
const DefaultHashDimensions = 384

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		sum := f.Sum64()

		// Two buckets per word from independent halves of the hash.
		for _, part := range []uint64{sum, sum >> 32} {
			idx := int(part % uint64(h.dimensions))
			if part&(1<<31) != 0 {
				vec[idx]--
			} else {
				vec[idx]++
			}
		}
	}
	return normalize(vec), nil
}

func (h *HashEmbedder) Dimensions() int { return h.dimensions }

func (h *HashEmbedder) Name() string { return "hash" }

// normalize scales vec to unit length; the zero vector is returned unchanged.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
