// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package embedding turns text into fixed-dimension vectors through an
// external model service.
package embedding

import "context"

// Embedder produces one vector per text. Every vector an Embedder returns has
// exactly Dimensions() components.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	// Name identifies the provider and model, e.g. "ollama/bge-m3".
	Name() string
}

// Pinger is implemented by embedders that can check model availability
// without producing a vector.
type Pinger interface {
	Ping(ctx context.Context) error
}
