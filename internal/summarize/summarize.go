// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package summarize condenses a batch of observations into one summary text.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/engram-dev/engram/internal/store"
)

// Summarizer produces a summary of sources, which are ordered oldest first.
type Summarizer interface {
	Summarize(ctx context.Context, sources []store.Observation) (string, error)
	Name() string
}

// Transcript renders sources as one line each, the input shape shared by
// model-backed summarizers.
func Transcript(sources []store.Observation) string {
	var b strings.Builder
	for _, o := range sources {
		fmt.Fprintf(&b, "[%s] (%s) %s\n", o.CreatedAt.UTC().Format("2006-01-02 15:04"), o.Type, oneLine(o.Content))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
