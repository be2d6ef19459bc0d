// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package summarize_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/internal/summarize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractive_Chronological(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sources := []store.Observation{
		{ID: 2, SessionID: "s1", Type: store.TypeDecision, CreatedAt: at.Add(time.Minute),
			Content: "Decided to use a vector database for storage"},
		{ID: 1, SessionID: "s1", Type: store.TypeObservation, CreatedAt: at,
			Content: "Fixed authentication bug by adding token refresh. It was expiring early."},
		{ID: 3, SessionID: "s1", Type: store.TypeObservation, CreatedAt: at.Add(2 * time.Minute),
			Content: "Fixed authentication bug by adding token refresh. Duplicate note."},
		{ID: 4, SessionID: "s1", Type: store.TypeBugfix, CreatedAt: at.Add(time.Minute),
			Content: "Patched the migration."},
	}

	got, err := summarize.Extractive{}.Summarize(context.Background(), sources)
	require.NoError(t, err)

	want := "Session summary of 4 observations from session s1.\n" +
		"- (observation) Fixed authentication bug by adding token refresh.\n" +
		"- (decision) Decided to use a vector database for storage\n" +
		"- (bugfix) Patched the migration."
	assert.Equal(t, want, got)
}

func TestExtractive_Deterministic(t *testing.T) {
	sources := []store.Observation{
		{ID: 1, Type: store.TypeBugfix, Content: "a. b"},
		{ID: 2, Type: store.TypeFeature, Content: "c"},
	}
	a, err := summarize.Extractive{}.Summarize(context.Background(), sources)
	require.NoError(t, err)
	b, err := summarize.Extractive{}.Summarize(context.Background(), sources)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExtractive_Truncates(t *testing.T) {
	sources := []store.Observation{
		{ID: 1, Type: store.TypeObservation, Content: strings.Repeat("é", 500)},
	}
	got, err := summarize.Extractive{MaxChars: 64}.Summarize(context.Background(), sources)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 64)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestExtractive_Empty(t *testing.T) {
	_, err := summarize.Extractive{}.Summarize(context.Background(), nil)
	assert.Error(t, err)
}

func TestTranscript(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	got := summarize.Transcript([]store.Observation{
		{Type: store.TypeDecision, CreatedAt: at, Content: "use\n  sqlite"},
	})
	assert.Equal(t, "[2026-03-01 09:30] (decision) use sqlite\n", got)
}
