// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/engram-dev/engram/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) writeIn(t *testing.T, content, project string) int64 {
	t.Helper()
	id, err := f.svc.Observations.Write(context.Background(), memory.WriteRequest{
		Content:   content,
		SessionID: "s1",
		Project:   project,
	})
	require.NoError(t, err)
	return id
}

func TestInject_EmptyStore(t *testing.T) {
	f := newFixture(t)
	inj, err := f.svc.Injector.Inject(context.Background(), memory.InjectRequest{SessionID: "new", Project: "/src/app"})
	require.NoError(t, err)
	assert.Empty(t, inj.Text)
	assert.Empty(t, inj.Results)
}

func TestInject_ExplicitQuery(t *testing.T) {
	f := newFixture(t)
	id := f.writeIn(t, "Decided to use a vector database for storage", "/src/app")
	f.writeIn(t, "database in another project", "/src/other")

	inj, err := f.svc.Injector.Inject(context.Background(), memory.InjectRequest{
		SessionID: "new",
		Project:   "/src/app",
		Query:     "database",
	})
	require.NoError(t, err)
	require.Len(t, inj.Results, 1)
	assert.Equal(t, id, inj.Results[0].Observation.ID)

	assert.True(t, strings.HasPrefix(inj.Text, "<engram-context>\n## Relevant memory (app)\n"))
	assert.True(t, strings.HasSuffix(inj.Text, "</engram-context>\n"))
	assert.Contains(t, inj.Text, "Decided to use a vector database for storage")
	assert.NotContains(t, inj.Text, "another project")
	assert.False(t, inj.Degraded)
}

func TestInject_DerivesQueryFromRecentHistory(t *testing.T) {
	f := newFixture(t)
	f.writeIn(t, "login page css tweaks", "/src/app")
	f.writeIn(t, "auth token refresh added", "/src/app")

	inj, err := f.svc.Injector.Inject(context.Background(), memory.InjectRequest{Project: "/src/app"})
	require.NoError(t, err)
	assert.Contains(t, inj.Query, "auth token refresh added")
	assert.NotEmpty(t, inj.Results)
	assert.Contains(t, inj.Text, "auth token refresh added")
}

func TestInject_RespectsCharacterBudget(t *testing.T) {
	f := newFixture(t, func(c *memory.Config) { c.Injector.MaxChars = 200 })
	for range 5 {
		f.writeIn(t, strings.Repeat("database tuning notes ", 20), "")
	}

	inj, err := f.svc.Injector.Inject(context.Background(), memory.InjectRequest{Query: "database"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(inj.Text), 200)
	assert.True(t, strings.HasSuffix(inj.Text, "</engram-context>\n"))
}

func TestInject_DegradedWhenEmbeddingDown(t *testing.T) {
	f := newFixture(t)
	f.writeIn(t, "database tuned", "")
	f.embedder.fail.Store(true)

	inj, err := f.svc.Injector.Inject(context.Background(), memory.InjectRequest{Query: "database"})
	require.NoError(t, err)
	assert.True(t, inj.Degraded)
	assert.Contains(t, inj.Text, "database tuned")
}
