// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"testing"

	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretSetGet(t *testing.T) {
	store := newMockSecretStore()
	useSecretStore(t, store)
	cfg := writeTestConfig(t, "")

	out := mustRun(t, cfg, "", "secret", "set", "openai", "sk-test")
	assert.Contains(t, out, "keyring://engram/openai")
	assert.Equal(t, "sk-test", store.data["openai"])

	out = mustRun(t, cfg, "sk-piped\n", "secret", "set", "anthropic")
	assert.Contains(t, out, "Stored secret: anthropic")
	assert.Equal(t, "sk-piped", store.data["anthropic"])

	out = mustRun(t, cfg, "", "secret", "get", "openai")
	assert.Equal(t, "sk-test\n", out)
}

func TestSecretSet_EmptyValue(t *testing.T) {
	useSecretStore(t, newMockSecretStore())
	cfg := writeTestConfig(t, "")

	_, err := runCmd(t, cfg, "\n", "secret", "set", "openai")
	require.Error(t, err)
	assert.True(t, engramerr.HasCode(err, engramerr.CodeCLIInputInvalid))
}

func TestSecretList(t *testing.T) {
	useSecretStore(t, newMockSecretStore("openai", "x", "google", "y"))
	cfg := writeTestConfig(t, "")

	out := mustRun(t, cfg, "", "secret", "list")
	assert.Contains(t, out, "openai")
	assert.Contains(t, out, "google")
}

func TestSecretList_Empty(t *testing.T) {
	useSecretStore(t, newMockSecretStore())
	cfg := writeTestConfig(t, "")

	out := mustRun(t, cfg, "", "secret", "list")
	assert.Contains(t, out, "No secrets stored.")
}

func TestSecretDelete(t *testing.T) {
	store := newMockSecretStore("openai", "x")
	useSecretStore(t, store)
	cfg := writeTestConfig(t, "")

	out := mustRun(t, cfg, "", "secret", "delete", "openai")
	assert.Contains(t, out, "Deleted secret: openai")
	assert.NotContains(t, store.data, "openai")

	_, err := runCmd(t, cfg, "", "secret", "delete", "openai")
	require.Error(t, err)
	assert.True(t, engramerr.HasCode(err, engramerr.CodeSecretNotFound))
}
