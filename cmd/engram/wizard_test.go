// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/engram-dev/engram/internal/config"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerIndex(t *testing.T, name string) int {
	t.Helper()
	for i, p := range providerChoices {
		if p.Name == name {
			return i
		}
	}
	t.Fatalf("no provider %q", name)
	return -1
}

func TestWizardModel_ProviderNavigation(t *testing.T) {
	m := newWizardModel(nil, "")
	assert.Equal(t, stepProvider, m.step)

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m3, _ := m2.(wizardModel).Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m3.(wizardModel).providerIdx)

	m4, _ := m3.(wizardModel).Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m4.(wizardModel).providerIdx)

	m5, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m5.(wizardModel).providerIdx)

	last := m
	last.providerIdx = len(providerChoices) - 1
	m6, _ := last.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, len(providerChoices)-1, m6.(wizardModel).providerIdx)
}

func TestWizardModel_KeyedProviderAsksForKey(t *testing.T) {
	m := newWizardModel(nil, "")
	m.providerIdx = providerIndex(t, config.ProviderOpenAI)

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := m2.(wizardModel)
	assert.Equal(t, stepAPIKey, got.step)
	assert.Equal(t, config.ProviderOpenAI, got.result.Provider.Name)
	assert.Contains(t, got.View(), "openai API key")
}

func TestWizardModel_LocalProviderValidatesDirectly(t *testing.T) {
	m := newWizardModel(nil, "")
	m.providerIdx = providerIndex(t, config.ProviderHash)

	m2, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stepValidate, m2.(wizardModel).step)
	assert.NotNil(t, cmd)
}

func TestWizardModel_EmptyAPIKey(t *testing.T) {
	m := newWizardModel(nil, "")
	m.step = stepAPIKey
	m.result.Provider = providerChoices[providerIndex(t, config.ProviderGoogle)]

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := m2.(wizardModel)
	assert.Equal(t, stepAPIKey, got.step)
	assert.NotEmpty(t, got.validationErr)
}

func TestWizardModel_EscGoesBack(t *testing.T) {
	m := newWizardModel(nil, "")
	m.step = stepAPIKey

	m2, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, stepProvider, m2.(wizardModel).step)
}

func TestWizardModel_ValidationError(t *testing.T) {
	m := newWizardModel(nil, "")
	m.step = stepValidate
	m.result.Provider = providerChoices[providerIndex(t, config.ProviderOpenAI)]

	m2, _ := m.Update(validateErrorMsg{err: engramerr.New(engramerr.CodeEmbeddingUnavailable, "bad key")})
	got := m2.(wizardModel)
	assert.Equal(t, stepAPIKey, got.step)
	assert.Contains(t, got.validationErr, "bad key")

	m.result.Provider = providerChoices[providerIndex(t, config.ProviderOllama)]
	m3, _ := m.Update(validateErrorMsg{err: engramerr.New(engramerr.CodeEmbeddingUnavailable, "connection refused")})
	assert.Equal(t, stepProvider, m3.(wizardModel).step)
	assert.Contains(t, m3.(wizardModel).View(), "connection refused")
}

func TestWizardModel_ConfigWrittenQuits(t *testing.T) {
	m := newWizardModel(nil, "")
	m.step = stepValidate

	m2, cmd := m.Update(configWrittenMsg{path: "/tmp/engram.yaml"})
	got := m2.(wizardModel)
	assert.Equal(t, stepDone, got.step)
	assert.Equal(t, "/tmp/engram.yaml", got.configPath)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestValidateEmbedderCmd_Hash(t *testing.T) {
	msg := validateEmbedderCmd(wizardResult{Provider: providerChoices[providerIndex(t, config.ProviderHash)]})()
	assert.IsType(t, validatedMsg{}, msg)

	msg = validateEmbedderCmd(wizardResult{Provider: providerChoice{Name: config.ProviderOpenAI, NeedsKey: true, Dimensions: 8}})()
	assert.IsType(t, validateErrorMsg{}, msg, "openai without a key fails before any request")
}

func TestStoreKeyAndWriteConfig(t *testing.T) {
	store := newMockSecretStore()
	path := filepath.Join(t.TempDir(), "engram.yaml")
	require.NoError(t, os.WriteFile(path, config.DefaultConfigYAML, 0o600))

	r := wizardResult{
		Provider: providerChoices[providerIndex(t, config.ProviderOpenAI)],
		APIKey:   "sk-test-123",
	}
	require.NoError(t, storeKeyAndWriteConfig(r, store, path))
	assert.Equal(t, "sk-test-123", store.data["openai"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-test-123", "plain-text key must not reach the config")
	assert.Contains(t, string(data), "# hybrid, semantic or keyword.", "comments survive")

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	assert.Equal(t, "openai", v.GetString("embedding.provider"))
	assert.Equal(t, "keyring://engram/openai", v.GetString("embedding.api_key"))
	assert.Equal(t, 1536, v.GetInt("embedding.dimensions"))
	assert.Equal(t, "hybrid", v.GetString("retrieval.mode"))
}

func TestStoreKeyAndWriteConfig_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engram.yaml")
	r := wizardResult{Provider: providerChoices[providerIndex(t, config.ProviderHash)]}

	require.NoError(t, storeKeyAndWriteConfig(r, newMockSecretStore(), path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	assert.Equal(t, "hash", v.GetString("embedding.provider"))
	assert.Empty(t, v.GetString("embedding.api_key"))
}

func TestSetYAMLValues_CreatesMissingKeys(t *testing.T) {
	out, err := setYAMLValues([]byte("data_dir: /tmp/x\n"), map[string]string{
		"embedding.provider": "hash",
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "data_dir: /tmp/x")
	assert.Contains(t, string(out), "embedding:\n  provider: hash")

	_, err = setYAMLValues([]byte("- a\n- b\n"), map[string]string{"x": "y"})
	assert.True(t, engramerr.HasCode(err, engramerr.CodeConfigParseInvalidFormat))
}

func TestInit_WizardNeedsTerminal(t *testing.T) {
	cfg := writeTestConfig(t, "")
	_, err := runCmd(t, cfg, "", "init", "--wizard")
	require.Error(t, err)
	assert.True(t, engramerr.HasCode(err, engramerr.CodeCLISetupFailure))
}
