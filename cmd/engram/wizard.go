// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/engram-dev/engram/internal/config"
	"github.com/engram-dev/engram/internal/secrets"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"gopkg.in/yaml.v3"
)

// wizardTimeout bounds the test embedding made before the config is written.
const wizardTimeout = 30 * time.Second

// providerChoice is one entry of the provider list.
type providerChoice struct {
	Name       string
	Label      string
	NeedsKey   bool
	Dimensions int
}

var providerChoices = []providerChoice{
	{Name: config.ProviderOllama, Label: "ollama (local, bge-m3)", Dimensions: 1024},
	{Name: config.ProviderOpenAI, Label: "openai (text-embedding-3-small)", NeedsKey: true, Dimensions: 1536},
	{Name: config.ProviderGoogle, Label: "google (gemini-embedding-001)", NeedsKey: true, Dimensions: 768},
	{Name: config.ProviderHash, Label: "hash (offline, keyword-like)", Dimensions: 256},
}

type wizardStep int

const (
	stepProvider wizardStep = iota
	stepAPIKey
	stepValidate
	stepDone
	stepError
)

// wizardResult is what the wizard collected.
type wizardResult struct {
	Provider providerChoice
	APIKey   string
}

// embedding returns the config section the result describes, with the key
// inline so it can be validated before it is stored.
func (r wizardResult) embedding() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Provider:   r.Provider.Name,
		APIKey:     r.APIKey,
		Dimensions: r.Provider.Dimensions,
		Timeout:    wizardTimeout,
	}
}

// --- bubbletea messages ---

type (
	validatedMsg     struct{}
	validateErrorMsg struct{ err error }
	configWrittenMsg struct{ path string }
)

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// wizardModel walks through choosing an embedding provider.
type wizardModel struct {
	step          wizardStep
	providerIdx   int
	apiKeyInput   textinput.Model
	spinner       spinner.Model
	result        wizardResult
	validationErr string
	configPath    string
	secretStore   secrets.Store
	errFinal      error
}

func newWizardModel(store secrets.Store, configPath string) wizardModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return wizardModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		spinner:     sp,
		configPath:  configPath,
		secretStore: store,
	}
}

func (m wizardModel) Init() tea.Cmd {
	return nil
}

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.step {
		case stepProvider:
			return m.handleProviderKey(msg)
		case stepAPIKey:
			return m.handleAPIKeyInput(msg)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validatedMsg:
		return m, writeWizardConfigCmd(m.result, m.secretStore, m.configPath)

	case validateErrorMsg:
		m.validationErr = msg.err.Error()
		if m.result.Provider.NeedsKey {
			m.step = stepAPIKey
			m.apiKeyInput.Focus()
		} else {
			m.step = stepProvider
		}
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m wizardModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(providerChoices)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = providerChoices[m.providerIdx]
		m.validationErr = ""
		if !m.result.Provider.NeedsKey {
			m.result.APIKey = ""
			m.step = stepValidate
			return m, tea.Batch(m.spinner.Tick, validateEmbedderCmd(m.result))
		}
		m.step = stepAPIKey
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m wizardModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidate
		return m, tea.Batch(m.spinner.Tick, validateEmbedderCmd(m.result))
	case "esc":
		m.step = stepProvider
		m.validationErr = ""
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m wizardModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Engram Setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Choose an embedding provider") + "\n\n")
		for i, p := range providerChoices {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+p.Label) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+p.Label) + "\n")
			}
		}
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render(m.result.Provider.Name+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to go back  ctrl+c to quit"))

	case stepValidate:
		b.WriteString(m.spinner.View() + " Embedding a test sentence with " + m.result.Provider.Name + "…\n")

	case stepDone:
		b.WriteString(okStyle.Render("  Setup complete!  ") + "\n\n")
		b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		b.WriteString("Run " + promptStyle.Render("engram hooks install") + " to capture sessions automatically.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

// --- tea.Cmd factories ---

func validateEmbedderCmd(r wizardResult) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), wizardTimeout)
		defer cancel()

		e, err := newEmbedder(ctx, r.embedding())
		if err != nil {
			return validateErrorMsg{err: err}
		}
		if _, err := e.Embed(ctx, "engram setup check"); err != nil {
			return validateErrorMsg{err: err}
		}
		return validatedMsg{}
	}
}

func writeWizardConfigCmd(r wizardResult, store secrets.Store, path string) tea.Cmd {
	return func() tea.Msg {
		if err := storeKeyAndWriteConfig(r, store, path); err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// storeKeyAndWriteConfig saves the API key to the keyring and points the
// embedding section of the config at it. The rest of the file, comments
// included, is kept.
func storeKeyAndWriteConfig(r wizardResult, store secrets.Store, path string) error {
	apiKey := ""
	if r.APIKey != "" {
		if err := store.Set(secrets.DefaultService, r.Provider.Name, r.APIKey); err != nil {
			return engramerr.Wrapf(err, engramerr.CodeSecretKeyringFailure, "storing %s API key", r.Provider.Name)
		}
		apiKey = "keyring://" + secrets.DefaultService + "/" + r.Provider.Name
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data = config.DefaultConfigYAML
	} else if err != nil {
		return engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "reading %s: %w", path, err)
	}

	out, err := setYAMLValues(data, map[string]string{
		"embedding.provider":   r.Provider.Name,
		"embedding.model":      "",
		"embedding.api_key":    apiKey,
		"embedding.dimensions": strconv.Itoa(r.Provider.Dimensions),
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "writing config to %s: %w", path, err)
	}
	return nil
}

// setYAMLValues sets dotted keys in a YAML document, creating missing
// mappings. Comments on untouched nodes survive the round trip.
func setYAMLValues(data []byte, values map[string]string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, engramerr.Errorf(engramerr.CodeConfigParseInvalidFormat, "parsing config: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, engramerr.New(engramerr.CodeConfigParseInvalidFormat, "config is not a YAML mapping")
	}

	for key, value := range values {
		node := root
		parts := strings.Split(key, ".")
		for i, part := range parts {
			child := mappingValue(node, part)
			if child == nil {
				child = &yaml.Node{Kind: yaml.MappingNode}
				if i == len(parts)-1 {
					child = &yaml.Node{Kind: yaml.ScalarNode}
				}
				node.Content = append(node.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: part}, child)
			}
			node = child
		}
		node.Kind = yaml.ScalarNode
		node.Tag = ""
		node.Value = value
		node.Style = 0
		if value == "" {
			node.Style = yaml.DoubleQuotedStyle
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, engramerr.Errorf(engramerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, engramerr.Errorf(engramerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// runWizard runs the interactive setup and returns the config path it wrote,
// or "" when the user quit.
func runWizard(store secrets.Store, path string) (string, error) {
	p := tea.NewProgram(newWizardModel(store, path))
	final, err := p.Run()
	if err != nil {
		return "", engramerr.Errorf(engramerr.CodeCLISetupFailure, "setup wizard: %w", err)
	}
	fm, ok := final.(wizardModel)
	if !ok {
		return "", engramerr.New(engramerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return "", engramerr.Wrap(fm.errFinal, engramerr.CodeCLISetupFailure, "setup failed")
	}
	if fm.step != stepDone {
		return "", nil
	}
	return fm.configPath, nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// wizardTarget picks the file the wizard edits: the config in use, else the
// default path.
func wizardTarget(a *app) (string, error) {
	if p := a.v.ConfigFileUsed(); p != "" {
		return p, nil
	}
	return config.DefaultConfigPath()
}
