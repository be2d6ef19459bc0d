// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package anthropic

import (
	"context"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/internal/summarize"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const (
	DefaultModel     = "claude-haiku-4-5"
	DefaultMaxTokens = 1024
)

const systemPrompt = `You condense notes captured during a software development session.
Write a short summary that keeps decisions, their reasons, bugs fixed, and
anything a developer would need when resuming the work. Use plain sentences or
a terse bullet list. Do not invent details that are not in the notes.`

// Config holds Anthropic summarizer configuration.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string // optional, useful for testing against a mock server
}

// Summarizer implements summarize.Summarizer using the Anthropic Messages API.
type Summarizer struct {
	client anthropicsdk.Client
	config Config
}

var _ summarize.Summarizer = (*Summarizer)(nil)

// New creates a new Anthropic summarizer. Returns an error if the API key is missing.
func New(cfg Config) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, engramerr.New(engramerr.CodeSummarizeConfigInvalid, "anthropic: missing api_key in config",
			engramerr.FieldProvider("anthropic"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Summarizer{client: anthropicsdk.NewClient(opts...), config: cfg}, nil
}

func (s *Summarizer) Name() string { return "anthropic/" + s.config.Model }

func (s *Summarizer) Summarize(ctx context.Context, sources []store.Observation) (string, error) {
	if len(sources) == 0 {
		return "", engramerr.New(engramerr.CodeMemoryCompressFailure, "nothing to summarize")
	}

	msg, err := s.client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(s.config.Model),
		MaxTokens: int64(s.config.MaxTokens),
		System: []anthropicsdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock("Session notes:\n" + summarize.Transcript(sources))),
		},
	})
	if err != nil {
		return "", engramerr.Wrapf(err, engramerr.CodeSummarizeUpstreamFailure, "anthropic: creating message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", engramerr.New(engramerr.CodeSummarizeUpstreamFailure, "anthropic: empty summary")
	}
	return text, nil
}
