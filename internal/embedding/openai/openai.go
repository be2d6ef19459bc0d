// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package openai embeds text through the OpenAI embeddings API. The same
// client serves Ollama, which exposes a compatible endpoint under /v1.
package openai

import (
	"context"
	"net/http"
	"slices"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/engram-dev/engram/internal/embedding"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const (
	DefaultOllamaURL   = "http://localhost:11434/v1"
	DefaultOllamaModel = "bge-m3"
	DefaultOpenAIModel = "text-embedding-3-small"
)

// Config holds embedding provider configuration.
type Config struct {
	// Provider is "openai" or "ollama"; it only affects defaults and naming.
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	HTTPClient *http.Client
}

// Provider implements embedding.Embedder.
type Provider struct {
	client openaisdk.Client
	config Config
}

var (
	_ embedding.Embedder = (*Provider)(nil)
	_ embedding.Pinger   = (*Provider)(nil)
)

// New creates a provider. OpenAI requires an API key; Ollama ignores it.
func New(cfg Config) (*Provider, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	switch cfg.Provider {
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOllamaURL
		}
		if cfg.Model == "" {
			cfg.Model = DefaultOllamaModel
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
	case "openai":
		if cfg.APIKey == "" {
			return nil, engramerr.New(engramerr.CodeEmbeddingConfigInvalid, "openai: missing api_key in config")
		}
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
	default:
		return nil, engramerr.Errorf(engramerr.CodeEmbeddingConfigInvalid, "openai: unsupported provider %q", cfg.Provider)
	}
	if cfg.Dimensions <= 0 {
		return nil, engramerr.New(engramerr.CodeEmbeddingConfigInvalid, "openai: dimensions must be positive")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Provider{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (p *Provider) Name() string { return p.config.Provider + "/" + p.config.Model }

func (p *Provider) Dimensions() int { return p.config.Dimensions }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(p.config.Model),
	}
	// Ollama rejects the dimensions parameter; its models have a fixed size.
	if p.config.Provider == "openai" {
		params.Dimensions = openaisdk.Int(int64(p.config.Dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeEmbeddingUnavailable, "%s: embeddings request", p.config.Provider)
	}
	if len(resp.Data) == 0 {
		return nil, engramerr.Errorf(engramerr.CodeEmbeddingResponseFailed, "%s: empty embeddings response", p.config.Provider)
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Ping lists the server's models and checks the configured one is present.
func (p *Provider) Ping(ctx context.Context) error {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return engramerr.Wrapf(err, engramerr.CodeEmbeddingUnavailable, "%s: listing models", p.config.Provider)
	}

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	if !slices.ContainsFunc(ids, func(id string) bool { return modelMatches(id, p.config.Model) }) {
		return engramerr.Errorf(engramerr.CodeEmbeddingUnavailable,
			"%s: model %q not available", p.config.Provider, p.config.Model)
	}
	return nil
}

// modelMatches treats "bge-m3" and "bge-m3:latest" as the same model.
func modelMatches(id, model string) bool {
	return id == model || id == model+":latest"
}
