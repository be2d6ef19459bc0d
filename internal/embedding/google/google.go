// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/engram-dev/engram/internal/embedding"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const DefaultModel = "gemini-embedding-001"

// Config holds Gemini embedding configuration.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Provider implements embedding.Embedder using the Gemini API.
type Provider struct {
	client *genai.Client
	config Config
}

var _ embedding.Embedder = (*Provider)(nil)

// New creates a Gemini embedder. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, engramerr.New(engramerr.CodeEmbeddingConfigInvalid, "google: missing api_key in config",
			engramerr.FieldProvider("google"))
	}
	if cfg.Dimensions <= 0 {
		return nil, engramerr.New(engramerr.CodeEmbeddingConfigInvalid, "google: dimensions must be positive",
			engramerr.FieldProvider("google"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeEmbeddingConfigInvalid, "google: creating client")
	}

	return &Provider{client: client, config: cfg}, nil
}

func (p *Provider) Name() string { return "google/" + p.config.Model }

func (p *Provider) Dimensions() int { return p.config.Dimensions }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Models.EmbedContent(ctx, p.config.Model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(p.config.Dimensions)),
	})
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeEmbeddingUnavailable, "google: embed content")
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, engramerr.New(engramerr.CodeEmbeddingResponseFailed, "google: empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
