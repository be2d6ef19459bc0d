// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/engram-dev/engram/internal/config"
	"github.com/engram-dev/engram/internal/embedding"
	googleemb "github.com/engram-dev/engram/internal/embedding/google"
	openaiemb "github.com/engram-dev/engram/internal/embedding/openai"
	"github.com/engram-dev/engram/internal/memory"
	redactpkg "github.com/engram-dev/engram/internal/redact"
	"github.com/engram-dev/engram/internal/store"
	_ "github.com/engram-dev/engram/internal/store/chromem" // register chromem vector backend
	_ "github.com/engram-dev/engram/internal/store/sqlite"  // register sqlite backend
	"github.com/engram-dev/engram/internal/summarize"
	anthropicsum "github.com/engram-dev/engram/internal/summarize/anthropic"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// Engram holds the wired memory service and the embedding client it runs on.
type Engram struct {
	Config   *config.Config
	Service  *memory.Service
	Embedder *embedding.Client
}

// Wire builds every subsystem from cfg. The data directory is created if
// missing and the stores are migrated on open.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, engramerr.Errorf(engramerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	embedder, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeCLISetupFailure, "creating %s embedder", cfg.Embedding.Provider)
	}
	client, err := embedding.NewClient(embedder, embedding.ClientConfig{
		Timeout:    cfg.Embedding.Timeout,
		Cooldown:   cfg.Embedding.Cooldown,
		CacheBytes: cfg.Embedding.CacheBytes,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	summarizer, err := newSummarizer(cfg.Compression)
	if err != nil {
		client.Close()
		return nil, engramerr.Wrapf(err, engramerr.CodeCLISetupFailure, "creating %s summarizer", cfg.Compression.Summarizer)
	}

	stores, err := store.Open(&store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		VectorBackend:    cfg.Storage.VectorBackend,
		VectorDimensions: cfg.Embedding.Dimensions,
		BusyTimeout:      cfg.Storage.BusyTimeout,
	}, cfg.DataDir)
	if err != nil {
		client.Close()
		return nil, engramerr.Wrap(err, engramerr.CodeCLISetupFailure, "opening storage")
	}

	memCfg, err := memoryConfig(cfg, logger)
	if err != nil {
		_ = stores.Close()
		client.Close()
		return nil, err
	}
	svc, err := memory.New(stores, client, summarizer, memCfg)
	if err != nil {
		_ = stores.Close()
		client.Close()
		return nil, engramerr.Wrap(err, engramerr.CodeCLISetupFailure, "creating memory service")
	}

	return &Engram{Config: cfg, Service: svc, Embedder: client}, nil
}

// Close waits for background work and releases the stores.
func (e *Engram) Close() error {
	var errs []error
	if e.Service != nil {
		errs = append(errs, e.Service.Close())
	}
	if e.Embedder != nil {
		e.Embedder.Close()
	}
	return errors.Join(errs...)
}

func memoryConfig(cfg *config.Config, logger *slog.Logger) (memory.Config, error) {
	policy, err := memory.ParseWritePolicy(cfg.Indexing.Policy)
	if err != nil {
		return memory.Config{}, err
	}
	mode, err := memory.ParseMode(cfg.Retrieval.Mode)
	if err != nil {
		return memory.Config{}, err
	}
	redactMode, err := redactpkg.ParseMode(cfg.Redaction.Mode)
	if err != nil {
		return memory.Config{}, err
	}
	redactor, err := redactpkg.New(redactMode, nil)
	if err != nil {
		return memory.Config{}, err
	}

	return memory.Config{
		Store: memory.ObservationStoreConfig{
			Policy:        policy,
			RetryInterval: cfg.Indexing.RetryInterval,
			Redactor:      redactor,
		},
		Engine: memory.EngineConfig{
			Weights: memory.Weights{
				Semantic: cfg.Retrieval.SemanticWeight,
				Keyword:  cfg.Retrieval.KeywordWeight,
			},
			CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
			DefaultLimit:        cfg.Retrieval.DefaultLimit,
		},
		Compressor: memory.CompressorConfig{
			Threshold:            cfg.Compression.Threshold,
			MaxSourcesPerSummary: cfg.Compression.MaxSourcesPerSummary,
		},
		Reindexer: memory.ReindexerConfig{
			Interval:    cfg.Indexing.RetryInterval,
			MaxAttempts: cfg.Indexing.MaxAttempts,
			BatchSize:   cfg.Indexing.BatchSize,
		},
		Injector: memory.InjectorConfig{
			Limit:    cfg.Context.Limit,
			MaxChars: cfg.Context.MaxChars,
			Mode:     mode,
		},
		Logger: logger,
	}, nil
}

// embedderFactory builds an embedding.Embedder from the embedding section.
type embedderFactory func(context.Context, config.EmbeddingConfig) (embedding.Embedder, error)

// embedderFactories maps provider names to their constructors. Declared as a
// variable so tests can inject failing factories.
var embedderFactories = map[string]embedderFactory{
	config.ProviderOllama: func(_ context.Context, ec config.EmbeddingConfig) (embedding.Embedder, error) {
		return openaiemb.New(openaiemb.Config{
			Provider:   config.ProviderOllama,
			APIKey:     ec.APIKey,
			BaseURL:    ec.Endpoint,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
		})
	},
	config.ProviderOpenAI: func(_ context.Context, ec config.EmbeddingConfig) (embedding.Embedder, error) {
		return openaiemb.New(openaiemb.Config{
			Provider:   config.ProviderOpenAI,
			APIKey:     ec.APIKey,
			BaseURL:    ec.Endpoint,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
		})
	},
	config.ProviderGoogle: func(ctx context.Context, ec config.EmbeddingConfig) (embedding.Embedder, error) {
		return googleemb.New(ctx, googleemb.Config{
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			BaseURL:    ec.Endpoint,
		})
	},
	config.ProviderHash: func(_ context.Context, ec config.EmbeddingConfig) (embedding.Embedder, error) {
		return embedding.NewHashEmbedder(ec.Dimensions), nil
	},
}

func newEmbedder(ctx context.Context, ec config.EmbeddingConfig) (embedding.Embedder, error) {
	factory, ok := embedderFactories[ec.Provider]
	if !ok {
		return nil, engramerr.Errorf(engramerr.CodeEmbeddingConfigInvalid, "unknown embedding provider %q", ec.Provider)
	}
	return factory(ctx, ec)
}

func newSummarizer(cc config.CompressionConfig) (summarize.Summarizer, error) {
	switch cc.Summarizer {
	case "", config.SummarizerExtractive:
		return summarize.Extractive{}, nil
	case config.SummarizerAnthropic:
		return anthropicsum.New(anthropicsum.Config{
			APIKey:    cc.APIKey,
			Model:     cc.Model,
			MaxTokens: cc.MaxTokens,
			BaseURL:   cc.Endpoint,
		})
	default:
		return nil, engramerr.Errorf(engramerr.CodeSummarizeConfigInvalid, "unknown summarizer %q", cc.Summarizer)
	}
}
