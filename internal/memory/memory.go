// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package memory is the observation memory core: the write path, hybrid
// retrieval, session compression and session-start context.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/engram-dev/engram/internal/embedding"
	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/internal/summarize"
)

// Config gathers the tuning of every component.
type Config struct {
	Store      ObservationStoreConfig
	Engine     EngineConfig
	Compressor CompressorConfig
	Reindexer  ReindexerConfig
	Injector   InjectorConfig
	Logger     *slog.Logger
}

// Service wires the components over one storage root.
type Service struct {
	Observations *ObservationStore
	Engine       *Engine
	Compressor   *Compressor
	Reindexer    *Reindexer
	Injector     *Injector

	stores *store.Stores
	bg     sync.WaitGroup
}

// New builds a Service. It takes ownership of stores, which Close releases.
func New(stores *store.Stores, embedder embedding.Embedder, summarizer summarize.Summarizer, cfg Config) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Store.Logger == nil {
		cfg.Store.Logger = logger
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = logger
	}
	if cfg.Compressor.Logger == nil {
		cfg.Compressor.Logger = logger
	}
	if cfg.Reindexer.Logger == nil {
		cfg.Reindexer.Logger = logger
	}

	obs, err := NewObservationStore(stores, embedder, cfg.Store)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(stores, embedder, cfg.Engine)
	if err != nil {
		return nil, err
	}
	if summarizer == nil {
		summarizer = summarize.Extractive{}
	}
	compressor, err := NewCompressor(obs, summarizer, cfg.Compressor)
	if err != nil {
		return nil, err
	}

	return &Service{
		Observations: obs,
		Engine:       engine,
		Compressor:   compressor,
		Reindexer:    NewReindexer(obs, cfg.Reindexer),
		Injector:     NewInjector(engine, obs, cfg.Injector),
		stores:       stores,
	}, nil
}

// Start runs the reindexer in the background until ctx ends.
func (s *Service) Start(ctx context.Context) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_ = s.Reindexer.Run(ctx)
	}()
}

// Close waits for background embeds, stops compression lanes and closes the
// stores. The context given to Start must be done before Close is called.
func (s *Service) Close() error {
	s.bg.Wait()
	s.Observations.Wait()
	s.Compressor.Close()
	return s.stores.Close()
}
