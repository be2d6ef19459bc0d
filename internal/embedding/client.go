// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package embedding

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/engram-dev/engram/pkg/health"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultCacheSize = 16 << 20
)

// ClientConfig tunes a Client.
type ClientConfig struct {
	// Timeout bounds each model call on top of the caller's context.
	Timeout time.Duration
	// Cooldown is how long calls fail fast after a model failure.
	Cooldown time.Duration
	// CacheBytes caps the vector cache; negative disables it, zero uses
	// DefaultCacheSize.
	CacheBytes int64
	Logger     *slog.Logger
}

// Client is the embedding entry point used by the rest of engram. It bounds
// every call with a timeout, verifies the returned dimension, skips the model
// during a failure cooldown and caches vectors of recently embedded text.
// All failures surface as EmbeddingUnavailable codes.
type Client struct {
	embedder Embedder
	timeout  time.Duration
	health   *health.Tracker
	cache    *ristretto.Cache
	logger   *slog.Logger
}

var _ Embedder = (*Client)(nil)

func NewClient(e Embedder, cfg ClientConfig) (*Client, error) {
	if e == nil {
		return nil, engramerr.New(engramerr.CodeEmbeddingConfigInvalid, "embedder is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = health.DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tracker, err := health.NewTracker(cfg.Cooldown)
	if err != nil {
		return nil, err
	}

	c := &Client{
		embedder: e,
		timeout:  cfg.Timeout,
		health:   tracker,
		logger:   cfg.Logger,
	}

	if cfg.CacheBytes >= 0 {
		size := cfg.CacheBytes
		if size == 0 {
			size = DefaultCacheSize
		}
		// Ten counters per vector the cache can hold.
		items := size / int64(4*max(e.Dimensions(), 1))
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: min(max(10*items, 1000), 1_000_000),
			MaxCost:     size,
			BufferItems: 64,
		})
		if err != nil {
			return nil, engramerr.Wrapf(err, engramerr.CodeEmbeddingConfigInvalid, "creating embedding cache")
		}
		c.cache = cache
	}
	return c, nil
}

func (c *Client) Dimensions() int { return c.embedder.Dimensions() }

func (c *Client) Name() string { return c.embedder.Name() }

// Embed returns the vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, engramerr.New(engramerr.CodeEmbeddingUnavailable, "cannot embed empty text")
	}

	if c.cache != nil {
		if v, ok := c.cache.Get(text); ok {
			return slices.Clone(v.([]float32)), nil
		}
	}

	if !c.health.Available() {
		return nil, engramerr.New(engramerr.CodeEmbeddingUnavailable, "embedding model cooling down after failure",
			engramerr.FieldProvider(c.embedder.Name()))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	vec, err := c.embedder.Embed(callCtx, text)
	if err != nil {
		return nil, c.fail(ctx, callCtx, err)
	}
	if len(vec) != c.embedder.Dimensions() {
		err := engramerr.Errorf(engramerr.CodeEmbeddingUnavailable,
			"embedding model returned %d dimensions, expected %d", len(vec), c.embedder.Dimensions())
		c.health.RecordFailure(err)
		return nil, err
	}

	c.health.RecordSuccess()
	c.logger.Debug("embedded text",
		"provider", c.embedder.Name(),
		"chars", len(text),
		"duration", time.Since(start),
	)

	if c.cache != nil {
		c.cache.Set(text, slices.Clone(vec), int64(4*len(vec)))
	}
	return vec, nil
}

// fail classifies err. Cancellation by the caller is not held against the
// model's health.
func (c *Client) fail(parent, callCtx context.Context, err error) error {
	if parent.Err() != nil {
		return engramerr.Wrapf(parent.Err(), engramerr.CodeEmbeddingTimeout, "embedding cancelled")
	}

	code := engramerr.CodeEmbeddingUnavailable
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		code = engramerr.CodeEmbeddingTimeout
	}
	wrapped := engramerr.Wrap(err, code, "embedding request failed", engramerr.FieldProvider(c.embedder.Name()))
	c.health.RecordFailure(err)
	c.logger.Warn("embedding request failed",
		"provider", c.embedder.Name(),
		"error", err,
	)
	return wrapped
}

// Ping checks the model is reachable, using the provider's own check when it
// has one.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	if p, ok := c.embedder.(Pinger); ok {
		err = p.Ping(ctx)
	} else {
		_, err = c.embedder.Embed(ctx, "ping")
	}
	if err != nil {
		c.health.RecordFailure(err)
		return engramerr.Wrap(err, engramerr.CodeEmbeddingUnavailable, "embedding model unreachable",
			engramerr.FieldProvider(c.embedder.Name()))
	}
	c.health.RecordSuccess()
	return nil
}

func (c *Client) Health() health.Metrics {
	return c.health.Metrics()
}

// Wait blocks until cached writes are visible to Get.
func (c *Client) Wait() {
	if c.cache != nil {
		c.cache.Wait()
	}
}

func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
