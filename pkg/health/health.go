// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package health

import (
	"sync"
	"time"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// Metrics is a point-in-time snapshot of a dependency's health, safe to
// serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// DefaultCooldown is how long a failed dependency is skipped before the next
// attempt is allowed through.
const DefaultCooldown = 30 * time.Second

// Tracker records successes and failures of an external dependency such as
// the embedding model. After a failure the dependency is reported unavailable
// until the cooldown elapses, then one attempt is let through again.
type Tracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	lastErr      string
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// NewTracker creates a Tracker that starts healthy.
func NewTracker(cooldown time.Duration) (*Tracker, error) {
	if cooldown <= 0 {
		return nil, engramerr.Errorf(engramerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &Tracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// caller holds at least h.mu.RLock.
func (h *Tracker) availableLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *Tracker) Available() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

func (h *Tracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure marks the dependency unavailable and remembers err's message.
func (h *Tracker) RecordFailure(err error) {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	if err != nil {
		h.lastErr = err.Error()
	}
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *Tracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

func (h *Tracker) Metrics() Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := Metrics{
		FailureCount: h.failureCount,
		LastError:    h.lastErr,
		Available:    h.availableLocked(),
	}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
