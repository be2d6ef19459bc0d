// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package health_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/engram-dev/engram/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, cooldown time.Duration) *health.Tracker {
	t.Helper()
	h, err := health.NewTracker(cooldown)
	require.NoError(t, err)
	return h
}

func TestNewTracker_RejectsNonPositiveCooldown(t *testing.T) {
	_, err := health.NewTracker(0)
	assert.Error(t, err)
	_, err = health.NewTracker(-time.Second)
	assert.Error(t, err)
}

func TestTracker_FailureThenSuccess(t *testing.T) {
	h := newTracker(t, 30*time.Second)
	assert.True(t, h.Available())

	h.RecordFailure(errors.New("connection refused"))
	assert.False(t, h.Available())

	h.RecordSuccess()
	assert.True(t, h.Available())
}

func TestTracker_CooldownBoundary(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"before cooldown", 9 * time.Second, false},
		{"at cooldown", 10 * time.Second, true},
		{"after cooldown", 11 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTracker(t, 10*time.Second)
			h.SetNowFunc(func() time.Time { return now })
			h.RecordFailure(nil)

			h.SetNowFunc(func() time.Time { return now.Add(tt.elapsed) })
			assert.Equal(t, tt.want, h.Available())
		})
	}
}

func TestTracker_Metrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newTracker(t, time.Minute)
	h.SetNowFunc(func() time.Time { return now })

	m := h.Metrics()
	assert.True(t, m.Available)
	assert.Nil(t, m.LastFailureAt)
	assert.Nil(t, m.CooldownUntil)

	h.RecordFailure(errors.New("timeout"))
	h.RecordFailure(errors.New("refused"))

	m = h.Metrics()
	assert.False(t, m.Available)
	assert.Equal(t, int64(2), m.FailureCount)
	assert.Equal(t, "refused", m.LastError)
	require.NotNil(t, m.CooldownUntil)
	assert.Equal(t, now.Add(time.Minute), *m.CooldownUntil)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"failure_count":2`)
	assert.Contains(t, string(raw), `"available":false`)
}
