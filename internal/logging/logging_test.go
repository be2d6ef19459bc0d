// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/engram-dev/engram/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "observation_id", 7)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Equal(t, "kept", gjson.Get(out, "msg").String())
	assert.Equal(t, int64(7), gjson.Get(out, "observation_id").Int())
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("debug", "text", &buf)
	require.NoError(t, err)

	logger.Debug("compression skipped", "session_id", "s1")
	assert.Contains(t, buf.String(), "compression skipped")
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := logging.New("info", "xml", nil)
	assert.Error(t, err)
	assert.False(t, logging.ValidFormat("xml"))
	assert.True(t, logging.ValidFormat("JSON"))
}
