// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package google_test

import (
	"context"
	"testing"

	"github.com/engram-dev/engram/internal/embedding/google"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := google.New(context.Background(), google.Config{Dimensions: 768})
	require.Error(t, err)
	assert.True(t, engramerr.HasCode(err, engramerr.CodeEmbeddingConfigInvalid))
}

func TestNew_RequiresDimensions(t *testing.T) {
	_, err := google.New(context.Background(), google.Config{APIKey: "k"})
	require.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	p, err := google.New(context.Background(), google.Config{APIKey: "k", Dimensions: 768})
	require.NoError(t, err)
	assert.Equal(t, "google/"+google.DefaultModel, p.Name())
	assert.Equal(t, 768, p.Dimensions())
}
