// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package project_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/engram-dev/engram/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_FallsBackToDir(t *testing.T) {
	dir := t.TempDir()
	got := project.Detect(context.Background(), dir)
	assert.True(t, project.Same(dir, got), "got %s", got)
}

func TestDetect_GitRoot(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	require.NoError(t, exec.Command("git", "init", "-q", root).Run())
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got := project.Detect(context.Background(), sub)
	assert.True(t, project.Same(root, got), "got %s", got)
}

func TestName(t *testing.T) {
	assert.Equal(t, "app", project.Name("/src/app"))
	assert.Empty(t, project.Name(""))
}
