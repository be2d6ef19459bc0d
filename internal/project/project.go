// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package project identifies the project a command runs in.
package project

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const gitTimeout = 5 * time.Second

// Detect returns the git work tree root containing dir, or dir itself when it
// is not inside a repository or git is unavailable. An empty dir means the
// working directory.
func Detect(ctx context.Context, dir string) string {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return dir
	}
	if root := strings.TrimSpace(string(out)); root != "" {
		return filepath.Clean(root)
	}
	return dir
}

// Name is the last element of a project path.
func Name(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// Same reports whether two paths name the same directory.
func Same(a, b string) bool {
	ra, err1 := filepath.EvalSymlinks(a)
	rb, err2 := filepath.EvalSymlinks(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ra == rb
}
