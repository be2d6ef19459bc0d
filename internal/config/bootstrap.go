// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

//go:embed engram.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/engram/engram.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "engram", "engram.yaml"), nil
}

// BootstrapConfig writes the default commented config to the default path if
// nothing is there yet. It returns the path written, or "" when the file
// already existed or could not be written.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	return bootstrapAt(cfgPath)
}

func bootstrapAt(cfgPath string) string {
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
