// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/engram-dev/engram/internal/config"
	"github.com/engram-dev/engram/internal/hook"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// defaultHTTPClient is used to probe a running server. Tests replace it.
var defaultHTTPClient = &http.Client{Timeout: 2 * time.Second}

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, config, storage root, disk space, installed hooks, the embedding model and a running server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(a, cmd)
		},
	}

	cmd.Flags().String("address", "", "server address to check (default from config)")
	cmd.Flags().String("settings", "", "hook settings file (default ~/.claude/settings.json)")

	return cmd
}

func runDoctor(a *app, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	dataDir := resolveDataDir(a)
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = a.v.GetString("server.listen")
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(a) }},
		{"Data Dir", func() string { return checkDataDir(dataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
		{"Hooks", func() string { return checkHooks(cmd) }},
		{"Embedder", func() string { return checkEmbedder(cmd.Context(), a) }},
		{"Server", func() string { return checkServer(addr) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveDataDir returns the expanded data directory from viper.
func resolveDataDir(a *app) string {
	dir, err := config.ExpandHome(a.v.GetString("data_dir"))
	if err != nil {
		return a.v.GetString("data_dir")
	}
	return dir
}

func checkBinary() string {
	return fmt.Sprintf("engram %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(a *app) string {
	if _, err := a.config(); err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	if cfgFile := a.v.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkDataDir(dataDir string) string {
	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%s does not exist yet (run 'engram init')", dataDir)
		}
		return fmt.Sprintf("error: %s", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("%s is not a directory", dataDir)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Sprintf("%s is readable by other users (mode %04o)", dataDir, info.Mode().Perm())
	}
	return dataDir
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}

func checkHooks(cmd *cobra.Command) string {
	path, err := settingsPath(cmd)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	installed, err := hook.Installed(path, hook.Entries(""))
	if err != nil {
		return fmt.Sprintf("error reading %s: %s", path, err)
	}
	n := 0
	for _, ok := range installed {
		if ok {
			n++
		}
	}
	if n == 0 {
		return "not installed (run 'engram hooks install')"
	}
	return fmt.Sprintf("%d/%d installed in %s", n, len(installed), path)
}

func checkEmbedder(ctx context.Context, a *app) string {
	cfg, err := a.config()
	if err != nil {
		return "skipped: config invalid"
	}
	e, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Embedding.Timeout)
	defer cancel()
	start := time.Now()
	if _, err := e.Embed(ctx, "ping"); err != nil {
		return fmt.Sprintf("%s unreachable: %s", e.Name(), err)
	}
	return fmt.Sprintf("%s ok (%s)", e.Name(), time.Since(start).Round(time.Millisecond))
}

func checkServer(addr string) string {
	resp, err := defaultHTTPClient.Get("http://" + addr + "/health")
	if err != nil {
		return fmt.Sprintf("not running at %s (run 'engram serve')", addr)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("unhealthy at %s: HTTP %d", addr, resp.StatusCode)
	}
	return fmt.Sprintf("ok at %s", addr)
}
