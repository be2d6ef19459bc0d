// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"

	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/store"
	"github.com/engram-dev/engram/pkg/health"
	"github.com/spf13/cobra"
)

type statusReport struct {
	DataDir  string             `json:"data_dir"`
	Embedder string             `json:"embedder"`
	Stats    store.Stats        `json:"stats"`
	Index    memory.IndexHealth `json:"index"`
	Health   health.Metrics     `json:"embedder_health"`
}

func newStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show storage, index and embedding model status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			stats, err := e.Service.Observations.Stats(ctx)
			if err != nil {
				return err
			}
			idx, err := e.Service.Reindexer.Health(ctx)
			if err != nil {
				return err
			}
			if err := e.Embedder.Ping(ctx); err != nil {
				a.logger.Debug("embedding model ping failed", "error", err)
			}

			report := statusReport{
				DataDir:  e.Config.DataDir,
				Embedder: e.Embedder.Name(),
				Stats:    stats,
				Index:    idx,
				Health:   e.Embedder.Health(),
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			writeStatus(cmd, report)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func writeStatus(cmd *cobra.Command, r statusReport) {
	out := cmd.OutOrStdout()
	line := func(label string, value any) {
		fmt.Fprintf(out, "%-22s %v\n", label+":", value)
	}

	fmt.Fprintln(out, titleStyle.Render("engram "+version))
	line("Data dir", r.DataDir)
	line("Observations", r.Stats.Observations)
	line("  active", r.Stats.Active)
	line("  superseded", r.Stats.Superseded)
	line("  summaries", r.Stats.Summaries)
	line("Sessions", r.Stats.Sessions)
	line("Vectors", r.Stats.Vectors)
	line("Pending embeddings", r.Index.Pending)
	if r.Index.Stuck > 0 {
		line("Stuck embeddings", warnStyle.Render(fmt.Sprintf("%d (%s)", r.Index.Stuck, r.Index.LastError)))
	}

	state := okStyle.Render("available")
	if !r.Health.Available {
		state = warnStyle.Render("unavailable: " + r.Health.LastError)
	}
	line("Embedder", r.Embedder+" "+state)
}
