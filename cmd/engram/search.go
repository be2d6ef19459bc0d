// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/project"
	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search observations",
		Long: "Rank observations by keyword and semantic similarity. In hybrid mode a failing " +
			"embedding model degrades the search to keywords instead of failing it.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(a, cmd, args)
		},
	}

	cmd.Flags().StringP("mode", "m", "", "hybrid, semantic or keyword (default from config)")
	cmd.Flags().IntP("limit", "n", 0, "maximum results (default from config)")
	cmd.Flags().StringSliceP("type", "t", nil, "restrict to observation types")
	cmd.Flags().StringP("session", "s", "", "restrict to a session")
	cmd.Flags().StringP("project", "p", "", `restrict to a project path, "." for the current one`)
	cmd.Flags().Duration("since", 0, "only observations newer than this age, e.g. 72h")
	cmd.Flags().Bool("all", false, "include superseded observations")
	cmd.Flags().Bool("json", false, "print as JSON")

	return cmd
}

func runSearch(a *app, cmd *cobra.Command, args []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	modeFlag, _ := cmd.Flags().GetString("mode")
	if modeFlag == "" {
		modeFlag = cfg.Retrieval.Mode
	}
	mode, err := memory.ParseMode(modeFlag)
	if err != nil {
		return err
	}
	rawTypes, _ := cmd.Flags().GetStringSlice("type")
	types, err := store.ParseObservationTypes(rawTypes)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	session, _ := cmd.Flags().GetString("session")
	proj, _ := cmd.Flags().GetString("project")
	if proj == "." {
		proj = project.Detect(cmd.Context(), "")
	}
	since, _ := cmd.Flags().GetDuration("since")
	all, _ := cmd.Flags().GetBool("all")
	if limit < 0 || since < 0 {
		return engramerr.New(engramerr.CodeCLIInputInvalid, "--limit and --since must not be negative")
	}

	filters := store.Filters{
		Types:             types,
		SessionID:         session,
		Project:           proj,
		IncludeSuperseded: all,
	}
	if since > 0 {
		filters.Since = time.Now().Add(-since)
	}

	e, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	report, err := e.Service.Engine.SearchReport(cmd.Context(), memory.Query{
		Text:    strings.Join(args, " "),
		Mode:    mode,
		K:       limit,
		Filters: filters,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, report)
	}
	writeReport(out, report)
	return nil
}

func writeReport(w io.Writer, report *memory.Report) {
	if report.Degraded {
		fmt.Fprintln(w, warnStyle.Render("embedding model unavailable, showing keyword matches only: "+report.DegradedReason))
	}
	if len(report.Results) == 0 {
		fmt.Fprintln(w, "No matching observations.")
		return
	}

	widths := []int{6, 6, 10, 10, 0}
	fmt.Fprintln(w, headerStyle.Render(row(widths, "ID", "SCORE", "TYPE", "AGE", "CONTENT")))
	for _, r := range report.Results {
		o := r.Observation
		fmt.Fprintln(w, row(widths,
			fmt.Sprintf("#%d", o.ID),
			fmt.Sprintf("%.3f", r.Score),
			string(o.Type),
			ago(o.CreatedAt),
			snippet(o.Content, 80),
		))
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d result(s), %s mode", len(report.Results), report.Mode)))
}
