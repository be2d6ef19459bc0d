// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/project"
	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			sessions, err := e.Service.Observations.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(out, sessions)
			}
			if len(sessions) == 0 {
				_, err := fmt.Fprintln(out, "No sessions recorded.")
				return err
			}
			widths := []int{38, 7, 7, 10, 12, 0}
			fmt.Fprintln(out, headerStyle.Render(row(widths, "SESSION", "OBS", "ACTIVE", "SUMMARIES", "LAST", "PROJECT")))
			for _, s := range sessions {
				fmt.Fprintln(out, row(widths,
					s.ID,
					strconv.Itoa(s.Observations),
					strconv.Itoa(s.Active),
					strconv.Itoa(s.Summaries),
					ago(s.LastAt),
					s.Project,
				))
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "maximum sessions")
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func newCompressCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <session-id>",
		Short: "Compress a session's observations into summaries",
		Long: "Replace the active observations of a session with summaries. Sessions below the " +
			"configured threshold are left alone. Running it twice changes nothing.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			res, err := e.Service.Compressor.Compress(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(out, res)
			}
			switch {
			case len(res.Repaired) > 0:
				_, err = fmt.Fprintf(out, "Repaired %d summary(ies) from an interrupted run\n", len(res.Repaired))
			case res.Skipped:
				_, err = fmt.Fprintf(out, "Nothing to compress in session %s\n", res.SessionID)
			default:
				_, err = fmt.Fprintf(out, "Compressed %d observation(s) into %d summary(ies)\n", len(res.SourceIDs), len(res.SummaryIDs))
			}
			return err
		},
	}
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func newContextCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the context block a new session would receive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			proj, _ := cmd.Flags().GetString("project")
			session, _ := cmd.Flags().GetString("session")
			query, _ := cmd.Flags().GetString("query")
			if proj == "" {
				proj = project.Detect(cmd.Context(), "")
			}

			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			inj, err := e.Service.Injector.Inject(cmd.Context(), memory.InjectRequest{
				SessionID: session,
				Project:   proj,
				Query:     query,
			})
			if err != nil {
				return err
			}
			if inj.Text == "" {
				_, err := fmt.Fprintln(cmd.ErrOrStderr(), "No relevant memory.")
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), inj.Text)
			return err
		},
	}
	cmd.Flags().StringP("project", "p", "", "project path (default: detected from the working directory)")
	cmd.Flags().StringP("session", "s", "", "session id")
	cmd.Flags().StringP("query", "q", "", "query (default: derived from recent project history)")
	return cmd
}
