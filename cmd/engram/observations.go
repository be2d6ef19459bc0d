// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/engram-dev/engram/internal/hook"
	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/project"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/cobra"
)

func newSaveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [content]",
		Short: "Store an observation",
		Long:  "Store an observation from the arguments, or from stdin when no arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(a, cmd, args)
		},
	}

	cmd.Flags().StringP("type", "t", "observation", "observation type")
	cmd.Flags().StringP("session", "s", hook.DefaultSessionID, "session id")
	cmd.Flags().StringP("project", "p", "", "project path (default: detected from the working directory)")
	cmd.Flags().StringSliceP("file", "f", nil, "referenced file, repeatable")

	return cmd
}

func runSave(a *app, cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return engramerr.Errorf(engramerr.CodeCLIInputInvalid, "reading stdin: %w", err)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return engramerr.New(engramerr.CodeCLIInputInvalid, "nothing to save")
	}

	typ, _ := cmd.Flags().GetString("type")
	session, _ := cmd.Flags().GetString("session")
	proj, _ := cmd.Flags().GetString("project")
	files, _ := cmd.Flags().GetStringSlice("file")
	if proj == "" {
		proj = project.Detect(cmd.Context(), "")
	}

	e, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	id, err := e.Service.Observations.Write(cmd.Context(), memory.WriteRequest{
		Content:   content,
		Type:      typ,
		SessionID: session,
		Project:   proj,
		FileRefs:  files,
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved observation #%d\n", id)
	return err
}

func newShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			o, err := e.Service.Observations.Read(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), o)
			}
			writeObservation(cmd.OutOrStdout(), o)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an observation and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if err := e.Service.Observations.Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted observation #%d\n", id)
			return err
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, engramerr.Errorf(engramerr.CodeCLIInputInvalid, "invalid observation id %q", s)
	}
	return id, nil
}
