// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/engram-dev/engram/internal/hook"
	"github.com/engram-dev/engram/internal/project"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/cobra"
)

// maxHookPayload bounds what a hook reads from stdin.
const maxHookPayload = 4 << 20

func newHookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook <capture|session-end|session-start>",
		Short: "Handle a host hook event read from stdin",
		Long: "Handle one host hook event. The JSON payload is read from stdin. " +
			"session-start prints the context block for the new session to stdout.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(a, cmd, args[0])
		},
	}
	cmd.Flags().Bool("json", false, "print the full result as JSON")
	return cmd
}

func runHook(a *app, cmd *cobra.Command, event string) error {
	kind, err := hook.ParseKind(event)
	if err != nil {
		return err
	}
	payload, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxHookPayload))
	if err != nil {
		return engramerr.Errorf(engramerr.CodeCLIInputInvalid, "reading hook payload: %w", err)
	}
	ev, err := hook.Parse(kind, payload)
	if err != nil {
		return err
	}
	ev.Project = project.Detect(cmd.Context(), ev.Project)

	e, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	res, err := hook.NewHandler(e.Service, a.logger).RetryPending(hook.DefaultRetryBatch).Handle(cmd.Context(), ev)
	if err != nil {
		return err
	}
	a.logger.Debug("hook handled", "kind", res.Kind, "session_id", res.SessionID)

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, res)
	}
	if res.Context != nil && res.Context.Text != "" {
		_, err = fmt.Fprint(out, res.Context.Text)
	}
	return err
}

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage engram hooks in the Claude Code settings file",
	}
	cmd.PersistentFlags().String("settings", "", "settings file (default ~/.claude/settings.json)")

	install := &cobra.Command{
		Use:   "install",
		Short: "Register the capture, session-end and session-start hooks",
		RunE:  runHooksInstall,
	}
	install.Flags().String("bin", "", "engram binary the hooks invoke (default: this executable)")
	install.Flags().Bool("dry-run", false, "report what would change without writing")

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove every engram hook",
		RunE:  runHooksUninstall,
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show which engram hooks are registered",
		RunE:  runHooksStatus,
	}
	status.Flags().String("bin", "", "engram binary the hooks invoke (default: this executable)")

	cmd.AddCommand(install, uninstall, status)
	return cmd
}

func settingsPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("settings"); p != "" {
		return p, nil
	}
	return hook.DefaultSettingsPath()
}

func hookBinary(cmd *cobra.Command) string {
	if bin, _ := cmd.Flags().GetString("bin"); bin != "" {
		return bin
	}
	exe, err := os.Executable()
	if err != nil {
		return "engram"
	}
	return exe
}

func runHooksInstall(cmd *cobra.Command, _ []string) error {
	path, err := settingsPath(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	changes, err := hook.Install(path, hook.Entries(hookBinary(cmd)), dryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	verb := "added"
	if dryRun {
		verb = "would add"
	}
	for _, c := range changes {
		state := dimStyle.Render("already installed")
		if c.Added {
			state = okStyle.Render(verb)
		}
		fmt.Fprintf(out, "%-14s %s\n", c.Event+":", state)
	}
	if !dryRun {
		fmt.Fprintf(out, "Settings: %s\n", path)
	}
	return nil
}

func runHooksUninstall(cmd *cobra.Command, _ []string) error {
	path, err := settingsPath(cmd)
	if err != nil {
		return err
	}
	removed, err := hook.Uninstall(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(removed) == 0 {
		_, err := fmt.Fprintln(out, "No engram hooks installed.")
		return err
	}
	_, err = fmt.Fprintf(out, "Removed hooks: %s\n", strings.Join(removed, ", "))
	return err
}

func runHooksStatus(cmd *cobra.Command, _ []string) error {
	path, err := settingsPath(cmd)
	if err != nil {
		return err
	}
	entries := hook.Entries(hookBinary(cmd))
	installed, err := hook.Installed(path, entries)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range entries {
		state := warnStyle.Render("missing")
		if installed[e.Event] {
			state = okStyle.Render("installed")
		}
		fmt.Fprintf(out, "%-14s %s\n", e.Event+":", state)
	}
	return nil
}
