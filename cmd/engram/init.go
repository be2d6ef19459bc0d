// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"
	"os"

	"github.com/engram-dev/engram/internal/config"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file and storage root",
		Long: "Write the default config when none exists, create and migrate the storage root " +
			"and check that the embedding model answers.\n\n" +
			"With --wizard, first choose an embedding provider interactively. Its API key is stored " +
			"in the OS keyring and referenced from the config as keyring://engram/<provider>.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if wizard, _ := cmd.Flags().GetBool("wizard"); wizard {
				if err := runInitWizard(a, cmd); err != nil {
					return err
				}
			}

			cfgPath := a.v.ConfigFileUsed()
			if cfgPath == "" {
				cfgPath = config.BootstrapConfig()
			}
			if cfgPath != "" {
				fmt.Fprintf(out, "%-12s %s\n", "Config:", cfgPath)
			} else {
				fmt.Fprintf(out, "%-12s %s\n", "Config:", "defaults (no config file)")
			}

			e, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()
			fmt.Fprintf(out, "%-12s %s\n", "Storage:", e.Config.DataDir)

			if err := e.Embedder.Ping(cmd.Context()); err != nil {
				fmt.Fprintf(out, "%-12s %s\n", "Embedder:", warnStyle.Render(e.Embedder.Name()+" unreachable: "+err.Error()))
				fmt.Fprintln(out, dimStyle.Render("Observations are still stored and embedded once the model is back."))
				return nil
			}
			fmt.Fprintf(out, "%-12s %s\n", "Embedder:", okStyle.Render(e.Embedder.Name()+" ok"))
			return nil
		},
	}

	cmd.Flags().Bool("wizard", false, "choose the embedding provider interactively")

	return cmd
}

// runInitWizard runs the setup wizard and reloads the config it wrote.
func runInitWizard(a *app, cmd *cobra.Command) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		return engramerr.New(engramerr.CodeCLISetupFailure,
			"engram init --wizard requires an interactive terminal; edit engram.yaml directly instead")
	}

	path, err := wizardTarget(a)
	if err != nil {
		return err
	}
	written, err := runWizard(secretStoreFactory(), path)
	if err != nil || written == "" {
		return err
	}

	a.v.SetConfigFile(written)
	if err := a.v.ReadInConfig(); err != nil {
		return engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "reading config written by wizard: %w", err)
	}
	a.cfg = nil
	return nil
}
