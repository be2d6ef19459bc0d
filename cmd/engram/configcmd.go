// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"

	"github.com/engram-dev/engram/internal/config"
	"github.com/engram-dev/engram/internal/secrets"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the merged configuration as YAML with API keys redacted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.FromViper(a.v)
				if err != nil {
					return err
				}
				cfg.Embedding.APIKey = redact(cfg.Embedding.APIKey)
				cfg.Compression.APIKey = redact(cfg.Compression.APIKey)

				data, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file in use",
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := a.v.ConfigFileUsed()
				if path == "" {
					path = "(none, using defaults)"
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			},
		},
	)
	return cmd
}

// redact hides literal keys; keyring references are shown as written.
func redact(key string) string {
	if key == "" || secrets.IsReference(key) {
		return key
	}
	return redacted
}
