// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Embed pending observations and repair the indexes",
		Long: "Embed every observation still waiting for a vector, then compare the vector and keyword " +
			"indexes with the stored records and fix any drift.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			skipRepair, _ := cmd.Flags().GetBool("no-repair")

			e, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			out := cmd.OutOrStdout()
			if !skipRepair {
				rep, err := e.Service.Reindexer.Repair(ctx)
				if err != nil {
					return err
				}
				if rep.Consistent() {
					fmt.Fprintln(out, "Indexes consistent")
				} else {
					fmt.Fprintf(out, "Repaired: %d orphan vector(s), %d missing vector(s) queued, keyword index rebuilt: %t\n",
						len(rep.OrphanVectors), len(rep.MissingVectors), rep.TextRebuilt)
				}
			}

			res, err := e.Service.Reindexer.DrainAll(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "Embedded %d, failed %d, remaining %d\n", res.Indexed, res.Failed, res.Remaining)
			return err
		},
	}
	cmd.Flags().Bool("no-repair", false, "only embed pending observations")
	return cmd
}
