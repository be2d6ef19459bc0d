// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/engram-dev/engram/internal/server"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory API over HTTP",
		Long:  "Open the store, run the background reindexer and serve the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(a, cmd)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	return cmd
}

func runServe(a *app, cmd *cobra.Command) error {
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		a.v.Set("server.listen", listen)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	srv, err := server.New(server.Config{
		ListenAddr:  e.Config.Server.Listen,
		CORSOrigins: e.Config.Server.CORSOrigins,
		Version:     version,
	}, e.Service, e.Embedder, a.logger)
	if err != nil {
		return engramerr.Wrap(err, engramerr.CodeCLISetupFailure, "creating server")
	}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.Service.Start(bgCtx)

	return srv.Start(ctx)
}
