// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/engram-dev/engram/internal/config"
	"github.com/engram-dev/engram/internal/logging"
	"github.com/engram-dev/engram/internal/secrets"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// secretKeys are the config keys that may hold keyring:// references.
var secretKeys = []string{"embedding.api_key", "compression.api_key"}

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.Keyring{}
}

// app is the state shared by the commands of one root command.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd creates the root engram command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "engram",
		Short: "Engram: searchable memory for coding sessions",
		Long: "Engram captures observations from coding sessions, compresses finished sessions into summaries " +
			"and brings the relevant ones back when a new session starts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(a),
		newSaveCmd(a),
		newSearchCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newSessionsCmd(a),
		newCompressCmd(a),
		newContextCmd(a),
		newHookCmd(a),
		newHooksCmd(),
		newReindexCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
		newDoctorCmd(a),
		newSecretCmd(),
		newConfigCmd(a),
		newVersionCmd(),
	)

	return root
}

// init sets up viper with the standard precedence (flag > env > file >
// defaults) and installs the logger.
func (a *app) init(cmd *cobra.Command) error {
	if err := initViper(a.v, cmd); err != nil {
		return err
	}

	level := a.v.GetString("logging.level")
	if a.v.GetBool("verbose") {
		level = "debug"
	}
	logger, err := logging.Setup(level, a.v.GetString("logging.format"), cmd.ErrOrStderr())
	if err != nil {
		return engramerr.Wrap(err, engramerr.CodeCLISetupFailure, "setting up logging")
	}
	a.logger = logger
	return nil
}

func initViper(v *viper.Viper, cmd *cobra.Command) error {
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
		config.WarnInsecurePermissions(cfgFile)
	} else {
		// SetConfigType is left unset so viper never tries the bare name,
		// which would match an ./engram binary.
		v.SetConfigName("engram")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/engram")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		} else {
			config.WarnInsecurePermissions(v.ConfigFileUsed())
		}
	}

	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("data_dir", flags.Lookup("data-dir")); err != nil {
		return engramerr.Errorf(engramerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return engramerr.Errorf(engramerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}
	return nil
}

// config resolves keyring references and decodes the validated
// configuration. The result is cached for the rest of the command.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	if err := secrets.ResolveViper(a.v, secretStoreFactory(), secretKeys...); err != nil {
		return nil, err
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// open wires the memory service for a command. The caller closes it.
func (a *app) open(ctx context.Context) (*Engram, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return Wire(ctx, cfg, a.logger)
}
