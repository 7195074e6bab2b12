// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/logging"
)

const serviceName = "taskmaster"

// NewRootCmd creates the root command for the TaskMaster CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil, nil)
}

func newRootCmd(serveDeps *ServeDeps, migrateDeps *MigrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskmaster",
		Short: "TaskMaster - account and session service",
		Long: `TaskMaster serves sign-up, login, guest and OAuth sessions, profile
updates and emailed password reset codes over a JSON HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default XDG_CONFIG_HOME/taskmaster/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(serveDeps))
	cmd.AddCommand(NewMigrateCmd(migrateDeps))
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads configuration for cmd, honoring --config and the
// config flags inherited from the root.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path = ""
	}
	return config.Load(config.Options{File: path, Flags: cmd.Flags()})
}

// newLogger builds the process logger from cfg, writing to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.Setup(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr()), nil
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(serviceName + " " + versionString())
		},
	}
}

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file, TASKMASTER_*
environment variables and flags are applied. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err //nolint:wrapcheck // stdout write
		},
	}
}
