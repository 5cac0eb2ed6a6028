// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// serviceName identifies this process in logs.
const serviceName = "gatekeeper"

// NewRootCmd creates the root command for the gatekeeper CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

// newRootCmdWithDeps builds the command tree. nil fields of deps use their
// defaults.
func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "gatekeeper - credential and session service",
		Long: `gatekeeper registers user accounts, verifies logins, issues session
cookies and runs the password reset flow over a small HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: $XDG_CONFIG_HOME/gatekeeper/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewUserCmd(deps))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// configPath returns the config file to read and whether it must exist.
// An explicit --config must exist; the XDG default is optional.
func configPath(cmd *cobra.Command) (string, bool) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, true
	}
	return xdg.ConfigFile(), false
}

// loadConfig reads the config file and the command-line flags of cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, required := configPath(cmd)
	return config.Load(path, required, cmd.Flags())
}
