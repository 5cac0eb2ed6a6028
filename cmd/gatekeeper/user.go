// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/logging"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register an account",
		Long: `Register an account in the postgres store through the same rules as
POST /users. The password is read from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runUserCreate(cmd, cfg, email, deps)
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email (required)")
	_ = create.MarkFlagRequired("email") //nolint:errcheck // flag is defined above

	cmd.AddCommand(create)
	return cmd
}

func runUserCreate(cmd *cobra.Command, cfg config.Config, email string, deps *Deps) error {
	if cfg.Store.Backend != config.BackendPostgres {
		return oops.Code("CONFIG_INVALID").
			With("key", "store.backend").
			Errorf("user create requires the postgres store")
	}

	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := logging.Setup(serviceName, version, logging.Options{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	}, cmd.ErrOrStderr())

	users, err := openUserStore(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer users.close()

	svc, err := newAuthService(cfg, users.repo, prometheus.NewRegistry(), logger)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	user, err := svc.Register(ctx, email, password)
	if err != nil {
		return err //nolint:wrapcheck // already an oops error
	}

	cmd.Printf("Created user %s (%s)\n", user.Email, user.ID)
	return nil
}

// readPassword reads one line from r, without the line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return password, nil
}
