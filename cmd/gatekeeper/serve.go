// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
	"github.com/holomush/gatekeeper/internal/auth/postgres"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/logging"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/internal/store"
	"github.com/holomush/gatekeeper/internal/web"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API and, unless metrics.addr is empty, the metrics and
health probe listener. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, autoMigrate, deps)
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving (postgres store only)")

	return cmd
}

// userStore is an opened user repository with its readiness probe and
// cleanup function.
type userStore struct {
	repo      auth.UserRepository
	readiness observability.ReadinessChecker
	close     func()
}

// openUserStore opens the configured store backend.
func openUserStore(ctx context.Context, cfg config.Config, deps *Deps) (*userStore, error) {
	if cfg.Store.Backend == config.BackendMemory {
		slog.WarnContext(ctx, "using in-memory user store, accounts are lost on restart")
		return &userStore{repo: memory.NewUserRepository(), close: func() {}}, nil
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, oops.With("operation", "open user store").Wrap(err)
	}
	slog.InfoContext(ctx, "connected to database")

	return &userStore{
		repo:      postgres.NewUserRepository(pool),
		readiness: pool.Ping,
		close:     pool.Close,
	}, nil
}

// newAuthService wires the service with instrumented storage.
func newAuthService(cfg config.Config, repo auth.UserRepository, reg prometheus.Registerer, logger *slog.Logger) (*auth.Service, error) {
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time:      cfg.Hasher.Time,
		MemoryKiB: cfg.Hasher.MemoryKiB,
		Threads:   cfg.Hasher.Threads,
	})
	instrumented := auth.NewInstrumentedRepository(repo, auth.NewStoreMetrics(reg))
	return auth.NewAuthServiceWithLogger(instrumented, hasher, auth.NewUUIDTokenGenerator(), logger)
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg config.Config, autoMigrate bool, deps *Deps) error {
	logger := logging.SetDefault(serviceName, version, logging.Options{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if autoMigrate {
		if cfg.Store.Backend != config.BackendPostgres {
			return oops.Code("CONFIG_INVALID").Errorf("--migrate requires the postgres store")
		}
		if err := migrateUp(cmd, cfg.Database.URL, deps); err != nil {
			return err
		}
	}

	users, err := openUserStore(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer users.close()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		registry  prometheus.Registerer = prometheus.NewRegistry()
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, users.readiness)
		metrics = obsServer.Metrics()
		registry = obsServer.Registry()
	}

	svc, err := newAuthService(cfg, users.repo, registry, logger)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	handler := web.NewHandler(svc, web.Options{
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.CookieSecure,
		Logger:       logger,
		Metrics:      metrics,
	})

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           web.NewRouter(handler, metrics),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if obsServer != nil {
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			_ = listener.Close() //nolint:errcheck // start error takes precedence
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrCh <- serveErr
		}
	}()

	cmd.Printf("gatekeeper listening on %s\n", listener.Addr())
	logger.InfoContext(ctx, "gatekeeper ready",
		"http_addr", listener.Addr().String(),
		"store", cfg.Store.Backend,
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-httpErrCh:
		if ok {
			serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return serveErr
}

// monitorServerErrors cancels ctx when errCh reports an error. It returns
// when errCh is closed or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
