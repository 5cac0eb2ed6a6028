// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default pool settings.
const (
	DefaultConnectTimeout  = 5 * time.Second
	DefaultConnectAttempts = 5
	DefaultMaxConns        = 10
)

// PoolOptions controls how Connect dials the database.
type PoolOptions struct {
	MaxConns        int32
	ConnectTimeout  time.Duration
	ConnectAttempts uint64
	// InitialBackoff is the first retry delay; it doubles on each attempt.
	InitialBackoff time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ConnectAttempts == 0 {
		o.ConnectAttempts = DefaultConnectAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 250 * time.Millisecond
	}
	return o
}

// poolConfig parses dsn and applies opts.
func poolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	if dsn == "" {
		return nil, oops.Code("DB_URL_MISSING").Errorf("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_URL_INVALID").With("operation", "parse database url").Wrap(err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	return cfg, nil
}

// Connect opens a connection pool and waits until the database answers a
// ping. Failed pings are retried with exponential backoff, which lets the
// server start alongside a database that is still booting.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	opts = opts.withDefaults()
	cfg, err := poolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	// WithMaxRetries counts retries, not attempts.
	backoff := retry.WithMaxRetries(opts.ConnectAttempts-1, retry.NewExponential(opts.InitialBackoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
		if pingErr := pool.Ping(pingCtx); pingErr != nil {
			slog.WarnContext(ctx, "database not reachable",
				"attempt", attempt,
				"max_attempts", opts.ConnectAttempts,
				"error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	return pool, nil
}
