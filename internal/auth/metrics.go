// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Storage call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Storage operation labels.
const (
	OpAdd       = "add"
	OpFindOneBy = "find_one_by"
	OpUpdate    = "update"
	OpTx        = "tx"
)

// StoreMetrics counts user repository calls.
type StoreMetrics struct {
	Calls *prometheus.CounterVec
}

// NewStoreMetrics creates and registers the user store metrics.
// Panics if registration fails (following prometheus convention).
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_user_store_calls_total",
				Help: "Total number of user store calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
	reg.MustRegister(m.Calls)
	return m
}

// InstrumentedRepository records every call to the wrapped repository.
type InstrumentedRepository struct {
	next    UserRepository
	metrics *StoreMetrics
}

// NewInstrumentedRepository wraps next so that its calls are counted.
func NewInstrumentedRepository(next UserRepository, metrics *StoreMetrics) *InstrumentedRepository {
	return &InstrumentedRepository{next: next, metrics: metrics}
}

// Add stores a new user.
func (r *InstrumentedRepository) Add(ctx context.Context, email, hashedPassword string) (*User, error) {
	user, err := r.next.Add(ctx, email, hashedPassword)
	r.record(OpAdd, outcomeOf(err))
	return user, err //nolint:wrapcheck // decorator passes errors through unchanged
}

// FindOneBy returns the first user matching criteria.
func (r *InstrumentedRepository) FindOneBy(ctx context.Context, criteria Criteria) (*User, bool, error) {
	user, ok, err := r.next.FindOneBy(ctx, criteria)
	outcome := outcomeOf(err)
	if err == nil && !ok {
		outcome = OutcomeNotFound
	}
	r.record(OpFindOneBy, outcome)
	return user, ok, err //nolint:wrapcheck // decorator passes errors through unchanged
}

// Update applies a patch to a user.
func (r *InstrumentedRepository) Update(ctx context.Context, id ulid.ULID, patch Patch) error {
	err := r.next.Update(ctx, id, patch)
	r.record(OpUpdate, outcomeOf(err))
	return err //nolint:wrapcheck // decorator passes errors through unchanged
}

// InTx runs fn in a transaction; calls made inside it are counted too.
func (r *InstrumentedRepository) InTx(ctx context.Context, fn func(repo UserRepository) error) error {
	err := r.next.InTx(ctx, func(repo UserRepository) error {
		return fn(&InstrumentedRepository{next: repo, metrics: r.metrics})
	})
	r.record(OpTx, outcomeOf(err))
	return err //nolint:wrapcheck // decorator passes errors through unchanged
}

func (r *InstrumentedRepository) record(operation, outcome string) {
	r.metrics.Calls.WithLabelValues(operation, outcome).Inc()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

// Compile-time interface check.
var _ UserRepository = (*InstrumentedRepository)(nil)
