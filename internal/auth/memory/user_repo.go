// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-memory user repository for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
// Users are kept in insertion order.
type UserRepository struct {
	mu    sync.Mutex
	users []*auth.User
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// Add stores a new user.
func (r *UserRepository) Add(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*table)(&r.users).add(ctx, email, hashedPassword)
}

// FindOneBy returns the first user matching criteria.
func (r *UserRepository) FindOneBy(ctx context.Context, criteria auth.Criteria) (*auth.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*table)(&r.users).findOneBy(ctx, criteria)
}

// Update applies a patch to the user with the given ID.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*table)(&r.users).update(ctx, id, patch)
}

// InTx runs fn while holding the repository lock. fn works on a copy of the
// data that replaces the original only if fn succeeds.
func (r *UserRepository) InTx(_ context.Context, fn func(repo auth.UserRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	working := make(table, len(r.users))
	for i, u := range r.users {
		working[i] = u.Clone()
	}

	if err := fn(&working); err != nil {
		return err
	}
	r.users = working
	return nil
}

// table is the unlocked view of the data used inside transactions.
type table []*auth.User

func (t *table) Add(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	return t.add(ctx, email, hashedPassword)
}

func (t *table) FindOneBy(ctx context.Context, criteria auth.Criteria) (*auth.User, bool, error) {
	return t.findOneBy(ctx, criteria)
}

func (t *table) Update(ctx context.Context, id ulid.ULID, patch auth.Patch) error {
	return t.update(ctx, id, patch)
}

// InTx on a table is already inside a transaction.
func (t *table) InTx(_ context.Context, fn func(repo auth.UserRepository) error) error {
	return fn(t)
}

func (t *table) add(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, auth.PersistenceError("insert user", err)
	}
	for _, u := range *t {
		if u.Email == email {
			return nil, oops.Code("USER_EMAIL_TAKEN").
				With("email", email).
				Wrap(auth.ErrAlreadyRegistered)
		}
	}

	now := time.Now().UTC()
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	*t = append(*t, user)
	return user.Clone(), nil
}

func (t *table) findOneBy(ctx context.Context, criteria auth.Criteria) (*auth.User, bool, error) {
	if err := criteria.Validate(); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, auth.PersistenceError("find user", err)
	}
	for _, u := range *t {
		if criteria.Matches(u) {
			return u.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (t *table) update(ctx context.Context, id ulid.ULID, patch auth.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return auth.PersistenceError("update user", err)
	}
	for _, u := range *t {
		if u.ID != id {
			continue
		}
		if email, ok := patch[auth.FieldEmail]; ok && t.emailTaken(*email, id) {
			return oops.Code("USER_EMAIL_TAKEN").
				With("email", *email).
				Wrap(auth.ErrAlreadyRegistered)
		}
		u.Apply(patch)
		u.UpdatedAt = time.Now().UTC()
		return nil
	}
	return oops.Code("USER_NOT_FOUND").
		With("id", id.String()).
		Wrap(auth.ErrNotFound)
}

func (t *table) emailTaken(email string, except ulid.ULID) bool {
	for _, u := range *t {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

// Compile-time interface checks.
var (
	_ auth.UserRepository = (*UserRepository)(nil)
	_ auth.UserRepository = (*table)(nil)
)
