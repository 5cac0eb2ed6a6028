// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Sentinel errors. Implementations wrap these with oops codes and context,
// so callers match them with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRegistered is returned when an email already has an account.
	ErrAlreadyRegistered = errors.New("email already registered")

	// ErrUnknownField is returned when a criteria or patch names a field the
	// user entity does not have. It indicates a programming error.
	ErrUnknownField = errors.New("unknown user field")

	// ErrImmutableField is returned when a patch tries to change the user ID.
	ErrImmutableField = errors.New("immutable user field")

	// ErrInvalidPatch is returned when a patch clears a required field.
	ErrInvalidPatch = errors.New("invalid user patch")

	// ErrPersistence is returned when the storage backend fails.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidRequest is returned by the password reset flow for any
	// failure, without revealing whether the account exists.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidHashFormat is returned when a stored password hash cannot be parsed.
	ErrInvalidHashFormat = errors.New("invalid hash format")
)

// PersistenceError wraps a backend failure so that it matches both
// ErrPersistence and the original cause.
func PersistenceError(operation string, err error) error {
	return oops.Code("USER_PERSISTENCE_FAILED").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrPersistence, err))
}
