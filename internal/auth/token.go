// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// TokenGenerator produces opaque identifiers for sessions and reset tokens.
// Tokens carry no type information; the user field they are stored in gives
// them meaning.
type TokenGenerator interface {
	NewToken() (string, error)
}

// UUIDTokenGenerator generates random (version 4) UUID tokens.
type UUIDTokenGenerator struct{}

// NewUUIDTokenGenerator creates a new UUIDTokenGenerator.
func NewUUIDTokenGenerator() *UUIDTokenGenerator {
	return &UUIDTokenGenerator{}
}

// NewToken returns a fresh random UUID string.
func (g *UUIDTokenGenerator) NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "uuid.NewRandom").
			Wrap(err)
	}
	return id.String(), nil
}
