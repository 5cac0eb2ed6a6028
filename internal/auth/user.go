// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User is a registered account.
// SessionID and ResetToken are nil when no session or reset is active.
type User struct {
	ID             ulid.ULID
	Email          string
	HashedPassword string
	SessionID      *string
	ResetToken     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Field names a user attribute for lookups and patches.
type Field string

// Known user fields.
const (
	FieldID             Field = "id"
	FieldEmail          Field = "email"
	FieldHashedPassword Field = "hashed_password"
	FieldSessionID      Field = "session_id"
	FieldResetToken     Field = "reset_token"
)

// Fields lists the known user fields in column order.
var Fields = []Field{FieldID, FieldEmail, FieldHashedPassword, FieldSessionID, FieldResetToken}

// Valid reports whether f is a known user field.
func (f Field) Valid() bool {
	return slices.Contains(Fields, f)
}

// Nullable reports whether the field may be cleared.
func (f Field) Nullable() bool {
	return f == FieldSessionID || f == FieldResetToken
}

// Value returns the field's current value on u. Nullable fields that are
// unset return ("", false).
func (u *User) Value(f Field) (string, bool) {
	switch f {
	case FieldID:
		return u.ID.String(), true
	case FieldEmail:
		return u.Email, true
	case FieldHashedPassword:
		return u.HashedPassword, true
	case FieldSessionID:
		return deref(u.SessionID)
	case FieldResetToken:
		return deref(u.ResetToken)
	default:
		return "", false
	}
}

// Apply assigns every field in p to u. The patch must already be validated.
func (u *User) Apply(p Patch) {
	for f, v := range p {
		switch f {
		case FieldEmail:
			u.Email = *v
		case FieldHashedPassword:
			u.HashedPassword = *v
		case FieldSessionID:
			u.SessionID = clonePtr(v)
		case FieldResetToken:
			u.ResetToken = clonePtr(v)
		}
	}
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	c.SessionID = clonePtr(u.SessionID)
	c.ResetToken = clonePtr(u.ResetToken)
	return &c
}

// Criteria selects users whose fields equal every given value.
type Criteria map[Field]string

// By returns criteria matching a single field.
func By(f Field, value string) Criteria {
	return Criteria{f: value}
}

// Validate checks that every criterion names a known field.
func (c Criteria) Validate() error {
	if len(c) == 0 {
		return oops.Code("USER_UNKNOWN_FIELD").
			Wrapf(ErrUnknownField, "criteria must name at least one field")
	}
	for f := range c {
		if !f.Valid() {
			return oops.Code("USER_UNKNOWN_FIELD").
				With("field", string(f)).
				Wrapf(ErrUnknownField, "unknown criteria field %q", f)
		}
	}
	return nil
}

// Fields returns the criteria fields in column order.
func (c Criteria) Fields() []Field {
	return orderedFields(c)
}

// Matches reports whether u satisfies every criterion. A nullable field
// never matches while unset.
func (c Criteria) Matches(u *User) bool {
	for f, want := range c {
		got, ok := u.Value(f)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Patch assigns new values to user fields. A nil value clears a nullable field.
type Patch map[Field]*string

// Set returns a pointer to v for use as a patch value.
func Set(v string) *string {
	return &v
}

// Validate checks the patch against the fixed user field set.
func (p Patch) Validate() error {
	for f, v := range p {
		if !f.Valid() {
			return oops.Code("USER_UNKNOWN_FIELD").
				With("field", string(f)).
				Wrapf(ErrUnknownField, "unknown patch field %q", f)
		}
		if f == FieldID {
			return oops.Code("USER_IMMUTABLE_FIELD").
				With("field", string(f)).
				Wrapf(ErrImmutableField, "user id cannot be changed")
		}
		if v == nil && !f.Nullable() {
			return oops.Code("USER_INVALID_PATCH").
				With("field", string(f)).
				Wrapf(ErrInvalidPatch, "field %q cannot be cleared", f)
		}
	}
	return nil
}

// Fields returns the patched fields in column order.
func (p Patch) Fields() []Field {
	return orderedFields(p)
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Add stores a new user and returns it with its assigned ID.
	// Returns ErrAlreadyRegistered if the email is taken.
	Add(ctx context.Context, email, hashedPassword string) (*User, error)

	// FindOneBy returns the first user, in insertion order, matching all criteria.
	// ok is false when nothing matches. Unknown fields fail with ErrUnknownField.
	FindOneBy(ctx context.Context, criteria Criteria) (user *User, ok bool, err error)

	// Update applies the patch to the user with the given ID.
	// Returns ErrNotFound if no such user exists.
	Update(ctx context.Context, id ulid.ULID, patch Patch) error

	// InTx runs fn against a repository bound to a single atomic unit.
	// Changes are committed when fn returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(repo UserRepository) error) error
}

func orderedFields[V any](m map[Field]V) []Field {
	fields := make([]Field, 0, len(m))
	for _, f := range Fields {
		if _, ok := m[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
