// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of the auth repositories.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// DBTX is the subset of pgx used by the repository.
// *pgxpool.Pool, pgx.Tx and pgxmock pools all satisfy it.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, hashed_password, session_id, reset_token, created_at, updated_at`

// columns maps user fields to their column names.
var columns = map[auth.Field]string{
	auth.FieldID:             "id",
	auth.FieldEmail:          "email",
	auth.FieldHashedPassword: "hashed_password",
	auth.FieldSessionID:      "session_id",
	auth.FieldResetToken:     "reset_token",
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db   DBTX
	inTx bool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Add stores a new user. A unique violation on email is reported as
// auth.ErrAlreadyRegistered; the failed insert leaves no row behind.
func (r *UserRepository) Add(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		user.ID.String(),
		user.Email,
		user.HashedPassword,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_EMAIL_TAKEN").
				With("email", email).
				Wrap(auth.ErrAlreadyRegistered)
		}
		return nil, auth.PersistenceError("insert user", err)
	}
	return user, nil
}

// FindOneBy returns the first user, ordered by ID, matching all criteria.
// Inside a transaction the row is locked until commit.
func (r *UserRepository) FindOneBy(ctx context.Context, criteria auth.Criteria) (*auth.User, bool, error) {
	if err := criteria.Validate(); err != nil {
		return nil, false, err //nolint:wrapcheck // already an oops error
	}

	fields := criteria.Fields()
	conds := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		conds[i] = fmt.Sprintf("%s = $%d", columns[f], i+1)
		args[i] = criteria[f]
	}

	query := "SELECT " + userColumns + " FROM users WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY id LIMIT 1"
	if r.inTx {
		query += " FOR UPDATE"
	}

	user, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, auth.PersistenceError("find user", err)
	}
	return user, true, nil
}

// Update applies the patch to the user with the given ID.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.Patch) error {
	if err := patch.Validate(); err != nil {
		return err //nolint:wrapcheck // already an oops error
	}

	fields := patch.Fields()
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	args = append(args, id.String())
	for _, f := range fields {
		args = append(args, patch[f])
		sets = append(sets, fmt.Sprintf("%s = $%d", columns[f], len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	result, err := r.db.Exec(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EMAIL_TAKEN").
				With("id", id.String()).
				Wrap(auth.ErrAlreadyRegistered)
		}
		return auth.PersistenceError("update user", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// InTx runs fn inside a database transaction. The transaction is committed
// if fn returns nil and rolled back otherwise. Nested calls reuse the
// enclosing transaction.
func (r *UserRepository) InTx(ctx context.Context, fn func(repo auth.UserRepository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return auth.PersistenceError("begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&UserRepository{db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return auth.PersistenceError("commit transaction", err)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr          string
		email          string
		hashedPassword string
		sessionID      *string
		resetToken     *string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&hashedPassword,
		&sessionID,
		&resetToken,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:             id,
		Email:          email,
		HashedPassword: hashedPassword,
		SessionID:      sessionID,
		ResetToken:     resetToken,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
