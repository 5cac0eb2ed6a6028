// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service provides registration, login, session and password reset operations.
// All state lives on the user row; the service itself is stateless and safe
// for concurrent use.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenGenerator
	logger *slog.Logger
}

// NewAuthService creates a new Service that logs through slog.Default().
func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenGenerator) (*Service, error) {
	return NewAuthServiceWithLogger(users, hasher, tokens, slog.Default())
}

// NewAuthServiceWithLogger creates a new Service with an explicit logger.
func NewAuthServiceWithLogger(users UserRepository, hasher PasswordHasher, tokens TokenGenerator, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token generator is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
	}, nil
}

// dummyPasswordHash is verified when the user doesn't exist so that login
// takes the same time either way. It never matches any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates an account for email.
// Returns an error matching ErrAlreadyRegistered if the email is taken.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	if email == "" {
		return nil, oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	var user *User
	err = s.users.InTx(ctx, func(repo UserRepository) error {
		_, exists, findErr := repo.FindOneBy(ctx, By(FieldEmail, email))
		if findErr != nil {
			return findErr
		}
		if exists {
			return oops.Code("AUTH_ALREADY_REGISTERED").
				With("email", email).
				Wrap(ErrAlreadyRegistered)
		}
		var addErr error
		user, addErr = repo.Add(ctx, email, hashed)
		return addErr
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "add user").
			Wrap(err)
	}

	return user, nil
}

// ValidateLogin reports whether password is correct for email.
// An unknown email or an unverifiable stored hash yields false; only storage
// failures are returned as errors.
func (s *Service) ValidateLogin(ctx context.Context, email, password string) (bool, error) {
	user, ok, err := s.users.FindOneBy(ctx, By(FieldEmail, email))
	if err != nil {
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	if !ok {
		//nolint:errcheck // result is irrelevant, only the elapsed time matters
		s.hasher.Verify(password, dummyPasswordHash)
		return false, nil
	}

	valid, err := s.hasher.Verify(password, user.HashedPassword)
	if err != nil {
		s.logger.WarnContext(ctx, "stored password hash could not be verified",
			"operation", "verify_password",
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
		return false, nil
	}

	if valid && s.hasher.NeedsUpgrade(user.HashedPassword) {
		s.upgradeHash(ctx, user, password)
	}

	return valid, nil
}

// upgradeHash re-hashes a legacy password with argon2id. Login succeeds
// regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.Update(ctx, user.ID, Patch{FieldHashedPassword: Set(newHash)})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "upgrade_hash",
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
	}
}

// CreateSession starts a new session for email and returns its ID.
// Any previous session of the user is replaced. Returns "" if the user does
// not exist.
func (s *Service) CreateSession(ctx context.Context, email string) (string, error) {
	var sessionID string
	err := s.users.InTx(ctx, func(repo UserRepository) error {
		user, ok, err := repo.FindOneBy(ctx, By(FieldEmail, email))
		if err != nil || !ok {
			return err
		}

		token, err := s.tokens.NewToken()
		if err != nil {
			return err
		}

		if err := repo.Update(ctx, user.ID, Patch{FieldSessionID: Set(token)}); err != nil {
			return err
		}
		sessionID = token
		return nil
	})
	if err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}
	return sessionID, nil
}

// ResolveSession returns the user owning sessionID, or nil if there is none.
// An empty sessionID returns nil without touching storage.
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, nil
	}

	user, ok, err := s.users.FindOneBy(ctx, By(FieldSessionID, sessionID))
	if err != nil {
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "find user by session id").
			Wrap(err)
	}
	if !ok {
		return nil, nil
	}
	return user, nil
}

// DestroySession ends the session of the given user. A zero ID, a user
// without a session, or a user that no longer exists are all no-ops.
func (s *Service) DestroySession(ctx context.Context, userID ulid.ULID) error {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil
	}

	err := s.users.Update(ctx, userID, Patch{FieldSessionID: nil})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "clear session id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// IssueResetToken stores a new reset token for email and returns it.
// A previously issued token is invalidated. Fails with ErrInvalidRequest if
// the user does not exist.
func (s *Service) IssueResetToken(ctx context.Context, email string) (string, error) {
	var resetToken string
	err := s.users.InTx(ctx, func(repo UserRepository) error {
		user, ok, err := repo.FindOneBy(ctx, By(FieldEmail, email))
		if err != nil {
			return err
		}
		if !ok {
			return oops.Code("AUTH_INVALID_REQUEST").Wrap(ErrInvalidRequest)
		}

		token, err := s.tokens.NewToken()
		if err != nil {
			return err
		}

		if err := repo.Update(ctx, user.ID, Patch{FieldResetToken: Set(token)}); err != nil {
			return err
		}
		resetToken = token
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return "", err
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue reset token").
			Wrap(err)
	}
	return resetToken, nil
}

// ConsumePasswordReset replaces the password of the user holding resetToken
// and clears the token so it cannot be used again. Fails with
// ErrInvalidRequest for an empty or unknown token.
func (s *Service) ConsumePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return oops.Code("AUTH_INVALID_REQUEST").Wrap(ErrInvalidRequest)
	}
	if newPassword == "" {
		return oops.Code("RESET_PASSWORD_EMPTY").Wrap(ErrInvalidRequest)
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	err = s.users.InTx(ctx, func(repo UserRepository) error {
		user, ok, err := repo.FindOneBy(ctx, By(FieldResetToken, resetToken))
		if err != nil {
			return err
		}
		if !ok {
			return oops.Code("AUTH_INVALID_REQUEST").Wrap(ErrInvalidRequest)
		}

		return repo.Update(ctx, user.ID, Patch{
			FieldHashedPassword: Set(hashed),
			FieldResetToken:     nil,
		})
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return err
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			Wrap(err)
	}
	return nil
}
