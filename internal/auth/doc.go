// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential and session management for gatekeeper.
//
// # Domain Types
//
// User is the only persisted entity. Session and password reset state are
// both encoded on the user row: SessionID is set while the user is logged in
// and ResetToken while a password reset is pending. A user has at most one
// active session; creating a new one replaces the old.
//
// Users are read with Criteria and changed with a Patch. Both are keyed by
// Field and validated against the fixed field set, so a misspelt field fails
// with ErrUnknownField instead of being ignored.
//
// # Services
//
// Service coordinates the flows over a UserRepository, a PasswordHasher and a
// TokenGenerator:
//   - Register, ValidateLogin
//   - CreateSession, ResolveSession, DestroySession
//   - IssueResetToken, ConsumePasswordReset
//
// Every read-then-write flow runs inside UserRepository.InTx. Lookup misses
// never escape the service: they become false, nil, "" or ErrInvalidRequest
// depending on the operation.
package auth
