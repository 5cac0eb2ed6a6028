// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil logs and asserts oops errors.
package errutil

import (
	"context"
	"log/slog"
	"maps"

	"github.com/samber/oops"
)

// RedactedValue replaces sensitive values in logged error context.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are error context keys whose values must never reach the logs.
var sensitiveKeys = []string{"password", "hashed_password", "session_id", "reset_token", "email"}

// LogError logs err at error level. See LogErrorContext.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext logs err at error level with ctx, so that trace IDs are
// attached by the handler. For oops errors the code and context are logged
// as separate attributes, with sensitive context values redacted.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if errCtx := oopsErr.Context(); len(errCtx) > 0 {
		attrs = append(attrs, "context", redact(errCtx))
	}
	logger.ErrorContext(ctx, msg, attrs...)
}

func redact(errCtx map[string]any) map[string]any {
	out := maps.Clone(errCtx)
	for _, key := range sensitiveKeys {
		if _, ok := out[key]; ok {
			out[key] = RedactedValue
		}
	}
	return out
}
