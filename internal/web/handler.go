// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the authentication service over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "session_id"

// Auth events recorded on observability.Metrics.
const (
	eventRegister = "register"
	eventLogin    = "login"
	eventLogout   = "logout"
	eventResetReq = "reset_request"
	eventReset    = "reset_password"

	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// AuthService is the part of auth.Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	ValidateLogin(ctx context.Context, email, password string) (bool, error)
	CreateSession(ctx context.Context, email string) (string, error)
	ResolveSession(ctx context.Context, sessionID string) (*auth.User, error)
	DestroySession(ctx context.Context, userID ulid.ULID) error
	IssueResetToken(ctx context.Context, email string) (string, error)
	ConsumePasswordReset(ctx context.Context, resetToken, newPassword string) error
}

// Options configures a Handler.
type Options struct {
	CookieName   string
	CookieSecure bool
	Logger       *slog.Logger
	// Metrics is optional; auth events are not counted when nil.
	Metrics *observability.Metrics
}

// Handler serves the HTTP endpoints of the authentication service.
type Handler struct {
	svc          AuthService
	cookieName   string
	cookieSecure bool
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewHandler creates a Handler for svc.
func NewHandler(svc AuthService, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		svc:          svc,
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type userMessageResponse struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type profileResponse struct {
	Email string `json:"email"`
}

type resetTokenResponse struct {
	Email      string `json:"email"`
	ResetToken string `json:"reset_token"`
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Bienvenue"})
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	if email == "" || password == "" {
		h.record(eventRegister, outcomeRejected)
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "email and password are required"})
		return
	}

	if _, err := h.svc.Register(r.Context(), email, password); err != nil {
		if errors.Is(err, auth.ErrAlreadyRegistered) {
			h.record(eventRegister, outcomeRejected)
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "email already registered"})
			return
		}
		h.internalError(w, r, eventRegister, "register user failed", err)
		return
	}

	h.record(eventRegister, outcomeSuccess)
	writeJSON(w, http.StatusOK, userMessageResponse{Email: email, Message: "user created"})
}

// Login handles POST /sessions.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	if email == "" || password == "" {
		h.reject(w, eventLogin, http.StatusUnauthorized)
		return
	}

	valid, err := h.svc.ValidateLogin(r.Context(), email, password)
	if err != nil {
		h.internalError(w, r, eventLogin, "validate login failed", err)
		return
	}
	if !valid {
		h.reject(w, eventLogin, http.StatusUnauthorized)
		return
	}

	sessionID, err := h.svc.CreateSession(r.Context(), email)
	if err != nil {
		h.internalError(w, r, eventLogin, "create session failed", err)
		return
	}
	if sessionID == "" {
		// The user disappeared between validation and session creation.
		h.reject(w, eventLogin, http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, h.sessionCookie(sessionID))
	h.record(eventLogin, outcomeSuccess)
	writeJSON(w, http.StatusOK, userMessageResponse{Email: email, Message: "logged in"})
}

// Logout handles DELETE /sessions.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r, eventLogout)
	if !ok {
		return
	}

	if err := h.svc.DestroySession(r.Context(), user.ID); err != nil {
		h.internalError(w, r, eventLogout, "destroy session failed", err)
		return
	}

	cookie := h.sessionCookie("")
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	h.record(eventLogout, outcomeSuccess)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Profile handles GET /profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Email: user.Email})
}

// RequestReset handles POST /reset_password.
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	if email == "" {
		h.reject(w, eventResetReq, http.StatusForbidden)
		return
	}

	token, err := h.svc.IssueResetToken(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRequest) {
			h.reject(w, eventResetReq, http.StatusForbidden)
			return
		}
		h.internalError(w, r, eventResetReq, "issue reset token failed", err)
		return
	}

	h.record(eventResetReq, outcomeSuccess)
	writeJSON(w, http.StatusOK, resetTokenResponse{Email: email, ResetToken: token})
}

// UpdatePassword handles PUT /reset_password.
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token, newPassword := r.PostFormValue("reset_token"), r.PostFormValue("new_password")

	if err := h.svc.ConsumePasswordReset(r.Context(), token, newPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidRequest) {
			h.reject(w, eventReset, http.StatusForbidden)
			return
		}
		h.internalError(w, r, eventReset, "consume password reset failed", err)
		return
	}

	h.record(eventReset, outcomeSuccess)
	writeJSON(w, http.StatusOK, userMessageResponse{Email: email, Message: "Password updated"})
}

// currentUser resolves the session cookie. It writes 403 and returns false
// when there is no live session. event is recorded on rejection if set.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request, event string) (*auth.User, bool) {
	var sessionID string
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		sessionID = cookie.Value
	}

	user, err := h.svc.ResolveSession(r.Context(), sessionID)
	if err != nil {
		h.internalError(w, r, event, "resolve session failed", err)
		return nil, false
	}
	if user == nil {
		h.reject(w, event, http.StatusForbidden)
		return nil, false
	}
	return user, true
}

func (h *Handler) sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) reject(w http.ResponseWriter, event string, status int) {
	h.record(event, outcomeRejected)
	writeJSON(w, status, messageResponse{Message: http.StatusText(status)})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, event, msg string, err error) {
	h.record(event, outcomeError)
	errutil.LogErrorContext(r.Context(), h.logger, msg, err)
	writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "internal error"})
}

func (h *Handler) record(event, outcome string) {
	if h.metrics == nil || event == "" {
		return
	}
	h.metrics.RecordAuthEvent(event, outcome)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(body)
}
