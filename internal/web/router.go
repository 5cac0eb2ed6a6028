// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/holomush/gatekeeper/internal/observability"
)

// maxFormBytes limits the size of request bodies.
const maxFormBytes = 64 << 10

// NewRouter returns the routes of h wrapped in the standard middleware
// stack. metrics may be nil.
//
// Middleware order:
//
//	RequestID → RealIP → Recoverer → Trace → Instrument → RequestSize
func NewRouter(h *Handler, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(Trace)
	if metrics != nil {
		r.Use(Instrument(metrics))
	}
	r.Use(middleware.RequestSize(maxFormBytes))

	r.Get("/", h.Index)
	r.Post("/users", h.CreateUser)

	r.Post("/sessions", h.Login)
	r.Delete("/sessions", h.Logout)
	r.Get("/profile", h.Profile)
	r.Post("/reset_password", h.RequestReset)
	r.Put("/reset_password", h.UpdatePassword)

	return r
}
