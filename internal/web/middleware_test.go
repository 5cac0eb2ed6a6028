// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/holomush/gatekeeper/internal/observability"
)

func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(Instrument(metrics))
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/items/{id}", "GET", "418")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(unmatchedRoute, "GET", "404")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.RequestDuration))
}

func TestTrace_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Trace)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRoutePattern_WithoutRouter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	assert.Equal(t, unmatchedRoute, routePattern(req))
}
