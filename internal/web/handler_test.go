// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/internal/web"
)

type webFixture struct {
	router  http.Handler
	svc     *auth.Service
	metrics *observability.Metrics
	logs    *bytes.Buffer
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	svc, err := auth.NewAuthService(
		memory.NewUserRepository(),
		auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1}),
		auth.NewUUIDTokenGenerator(),
	)
	require.NoError(t, err)
	return newWebFixtureFor(t, svc, svc)
}

func newWebFixtureFor(t *testing.T, svc web.AuthService, real *auth.Service) *webFixture {
	t.Helper()
	logs := &bytes.Buffer{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	h := web.NewHandler(svc, web.Options{
		Logger:  slog.New(slog.NewJSONHandler(logs, nil)),
		Metrics: metrics,
	})
	return &webFixture{
		router:  web.NewRouter(h, metrics),
		svc:     real,
		metrics: metrics,
		logs:    logs,
	}
}

func (f *webFixture) do(t *testing.T, method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	body := strings.NewReader("")
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *webFixture) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", url.Values{"email": {email}, "password": {password}})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == web.DefaultCookieName {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIndex(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": "Bienvenue"}, decodeBody(t, rec))
}

func TestCreateUser(t *testing.T) {
	f := newWebFixture(t)
	form := url.Values{"email": {"bob@me.com"}, "password": {"mySuperPwd"}}

	rec := f.do(t, http.MethodPost, "/users", form)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": "bob@me.com", "message": "user created"}, decodeBody(t, rec))

	rec = f.do(t, http.MethodPost, "/users", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]string{"message": "email already registered"}, decodeBody(t, rec))

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AuthEvents.WithLabelValues("register", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AuthEvents.WithLabelValues("register", "rejected")), 0)
}

func TestCreateUser_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"no email", url.Values{"password": {"pw"}}},
		{"no password", url.Values{"email": {"bob@me.com"}}},
		{"empty form", url.Values{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebFixture(t)

			rec := f.do(t, http.MethodPost, "/users", tt.form)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, map[string]string{"message": "email and password are required"}, decodeBody(t, rec))
		})
	}
}

func TestLogin(t *testing.T) {
	f := newWebFixture(t)
	_, err := f.svc.Register(context.Background(), "bob@me.com", "pw")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/sessions", url.Values{"email": {"bob@me.com"}, "password": {"pw"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": "bob@me.com", "message": "logged in"}, decodeBody(t, rec))

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	user, err := f.svc.ResolveSession(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "bob@me.com", user.Email)
}

func TestLogin_Rejected(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"wrong password", url.Values{"email": {"bob@me.com"}, "password": {"nope"}}},
		{"unknown email", url.Values{"email": {"eve@me.com"}, "password": {"pw"}}},
		{"missing password", url.Values{"email": {"bob@me.com"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebFixture(t)
			_, err := f.svc.Register(context.Background(), "bob@me.com", "pw")
			require.NoError(t, err)

			rec := f.do(t, http.MethodPost, "/sessions", tt.form)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestProfile(t *testing.T) {
	f := newWebFixture(t)
	_, err := f.svc.Register(context.Background(), "bob@me.com", "pw")
	require.NoError(t, err)
	cookie := f.login(t, "bob@me.com", "pw")

	rec := f.do(t, http.MethodGet, "/profile", nil, cookie)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": "bob@me.com"}, decodeBody(t, rec))
}

func TestProfile_Forbidden(t *testing.T) {
	f := newWebFixture(t)

	t.Run("no cookie", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/profile", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/profile", nil, &http.Cookie{Name: web.DefaultCookieName, Value: "stale"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	f := newWebFixture(t)
	_, err := f.svc.Register(context.Background(), "bob@me.com", "pw")
	require.NoError(t, err)
	cookie := f.login(t, "bob@me.com", "pw")

	rec := f.do(t, http.MethodDelete, "/sessions", nil, cookie)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	rec = f.do(t, http.MethodGet, "/profile", nil, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code, "old session must be gone")
}

func TestLogout_WithoutSession(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodDelete, "/sessions", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	f := newWebFixture(t)
	_, err := f.svc.Register(context.Background(), "bob@me.com", "old")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/reset_password", url.Values{"email": {"bob@me.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "bob@me.com", body["email"])
	token := body["reset_token"]
	require.NotEmpty(t, token)

	update := url.Values{"email": {"bob@me.com"}, "reset_token": {token}, "new_password": {"new"}}
	rec = f.do(t, http.MethodPut, "/reset_password", update)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"email": "bob@me.com", "message": "Password updated"}, decodeBody(t, rec))

	rec = f.do(t, http.MethodPut, "/reset_password", update)
	assert.Equal(t, http.StatusForbidden, rec.Code, "token is single use")

	f.login(t, "bob@me.com", "new")

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AuthEvents.WithLabelValues("reset_request", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AuthEvents.WithLabelValues("reset_password", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AuthEvents.WithLabelValues("reset_password", "rejected")), 0)
}

func TestPasswordReset_Forbidden(t *testing.T) {
	tests := []struct {
		name   string
		method string
		form   url.Values
	}{
		{"unknown email", http.MethodPost, url.Values{"email": {"eve@me.com"}}},
		{"missing email", http.MethodPost, url.Values{}},
		{"unknown token", http.MethodPut, url.Values{"email": {"bob@me.com"}, "reset_token": {"nope"}, "new_password": {"x"}}},
		{"missing token", http.MethodPut, url.Values{"email": {"bob@me.com"}, "new_password": {"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebFixture(t)
			_, err := f.svc.Register(context.Background(), "bob@me.com", "pw")
			require.NoError(t, err)

			rec := f.do(t, tt.method, "/reset_password", tt.form)

			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

// failingService fails every call with a persistence error.
type failingService struct{}

var errStorage = oops.Code("USER_PERSISTENCE_FAILED").
	With("email", "bob@me.com").
	Wrap(auth.ErrPersistence)

func (failingService) Register(context.Context, string, string) (*auth.User, error) {
	return nil, errStorage
}

func (failingService) ValidateLogin(context.Context, string, string) (bool, error) {
	return false, errStorage
}

func (failingService) CreateSession(context.Context, string) (string, error) {
	return "", errStorage
}

func (failingService) ResolveSession(context.Context, string) (*auth.User, error) {
	return nil, errStorage
}

func (failingService) DestroySession(context.Context, ulid.ULID) error {
	return errStorage
}

func (failingService) IssueResetToken(context.Context, string) (string, error) {
	return "", errStorage
}

func (failingService) ConsumePasswordReset(context.Context, string, string) error {
	return errStorage
}

func TestHandlers_InternalError(t *testing.T) {
	session := &http.Cookie{Name: web.DefaultCookieName, Value: "abc"}
	tests := []struct {
		name   string
		method string
		path   string
		form   url.Values
	}{
		{"register", http.MethodPost, "/users", url.Values{"email": {"bob@me.com"}, "password": {"pw"}}},
		{"login", http.MethodPost, "/sessions", url.Values{"email": {"bob@me.com"}, "password": {"pw"}}},
		{"logout", http.MethodDelete, "/sessions", nil},
		{"profile", http.MethodGet, "/profile", nil},
		{"request reset", http.MethodPost, "/reset_password", url.Values{"email": {"bob@me.com"}}},
		{"update password", http.MethodPut, "/reset_password", url.Values{"reset_token": {"t"}, "new_password": {"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebFixtureFor(t, failingService{}, nil)

			rec := f.do(t, tt.method, tt.path, tt.form, session)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, map[string]string{"message": "internal error"}, decodeBody(t, rec))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(f.logs.Bytes(), &entry))
			assert.Equal(t, "ERROR", entry["level"])
			assert.Equal(t, "USER_PERSISTENCE_FAILED", entry["code"])
			assert.NotContains(t, f.logs.String(), "bob@me.com")
		})
	}
}

func TestNewHandler_CustomCookieName(t *testing.T) {
	svc, err := auth.NewAuthService(
		memory.NewUserRepository(),
		auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1}),
		auth.NewUUIDTokenGenerator(),
	)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "bob@me.com", "pw")
	require.NoError(t, err)

	router := web.NewRouter(web.NewHandler(svc, web.Options{CookieName: "gk", CookieSecure: true}), nil)
	req := httptest.NewRequest(http.MethodPost, "/sessions",
		strings.NewReader(url.Values{"email": {"bob@me.com"}, "password": {"pw"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "gk", cookies[0].Name)
	assert.True(t, cookies[0].Secure)
}
