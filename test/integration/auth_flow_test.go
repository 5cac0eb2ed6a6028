// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// response is a decoded API response.
type response struct {
	status int
	body   map[string]string
}

func send(client *http.Client, method, path string, form url.Values) response {
	GinkgoHelper()
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, strings.NewReader(form.Encode()))
	Expect(err).NotTo(HaveOccurred())
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())

	out := response{status: resp.StatusCode}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		Expect(json.Unmarshal(data, &out.body)).To(Succeed())
	}
	return out
}

// uniqueEmail keeps specs independent on the shared database.
func uniqueEmail() string {
	return strings.ToLower(ulid.Make().String()) + "@example.com"
}

var _ = Describe("Authentication flow", func() {
	var client *http.Client

	BeforeEach(func() {
		client = newClient()
	})

	It("welcomes visitors", func() {
		resp := send(client, http.MethodGet, "/", nil)
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(HaveKeyWithValue("message", "Bienvenue"))
	})

	It("walks an account through its whole life cycle", func() {
		email := uniqueEmail()

		By("registering")
		resp := send(client, http.MethodPost, "/users", url.Values{"email": {email}, "password": {"b4l0u"}})
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(Equal(map[string]string{"email": email, "message": "user created"}))

		By("rejecting a second registration")
		resp = send(client, http.MethodPost, "/users", url.Values{"email": {email}, "password": {"other"}})
		Expect(resp.status).To(Equal(http.StatusBadRequest))
		Expect(resp.body).To(HaveKeyWithValue("message", "email already registered"))

		By("rejecting a wrong password")
		resp = send(client, http.MethodPost, "/sessions", url.Values{"email": {email}, "password": {"wrong"}})
		Expect(resp.status).To(Equal(http.StatusUnauthorized))

		By("refusing the profile without a session")
		Expect(send(client, http.MethodGet, "/profile", nil).status).To(Equal(http.StatusForbidden))

		By("logging in")
		resp = send(client, http.MethodPost, "/sessions", url.Values{"email": {email}, "password": {"b4l0u"}})
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(Equal(map[string]string{"email": email, "message": "logged in"}))

		By("reading the profile")
		resp = send(client, http.MethodGet, "/profile", nil)
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(Equal(map[string]string{"email": email}))

		By("logging out")
		resp = send(client, http.MethodDelete, "/sessions", nil)
		Expect(resp.status).To(Equal(http.StatusFound))
		Expect(send(client, http.MethodGet, "/profile", nil).status).To(Equal(http.StatusForbidden))
		Expect(send(client, http.MethodDelete, "/sessions", nil).status).To(Equal(http.StatusForbidden))

		By("requesting a password reset")
		resp = send(client, http.MethodPost, "/reset_password", url.Values{"email": {email}})
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(HaveKeyWithValue("email", email))
		token := resp.body["reset_token"]
		Expect(token).NotTo(BeEmpty())

		By("updating the password")
		update := url.Values{"email": {email}, "reset_token": {token}, "new_password": {"t4rt1fl3tt3"}}
		resp = send(client, http.MethodPut, "/reset_password", update)
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(Equal(map[string]string{"email": email, "message": "Password updated"}))

		By("refusing to reuse the reset token")
		Expect(send(client, http.MethodPut, "/reset_password", update).status).To(Equal(http.StatusForbidden))

		By("logging in with the new password only")
		Expect(send(client, http.MethodPost, "/sessions",
			url.Values{"email": {email}, "password": {"b4l0u"}}).status).To(Equal(http.StatusUnauthorized))
		Expect(send(client, http.MethodPost, "/sessions",
			url.Values{"email": {email}, "password": {"t4rt1fl3tt3"}}).status).To(Equal(http.StatusOK))
	})

	It("refuses a reset for an unknown account", func() {
		resp := send(client, http.MethodPost, "/reset_password", url.Values{"email": {uniqueEmail()}})
		Expect(resp.status).To(Equal(http.StatusForbidden))
	})

	It("replaces the previous session on a new login", func() {
		email := uniqueEmail()
		Expect(send(client, http.MethodPost, "/users",
			url.Values{"email": {email}, "password": {"pw"}}).status).To(Equal(http.StatusOK))

		first := newClient()
		second := newClient()
		login := url.Values{"email": {email}, "password": {"pw"}}
		Expect(send(first, http.MethodPost, "/sessions", login).status).To(Equal(http.StatusOK))
		Expect(send(second, http.MethodPost, "/sessions", login).status).To(Equal(http.StatusOK))

		Expect(send(first, http.MethodGet, "/profile", nil).status).To(Equal(http.StatusForbidden))
		Expect(send(second, http.MethodGet, "/profile", nil).status).To(Equal(http.StatusOK))
	})

	It("creates exactly one account under concurrent registration", func() {
		email := uniqueEmail()
		const workers = 8

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			statuses []int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resp := send(newClient(), http.MethodPost, "/users", url.Values{"email": {email}, "password": {"pw"}})
				mu.Lock()
				statuses = append(statuses, resp.status)
				mu.Unlock()
			}()
		}
		wg.Wait()

		created := 0
		for _, s := range statuses {
			if s == http.StatusOK {
				created++
			} else {
				Expect(s).To(Equal(http.StatusBadRequest))
			}
		}
		Expect(created).To(Equal(1))

		var count int
		Expect(env.pool.QueryRow(env.ctx, "SELECT count(*) FROM users WHERE email = $1", email).Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})
})
