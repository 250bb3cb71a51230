// ABOUTME: Test harness running the API on an httptest server with a memory store
// ABOUTME: Browser helpers keep a cookie jar and echo the XSRF-TOKEN cookie

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/2389/sanctum/internal/auth"
	"github.com/2389/sanctum/internal/store"
)

const (
	testOrigin   = "https://localhost"
	testEmail    = "admin@example.com"
	testPassword = "correct-horse-battery"
)

type harness struct {
	t        *testing.T
	server   *httptest.Server
	store    *store.MemoryStore
	verifier *auth.CredentialVerifier
	guard    *auth.Guard
	tokens   *auth.TokenService
	user     *store.User
}

type harnessSetup struct {
	cfg   auth.Config
	users store.UserStore
}

type harnessOption func(*harnessSetup)

func withUserStore(users store.UserStore) harnessOption {
	return func(s *harnessSetup) { s.users = users }
}

func withStoreTimeout(d time.Duration) harnessOption {
	return func(s *harnessSetup) { s.cfg.StoreTimeout = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	st := store.NewMemoryStore()
	verifier := &auth.CredentialVerifier{Cost: 4}
	setup := harnessSetup{
		cfg: auth.Config{
			AllowedOrigins: []string{testOrigin},
			StoreTimeout:   time.Second,
		},
		users: st,
	}
	for _, opt := range opts {
		opt(&setup)
	}
	cfg := setup.cfg
	authOpts := []auth.Option{auth.WithVerifier(verifier)}

	tokens := auth.NewTokenService(st, cfg, authOpts...)
	sessions := auth.NewSessionService(st, cfg, authOpts...)
	guard := auth.NewGuard(tokens, sessions, cfg, authOpts...)

	hash, err := verifier.HashPassword(testPassword)
	require.NoError(t, err)
	user := &store.User{Name: "Admin", Email: testEmail, PasswordHash: hash}
	require.NoError(t, st.CreateUser(context.Background(), user))

	deps := Deps{
		Users:    setup.users,
		Guard:    guard,
		Tokens:   tokens,
		Sessions: sessions,
		Verifier: verifier,
	}

	r := chi.NewRouter()
	New(deps).Register(r)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		guard.Wait()
	})

	return &harness{t: t, server: server, store: st, verifier: verifier, guard: guard, tokens: tokens, user: user}
}

// browser is a cookie-carrying client that sends the trusted Origin.
type browser struct {
	h      *harness
	client *http.Client
	jar    *cookiejar.Jar
}

func (h *harness) newBrowser() *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &browser{h: h, client: &http.Client{Jar: jar}, jar: jar}
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.h.server.URL)
	for _, c := range b.jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) csrfCookie() {
	b.h.t.Helper()
	resp := b.do(http.MethodGet, "/sanctum/csrf-cookie", nil, nil)
	require.Equal(b.h.t, http.StatusNoContent, resp.StatusCode)
}

func (b *browser) do(method, path string, body any, header http.Header) *http.Response {
	b.h.t.Helper()
	req := b.h.newRequest(method, path, body)
	req.Header.Set("Origin", testOrigin)
	if xsrf := b.cookie(auth.DefaultCSRFCookie); xsrf != "" {
		req.Header.Set(auth.XSRFHeader, xsrf)
	}
	for k, values := range header {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	resp, err := b.client.Do(req)
	require.NoError(b.h.t, err)
	b.h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (b *browser) login(email, password string) *http.Response {
	b.h.t.Helper()
	return b.do(http.MethodPost, "/login", map[string]string{"email": email, "password": password}, nil)
}

func (h *harness) newRequest(method, path string, body any) *http.Request {
	h.t.Helper()
	var r io.Reader
	switch v := body.(type) {
	case nil:
	case url.Values:
		r = strings.NewReader(v.Encode())
	default:
		data, err := json.Marshal(v)
		require.NoError(h.t, err)
		r = strings.NewReader(string(data))
	}

	req, err := http.NewRequest(method, h.server.URL+path, r)
	require.NoError(h.t, err)
	switch body.(type) {
	case nil:
	case url.Values:
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// bearer sends a request with an Authorization header and no cookies.
func (h *harness) bearer(token, method, path string, body any) *http.Response {
	h.t.Helper()
	req := h.newRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) post(path string, body any) *http.Response {
	h.t.Helper()
	req := h.newRequest(http.MethodPost, path, body)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// issueToken exchanges the test credentials for a plaintext token.
func (h *harness) issueToken(device string, abilities ...string) string {
	h.t.Helper()
	resp := h.post("/api/sanctum/token", tokenRequest{
		Email:      testEmail,
		Password:   testPassword,
		DeviceName: device,
		Abilities:  abilities,
	})
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	return readBody(h.t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type validationBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// unavailableUsers fails every lookup as a down backend would.
type unavailableUsers struct{}

var errBackendDown = errors.New("backend down")

func (unavailableUsers) CreateUser(context.Context, *store.User) error { return errBackendDown }
func (unavailableUsers) GetUser(context.Context, string) (*store.User, error) {
	return nil, errBackendDown
}
func (unavailableUsers) GetUserByEmail(context.Context, string) (*store.User, error) {
	return nil, errBackendDown
}

// blockingUsers blocks every call until the context ends.
type blockingUsers struct{}

func (blockingUsers) CreateUser(ctx context.Context, _ *store.User) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingUsers) GetUser(ctx context.Context, _ string) (*store.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingUsers) GetUserByEmail(ctx context.Context, _ string) (*store.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
