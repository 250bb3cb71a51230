// ABOUTME: End-to-end tests of the HTTP API over a real listener
// ABOUTME: Covers the browser session flow, bearer tokens and their interaction

package api

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sanctum/internal/auth"
	"github.com/2389/sanctum/internal/store"
)

func TestSessionLoginThenCreateUser(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser()

	b.csrfCookie()
	anonSession := b.cookie(auth.DefaultSessionCookie)
	anonCSRF := b.cookie(auth.DefaultCSRFCookie)
	require.NotEmpty(t, anonSession)
	require.NotEmpty(t, anonCSRF)

	resp := b.login(testEmail, testPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody[userResponse](t, resp)
	assert.Equal(t, h.user.ID, me.ID)
	assert.Equal(t, testEmail, me.Email)

	// Login rotates both the session id and the CSRF secret.
	assert.NotEqual(t, anonSession, b.cookie(auth.DefaultSessionCookie))
	assert.NotEqual(t, anonCSRF, b.cookie(auth.DefaultCSRFCookie))

	resp = b.do(http.MethodPost, "/api/user", createUserRequest{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[userResponse](t, resp)
	assert.Equal(t, "John Doe", created.Name)
	assert.Equal(t, "john@example.com", created.Email)

	stored, err := h.store.GetUserByEmail(context.Background(), "john@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
	assert.True(t, h.verifier.VerifyPassword(stored.PasswordHash, "password123"))
}

func TestSessionLoginFromRefererOnly(t *testing.T) {
	h := newHarness(t)
	hash, err := h.verifier.HashPassword("password")
	require.NoError(t, err)
	admin := &store.User{Name: "Factory Admin", Email: "factory@example.com", PasswordHash: hash}
	require.NoError(t, h.store.CreateUser(context.Background(), admin))

	b := h.newBrowser()
	fromFrontend := http.Header{"Origin": nil, "Referer": {"https://localhost/"}}

	resp := b.do(http.MethodPost, "/login", loginRequest{Email: admin.Email, Password: "password"}, fromFrontend)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, admin.ID, decodeBody[userResponse](t, resp).ID)

	resp = b.do(http.MethodPost, "/api/user", url.Values{
		"name":     {"John Doe"},
		"email":    {"info@example.com"},
		"password": {"password"},
	}, fromFrontend)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[userResponse](t, resp)
	assert.Equal(t, "John Doe", created.Name)
	assert.Equal(t, "info@example.com", created.Email)

	stored, err := h.store.GetUserByEmail(context.Background(), "info@example.com")
	require.NoError(t, err)
	assert.True(t, h.verifier.VerifyPassword(stored.PasswordHash, "password"))
}

func TestSessionLoginWithoutPriorCookie(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser()

	resp := b.login(testEmail, testPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, b.cookie(auth.DefaultSessionCookie))

	resp = b.do(http.MethodGet, "/api/user", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, h.user.ID, decodeBody[userResponse](t, resp).ID)
}

func TestSessionOldCSRFRejectedAfterLogin(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser()

	b.csrfCookie()
	stale := b.cookie(auth.DefaultCSRFCookie)
	require.Equal(t, http.StatusOK, b.login(testEmail, testPassword).StatusCode)

	resp := b.do(http.MethodPost, "/api/user", createUserRequest{
		Name: "Jane", Email: "jane@example.com", Password: "password123",
	}, http.Header{auth.XSRFHeader: {stale}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err := h.store.GetUserByEmail(context.Background(), "jane@example.com")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestLoginRejections(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		email  string
		pass   string
	}{
		{"untrusted origin", http.Header{"Origin": {"https://evil.example"}}, testEmail, testPassword},
		{"wrong password", nil, testEmail, "wrong-password"},
		{"unknown email", nil, "nobody@example.com", testPassword},
		{"csrf mismatch", http.Header{auth.XSRFHeader: {"forged"}}, testEmail, testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := h.newBrowser()
			b.csrfCookie()

			resp := b.do(http.MethodPost, "/login", loginRequest{Email: tt.email, Password: tt.pass}, tt.header)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.JSONEq(t, `{"error":"unauthenticated"}`, readBody(t, resp))

			resp = b.do(http.MethodGet, "/api/user", nil, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestLoginRequiresOrigin(t *testing.T) {
	h := newHarness(t)

	resp := h.post("/login", loginRequest{Email: testEmail, Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginMissingFields(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser()

	resp := b.do(http.MethodPost, "/login", url.Values{"email": {testEmail}}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeBody[validationBody](t, resp)
	assert.Equal(t, "required", body.Fields["password"])
	assert.NotContains(t, body.Fields, "email")
}

func TestLoginStoreUnavailable(t *testing.T) {
	h := newHarness(t, withUserStore(unavailableUsers{}))
	b := h.newBrowser()

	resp := b.login(testEmail, testPassword)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestUserStoreCallsHonorStoreTimeout(t *testing.T) {
	h := newHarness(t, withUserStore(blockingUsers{}), withStoreTimeout(100*time.Millisecond))
	token, _, err := h.tokens.Issue(context.Background(), h.user.ID, "cli", []string{"*"}, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		send func() *http.Response
	}{
		{"login", func() *http.Response { return h.newBrowser().login(testEmail, testPassword) }},
		{"issue token", func() *http.Response {
			return h.post("/api/sanctum/token", tokenRequest{Email: testEmail, Password: testPassword, DeviceName: "d"})
		}},
		{"current user", func() *http.Response { return h.bearer(token, http.MethodGet, "/api/user", nil) }},
		{"create user", func() *http.Response {
			return h.bearer(token, http.MethodPost, "/api/user", createUserRequest{
				Name: "John Doe", Email: "info@example.com", Password: "password",
			})
		}},
	}

	for _, tt := range tests {
		start := time.Now()
		resp := tt.send()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, tt.name)
		assert.Equal(t, "1", resp.Header.Get("Retry-After"), tt.name)
		assert.Less(t, time.Since(start), 2*time.Second, tt.name)
	}
}

func TestFailedLoginStoresNoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	later := time.Now().Add(time.Hour)

	resp := h.newBrowser().login(testEmail, "wrong-password")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	n, err := h.store.DeleteIdleSessions(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, n)

	resp = h.newBrowser().login(testEmail, testPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	n, err = h.store.DeleteIdleSessions(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLogoutSession(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser()
	require.Equal(t, http.StatusOK, b.login(testEmail, testPassword).StatusCode)
	sessionID := b.cookie(auth.DefaultSessionCookie)

	resp := b.do(http.MethodPost, "/logout", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, b.cookie(auth.DefaultSessionCookie))

	_, err := h.store.GetSession(context.Background(), sessionID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	resp = b.do(http.MethodGet, "/api/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIssueTokenThenCreateUser(t *testing.T) {
	h := newHarness(t)

	token := h.issueToken("sanctum-268")
	assert.NotEmpty(t, token)

	tokens, err := h.store.ListTokens(context.Background(), h.user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "sanctum-268", tokens[0].Name)
	assert.NotContains(t, tokens[0].TokenHash, token)

	resp := h.bearer(token, http.MethodPost, "/api/user", createUserRequest{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "John Doe", decodeBody[userResponse](t, resp).Name)

	// Bearer requests need neither Origin nor CSRF.
	resp = h.bearer(token, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, h.user.ID, decodeBody[userResponse](t, resp).ID)
}

func TestIssueTokenFormEncoded(t *testing.T) {
	h := newHarness(t)

	resp := h.post("/api/sanctum/token", url.Values{
		"email":       {testEmail},
		"password":    {testPassword},
		"device_name": {"phone"},
		"abilities[]": {"tokens:read", "users:read"},
		"expires_in":  {"3600"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	tokens, err := h.store.ListTokens(context.Background(), h.user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.ElementsMatch(t, []string{"tokens:read", "users:read"}, tokens[0].Abilities)
	require.NotNil(t, tokens[0].ExpiresAt)
	assert.Equal(t, int64(3600), int64(tokens[0].ExpiresAt.Sub(tokens[0].CreatedAt).Seconds()))
}

func TestIssueTokenValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   tokenRequest
		field string
	}{
		{"missing device", tokenRequest{Email: testEmail, Password: testPassword}, "device_name"},
		{"missing email", tokenRequest{Password: testPassword, DeviceName: "d"}, "email"},
		{"missing password", tokenRequest{Email: testEmail, DeviceName: "d"}, "password"},
		{"negative ttl", tokenRequest{Email: testEmail, Password: testPassword, DeviceName: "d", ExpiresIn: -1}, "expires_in"},
		{"ttl overflows duration", tokenRequest{Email: testEmail, Password: testPassword, DeviceName: "d", ExpiresIn: maxExpiresIn + 1}, "expires_in"},
		{"blank ability", tokenRequest{Email: testEmail, Password: testPassword, DeviceName: "d", Abilities: []string{" "}}, "abilities"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			resp := h.post("/api/sanctum/token", tt.req)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			assert.Contains(t, decodeBody[validationBody](t, resp).Fields, tt.field)
		})
	}
}

func TestIssueTokenBadCredentials(t *testing.T) {
	h := newHarness(t)

	resp := h.post("/api/sanctum/token", tokenRequest{Email: testEmail, Password: "nope", DeviceName: "d"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tokens, err := h.store.ListTokens(context.Background(), h.user.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestBearerTakesPrecedenceOverSession(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser()
	require.Equal(t, http.StatusOK, b.login(testEmail, testPassword).StatusCode)

	// An invalid bearer token fails even though the session is valid.
	resp := b.do(http.MethodGet, "/api/user", nil, http.Header{"Authorization": {"Bearer not-a-token"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A non-bearer Authorization header is ignored.
	resp = b.do(http.MethodGet, "/api/user", nil, http.Header{"Authorization": {"Basic Zm9vOmJhcg=="}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerAbilitiesGovernWithSession(t *testing.T) {
	h := newHarness(t)
	reader := h.issueToken("reader", "users:read")

	b := h.newBrowser()
	require.Equal(t, http.StatusOK, b.login(testEmail, testPassword).StatusCode)

	// The session alone could create users; the presented token cannot.
	resp := b.do(http.MethodPost, "/api/user", createUserRequest{
		Name: "John Doe", Email: "john@example.com", Password: "password123",
	}, http.Header{"Authorization": {"Bearer " + reader}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.do(http.MethodPost, "/api/user", createUserRequest{
		Name: "John Doe", Email: "john@example.com", Password: "password123",
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateUserRequiresAbility(t *testing.T) {
	h := newHarness(t)
	token := h.issueToken("reader", "users:read")

	resp := h.bearer(token, http.MethodPost, "/api/user", createUserRequest{
		Name: "John Doe", Email: "john@example.com", Password: "password123",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"error":"forbidden"}`, readBody(t, resp))

	// Reading is still allowed.
	resp = h.bearer(token, http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateUserValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   createUserRequest
		field string
	}{
		{"missing name", createUserRequest{Email: "a@example.com", Password: "password123"}, "name"},
		{"bad email", createUserRequest{Name: "A", Email: "not-an-email", Password: "password123"}, "email"},
		{"short password", createUserRequest{Name: "A", Email: "a@example.com", Password: "short"}, "password"},
		{"duplicate email", createUserRequest{Name: "A", Email: testEmail, Password: "password123"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			token := h.issueToken("admin")
			resp := h.bearer(token, http.MethodPost, "/api/user", tt.req)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			body := decodeBody[validationBody](t, resp)
			assert.Equal(t, "validation failed", body.Error)
			assert.Contains(t, body.Fields, tt.field)
		})
	}
}

func TestTokenListAndRevoke(t *testing.T) {
	h := newHarness(t)
	first := h.issueToken("laptop")
	second := h.issueToken("phone")

	resp := h.bearer(first, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw := readBody(t, resp)
	assert.NotContains(t, raw, first)
	assert.NotContains(t, raw, "token_hash")

	tokens, err := h.store.ListTokens(context.Background(), h.user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	var phoneID string
	for _, tok := range tokens {
		if tok.Name == "phone" {
			phoneID = tok.ID
		}
	}
	require.NotEmpty(t, phoneID)

	resp = h.bearer(first, http.MethodDelete, "/api/tokens/"+phoneID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, h.bearer(second, http.MethodGet, "/api/user", nil).StatusCode)

	resp = h.bearer(first, http.MethodDelete, "/api/tokens/"+phoneID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.bearer(first, http.MethodDelete, "/api/tokens", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, h.bearer(first, http.MethodGet, "/api/user", nil).StatusCode)
}

func TestRevokeForeignToken(t *testing.T) {
	h := newHarness(t)
	mine := h.issueToken("mine")

	other := &store.User{Name: "Other", Email: "other@example.com", PasswordHash: "x"}
	require.NoError(t, h.store.CreateUser(context.Background(), other))
	require.NoError(t, h.store.CreateToken(context.Background(), &store.APIToken{
		ID: "foreign", UserID: other.ID, Name: "theirs", TokenHash: "x",
	}))

	resp := h.bearer(mine, http.MethodDelete, "/api/tokens/foreign", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err := h.store.GetToken(context.Background(), "foreign")
	assert.NoError(t, err)
}

func TestLogoutRevokesPresentedToken(t *testing.T) {
	h := newHarness(t)
	token := h.issueToken("cli")
	other := h.issueToken("other")

	resp := h.bearer(token, http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, http.StatusUnauthorized, h.bearer(token, http.MethodGet, "/api/user", nil).StatusCode)
	assert.Equal(t, http.StatusOK, h.bearer(other, http.MethodGet, "/api/user", nil).StatusCode)
}
