// ABOUTME: Tests for the session lifecycle and cookie helpers
// ABOUTME: Covers promotion rotation, idle expiry and cookie attributes

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/sanctum/internal/store"
)

func TestSessionService_CreateIsAnonymous(t *testing.T) {
	f := newFixture(t, testConfig())

	session, err := f.sessions.Create(context.Background())
	require.NoError(t, err)
	assert.Len(t, session.ID, 64)
	assert.Len(t, session.CSRFSecret, 64)
	assert.NotEqual(t, session.ID, session.CSRFSecret)
	assert.False(t, session.Authenticated())
}

func TestSessionService_PromoteRotatesIDAndCSRF(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, testConfig(), WithMetrics(m))
	ctx := context.Background()

	anon, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	promoted, err := f.sessions.Promote(ctx, anon.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, promoted.UserID)
	assert.NotEqual(t, anon.ID, promoted.ID, "session id rotates on login")
	assert.NotEqual(t, anon.CSRFSecret, promoted.CSRFSecret, "csrf secret rotates on login")

	_, err = f.sessions.Find(ctx, anon.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound, "pre-login id is dead")

	found, err := f.sessions.Find(ctx, promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, promoted.CSRFSecret, found.CSRFSecret)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsPromoted))
}

func TestSessionService_IdleSessionsVanish(t *testing.T) {
	cfg := testConfig()
	cfg.SessionIdleTimeout = 30 * time.Minute
	f := newFixture(t, cfg)
	ctx := context.Background()

	session := f.loggedInSession(t)

	f.clock.Advance(29 * time.Minute)
	require.NoError(t, f.sessions.Touch(ctx, session.ID))

	f.clock.Advance(29 * time.Minute)
	_, err := f.sessions.Find(ctx, session.ID)
	assert.NoError(t, err, "touch keeps the session alive")

	f.clock.Advance(31 * time.Minute)
	_, err = f.sessions.Find(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	_, err = f.store.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound, "idle session deleted on lookup")
}

func TestSessionService_SweepIdle(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	stale, err := f.sessions.Create(ctx)
	require.NoError(t, err)
	f.clock.Advance(DefaultSessionIdleTimeout + time.Minute)
	fresh, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	n, err := f.sessions.SweepIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.GetSession(ctx, stale.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = f.store.GetSession(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestSessionService_Destroy(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	session := f.loggedInSession(t)
	require.NoError(t, f.sessions.Destroy(ctx, session.ID))

	_, err := f.sessions.Find(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.ErrorIs(t, f.sessions.Touch(ctx, session.ID), store.ErrSessionNotFound)
}

func TestSessionService_Cookies(t *testing.T) {
	cfg := testConfig()
	cfg.SecureCookies = true
	f := newFixture(t, cfg)

	session := &store.Session{ID: "sess-id", CSRFSecret: "csrf-secret"}
	rec := httptest.NewRecorder()
	f.sessions.SetCookies(rec, session)

	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}

	sc := cookies[DefaultSessionCookie]
	require.NotNil(t, sc)
	assert.Equal(t, "sess-id", sc.Value)
	assert.True(t, sc.HttpOnly)
	assert.True(t, sc.Secure)
	assert.Equal(t, http.SameSiteLaxMode, sc.SameSite)

	xc := cookies[DefaultCSRFCookie]
	require.NotNil(t, xc)
	assert.Equal(t, "csrf-secret", xc.Value)
	assert.False(t, xc.HttpOnly, "frontend must be able to read the csrf cookie")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(sc)
	assert.Equal(t, "sess-id", f.sessions.CookieValue(r))

	cleared := httptest.NewRecorder()
	f.sessions.ClearCookies(cleared)
	for _, c := range cleared.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge, c.Name)
	}
}

func TestSessionService_Ensure(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	r := httptest.NewRequest(http.MethodGet, "/sanctum/csrf-cookie", nil)
	first, created, err := f.sessions.Ensure(ctx, r)
	require.NoError(t, err)
	assert.True(t, created)

	r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: first.ID})
	again, created, err := f.sessions.Ensure(ctx, r)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	stale := httptest.NewRequest(http.MethodGet, "/sanctum/csrf-cookie", nil)
	stale.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "gone"})
	replacement, created, err := f.sessions.Ensure(ctx, stale)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "gone", replacement.ID)
}

func TestSessionService_CurrentDoesNotCreate(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	none, err := f.sessions.Current(ctx, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	assert.Nil(t, none)

	stale := httptest.NewRequest(http.MethodPost, "/login", nil)
	stale.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "gone"})
	none, err = f.sessions.Current(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, none)

	session, err := f.sessions.Create(ctx)
	require.NoError(t, err)
	live := httptest.NewRequest(http.MethodPost, "/login", nil)
	live.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: session.ID})
	found, err := f.sessions.Current(ctx, live)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, session.ID, found.ID)
}
