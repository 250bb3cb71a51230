// ABOUTME: Shared fixtures for auth tests
// ABOUTME: Fake clock, memory-backed services and stores that block until timeout

package auth

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/sanctum/internal/store"
)

const testOrigin = "https://localhost"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *store.MemoryStore
	clock    *fakeClock
	cfg      Config
	tokens   *TokenService
	sessions *SessionService
	guard    *Guard
	user     *store.User
}

func testConfig() Config {
	return Config{
		AllowedOrigins: []string{testOrigin},
		StoreTimeout:   time.Second,
	}
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now), WithVerifier(&CredentialVerifier{Cost: 4})}, opts...)

	tokens := NewTokenService(st, cfg, opts...)
	sessions := NewSessionService(st, cfg, opts...)
	guard := NewGuard(tokens, sessions, cfg, opts...)
	t.Cleanup(guard.Wait)

	user := &store.User{Name: "Admin", Email: "admin@example.com", PasswordHash: "unused"}
	require.NoError(t, st.CreateUser(context.Background(), user))

	return &fixture{
		store:    st,
		clock:    clock,
		cfg:      cfg,
		tokens:   tokens,
		sessions: sessions,
		guard:    guard,
		user:     user,
	}
}

// loggedInSession creates a session and promotes it for the fixture user.
func (f *fixture) loggedInSession(t *testing.T) *store.Session {
	t.Helper()
	ctx := context.Background()
	anon, err := f.sessions.Create(ctx)
	require.NoError(t, err)
	session, err := f.sessions.Promote(ctx, anon.ID, f.user.ID)
	require.NoError(t, err)
	return session
}

func (f *fixture) sessionRequest(method, target string, session *store.Session) *http.Request {
	r, _ := http.NewRequest(method, "http://api.test"+target, nil)
	r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: session.ID})
	return r
}

// blockingTokenStore blocks every read until the context ends.
type blockingTokenStore struct {
	store.TokenStore
}

func (blockingTokenStore) GetToken(ctx context.Context, id string) (*store.APIToken, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// blockingSessionStore blocks every read until the context ends.
type blockingSessionStore struct {
	store.SessionStore
}

func (blockingSessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
