// ABOUTME: Browser session lifecycle and the cookies that carry it
// ABOUTME: Sessions idle past the timeout are treated as absent and removed

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/sanctum/internal/store"
)

// sessionIDBytes is the entropy of session ids and CSRF secrets.
const sessionIDBytes = 32

// SessionService manages browser sessions on top of a store.SessionStore.
type SessionService struct {
	store   store.SessionStore
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionService creates a SessionService.
func NewSessionService(s store.SessionStore, cfg Config, opts ...Option) *SessionService {
	o := buildOptions("auth.sessions", opts)
	return &SessionService{
		store:   s,
		cfg:     cfg.withDefaults(),
		metrics: o.metrics,
		logger:  o.logger,
		now:     o.now,
	}
}

// Create starts an anonymous session with a fresh CSRF secret.
func (s *SessionService) Create(ctx context.Context) (*store.Session, error) {
	id, err := generateSecureToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	csrf, err := generateSecureToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating csrf secret: %w", err)
	}

	now := s.now().UTC()
	session := &store.Session{
		ID:           id,
		CSRFSecret:   csrf,
		CreatedAt:    now,
		LastActivity: now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.store.CreateSession(storeCtx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	return session, nil
}

// Find returns the session with the given id. Sessions idle longer than the
// configured timeout report store.ErrSessionNotFound and are deleted.
func (s *SessionService) Find(ctx context.Context, id string) (*store.Session, error) {
	if id == "" {
		return nil, store.ErrSessionNotFound
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	session, err := s.store.GetSession(storeCtx, id)
	if err != nil {
		return nil, err
	}

	if s.now().Sub(session.LastActivity) > s.cfg.SessionIdleTimeout {
		if err := s.store.DeleteSession(storeCtx, id); err != nil {
			s.logger.Warn("failed to delete idle session", "error", err)
		}
		return nil, store.ErrSessionNotFound
	}
	return session, nil
}

// Promote binds the session to userID, rotating both its id and its CSRF
// secret in one store operation. The old id stops resolving immediately.
func (s *SessionService) Promote(ctx context.Context, id, userID string) (*store.Session, error) {
	newID, err := generateSecureToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	csrf, err := generateSecureToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating csrf secret: %w", err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	session, err := s.store.PromoteSession(storeCtx, id, newID, userID, csrf, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.metrics.sessionPromoted()
	s.logger.Info("session promoted", "user_id", userID)
	return session, nil
}

// Destroy deletes the session.
func (s *SessionService) Destroy(ctx context.Context, id string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.DeleteSession(storeCtx, id)
}

// Touch records activity on the session.
func (s *SessionService) Touch(ctx context.Context, id string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.TouchSession(storeCtx, id, s.now().UTC())
}

// SweepIdle deletes every session idle past the timeout.
func (s *SessionService) SweepIdle(ctx context.Context) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.DeleteIdleSessions(storeCtx, s.now().Add(-s.cfg.SessionIdleTimeout))
}

// CookieValue returns the session id carried by r, or "".
func (s *SessionService) CookieValue(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetCookies writes the session cookie and the script-readable CSRF cookie.
func (s *SessionService) SetCookies(w http.ResponseWriter, session *store.Session) {
	maxAge := int(s.cfg.SessionIdleTimeout / time.Second)

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	// Not HttpOnly: the frontend reads it and echoes it in the CSRF header.
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CSRFCookie,
		Value:    session.CSRFSecret,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookies expires both session cookies.
func (s *SessionService) ClearCookies(w http.ResponseWriter) {
	for _, name := range []string{s.cfg.SessionCookie, s.cfg.CSRFCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == s.cfg.SessionCookie,
			Secure:   s.cfg.SecureCookies,
		})
	}
}

// Current returns the live session carried by r, or nil when r carries none.
func (s *SessionService) Current(ctx context.Context, r *http.Request) (*store.Session, error) {
	id := s.CookieValue(r)
	if id == "" {
		return nil, nil
	}
	session, err := s.Find(ctx, id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, nil
	}
	return session, err
}

// Ensure returns the live session carried by r, creating one when r has none.
// The boolean is true when a new session was created.
func (s *SessionService) Ensure(ctx context.Context, r *http.Request) (*store.Session, bool, error) {
	session, err := s.Current(ctx, r)
	if err != nil {
		return nil, false, err
	}
	if session != nil {
		return session, false, nil
	}

	session, err = s.Create(ctx)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}
