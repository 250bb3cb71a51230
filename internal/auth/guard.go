// ABOUTME: Guard resolves a request to a Principal by bearer token or session cookie
// ABOUTME: Bearer always wins; sessions are checked for origin then CSRF

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/sanctum/internal/store"
)

const tracerName = "github.com/2389/sanctum/internal/auth"

// credential is what a request presents: a bearer token or a session cookie.
type credential interface {
	mode() Mode
}

type tokenCredential struct{ plaintext string }

type sessionCredential struct{ id string }

func (tokenCredential) mode() Mode   { return ModeToken }
func (sessionCredential) mode() Mode { return ModeSession }

// Guard authenticates requests.
type Guard struct {
	cfg      Config
	tokens   *TokenService
	sessions *SessionService
	origins  *OriginGuard
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewGuard creates a Guard over the given services.
func NewGuard(tokens *TokenService, sessions *SessionService, cfg Config, opts ...Option) *Guard {
	o := buildOptions("auth.guard", opts)
	cfg = cfg.withDefaults()
	return &Guard{
		cfg:      cfg,
		tokens:   tokens,
		sessions: sessions,
		origins:  NewOriginGuard(cfg.AllowedOrigins, cfg.AllowSubdomains),
		metrics:  o.metrics,
		logger:   o.logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Config returns a copy of the guard configuration.
func (g *Guard) Config() Config {
	return g.cfg.withDefaults()
}

// Origins returns the origin allow list.
func (g *Guard) Origins() *OriginGuard {
	return g.origins
}

// Wait blocks until background token updates have finished.
func (g *Guard) Wait() {
	g.tokens.Wait()
}

// Authenticate resolves r to a Principal. Errors are *Error values; every kind
// except StoreUnavailable is a credential failure.
func (g *Guard) Authenticate(r *http.Request) (*Principal, error) {
	start := time.Now()
	cred := g.resolveCredential(r)

	mode := ModeNone
	if cred != nil {
		mode = cred.mode()
	}

	ctx, span := g.tracer.Start(r.Context(), "auth.authenticate",
		trace.WithAttributes(attribute.String("auth.mode", string(mode))),
	)
	defer span.End()

	var (
		p   *Principal
		err error
	)
	switch c := cred.(type) {
	case tokenCredential:
		p, err = g.authenticateToken(ctx, c)
	case sessionCredential:
		p, err = g.authenticateSession(ctx, r, c)
	default:
		err = newError(KindUnauthenticated, errNoCredentials)
	}

	result := "ok"
	if err != nil {
		result = KindOf(err).String()
		span.SetStatus(codes.Error, result)
		g.logger.Warn("authentication failed",
			"reason", result,
			"mode", string(mode),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("auth.result", result))
	g.metrics.observeAttempt(mode, result, time.Since(start))

	return p, err
}

// resolveCredential inspects the request. A bearer header takes precedence
// over the session cookie; a non-bearer Authorization header is ignored.
func (g *Guard) resolveCredential(r *http.Request) credential {
	if token, errMsg := extractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
		return tokenCredential{plaintext: token}
	}
	if id := g.sessions.CookieValue(r); id != "" {
		return sessionCredential{id: id}
	}
	return nil
}

func (g *Guard) authenticateToken(ctx context.Context, c tokenCredential) (*Principal, error) {
	token, err := g.tokens.Verify(ctx, c.plaintext)
	if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:    token.UserID,
		Abilities: append([]string(nil), token.Abilities...),
		Mode:      ModeToken,
		TokenID:   token.ID,
	}, nil
}

func (g *Guard) authenticateSession(ctx context.Context, r *http.Request, c sessionCredential) (*Principal, error) {
	session, err := g.sessions.Find(ctx, c.id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, newError(KindUnauthenticated, errSessionNotFound)
	}
	if err != nil {
		return nil, newError(KindStoreUnavailable, err)
	}
	if !session.Authenticated() {
		return nil, newError(KindUnauthenticated, errSessionAnonymous)
	}

	if err := g.CheckOrigin(r); err != nil {
		return nil, err
	}
	if RequiresCSRF(r.Method) {
		if err := g.CheckCSRF(r, session); err != nil {
			return nil, err
		}
	}

	if err := g.sessions.Touch(ctx, session.ID); err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			return nil, newError(KindStoreUnavailable, err)
		}
		// Destroyed concurrently, e.g. by logout in another tab.
		return nil, newError(KindUnauthenticated, errSessionNotFound)
	}

	return &Principal{
		UserID:    session.UserID,
		Abilities: []string{AbilityAll},
		Mode:      ModeSession,
		SessionID: session.ID,
	}, nil
}

// CheckOrigin returns an UntrustedOrigin error unless the request origin is
// allowed. A request without Origin or Referer is untrusted.
func (g *Guard) CheckOrigin(r *http.Request) error {
	origin := OriginFromRequest(r)
	if origin == "" {
		return newError(KindUntrustedOrigin, errMissingOrigin)
	}
	if !g.origins.IsAllowed(origin) {
		return ErrUntrustedOrigin
	}
	return nil
}

// CheckCSRF compares the submitted CSRF value with the session secret in
// constant time.
func (g *Guard) CheckCSRF(r *http.Request, session *store.Session) error {
	submitted := g.submittedCSRF(r)
	if submitted == "" || session.CSRFSecret == "" {
		return ErrCsrfMismatch
	}
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(session.CSRFSecret)) != 1 {
		return ErrCsrfMismatch
	}
	return nil
}

func (g *Guard) submittedCSRF(r *http.Request) string {
	if v := r.Header.Get(g.cfg.CSRFHeader); v != "" {
		return v
	}
	if v := r.Header.Get(XSRFHeader); v != "" {
		return v
	}
	return r.FormValue(g.cfg.CSRFField)
}

// RequiresCSRF reports whether method can change state.
func RequiresCSRF(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}
