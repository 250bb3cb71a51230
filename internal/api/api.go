// ABOUTME: HTTP API exposing login, token issuance and the protected user routes
// ABOUTME: Routes are mounted on a chi router; protected routes sit behind auth.Middleware

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/sanctum/internal/auth"
	"github.com/2389/sanctum/internal/store"
)

// AbilityUsersCreate is required to create users through the API.
const AbilityUsersCreate = "users:create"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Deps are the collaborators the API needs.
type Deps struct {
	Users    store.UserStore
	Guard    *auth.Guard
	Tokens   *auth.TokenService
	Sessions *auth.SessionService
	Verifier *auth.CredentialVerifier
	Logger   *slog.Logger
}

// API serves the HTTP endpoints.
type API struct {
	users    store.UserStore
	guard    *auth.Guard
	tokens   *auth.TokenService
	sessions *auth.SessionService
	verifier *auth.CredentialVerifier
	logger   *slog.Logger

	storeTimeout time.Duration
}

// New creates an API.
func New(deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = &auth.CredentialVerifier{}
	}
	return &API{
		users:    deps.Users,
		guard:    deps.Guard,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		verifier: verifier,
		logger:   logger.With("component", "api"),

		storeTimeout: deps.Guard.Config().StoreTimeout,
	}
}

// storeContext bounds a user-store call by the guard's store timeout.
func (a *API) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.storeTimeout)
}

// Register mounts the API routes on r.
func (a *API) Register(r chi.Router) {
	r.Get("/sanctum/csrf-cookie", a.handleCSRFCookie)
	r.Post("/login", a.handleLogin)
	r.Post("/api/sanctum/token", a.handleIssueToken)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.guard))

		r.Post("/logout", a.handleLogout)
		r.Get("/api/user", a.handleCurrentUser)
		r.With(auth.RequireAbility(AbilityUsersCreate)).Post("/api/user", a.handleCreateUser)

		r.Get("/api/tokens", a.handleListTokens)
		r.Delete("/api/tokens", a.handleRevokeAllTokens)
		r.Delete("/api/tokens/{id}", a.handleRevokeToken)
	})
}

// userResponse is the public view of a user.
type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fieldErrors maps input field names to validation messages.
type fieldErrors map[string]string

func sendValidationErrors(w http.ResponseWriter, errs fieldErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": errs,
	})
}

// storeUnavailable reports a backend failure the client may retry.
func storeUnavailable(w http.ResponseWriter, err error) {
	auth.WriteError(w, &auth.Error{Kind: auth.KindStoreUnavailable, Err: err})
}

func unauthenticated(w http.ResponseWriter) {
	auth.WriteError(w, auth.ErrUnauthenticated)
}
