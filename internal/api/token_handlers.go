// ABOUTME: Handlers for API token issuance, listing and revocation
// ABOUTME: The plaintext token is returned exactly once at issuance

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/sanctum/internal/auth"
	"github.com/2389/sanctum/internal/store"
)

// tokenResponse is token metadata. It never carries the secret or its hash.
type tokenResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Abilities  []string   `json:"abilities"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// handleIssueToken handles POST /api/sanctum/token.
// Exchanges email, password and device name for a plaintext token.
func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(w, r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		sendValidationErrors(w, errs)
		return
	}

	user, ok := a.checkCredentials(w, r, req.Email, req.Password)
	if !ok {
		return
	}

	ttl := time.Duration(req.ExpiresIn) * time.Second
	plaintext, tokenID, err := a.tokens.Issue(r.Context(), user.ID, req.DeviceName, req.Abilities, ttl)
	if err != nil {
		a.logger.Error("failed to issue token", "error", err)
		storeUnavailable(w, err)
		return
	}

	a.logger.Info("token issued", "user_id", user.ID, "token_id", tokenID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(plaintext))
}

// handleListTokens handles GET /api/tokens.
func (a *API) handleListTokens(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	tokens, err := a.tokens.List(r.Context(), p.UserID)
	if err != nil {
		a.logger.Error("failed to list tokens", "error", err)
		storeUnavailable(w, err)
		return
	}

	resp := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, tokenResponse{
			ID:         t.ID,
			Name:       t.Name,
			Abilities:  t.Abilities,
			CreatedAt:  t.CreatedAt,
			ExpiresAt:  t.ExpiresAt,
			LastUsedAt: t.LastUsedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRevokeToken handles DELETE /api/tokens/{id}.
func (a *API) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := chi.URLParam(r, "id")

	err := a.tokens.RevokeForUser(r.Context(), p.UserID, id)
	if errors.Is(err, store.ErrTokenNotFound) {
		sendJSONError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to revoke token", "error", err, "token_id", id)
		storeUnavailable(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRevokeAllTokens handles DELETE /api/tokens.
func (a *API) handleRevokeAllTokens(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	n, err := a.tokens.RevokeAll(r.Context(), p.UserID)
	if err != nil {
		a.logger.Error("failed to revoke tokens", "error", err)
		storeUnavailable(w, err)
		return
	}

	a.logger.Info("revoked all tokens", "user_id", p.UserID, "count", n)
	w.WriteHeader(http.StatusNoContent)
}
