// ABOUTME: Handlers for the browser session flow: csrf-cookie, login and logout
// ABOUTME: Login promotes the session, rotating its id and CSRF secret

package api

import (
	"errors"
	"net/http"

	"github.com/2389/sanctum/internal/auth"
	"github.com/2389/sanctum/internal/store"
)

// handleCSRFCookie handles GET /sanctum/csrf-cookie.
// Ensures the caller has a session and sends the CSRF cookie.
func (a *API) handleCSRFCookie(w http.ResponseWriter, r *http.Request) {
	session, created, err := a.sessions.Ensure(r.Context(), r)
	if err != nil {
		a.logger.Error("failed to ensure session", "error", err)
		storeUnavailable(w, err)
		return
	}
	if created {
		a.logger.Debug("started anonymous session")
	}

	a.sessions.SetCookies(w, session)
	w.WriteHeader(http.StatusNoContent)
}

// handleLogin handles POST /login.
// The request must come from an allowed origin. When the caller already holds
// a live session, the CSRF value must match it.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := a.guard.CheckOrigin(r); err != nil {
		a.logger.Warn("login rejected", "reason", auth.KindOf(err).String(), "remote_addr", r.RemoteAddr)
		auth.WriteError(w, err)
		return
	}

	req, err := parseLoginRequest(w, r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		sendValidationErrors(w, requiredLoginFields(req))
		return
	}

	session, err := a.sessions.Current(ctx, r)
	if err != nil {
		a.logger.Error("failed to load session", "error", err)
		storeUnavailable(w, err)
		return
	}
	if session != nil {
		if err := a.guard.CheckCSRF(r, session); err != nil {
			a.logger.Warn("login rejected", "reason", auth.KindOf(err).String(), "remote_addr", r.RemoteAddr)
			auth.WriteError(w, err)
			return
		}
	}

	user, ok := a.checkCredentials(w, r, req.Email, req.Password)
	if !ok {
		return
	}

	// Cookieless logins get a session only once the credentials check out.
	if session == nil {
		if session, err = a.sessions.Create(ctx); err != nil {
			a.logger.Error("failed to create session", "error", err)
			storeUnavailable(w, err)
			return
		}
	}

	promoted, err := a.sessions.Promote(ctx, session.ID, user.ID)
	if err != nil {
		a.logger.Error("failed to promote session", "error", err)
		storeUnavailable(w, err)
		return
	}

	a.sessions.SetCookies(w, promoted)
	a.logger.Info("login successful", "user_id", user.ID)
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func requiredLoginFields(req *loginRequest) fieldErrors {
	errs := fieldErrors{}
	if req.Email == "" {
		errs["email"] = "required"
	}
	if req.Password == "" {
		errs["password"] = "required"
	}
	return errs
}

// checkCredentials resolves email and password to a user. On failure it
// writes the response and returns false. Unknown emails cost the same bcrypt
// work as wrong passwords.
func (a *API) checkCredentials(w http.ResponseWriter, r *http.Request, email, password string) (*store.User, bool) {
	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrUserNotFound) && ctx.Err() != nil {
		err = ctx.Err()
	}
	if errors.Is(err, store.ErrUserNotFound) {
		a.verifier.DummyPasswordCheck(password)
		a.logger.Warn("credential check failed", "reason", "unknown_email", "remote_addr", r.RemoteAddr)
		unauthenticated(w)
		return nil, false
	}
	if err != nil {
		a.logger.Error("failed to get user", "error", err)
		storeUnavailable(w, err)
		return nil, false
	}

	if !a.verifier.VerifyPassword(user.PasswordHash, password) {
		a.logger.Warn("credential check failed", "reason", "bad_password", "user_id", user.ID, "remote_addr", r.RemoteAddr)
		unauthenticated(w)
		return nil, false
	}
	return user, true
}

// handleLogout handles POST /logout.
// Session callers lose their session; token callers revoke the presented token.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	switch p.Mode {
	case auth.ModeSession:
		if err := a.sessions.Destroy(r.Context(), p.SessionID); err != nil {
			a.logger.Error("failed to destroy session", "error", err)
			storeUnavailable(w, err)
			return
		}
		a.sessions.ClearCookies(w)
	case auth.ModeToken:
		if err := a.tokens.Revoke(r.Context(), p.TokenID); err != nil && !errors.Is(err, store.ErrTokenNotFound) {
			a.logger.Error("failed to revoke token", "error", err)
			storeUnavailable(w, err)
			return
		}
	}

	a.logger.Info("logout", "user_id", p.UserID, "mode", string(p.Mode))
	w.WriteHeader(http.StatusNoContent)
}
