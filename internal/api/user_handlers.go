// ABOUTME: Handlers for reading the current user and creating users
// ABOUTME: User creation requires the users:create ability

package api

import (
	"errors"
	"net/http"
	"net/mail"

	"github.com/2389/sanctum/internal/auth"
	"github.com/2389/sanctum/internal/store"
)

// minPasswordLength is the shortest password accepted for new users.
const minPasswordLength = 8

// handleCurrentUser handles GET /api/user.
func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	user, err := a.users.GetUser(ctx, p.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		unauthenticated(w)
		return
	}
	if err != nil {
		a.logger.Error("failed to get user", "error", err)
		storeUnavailable(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// handleCreateUser handles POST /api/user.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	req, err := parseCreateUserRequest(w, r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := validateNewUser(req); len(errs) > 0 {
		sendValidationErrors(w, errs)
		return
	}

	hash, err := a.verifier.HashPassword(req.Password)
	if err != nil {
		a.logger.Error("failed to hash password", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user := &store.User{Name: req.Name, Email: req.Email, PasswordHash: hash}
	ctx, cancel := a.storeContext(r.Context())
	defer cancel()
	err = a.users.CreateUser(ctx, user)
	if errors.Is(err, store.ErrEmailExists) {
		sendValidationErrors(w, fieldErrors{"email": "already taken"})
		return
	}
	if err != nil {
		a.logger.Error("failed to create user", "error", err)
		storeUnavailable(w, err)
		return
	}

	p := auth.MustFromContext(r.Context())
	a.logger.Info("user created", "user_id", user.ID, "created_by", p.UserID, "mode", string(p.Mode))
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func validateNewUser(req *createUserRequest) fieldErrors {
	errs := fieldErrors{}
	if req.Name == "" {
		errs["name"] = "required"
	} else if len(req.Name) > 255 {
		errs["name"] = "must be at most 255 characters"
	}
	if req.Email == "" {
		errs["email"] = "required"
	} else if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		errs["email"] = "must be a valid email address"
	}
	if len(req.Password) < minPasswordLength {
		errs["password"] = "must be at least 8 characters"
	}
	return errs
}
