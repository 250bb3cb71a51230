// ABOUTME: Store interfaces and data types for sanctum persistence
// ABOUTME: Defines User, APIToken, Session and the interfaces backing the auth services

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user lookup matches no record.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when creating a user with an email already in use.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenNotFound is returned when an API token lookup matches no record.
var ErrTokenNotFound = errors.New("token not found")

// ErrSessionNotFound is returned when a session doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// User is an account record. Owned by the account store; the auth guard only reads it.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string // bcrypt
	CreatedAt    time.Time
}

// APIToken is one issued device credential. Only the hash of the secret is stored.
type APIToken struct {
	ID         string
	UserID     string
	Name       string // device name, not unique
	TokenHash  string
	Abilities  []string
	CreatedAt  time.Time
	ExpiresAt  *time.Time // nil = never expires
	LastUsedAt *time.Time
}

// Session is server-side state for a browser, keyed by the cookie identifier.
type Session struct {
	ID           string
	UserID       string // empty until the session is promoted by a login
	CSRFSecret   string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Authenticated reports whether a login has promoted this session.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// TokenStore persists hashed API tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, token *APIToken) error
	GetToken(ctx context.Context, id string) (*APIToken, error)
	ListTokens(ctx context.Context, userID string) ([]*APIToken, error)
	// TouchToken moves last_used_at forward to at. Older timestamps are ignored.
	TouchToken(ctx context.Context, id string, at time.Time) error
	DeleteToken(ctx context.Context, id string) error
	DeleteUserTokens(ctx context.Context, userID string) (int64, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore persists browser sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// PromoteSession atomically replaces the session id, assigns the user and
	// installs a new CSRF secret. Readers observe either the old or the new row.
	PromoteSession(ctx context.Context, oldID, newID, userID, csrfSecret string, at time.Time) (*Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteIdleSessions(ctx context.Context, before time.Time) (int64, error)
}

// Store combines every persistence interface. SQLiteStore and MemoryStore implement it.
type Store interface {
	UserStore
	TokenStore
	SessionStore
	Close() error
}
