// ABOUTME: In-memory Store implementation for tests and the memory database driver
// ABOUTME: Mirrors SQLiteStore semantics under a single RWMutex

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User     // keyed by user ID
	emails   map[string]string    // keyed by lowercased email -> user ID
	tokens   map[string]*APIToken // keyed by token ID
	sessions map[string]*Session  // keyed by session ID
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		emails:   make(map[string]string),
		tokens:   make(map[string]*APIToken),
		sessions: make(map[string]*Session),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new user.
func (m *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := emailKey(user.Email)
	if _, exists := m.emails[key]; exists {
		return ErrEmailExists
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	u := *user
	u.Email = strings.TrimSpace(u.Email)
	m.users[u.ID] = &u
	m.emails[key] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[emailKey(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func copyToken(t *APIToken) *APIToken {
	cp := *t
	cp.Abilities = append([]string(nil), t.Abilities...)
	if t.ExpiresAt != nil {
		e := *t.ExpiresAt
		cp.ExpiresAt = &e
	}
	if t.LastUsedAt != nil {
		l := *t.LastUsedAt
		cp.LastUsedAt = &l
	}
	return &cp
}

// CreateToken stores a new token.
func (m *MemoryStore) CreateToken(ctx context.Context, token *APIToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[token.ID] = copyToken(token)
	return nil
}

// GetToken retrieves a token by ID.
func (m *MemoryStore) GetToken(ctx context.Context, id string) (*APIToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

// ListTokens returns a user's tokens, oldest first.
func (m *MemoryStore) ListTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tokens []*APIToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			tokens = append(tokens, copyToken(t))
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// TouchToken moves last_used_at forward.
func (m *MemoryStore) TouchToken(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return nil
	}
	if t.LastUsedAt == nil || t.LastUsedAt.Before(at) {
		at = at.UTC()
		t.LastUsedAt = &at
	}
	return nil
}

// DeleteToken removes a token.
func (m *MemoryStore) DeleteToken(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[id]; !ok {
		return ErrTokenNotFound
	}
	delete(m.tokens, id)
	return nil
}

// DeleteUserTokens removes every token owned by a user.
func (m *MemoryStore) DeleteUserTokens(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.tokens {
		if t.UserID == userID {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredTokens removes tokens whose expiry is at or before now.
func (m *MemoryStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// CreateSession stores a new session.
func (m *MemoryStore) CreateSession(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *session
	m.sessions[s.ID] = &s
	return nil
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// PromoteSession re-keys the session and rotates its CSRF secret under the write lock.
func (m *MemoryStore) PromoteSession(ctx context.Context, oldID, newID, userID, csrfSecret string, at time.Time) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[oldID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	promoted := *s
	promoted.ID = newID
	promoted.UserID = userID
	promoted.CSRFSecret = csrfSecret
	promoted.LastActivity = at.UTC()

	delete(m.sessions, oldID)
	m.sessions[newID] = &promoted

	cp := promoted
	return &cp, nil
}

// TouchSession updates the activity timestamp.
func (m *MemoryStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastActivity = at.UTC()
	return nil
}

// DeleteSession deletes a session.
func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// DeleteIdleSessions removes sessions whose last activity is before the cutoff.
func (m *MemoryStore) DeleteIdleSessions(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.LastActivity.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
