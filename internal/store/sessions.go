// ABOUTME: SQLite store methods for browser sessions
// ABOUTME: Promotion swaps id, user and CSRF secret in one statement

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, user_id, csrf_secret, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		nullString(session.UserID),
		session.CSRFSecret,
		toNanos(session.CreatedAt),
		toNanos(session.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Idle policy is applied by the caller.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, user_id, csrf_secret, created_at, last_activity
		FROM sessions
		WHERE id = ?
	`

	var session Session
	var userID sql.NullString
	var createdAt, lastActivity int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&userID,
		&session.CSRFSecret,
		&createdAt,
		&lastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.UserID = userID.String
	session.CreatedAt = fromNanos(createdAt)
	session.LastActivity = fromNanos(lastActivity)
	return &session, nil
}

// PromoteSession re-keys a session to newID, binds it to userID and installs csrfSecret.
func (s *SQLiteStore) PromoteSession(ctx context.Context, oldID, newID, userID, csrfSecret string, at time.Time) (*Session, error) {
	query := `
		UPDATE sessions
		SET id = ?, user_id = ?, csrf_secret = ?, last_activity = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, newID, userID, csrfSecret, toNanos(at), oldID)
	if err != nil {
		return nil, fmt.Errorf("promoting session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrSessionNotFound
	}

	s.logger.Debug("promoted session", "user_id", userID)
	return s.GetSession(ctx, newID)
}

// TouchSession updates the activity timestamp. Last writer wins.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, "UPDATE sessions SET last_activity = ? WHERE id = ?", toNanos(at), id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession deletes a session. Deleting a missing session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteIdleSessions removes sessions whose last activity is before the cutoff.
func (s *SQLiteStore) DeleteIdleSessions(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE last_activity < ?", toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("deleting idle sessions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted idle sessions", "count", rowsAffected)
	}
	return rowsAffected, nil
}
