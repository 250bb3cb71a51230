// ABOUTME: SQLite store methods for hashed API tokens
// ABOUTME: Supports lookup by public id, monotonic last-used updates and expiry sweeps

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateToken inserts a new API token record.
func (s *SQLiteStore) CreateToken(ctx context.Context, token *APIToken) error {
	abilities, err := json.Marshal(token.Abilities)
	if err != nil {
		return fmt.Errorf("encoding abilities: %w", err)
	}

	query := `
		INSERT INTO api_tokens (id, user_id, name, token_hash, abilities_json, created_at, expires_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Name,
		token.TokenHash,
		string(abilities),
		toNanos(token.CreatedAt),
		nullTime(token.ExpiresAt),
		nullTime(token.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}

	s.logger.Debug("created api token", "id", token.ID, "user_id", token.UserID, "name", token.Name)
	return nil
}

// GetToken retrieves a token by its public identifier.
func (s *SQLiteStore) GetToken(ctx context.Context, id string) (*APIToken, error) {
	query := `
		SELECT id, user_id, name, token_hash, abilities_json, created_at, expires_at, last_used_at
		FROM api_tokens
		WHERE id = ?
	`

	token, err := scanToken(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return token, nil
}

// ListTokens returns a user's tokens, oldest first.
func (s *SQLiteStore) ListTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	query := `
		SELECT id, user_id, name, token_hash, abilities_json, created_at, expires_at, last_used_at
		FROM api_tokens
		WHERE user_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*APIToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}

	return tokens, nil
}

// TouchToken records a use of the token. The timestamp only moves forward.
func (s *SQLiteStore) TouchToken(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE api_tokens SET last_used_at = ?
		WHERE id = ? AND (last_used_at IS NULL OR last_used_at < ?)
	`

	n := toNanos(at)
	if _, err := s.db.ExecContext(ctx, query, n, id, n); err != nil {
		return fmt.Errorf("updating token last_used_at: %w", err)
	}
	return nil
}

// DeleteToken removes a single token.
func (s *SQLiteStore) DeleteToken(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTokenNotFound
	}

	s.logger.Info("revoked api token", "id", id)
	return nil
}

// DeleteUserTokens removes every token owned by a user.
func (s *SQLiteStore) DeleteUserTokens(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_tokens WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("deleting user tokens: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.Info("revoked all api tokens", "user_id", userID, "count", rowsAffected)
	return rowsAffected, nil
}

// DeleteExpiredTokens removes tokens whose expiry is at or before now.
func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?",
		toNanos(now),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired api tokens", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*APIToken, error) {
	var token APIToken
	var abilities string
	var createdAt int64
	var expiresAt, lastUsedAt sql.NullInt64

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Name,
		&token.TokenHash,
		&abilities,
		&createdAt,
		&expiresAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(abilities), &token.Abilities); err != nil {
		return nil, fmt.Errorf("decoding abilities: %w", err)
	}
	token.CreatedAt = fromNanos(createdAt)
	token.ExpiresAt = timePtr(expiresAt)
	token.LastUsedAt = timePtr(lastUsedAt)

	return &token, nil
}
