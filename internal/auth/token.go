// ABOUTME: API token issuance, verification and revocation
// ABOUTME: Plaintext is "<id>|<secret>"; only the SHA-256 of the secret is stored

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sanctum/internal/store"
)

// tokenSecretBytes is the entropy of the secret half of a plaintext token.
const tokenSecretBytes = 40

// tokenSeparator splits the public id from the secret.
const tokenSeparator = "|"

// TokenService manages API tokens on top of a store.TokenStore.
type TokenService struct {
	store    store.TokenStore
	cfg      Config
	verifier *CredentialVerifier
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	touches sync.WaitGroup
}

// NewTokenService creates a TokenService.
func NewTokenService(s store.TokenStore, cfg Config, opts ...Option) *TokenService {
	o := buildOptions("auth.tokens", opts)
	return &TokenService{
		store:    s,
		cfg:      cfg.withDefaults(),
		verifier: o.verifier,
		metrics:  o.metrics,
		logger:   o.logger,
		now:      o.now,
	}
}

// Issue creates a token for userID and returns its plaintext exactly once.
// Empty abilities grant "*". A ttl of zero or less uses the configured default.
func (s *TokenService) Issue(ctx context.Context, userID, deviceName string, abilities []string, ttl time.Duration) (plaintext, tokenID string, err error) {
	secret, err := generateBase64Token(tokenSecretBytes)
	if err != nil {
		return "", "", fmt.Errorf("generating token secret: %w", err)
	}

	if len(abilities) == 0 {
		abilities = []string{AbilityAll}
	}
	if ttl <= 0 {
		ttl = s.cfg.TokenTTL
	}

	now := s.now().UTC()
	token := &store.APIToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      deviceName,
		TokenHash: s.verifier.HashSecret(secret),
		Abilities: append([]string(nil), abilities...),
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.store.CreateToken(storeCtx, token); err != nil {
		return "", "", fmt.Errorf("storing token: %w", err)
	}

	s.metrics.tokenIssued()
	s.logger.Info("issued api token", "token_id", token.ID, "user_id", userID, "device", deviceName)
	return token.ID + tokenSeparator + secret, token.ID, nil
}

// FindByIdentifier returns the token record with the given public id.
func (s *TokenService) FindByIdentifier(ctx context.Context, id string) (*store.APIToken, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.GetToken(storeCtx, id)
}

// Verify checks a plaintext token and returns its record. Failures are *Error
// values of kind InvalidToken, TokenExpired or StoreUnavailable. A successful
// verification schedules an asynchronous last-used update.
func (s *TokenService) Verify(ctx context.Context, plaintext string) (*store.APIToken, error) {
	id, secret, ok := splitToken(plaintext)
	if !ok {
		s.verifier.DummyVerify(plaintext)
		return nil, newError(KindInvalidToken, errMalformedToken)
	}

	token, err := s.FindByIdentifier(ctx, id)
	if errors.Is(err, store.ErrTokenNotFound) {
		s.verifier.DummyVerify(secret)
		return nil, newError(KindInvalidToken, errUnknownToken)
	}
	if err != nil {
		return nil, newError(KindStoreUnavailable, err)
	}

	if !s.verifier.VerifySecret(secret, token.TokenHash) {
		return nil, newError(KindInvalidToken, errSecretMismatch)
	}

	now := s.now()
	if token.ExpiresAt != nil && !now.Before(*token.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	s.touchAsync(ctx, token.ID, now)
	return token, nil
}

// touchAsync records the token use on a context detached from the request.
func (s *TokenService) touchAsync(ctx context.Context, id string, at time.Time) {
	detached := context.WithoutCancel(ctx)
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()
		touchCtx, cancel := context.WithTimeout(detached, s.cfg.StoreTimeout)
		defer cancel()
		if err := s.store.TouchToken(touchCtx, id, at); err != nil {
			s.logger.Warn("failed to record token use", "token_id", id, "error", err)
		}
	}()
}

// TouchLastUsed records a use of the token now. The stored timestamp never
// moves backwards.
func (s *TokenService) TouchLastUsed(ctx context.Context, id string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.TouchToken(storeCtx, id, s.now())
}

// Wait blocks until pending last-used updates finish.
func (s *TokenService) Wait() {
	s.touches.Wait()
}

// List returns the tokens owned by userID.
func (s *TokenService) List(ctx context.Context, userID string) ([]*store.APIToken, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.ListTokens(storeCtx, userID)
}

// Revoke deletes a token by id.
func (s *TokenService) Revoke(ctx context.Context, id string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.DeleteToken(storeCtx, id)
}

// RevokeForUser deletes a token only if userID owns it. Tokens owned by
// someone else report store.ErrTokenNotFound.
func (s *TokenService) RevokeForUser(ctx context.Context, userID, id string) error {
	token, err := s.FindByIdentifier(ctx, id)
	if err != nil {
		return err
	}
	if token.UserID != userID {
		return store.ErrTokenNotFound
	}
	return s.Revoke(ctx, id)
}

// RevokeAll deletes every token owned by userID.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.DeleteUserTokens(storeCtx, userID)
}

// SweepExpired deletes tokens whose expiry has passed.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.DeleteExpiredTokens(storeCtx, s.now())
}

// splitToken parses "<id>|<secret>". Both halves must be non-empty.
func splitToken(plaintext string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(plaintext, tokenSeparator)
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}
