// ABOUTME: Constant-time verification of token secrets and bcrypt passwords
// ABOUTME: Missing records still pay for a comparison against a fixed dummy hash

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// dummyPasswordHash is compared against when no account matches, so unknown
// emails cost the same bcrypt work as wrong passwords.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

var dummySecretDigest = sha256.Sum256([]byte("sanctum dummy token secret"))

// CredentialVerifier hashes and verifies token secrets and passwords.
// The zero value is usable and hashes passwords at bcrypt.DefaultCost.
type CredentialVerifier struct {
	Cost int
}

// HashSecret returns the hex SHA-256 digest stored for a token secret.
func (v *CredentialVerifier) HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret reports whether presented hashes to storedHash. The digests are
// compared with crypto/subtle so timing does not depend on where they differ.
func (v *CredentialVerifier) VerifySecret(presented, storedHash string) bool {
	sum := sha256.Sum256([]byte(presented))

	stored, err := hex.DecodeString(storedHash)
	if err != nil || len(stored) != sha256.Size {
		subtle.ConstantTimeCompare(sum[:], dummySecretDigest[:])
		return false
	}
	return subtle.ConstantTimeCompare(sum[:], stored) == 1
}

// DummyVerify performs a comparison whose result is discarded.
func (v *CredentialVerifier) DummyVerify(presented string) {
	sum := sha256.Sum256([]byte(presented))
	subtle.ConstantTimeCompare(sum[:], dummySecretDigest[:])
}

// HashPassword returns a bcrypt hash of password.
func (v *CredentialVerifier) HashPassword(password string) (string, error) {
	cost := v.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. An empty hash is
// treated as a disabled account and still costs one bcrypt comparison.
func (v *CredentialVerifier) VerifyPassword(hash, password string) bool {
	if hash == "" {
		v.DummyPasswordCheck(password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyPasswordCheck burns one bcrypt comparison for an unknown account.
func (v *CredentialVerifier) DummyPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
}

// generateSecureToken returns n random bytes hex-encoded.
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateBase64Token returns n random bytes in unpadded URL-safe base64.
func generateBase64Token(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
