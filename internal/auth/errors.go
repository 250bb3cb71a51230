// ABOUTME: Error taxonomy for request authentication failures
// ABOUTME: Error carries a Kind; sentinels match any error of the same kind via errors.Is

package auth

import (
	"errors"
)

// Kind classifies an authentication failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindInvalidToken
	KindTokenExpired
	KindCsrfMismatch
	KindUntrustedOrigin
	KindStoreUnavailable
)

// String returns the snake_case name used in logs, metrics and span attributes.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenExpired:
		return "token_expired"
	case KindCsrfMismatch:
		return "csrf_mismatch"
	case KindUntrustedOrigin:
		return "untrusted_origin"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Error is returned by the guard and the token service.
type Error struct {
	Kind Kind
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "auth: " + e.Kind.String()
	}
	return "auth: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrInvalidToken     = &Error{Kind: KindInvalidToken}
	ErrTokenExpired     = &Error{Kind: KindTokenExpired}
	ErrCsrfMismatch     = &Error{Kind: KindCsrfMismatch}
	ErrUntrustedOrigin  = &Error{Kind: KindUntrustedOrigin}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

// Causes attached to failures whose kind alone is ambiguous in logs.
var (
	errNoCredentials    = errors.New("no credentials presented")
	errMalformedToken   = errors.New("malformed token")
	errUnknownToken     = errors.New("unknown token id")
	errSecretMismatch   = errors.New("secret mismatch")
	errSessionNotFound  = errors.New("session not found")
	errSessionAnonymous = errors.New("session not logged in")
	errMissingOrigin    = errors.New("missing origin")
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether the caller may retry the whole request.
// Only store unavailability is transient; credential failures never are.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}
