// ABOUTME: Immutable configuration for the guard and its services
// ABOUTME: Zero fields fall back to the documented defaults at construction

package auth

import (
	"time"
)

// Defaults applied to unset Config fields.
const (
	DefaultSessionCookie      = "sanctum_session"
	DefaultCSRFHeader         = "X-CSRF-Token"
	DefaultCSRFField          = "_token"
	DefaultCSRFCookie         = "XSRF-TOKEN"
	DefaultSessionIdleTimeout = 2 * time.Hour
	DefaultStoreTimeout       = 2 * time.Second
)

// XSRFHeader is the header browser HTTP libraries echo the XSRF-TOKEN cookie in.
// It is accepted alongside the configured CSRF header.
const XSRFHeader = "X-XSRF-TOKEN"

// Config holds authentication settings. It is copied at construction and never
// mutated afterwards.
type Config struct {
	// AllowedOrigins lists first-party origins allowed to use session auth.
	AllowedOrigins []string
	// AllowSubdomains enables "scheme://*.host" entries in AllowedOrigins.
	AllowSubdomains bool

	SessionCookie string
	CSRFHeader    string
	CSRFField     string
	CSRFCookie    string

	SessionIdleTimeout time.Duration
	// TokenTTL is the default lifetime of issued tokens. Zero means tokens never expire.
	TokenTTL     time.Duration
	StoreTimeout time.Duration

	SecureCookies bool
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	out := c
	out.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	if out.SessionCookie == "" {
		out.SessionCookie = DefaultSessionCookie
	}
	if out.CSRFHeader == "" {
		out.CSRFHeader = DefaultCSRFHeader
	}
	if out.CSRFField == "" {
		out.CSRFField = DefaultCSRFField
	}
	if out.CSRFCookie == "" {
		out.CSRFCookie = DefaultCSRFCookie
	}
	if out.SessionIdleTimeout <= 0 {
		out.SessionIdleTimeout = DefaultSessionIdleTimeout
	}
	if out.TokenTTL < 0 {
		out.TokenTTL = 0
	}
	if out.StoreTimeout <= 0 {
		out.StoreTimeout = DefaultStoreTimeout
	}
	return out
}
