// Package auth authenticates HTTP requests for sanctum.
//
// # Authentication Modes
//
// One set of protected routes accepts two kinds of credential:
//
//   - Bearer tokens: API clients send "Authorization: Bearer <id>|<secret>".
//     The id locates the record; only the SHA-256 of the secret is stored and
//     it is compared in constant time. Tokens carry an ability list and may
//     expire. Expiry is inclusive: a token checked exactly at ExpiresAt fails.
//
//   - Session cookies: the first-party frontend holds a session cookie issued
//     by the login endpoint. Session requests must come from an allowed origin
//     and, for state-changing methods, echo the session CSRF secret in the
//     X-CSRF-Token header or the _token form field.
//
// A bearer header always takes precedence over a session cookie.
//
// # Guard
//
//	tokens := auth.NewTokenService(st, cfg)
//	sessions := auth.NewSessionService(st, cfg)
//	guard := auth.NewGuard(tokens, sessions, cfg)
//	r.Use(auth.Middleware(guard))
//
// Handlers read the caller with FromContext. Session principals hold every
// ability ("*"); token principals hold the abilities granted at issuance.
//
// # Errors
//
// Failures are *Error values whose Kind is one of Unauthenticated,
// InvalidToken, TokenExpired, CsrfMismatch, UntrustedOrigin or
// StoreUnavailable. Match them with errors.Is against the Err* sentinels.
// Only StoreUnavailable is retryable; Middleware answers it with 503 and a
// Retry-After header, and every credential failure with a generic 401.
//
// # Timeouts
//
// Every store call is bounded by Config.StoreTimeout. Token last-used updates
// run in the background; call Guard.Wait before closing the store.
package auth
