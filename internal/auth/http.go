// ABOUTME: HTTP middleware guarding protected routes with the Guard
// ABOUTME: Maps auth failures to 401/403/503 JSON responses without exposing the kind

package auth

import (
	"encoding/json"
	"net/http"
)

// Response bodies. The failure kind is never sent to the client.
const (
	bodyUnauthenticated    = "unauthenticated"
	bodyForbidden          = "forbidden"
	bodyServiceUnavailable = "service unavailable"
)

// Middleware authenticates every request with g and stores the Principal in
// the request context.
func Middleware(g *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.Authenticate(r)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAbility rejects principals lacking any of the listed abilities.
// Must be used after Middleware.
func RequireAbility(abilities ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := FromContext(r.Context())
			if p == nil {
				writeJSONError(w, http.StatusUnauthorized, bodyUnauthenticated)
				return
			}
			if !p.CanAll(abilities...) {
				writeJSONError(w, http.StatusForbidden, bodyForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the response for an authentication failure.
func WriteError(w http.ResponseWriter, err error) {
	if Retryable(err) {
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, bodyServiceUnavailable)
		return
	}
	writeJSONError(w, http.StatusUnauthorized, bodyUnauthenticated)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
