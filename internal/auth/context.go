// ABOUTME: Principal type describing the authenticated caller of a request
// ABOUTME: Provides WithPrincipal/FromContext for propagating it via context

package auth

import (
	"context"
	"slices"
)

// Mode records which credential authenticated a request.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeSession Mode = "session"
	ModeToken   Mode = "token"
)

// AbilityAll grants every ability.
const AbilityAll = "*"

// Principal is the normalized identity produced by the guard. It lives for one
// request and is never persisted.
type Principal struct {
	UserID    string
	Abilities []string
	Mode      Mode
	TokenID   string // set in token mode
	SessionID string // set in session mode
}

// Can reports whether the principal holds ability, directly or through "*".
func (p *Principal) Can(ability string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Abilities, AbilityAll) || slices.Contains(p.Abilities, ability)
}

// CanAll reports whether the principal holds every listed ability.
func (p *Principal) CanAll(abilities ...string) bool {
	for _, a := range abilities {
		if !p.Can(a) {
			return false
		}
	}
	return p != nil
}

// CanAny reports whether the principal holds at least one listed ability.
func (p *Principal) CanAny(abilities ...string) bool {
	for _, a := range abilities {
		if p.Can(a) {
			return true
		}
	}
	return false
}

// principalKey is the key type for storing the Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// MustFromContext retrieves the Principal from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Principal {
	p := FromContext(ctx)
	if p == nil {
		panic("auth: Principal not found in context")
	}
	return p
}
