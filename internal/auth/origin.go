// ABOUTME: Allow-list check for the origin of session-authenticated requests
// ABOUTME: Origins normalize to scheme://host[:port]; wildcards need explicit opt-in

package auth

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginGuard decides whether a request origin is first-party.
type OriginGuard struct {
	exact     map[string]struct{}
	wildcards []wildcardOrigin
}

// wildcardOrigin matches any strict subdomain of host with the same scheme and port.
type wildcardOrigin struct {
	scheme string
	host   string
	port   string
}

// NewOriginGuard builds a guard from allowList. Entries of the form
// "https://*.example.com" are honored only when allowSubdomains is true;
// invalid entries are skipped.
func NewOriginGuard(allowList []string, allowSubdomains bool) *OriginGuard {
	g := &OriginGuard{exact: make(map[string]struct{}, len(allowList))}

	for _, entry := range allowList {
		entry = strings.TrimSpace(entry)
		if scheme, rest, ok := strings.Cut(entry, "://*."); ok {
			if !allowSubdomains {
				continue
			}
			base, ok := NormalizeOrigin(scheme + "://" + rest)
			if !ok {
				continue
			}
			s, h, p := splitOrigin(base)
			g.wildcards = append(g.wildcards, wildcardOrigin{scheme: s, host: h, port: p})
			continue
		}

		if normalized, ok := NormalizeOrigin(entry); ok {
			g.exact[normalized] = struct{}{}
		}
	}

	return g
}

// IsAllowed reports whether origin is in the allow list.
func (g *OriginGuard) IsAllowed(origin string) bool {
	normalized, ok := NormalizeOrigin(origin)
	if !ok {
		return false
	}
	if _, ok := g.exact[normalized]; ok {
		return true
	}

	scheme, host, port := splitOrigin(normalized)
	for _, w := range g.wildcards {
		if w.scheme != scheme || w.port != port {
			continue
		}
		if strings.HasSuffix(host, "."+w.host) && len(host) > len(w.host)+1 {
			return true
		}
	}
	return false
}

// NormalizeOrigin converts raw to lowercase scheme://host[:port] with default
// ports removed. Paths, queries and fragments are dropped. It fails for empty,
// "null", non-http(s) and hostless values.
func NormalizeOrigin(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || u.User != nil {
		return "", false
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}

	if port != "" {
		return scheme + "://" + net.JoinHostPort(host, port), true
	}
	if strings.Contains(host, ":") {
		return scheme + "://[" + host + "]", true
	}
	return scheme + "://" + host, true
}

// splitOrigin breaks a normalized origin into scheme, host and port.
func splitOrigin(origin string) (scheme, host, port string) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", "", ""
	}
	return u.Scheme, u.Hostname(), u.Port()
}

// OriginFromRequest returns the Origin header, or the scheme, host and port of
// the Referer header when Origin is absent.
func OriginFromRequest(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}

	referer := r.Header.Get("Referer")
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
