package authgate

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
)

type principalIDKey struct{}

// Middleware resolves the requesting principal from the session first, then
// from a bearer token (Authorization header or the jwt cookie), and exposes
// the id to downstream handlers via the request context.
//
// When Session is set the middleware must run inside that manager's
// LoadAndSave. Leave Session nil for token-only APIs.
type Middleware struct {
	Session *scs.SessionManager
	Issuer  *TokenIssuer

	// HeaderName defaults to Authorization, CookieName to TokenCookieName.
	HeaderName string
	CookieName string
}

func (m *Middleware) headerName() string {
	if m.HeaderName != "" {
		return m.HeaderName
	}
	return "Authorization"
}

func (m *Middleware) cookieName() string {
	if m.CookieName != "" {
		return m.CookieName
	}
	return TokenCookieName
}

// PrincipalID returns the authenticated principal id from the request
// context, or "" for an anonymous request.
func PrincipalID(ctx context.Context) string {
	if v, ok := ctx.Value(principalIDKey{}).(string); ok {
		return v
	}
	return ""
}

// ExtractPrincipal loads the principal id into the request context without
// requiring one. Use RequirePrincipal to enforce authentication.
func (m *Middleware) ExtractPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, m.withPrincipalID(r, m.resolve(r)))
	})
}

// RequirePrincipal rejects anonymous requests with a 401.
func (m *Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := m.resolve(r)
		if id == "" {
			http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, m.withPrincipalID(r, id))
	})
}

func (m *Middleware) resolve(r *http.Request) string {
	if m.Session != nil {
		if id := m.Session.GetString(r.Context(), SessionPrincipalKey); id != "" {
			return id
		}
	}
	if m.Issuer == nil {
		return ""
	}

	tokens := make([]string, 0, 2)
	for _, h := range r.Header.Values(m.headerName()) {
		tokens = append(tokens, strings.TrimPrefix(h, "Bearer "))
	}
	for _, c := range r.CookiesNamed(m.cookieName()) {
		if c.Value != "" {
			tokens = append(tokens, c.Value)
		}
	}

	for _, t := range tokens {
		id, _, err := m.Issuer.Verify(t)
		if err == nil && id != "" {
			return id
		} else if err != nil {
			slog.Debug("bearer token rejected", "err", err)
		}
	}
	return ""
}

func (m *Middleware) withPrincipalID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalIDKey{}, id))
}
