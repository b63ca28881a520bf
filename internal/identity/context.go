package identity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/diewo77/studio-console/internal/prefs"
)

type ctxKey string

const principalCtxKey = ctxKey("principal")

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext extracts the caller.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(Principal)
	return p, ok && p.UserID != ""
}

// UserIDFromContext extracts the caller's user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Middleware attaches the principal to the request context when the bearer
// token is valid. Requests without one pass through anonymously.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := BearerToken(r); ok {
			p, err := s.Authenticate(r.Context(), token)
			if err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			} else {
				s.log.Debug("bearer token rejected", "path", r.URL.Path, "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth returns 401 unless Middleware attached a principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			prefs.Error(w, r, http.StatusUnauthorized, "unauthenticated", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
