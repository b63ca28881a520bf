package policy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/internal/identity"
	"github.com/diewo77/studio-console/internal/metrics"
	"github.com/diewo77/studio-console/internal/prefs"
)

// AuthGate applies the access guard to API requests. The caller comes from
// identity.Middleware, the role from a cached profile lookup.
type AuthGate struct {
	CacheResolver *gate.CachedResolver[string]
	metrics       *metrics.Metrics
	log           *slog.Logger
}

// NewAuthGate creates a fully configured authorization gate.
// - db: GORM database connection for profile lookups
// - cacheTTL: how long to cache profiles (e.g., 5*time.Minute)
func NewAuthGate(db *gorm.DB, cacheTTL time.Duration, m *metrics.Metrics, log *slog.Logger) *AuthGate {
	resolver := gate.NewCachedResolver[string](NewDBProfileResolver(db, m), cacheTTL).
		OnLookup(m.RecordCache)
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AuthGate{CacheResolver: resolver, metrics: m, log: log}
}

// requestViewer is the gate.Viewer of one API request. A request is always
// ready: its session was checked by the middleware before the handler ran.
type requestViewer struct {
	userID string
	role   gate.Role
}

func (v requestViewer) Ready() bool         { return true }
func (v requestViewer) Authenticated() bool { return v.userID != "" }
func (v requestViewer) Role() gate.Role     { return v.role }

// Viewer resolves the caller of ctx. A caller without a profile row is
// treated as anonymous.
func (ag *AuthGate) Viewer(ctx context.Context) (gate.Viewer, error) {
	userID, ok := identity.UserIDFromContext(ctx)
	if !ok {
		return requestViewer{}, nil
	}
	profile, err := ag.CacheResolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		ag.log.Warn("authenticated caller without profile", "user_id", userID)
		return requestViewer{}, nil
	}
	return requestViewer{userID: userID, role: profile.Role()}, nil
}

// Require returns middleware enforcing p. A login redirect becomes 401, a
// fallback redirect 403.
func (ag *AuthGate) Require(route string, p gate.AccessPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := ag.Viewer(r.Context())
			if err != nil {
				ag.log.Error("profile lookup failed", "path", r.URL.Path, "error", err)
				prefs.Error(w, r, http.StatusServiceUnavailable, "transport_failure", nil)
				return
			}
			d := gate.Decide(v, p)
			ag.metrics.RecordDecision(route, d.Outcome.String())
			switch {
			case d.Outcome == gate.Render:
				next.ServeHTTP(w, r)
			case d.RememberOrigin:
				prefs.Error(w, r, http.StatusUnauthorized, "unauthenticated", nil)
			default:
				prefs.Error(w, r, http.StatusForbidden, "forbidden", nil)
			}
		})
	}
}

// RequireRoles is Require with an allowlist.
func (ag *AuthGate) RequireRoles(route string, roles ...gate.Role) func(http.Handler) http.Handler {
	return ag.Require(route, gate.Allow(roles...))
}

// RequireAdmin returns middleware that only allows admins.
func (ag *AuthGate) RequireAdmin(route string) func(http.Handler) http.Handler {
	return ag.RequireRoles(route, gate.RoleAdmin)
}

// InvalidateUser clears the cache for a specific user.
// Call this when a user's role changes.
func (ag *AuthGate) InvalidateUser(userID string) {
	ag.CacheResolver.Invalidate(userID)
}

// InvalidateAll clears the entire profile cache.
func (ag *AuthGate) InvalidateAll() {
	ag.CacheResolver.InvalidateAll()
}
