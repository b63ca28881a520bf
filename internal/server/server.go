package server

import (
	"context"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"github.com/diewo77/studio-console/internal/config"
	"github.com/diewo77/studio-console/internal/identity"
	"github.com/diewo77/studio-console/internal/metrics"
	"github.com/diewo77/studio-console/internal/policy"
)

// Build wires the identity service, session store, access gate and router
// from cfg. The returned function releases the session store.
func Build(ctx context.Context, cfg *config.Config, db *gorm.DB, m *metrics.Metrics, log *slog.Logger) (http.Handler, func() error, error) {
	sessions, closeStore, err := identity.OpenSessionStore(ctx, cfg.Session, db)
	if err != nil {
		return nil, nil, err
	}
	tokens := identity.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	svc := identity.NewService(db, sessions, tokens, identity.Options{
		RefreshTTL:        cfg.Auth.RefreshTTL,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		Logger:            log.With("component", "identity"),
	})
	ag := policy.NewAuthGate(db, cfg.Auth.ProfileCacheTTL, m, log.With("component", "gate"))

	h := New(Deps{
		DB:             db,
		Identity:       svc,
		Gate:           ag,
		Routes:         policy.DefaultRoutes(),
		Metrics:        m,
		Log:            log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	return h, closeStore, nil
}
