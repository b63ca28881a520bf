// Package servertest runs the identity backend on a temporary SQLite
// database for tests.
package servertest

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/diewo77/studio-console/internal/config"
	"github.com/diewo77/studio-console/internal/db"
	"github.com/diewo77/studio-console/internal/logging"
	"github.com/diewo77/studio-console/internal/metrics"
	"github.com/diewo77/studio-console/internal/models"
	"github.com/diewo77/studio-console/internal/server"
)

// AdminEmail and AdminPassword are the seeded admin's credentials.
const (
	AdminEmail    = "admin@studio.test"
	AdminPassword = "admin-password"
)

// Env is a running backend.
type Env struct {
	Server  *httptest.Server
	DB      *gorm.DB
	Config  *config.Config
	Metrics *metrics.Metrics
}

// URL is the base URL of the backend.
func (e *Env) URL() string { return e.Server.URL }

// Option adjusts the configuration before the backend starts.
type Option func(*config.Config)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(c *config.Config) { c.Auth.AccessTTL = d }
}

// Start runs a backend until the test ends.
func Start(t testing.TB, opts ...Option) *Env {
	t.Helper()
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "studio.db")},
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret",
			Issuer:            "studio-test",
			AccessTTL:         time.Hour,
			RefreshTTL:        24 * time.Hour,
			MinPasswordLength: 8,
			ProfileCacheTTL:   time.Minute,
			AdminEmail:        AdminEmail,
			AdminPassword:     AdminPassword,
		},
		Session: config.SessionConfig{Store: "db"},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	log := logging.Discard()
	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Seed(conn, cfg.Auth); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	h, closeStore, err := server.Build(ctx, cfg, conn, m, log)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		_ = closeStore()
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &Env{Server: srv, DB: conn, Config: cfg, Metrics: m}
}

// DeleteProfile removes a user's profile row, leaving the account.
func (e *Env) DeleteProfile(t testing.TB, userID string) {
	t.Helper()
	if err := e.DB.Delete(&models.Profile{}, "id = ?", userID).Error; err != nil {
		t.Fatalf("delete profile: %v", err)
	}
}

// SetRole overwrites a profile's stored role, bypassing validation.
func (e *Env) SetRole(t testing.TB, userID, role string) {
	t.Helper()
	if err := e.DB.Model(&models.Profile{}).Where("id = ?", userID).Update("role", role).Error; err != nil {
		t.Fatalf("set role: %v", err)
	}
}

// RevokeSessions revokes every live session, as a sign-out elsewhere would.
func (e *Env) RevokeSessions(t testing.TB) {
	t.Helper()
	err := e.DB.Model(&models.Session{}).Where("revoked_at IS NULL").Update("revoked_at", time.Now()).Error
	if err != nil {
		t.Fatalf("revoke sessions: %v", err)
	}
}

// UserID returns the id of the account with email.
func (e *Env) UserID(t testing.TB, email string) string {
	t.Helper()
	var u models.User
	if err := e.DB.First(&u, "email = ?", email).Error; err != nil {
		t.Fatalf("find user %s: %v", email, err)
	}
	return u.ID
}
