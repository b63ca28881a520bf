package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/studio-console/internal/config"
	"github.com/diewo77/studio-console/internal/models"
)

// connectAttempts gives Postgres time to come up next to the server.
const connectAttempts = 5

// Open connects to the configured database, retrying a few times.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true}
	var conn *gorm.DB
	var err error
	for i := 1; i <= connectAttempts; i++ {
		conn, err = gorm.Open(dialector, gcfg)
		if err == nil {
			break
		}
		log.Warn("database connection failed", "attempt", i, "of", connectAttempts, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	log.Info("database connected", "driver", cfg.Driver, "host", cfg.Host, "name", cfg.DBName)
	return conn, nil
}

// Migrate runs AutoMigrate for all models.
// Call this at application startup or as part of a migration step.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Session{},
	)
}

// Seed creates the first admin account when email and password are set and
// no user with that email exists yet. It is safe to call on every start.
func Seed(db *gorm.DB, auth config.AuthConfig) error {
	email := strings.ToLower(strings.TrimSpace(auth.AdminEmail))
	if email == "" || auth.AdminPassword == "" {
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.User{ID: id, Email: email, Password: string(hash)}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Profile{ID: id, Email: email, DisplayName: "Administrator", Role: models.RoleAdmin}).Error
	})
}
