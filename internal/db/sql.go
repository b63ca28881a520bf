package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/diewo77/studio-console/internal/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationSource returns the embedded SQL migrations.
func MigrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("db: load migrations: %w", err)
	}
	return src, nil
}

// MigrateSQL applies the embedded SQL migrations to the Postgres database at
// url.
func MigrateSQL(url string) error {
	src, err := MigrationSource()
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("db: init migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: sql migrations: %w", err)
	}
	return nil
}

// RunMigrations brings the schema up to date: the embedded SQL migrations
// when useSQL is set on Postgres, AutoMigrate otherwise.
func RunMigrations(conn *gorm.DB, cfg config.DatabaseConfig, useSQL bool, log *slog.Logger) error {
	if useSQL && cfg.Driver != "sqlite" {
		log.Info("running sql migrations")
		return MigrateSQL(cfg.URL())
	}
	if useSQL {
		log.Warn("sql migrations target postgres; using AutoMigrate for sqlite")
	}
	return Migrate(conn)
}
