package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/diewo77/studio-console/internal/config"
	"github.com/diewo77/studio-console/internal/db"
	"github.com/diewo77/studio-console/internal/logging"
	"github.com/diewo77/studio-console/internal/metrics"
	"github.com/diewo77/studio-console/internal/server"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{
		Level:     logging.ParseLevel(cfg.Log.Level),
		Format:    logging.ParseFormat(cfg.Log.Format),
		Output:    os.Stdout,
		AddSource: cfg.Log.AddSource,
		Service:   "studio-server",
	})
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	dbConn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	// Handle migrate-only flag
	if *migrateOnlyFlag {
		if err := db.RunMigrations(dbConn, cfg.Database, cfg.App.SQLMigrations, log); err != nil {
			return err
		}
		log.Info("migrations completed")
		return nil
	}

	// Handle seed-only flag
	if *seedOnlyFlag {
		if err := db.Seed(dbConn, cfg.Auth); err != nil {
			return err
		}
		log.Info("seeding completed")
		return nil
	}

	// Run migrations on startup if enabled
	if cfg.App.Migrations {
		if err := db.RunMigrations(dbConn, cfg.Database, cfg.App.SQLMigrations, log); err != nil {
			return err
		}
		log.Info("migrations completed")
	}
	if err := db.Seed(dbConn, cfg.Auth); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	handler, closeStore, err := server.Build(ctx, cfg, dbConn, m, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("closing session store", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev, "session_store", cfg.Session.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
		log.Info("shutdown signal received")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}
