// Package config provides application configuration loaded from defaults,
// an optional config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevJWTSecret signs tokens when APP_DEV is set and no secret is configured.
const DevJWTSecret = "dev-jwt-secret"

var ErrMissingJWTSecret = errors.New("config: JWT_SECRET is required outside dev mode")

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds connection settings. Driver is "postgres" or
// "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	Issuer            string        `mapstructure:"issuer"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	MinPasswordLength int           `mapstructure:"min_password_length"`
	ProfileCacheTTL   time.Duration `mapstructure:"profile_cache_ttl"`
	// AdminEmail and AdminPassword seed the first admin account.
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

// SessionConfig selects where server-side sessions live: "db" or "redis".
type SessionConfig struct {
	Store         string `mapstructure:"store"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisTLS      bool   `mapstructure:"redis_tls"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool `mapstructure:"dev"`
	Migrations bool `mapstructure:"migrations"`
	// SQLMigrations runs the embedded SQL migrations instead of AutoMigrate
	// on Postgres.
	SQLMigrations bool `mapstructure:"sql_migrations"`
}

// DSN returns the PostgreSQL connection string in key=value format, or the
// file path for sqlite.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

var envBindings = map[string]string{
	"server.port":              "PORT",
	"server.read_timeout":      "SERVER_READ_TIMEOUT",
	"server.write_timeout":     "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":      "SERVER_IDLE_TIMEOUT",
	"server.allowed_origins":   "CORS_ALLOWED_ORIGINS",
	"database.driver":          "DB_DRIVER",
	"database.host":            "DB_HOST",
	"database.port":            "DB_PORT",
	"database.user":            "DB_USER",
	"database.password":        "DB_PASSWORD",
	"database.name":            "DB_NAME",
	"database.sslmode":         "DB_SSLMODE",
	"database.path":            "DB_PATH",
	"auth.jwt_secret":          "JWT_SECRET",
	"auth.issuer":              "JWT_ISSUER",
	"auth.access_ttl":          "ACCESS_TOKEN_TTL",
	"auth.refresh_ttl":         "REFRESH_TOKEN_TTL",
	"auth.min_password_length": "MIN_PASSWORD_LENGTH",
	"auth.profile_cache_ttl":   "PROFILE_CACHE_TTL",
	"auth.admin_email":         "ADMIN_EMAIL",
	"auth.admin_password":      "ADMIN_PASSWORD",
	"session.store":            "SESSION_STORE",
	"session.redis_addr":       "REDIS_ADDR",
	"session.redis_password":   "REDIS_PASSWORD",
	"session.redis_db":         "REDIS_DB",
	"session.redis_tls":        "REDIS_TLS",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
	"log.add_source":           "LOG_ADD_SOURCE",
	"app.dev":                  "DEV",
	"app.migrations":           "MIGRATIONS",
	"app.sql_migrations":       "SQL_MIGRATIONS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "studio")
	v.SetDefault("database.password", "studio123")
	v.SetDefault("database.name", "studio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "studio.db")

	v.SetDefault("auth.issuer", "studio-console")
	v.SetDefault("auth.access_ttl", time.Hour)
	v.SetDefault("auth.refresh_ttl", 30*24*time.Hour)
	v.SetDefault("auth.min_password_length", 8)
	v.SetDefault("auth.profile_cache_ttl", 5*time.Minute)

	v.SetDefault("session.store", "db")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_tls", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("app.dev", false)
	v.SetDefault("app.migrations", true)
	v.SetDefault("app.sql_migrations", false)
}

// Load reads configuration. Environment variables override config.yaml,
// which overrides the defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config.yaml: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		if !c.App.Dev {
			return nil, ErrMissingJWTSecret
		}
		c.Auth.JWTSecret = DevJWTSecret
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("config: unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Session.Store {
	case "db", "redis":
	default:
		return nil, fmt.Errorf("config: unsupported SESSION_STORE %q", c.Session.Store)
	}
	return &c, nil
}
