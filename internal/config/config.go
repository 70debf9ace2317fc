// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for CORS and email links.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the directory holding the golang-migrate SQL files.
	MigrationsPath string

	// HTTP holds proxy and cross-origin settings.
	HTTP HTTPConfig

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings. Redis is optional.
	Redis RedisConfig

	// Auth holds session and credential settings.
	Auth AuthConfig

	// Recovery holds password recovery settings.
	Recovery RecoveryConfig

	// SMTP holds outbound mail settings.
	SMTP SMTPConfig

	// Sweep holds the expiry sweeper schedule.
	Sweep SweepConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "warden").
	User string

	// Password is the MariaDB password (default: "warden").
	Password string

	// Name is the database name (default: "warden").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// HTTPConfig holds settings for the edge of the HTTP server.
type HTTPConfig struct {
	// TrustedProxies lists the CIDRs whose X-Forwarded-For and X-Real-IP
	// headers are believed.
	TrustedProxies []string

	// CORSOrigins lists extra origins allowed to call the API with
	// credentials. BaseURL is always allowed.
	CORSOrigins []string
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	// Empty disables Redis; rate limits then fall back to process memory.
	URL string
}

// Enabled reports whether a Redis URL is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionTTL is the fixed session lifetime from issuance.
	SessionTTL time.Duration

	// CookieName is the name of the session cookie.
	CookieName string

	// PasswordHashCost is the bcrypt cost factor for new hashes.
	PasswordHashCost int

	// StoreTimeout bounds every session and credential store call.
	StoreTimeout time.Duration

	// LoginRateLimit is the number of login attempts per IP per minute.
	LoginRateLimit int
}

// RecoveryConfig holds PIN recovery settings.
type RecoveryConfig struct {
	// TokenTTL is how long an issued PIN stays valid.
	TokenTTL time.Duration

	// MaxPinAttempts caps failed PIN verifications per user per TokenTTL.
	MaxPinAttempts int

	// SendRateLimit is the number of PIN emails per IP per minute.
	SendRateLimit int
}

// SMTPConfig holds outbound mail server settings.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string

	// Encryption is "starttls", "ssl", or "none".
	Encryption string
}

// Enabled reports whether an SMTP host is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// SweepConfig holds the schedule for the expiry sweeper job.
type SweepConfig struct {
	// Schedule is a robfig/cron spec (e.g. "@every 1h" or "0 */15 * * * *").
	Schedule string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables always win over values from the file.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	loadEnvFile(".env")

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		HTTP: HTTPConfig{
			TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
				"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8",
			}),
			CORSOrigins: getEnvList("CORS_ORIGINS", nil),
		},

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "warden"),
			Password:        getEnv("DB_PASSWORD", "warden"),
			Name:            getEnv("DB_NAME", "warden"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},

		Auth: AuthConfig{
			SessionTTL:       getEnvDuration("SESSION_TTL", 48*time.Hour),
			CookieName:       getEnv("SESSION_COOKIE_NAME", "session_id"),
			PasswordHashCost: getEnvInt("PASSWORD_HASH_COST", 12),
			StoreTimeout:     getEnvDuration("STORE_TIMEOUT", 3*time.Second),
			LoginRateLimit:   getEnvInt("LOGIN_RATE_LIMIT", 10),
		},

		Recovery: RecoveryConfig{
			TokenTTL:       getEnvDuration("RECOVERY_TTL", 30*time.Minute),
			MaxPinAttempts: getEnvInt("PIN_MAX_ATTEMPTS", 5),
			SendRateLimit:  getEnvInt("RECOVERY_RATE_LIMIT", 5),
		},

		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("SMTP_FROM_ADDRESS", "no-reply@localhost"),
			FromName:    getEnv("SMTP_FROM_NAME", "Warden"),
			Encryption:  getEnv("SMTP_ENCRYPTION", "starttls"),
		},

		Sweep: SweepConfig{
			Schedule: getEnv("SWEEP_SCHEDULE", "@every 1h"),
		},
	}

	if cfg.Auth.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.Recovery.TokenTTL <= 0 {
		return nil, fmt.Errorf("RECOVERY_TTL must be positive")
	}
	if cfg.Auth.PasswordHashCost < 4 || cfg.Auth.PasswordHashCost > 31 {
		return nil, fmt.Errorf("PASSWORD_HASH_COST must be between 4 and 31")
	}

	// Mail is mandatory in production: recovery cannot work without it.
	if cfg.IsProduction() && !cfg.SMTP.Enabled() {
		return nil, fmt.Errorf("SMTP_HOST is required in production")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production. Case-insensitive so
// common variants like "Production" and "prod" are caught.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// loadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set.
func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load env file", slog.String("path", path), slog.Any("error", err))
	}
}

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty items. An unset
// variable yields the default; a set but empty one yields no items.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration reads a duration env var (e.g., "48h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
