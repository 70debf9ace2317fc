// Package database opens Warden's shared MariaDB pool and optional Redis
// client, applies schema migrations at startup, and provides the WithTx
// helper (tx.go) that multi-statement writes such as signup and PIN
// issuance run under.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the "mysql" driver used for MariaDB.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/warden/internal/config"
)

// startupRetry controls how long NewMariaDB waits for the server. Compose
// starts Warden and MariaDB together, so the first pings usually fail.
var startupRetry = retryPolicy{
	attempts:    10,
	initial:     time.Second,
	max:         30 * time.Second,
	pingTimeout: 5 * time.Second,
	sleep:       time.Sleep,
}

type retryPolicy struct {
	attempts    int
	initial     time.Duration
	max         time.Duration
	pingTimeout time.Duration
	sleep       func(time.Duration)
}

// NewMariaDB opens the connection pool described by cfg and blocks until
// the server answers a ping or the retry budget runs out.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitForMariaDB(db, startupRetry); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// waitForMariaDB pings db until it succeeds, doubling the pause between
// attempts up to p.max.
func waitForMariaDB(db *sql.DB, p retryPolicy) error {
	backoff := p.initial
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.pingTimeout)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			if attempt > 1 {
				slog.Info("mariadb ready", slog.Int("attempts", attempt))
			}
			return nil
		}
		if attempt == p.attempts {
			break
		}

		slog.Warn("mariadb not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		p.sleep(backoff)
		backoff = min(backoff*2, p.max)
	}
	return fmt.Errorf("pinging mariadb after %d attempts: %w", p.attempts, err)
}
