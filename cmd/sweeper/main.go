// Package main runs the expiry sweeper. It deactivates sessions and
// recovery tokens whose expiry has passed, on the SWEEP_SCHEDULE cron spec,
// or once with -once.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keyxmakerx/warden/internal/app"
	"github.com/keyxmakerx/warden/internal/config"
	"github.com/keyxmakerx/warden/internal/database"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewMariaDB(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Sweeps never touch Redis.
	services := app.NewServices(cfg, db, nil)
	sweep := newSweep(services)

	if *once {
		sweep()
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Sweep.Schedule, sweep); err != nil {
		slog.Error("invalid sweep schedule",
			slog.String("schedule", cfg.Sweep.Schedule),
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	slog.Info("sweeper started", slog.String("schedule", cfg.Sweep.Schedule))
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("stopping sweeper...")
	<-c.Stop().Done()
}

// newSweep returns the job that deactivates expired rows. Counts are
// logged; failures are already logged by the services and reported as 0.
func newSweep(s *app.Services) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		start := time.Now()
		sessionsSwept := s.Sessions.SweepExpired(ctx)
		tokensSwept := s.Recovery.SweepExpired(ctx)

		slog.Info("expiry sweep finished",
			slog.Int64("sessions", sessionsSwept),
			slog.Int64("recovery_tokens", tokensSwept),
			slog.Duration("took", time.Since(start)),
		)
	}
}
