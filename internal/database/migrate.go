package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"

	// Reads db/migrations from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the users, profiles, sessions and recovery tables up
// to the latest version found in dir. Versions already recorded in
// schema_migrations are skipped. A dirty schema is refused so a half-applied
// migration is fixed by hand rather than built upon.
func RunMigrations(db *sql.DB, dir string) error {
	source, err := migrationSource(dir)
	if err != nil {
		return err
	}

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "mysql", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	from, dirty, err := schemaVersion(m)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty; repair it before starting", from)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	to, _, err := schemaVersion(m)
	if err != nil {
		return err
	}
	slog.Info("schema up to date",
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("version", uint64(to)),
	)
	return nil
}

// schemaVersion reads the applied version, reporting 0 for a fresh database.
func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return v, dirty, nil
}

// migrationSource turns dir into the file:// URL golang-migrate expects.
// Relative paths resolve against the working directory.
func migrationSource(dir string) (string, error) {
	if dir == "" {
		return "", errors.New("migrations path is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving migrations path: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
