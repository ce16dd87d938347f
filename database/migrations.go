// Package database holds the embedded schema migrations and the tooling to
// apply them.
package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// registers the pgx5:// database driver
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// GetMigrate returns a migrate instance over the embedded migrations for the
// given postgres:// connection string. The caller must Close it.
func GetMigrate(connString string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, toMigrateURL(connString))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateUp applies all pending migrations.
func MigrateUp(connString string) error {
	return withMigrate(connString, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown rolls back numSteps migrations; zero or less rolls back all.
func MigrateDown(connString string, numSteps int) error {
	return withMigrate(connString, func(m *migrate.Migrate) error {
		if numSteps <= 0 {
			return m.Down()
		}
		return m.Steps(-numSteps)
	})
}

// Version returns the current schema version and dirty flag.
func Version(connString string) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := withMigrate(connString, func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func withMigrate(connString string, fn func(*migrate.Migrate) error) error {
	m, err := GetMigrate(connString)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// toMigrateURL rewrites postgres:// URLs to the scheme of the pgx/v5 driver.
func toMigrateURL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}
