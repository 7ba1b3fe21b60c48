// Package migration applies the Postgres schema in migrations/postgres.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const pgDriverName = "postgres"

// Migrate brings the schema up to date and returns its version. A relative folder is
// resolved against the working directory.
func Migrate(dsn, folder string) (uint, error) {
	source, err := sourceURL(folder)
	if err != nil {
		return 0, err
	}

	db, err := sql.Open(pgDriverName, dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, err
	}
	m, err := migrate.NewWithDatabaseInstance(source, pgDriverName, driver)
	if err != nil {
		return 0, fmt.Errorf("loading migrations from %s: %w", folder, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

func sourceURL(folder string) (string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
