// Package migrations applies and introspects the manifest's SQL schema
// via golang-migrate, building on the teacher's embed.FS-backed runner
// pattern but classifying every failure through internal/enigmaerr
// instead of returning opaque errors, so a caller (the CLI's status
// command, a future upgrade check) can branch on Kind instead of
// string-matching.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Version reports the manifest database's current schema version
// alongside the latest version available in the embedded migration
// files, without failing when they differ — callers that only want to
// report drift (rather than treat it as fatal) should use this instead
// of CheckStatus.
func Version(db *sql.DB) (current, latest uint, dirty bool, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, 0, false, enigmaerr.New(enigmaerr.ConfigInvalid, "create migrate instance", err)
	}

	current, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		// A database no migration has touched yet is at version 0.
		current, dirty, err = 0, false, nil
	}
	if err != nil {
		return 0, 0, false, enigmaerr.New(enigmaerr.ConfigInvalid, "get schema version", err)
	}

	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, 0, false, enigmaerr.New(enigmaerr.ConfigInvalid, "read migration files", err)
	}
	defer sourceDriver.Close()

	latest, err = getLatestVersion(sourceDriver)
	if err != nil {
		return 0, 0, false, enigmaerr.New(enigmaerr.ConfigInvalid, "determine latest schema version", err)
	}
	return current, latest, dirty, nil
}

// CheckStatus verifies the manifest database is at the latest schema
// version and not left dirty by a failed prior migration.
func CheckStatus(db *sql.DB) error {
	current, latest, dirty, err := Version(db)
	if err != nil {
		return err
	}
	if dirty {
		return enigmaerr.New(enigmaerr.ConfigInvalid, fmt.Sprintf("manifest database is in dirty state at version %d", current), nil)
	}

	switch {
	case current < latest:
		return enigmaerr.New(enigmaerr.ConfigInvalid,
			fmt.Sprintf("manifest database is at version %d but latest is %d (%d migrations behind)", current, latest, latest-current), nil)
	case current > latest:
		return enigmaerr.New(enigmaerr.ConfigInvalid,
			fmt.Sprintf("manifest database version %d is ahead of binary version %d", current, latest), nil)
	default:
		return nil
	}
}

// Up runs all pending migrations.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return enigmaerr.New(enigmaerr.ConfigInvalid, "create migrate instance", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return enigmaerr.New(enigmaerr.ConfigInvalid, "apply pending migrations", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("manifest migrations: source driver: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("manifest migrations: database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("manifest migrations: instance: %w", err)
	}
	return m, nil
}

func getLatestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	latest := version
	for {
		next, err := src.Next(latest)
		if err != nil {
			break
		}
		latest = next
	}
	return latest, nil
}
