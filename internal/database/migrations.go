package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// MigrationRunner applies versioned SQL migrations from a directory.
// Migrations run at startup, before the server accepts traffic.
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner opens the migration source and the target database.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening migrations at %s: %w", migrationsPath, err)
	}
	return &MigrationRunner{migrate: m, log: logger}, nil
}

// Up applies all pending migrations. A schema left dirty by an earlier
// failed run needs manual repair and is reported as an error, not retried.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	if version, dirty, err := mr.migrate.Version(); err == nil && dirty {
		return fmt.Errorf("schema is dirty at version %d", version)
	}

	if err := mr.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mr.log.Debug("Schema is up to date")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	if version, _, err := mr.migrate.Version(); err == nil {
		mr.log.WithField("version", version).Info("Schema migrated")
	}
	return nil
}

// Down rolls back the most recent migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	if err := mr.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}

	version, _, err := mr.migrate.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		mr.log.Info("Schema rolled back to empty")
	case err == nil:
		mr.log.WithField("version", version).Info("Schema rolled back")
	}
	return nil
}

// Version reports the current schema version and whether it is dirty.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.migrate.Version()
}

// Close releases the migration source and database handles.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
