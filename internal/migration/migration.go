// Package migration applies the embedded SQL schema and records which version and
// checksum the database was migrated to.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

const migrationsTable = "mvj_schema_migrations"

// RunMigrations brings the schema to LatestMigrationVersion and writes schema_state.
// A dirty database is never migrated further.
func RunMigrations(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	log = log.Named("migration")

	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	checksum, err := MigrationsChecksum()
	if err != nil {
		return err
	}

	lock, err := acquireMigrationLock(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.release(context.Background()); err != nil {
			log.Warn("failed to release migration lock", zap.Error(err))
		}
	}()

	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	from, err := appliedVersion(m)
	if err != nil {
		return err
	}
	if from > latest {
		return fmt.Errorf("database is at version %d, newer than this build (%d)", from, latest)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	to, err := appliedVersion(m)
	if err != nil {
		return err
	}
	if to != latest {
		return fmt.Errorf("schema version mismatch after migrate: got %d want %d", to, latest)
	}
	log.Info("schema migrated", zap.Uint("from", from), zap.Uint("to", to))

	return recordSchemaState(ctx, db, fmt.Sprintf("%d", to), checksum)
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// appliedVersion is 0 for an empty database and fails on a dirty one.
func appliedVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database migrations are dirty at version %d", version)
	}
	return version, nil
}
