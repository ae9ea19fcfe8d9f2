// Package bootstrap refuses to start long-running processes against an unmigrated schema.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/cityofhelsinki/mvj/internal/migration"
	"gorm.io/gorm"
)

var (
	ErrSchemaNotMigrated      = errors.New("schema_not_migrated")
	ErrSchemaVersionMismatch  = errors.New("schema_version_mismatch")
	ErrSchemaChecksumMismatch = errors.New("schema_checksum_mismatch")
)

type SchemaGate interface {
	MustBeActive(ctx context.Context) error
}

// StateReader loads the recorded schema state; nil means never migrated.
type StateReader func(ctx context.Context) (*migration.SchemaState, error)

type schemaGate struct {
	read             StateReader
	expectedVersion  string
	expectedChecksum string
}

func NewSchemaGate(db *gorm.DB) (SchemaGate, error) {
	if db == nil {
		return nil, errors.New("schema gate requires database handle")
	}
	return newSchemaGate(func(ctx context.Context) (*migration.SchemaState, error) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		return migration.ReadSchemaState(ctx, sqlDB)
	})
}

func newSchemaGate(read StateReader) (*schemaGate, error) {
	latestVersion, err := migration.LatestMigrationVersion()
	if err != nil {
		return nil, err
	}
	expectedChecksum, err := migration.MigrationsChecksum()
	if err != nil {
		return nil, err
	}
	return &schemaGate{
		read:             read,
		expectedVersion:  fmt.Sprintf("%d", latestVersion),
		expectedChecksum: expectedChecksum,
	}, nil
}

func (g *schemaGate) MustBeActive(ctx context.Context) error {
	state, err := g.read(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		return ErrSchemaNotMigrated
	}

	if state.SchemaVersion != g.expectedVersion {
		return fmt.Errorf("%w: state=%s expected=%s", ErrSchemaVersionMismatch, state.SchemaVersion, g.expectedVersion)
	}

	if state.Checksum != "" && state.Checksum != g.expectedChecksum {
		return fmt.Errorf("%w: state=%s expected=%s", ErrSchemaChecksumMismatch, state.Checksum, g.expectedChecksum)
	}

	return nil
}
