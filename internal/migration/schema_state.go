package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaState is the single row written after a successful migration run.
type SchemaState struct {
	SchemaVersion string
	Checksum      string
	MigratedAt    time.Time
}

func recordSchemaState(ctx context.Context, db *sql.DB, schemaVersion string, checksum string) error {
	if db == nil {
		return errors.New("schema state requires database handle")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	version := strings.TrimSpace(schemaVersion)
	if version == "" {
		return errors.New("schema version is required")
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO schema_state (id, schema_version, checksum, migrated_at)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
		    checksum = EXCLUDED.checksum,
		    migrated_at = EXCLUDED.migrated_at
	`, version, nullIfEmpty(checksum), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record schema state: %w", err)
	}
	return nil
}

// ReadSchemaState returns nil when migrations have never completed.
func ReadSchemaState(ctx context.Context, db *sql.DB) (*SchemaState, error) {
	var (
		state    SchemaState
		checksum sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT schema_version, checksum, migrated_at FROM schema_state WHERE id = TRUE`,
	).Scan(&state.SchemaVersion, &checksum, &state.MigratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema state: %w", err)
	}
	state.Checksum = checksum.String
	return &state, nil
}

// Current reports whether state matches the embedded migrations.
func (s *SchemaState) Current() (bool, error) {
	if s == nil {
		return false, nil
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return false, err
	}
	checksum, err := MigrationsChecksum()
	if err != nil {
		return false, err
	}
	return s.SchemaVersion == fmt.Sprintf("%d", latest) && s.Checksum == checksum, nil
}

func nullIfEmpty(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
