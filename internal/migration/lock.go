package migration

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// migrationLockKey is shared by every mvj process that migrates the same database.
var migrationLockKey = func() int64 {
	h := fnv.New64a()
	h.Write([]byte("mvj:schema-migrations"))
	return int64(h.Sum64() >> 1)
}()

// lockSession holds a session-level advisory lock on one pooled connection. The lock
// must be released on the same connection that took it.
type lockSession struct {
	conn *sql.Conn
}

// acquireMigrationLock waits for the lock until ctx expires, so a second deployment
// migrating at the same time blocks instead of failing.
func acquireMigrationLock(ctx context.Context, db *sql.DB) (*lockSession, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return &lockSession{conn: conn}, nil
}

func (l *lockSession) release(ctx context.Context) error {
	defer l.conn.Close()
	var released bool
	if err := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", migrationLockKey).Scan(&released); err != nil {
		return fmt.Errorf("release migration lock: %w", err)
	}
	if !released {
		return fmt.Errorf("migration lock was not held by this session")
	}
	return nil
}
