// Package db opens the SQLite database that stores connection lifecycle records.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// migrations are applied in order; PRAGMA user_version holds how many have run.
var migrations = []string{
	`CREATE TABLE connections (
		id TEXT PRIMARY KEY,
		remote_addr TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'open',
		close_reason TEXT,
		messages_in INTEGER NOT NULL DEFAULT 0,
		messages_out INTEGER NOT NULL DEFAULT 0,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME
	)`,
	`CREATE INDEX idx_connections_state ON connections(state)`,
	`CREATE INDEX idx_connections_opened_at ON connections(opened_at)`,
}

// Open opens the database at dbPath, applies pragmas and migrates the schema.
func Open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		// session goroutines write lifecycle rows concurrently
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := Migrate(context.Background(), conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewTestDB creates a fresh, migrated in-memory database.
func NewTestDB() (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	// Each pooled connection to ":memory:" would get its own empty database
	conn.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate runs every migration newer than the database's user_version.
// Running it on an up-to-date database is a no-op.
func Migrate(ctx context.Context, conn *sql.DB) error {
	version, err := SchemaVersion(ctx, conn)
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bind parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SchemaVersion reports how many migrations have been applied.
func SchemaVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
