// Package repository provides data access for connection lifecycle records.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/remote-agent-terminal/relay/internal/model"
)

const connectionColumns = `id, remote_addr, state, close_reason, messages_in, messages_out, opened_at, closed_at`

// ConnectionRepository provides data access for connections.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a new connection record into the database.
func (r *ConnectionRepository) Create(ctx context.Context, conn *model.Connection) error {
	query := `
		INSERT INTO connections (id, remote_addr, state, messages_in, messages_out, opened_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		conn.ID,
		conn.RemoteAddr,
		conn.State,
		conn.MessagesIn,
		conn.MessagesOut,
		conn.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

// MarkClosed records the end of a connection with its final counters.
func (r *ConnectionRepository) MarkClosed(ctx context.Context, id, reason string, messagesIn, messagesOut int64, closedAt time.Time) error {
	query := `
		UPDATE connections
		SET state = ?, close_reason = ?, messages_in = ?, messages_out = ?, closed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		model.ConnectionStateClosed, reason, messagesIn, messagesOut, closedAt, id)
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrConnectionNotFound
	}

	return nil
}

// CloseStale marks every record still open as closed. It is used at startup
// to settle records left behind by a process that did not shut down cleanly.
func (r *ConnectionRepository) CloseStale(ctx context.Context, reason string) (int64, error) {
	query := `
		UPDATE connections
		SET state = ?, close_reason = ?, closed_at = ?
		WHERE state = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		model.ConnectionStateClosed, reason, time.Now(), model.ConnectionStateOpen)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale connections: %w", err)
	}

	return result.RowsAffected()
}

// GetByID retrieves a connection by its ID.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = ?`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return conn, nil
}

// List retrieves the most recently opened connections, newest first.
func (r *ConnectionRepository) List(ctx context.Context, limit int) ([]*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections ORDER BY opened_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*model.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return conns, nil
}

// CountOpen returns the number of connections currently recorded as open.
func (r *ConnectionRepository) CountOpen(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM connections WHERE state = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, model.ConnectionStateOpen).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open connections: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*model.Connection, error) {
	conn := &model.Connection{}
	var closeReason sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(
		&conn.ID,
		&conn.RemoteAddr,
		&conn.State,
		&closeReason,
		&conn.MessagesIn,
		&conn.MessagesOut,
		&conn.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	if closeReason.Valid {
		conn.CloseReason = closeReason.String
	}

	if closedAt.Valid {
		t := closedAt.Time
		conn.ClosedAt = &t
	}

	return conn, nil
}
