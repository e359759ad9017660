package model

import (
	"context"
	"errors"
	"time"
)

// ConnectionState represents the lifecycle state of a client connection record.
type ConnectionState string

const (
	ConnectionStateOpen   ConnectionState = "open"
	ConnectionStateClosed ConnectionState = "closed"
)

// Close reasons recorded when a connection ends.
const (
	CloseReasonClientClosed   = "client_closed"
	CloseReasonReadError      = "read_error"
	CloseReasonWriteError     = "write_error"
	CloseReasonHubUnavailable = "hub_unavailable"
	CloseReasonShutdown       = "shutdown"
	CloseReasonUnknown        = "unknown"
)

// Connection is the persisted metadata of one relay connection.
// Message bodies are never stored.
type Connection struct {
	ID          string          `json:"id"`
	RemoteAddr  string          `json:"remoteAddr"`
	State       ConnectionState `json:"state"`
	CloseReason string          `json:"closeReason,omitempty"`
	MessagesIn  int64           `json:"messagesIn"`
	MessagesOut int64           `json:"messagesOut"`
	OpenedAt    time.Time       `json:"openedAt"`
	ClosedAt    *time.Time      `json:"closedAt,omitempty"`
}

// Duration returns how long the connection was (or has been) open.
func (c *Connection) Duration() time.Duration {
	if c.ClosedAt != nil {
		return c.ClosedAt.Sub(c.OpenedAt)
	}
	return time.Since(c.OpenedAt)
}

// CloseReasonFor maps a session's terminal error to a recorded close reason.
func CloseReasonFor(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrTransportClosed):
		return CloseReasonClientClosed
	case errors.Is(err, ErrTransportRead):
		return CloseReasonReadError
	case errors.Is(err, ErrTransportWrite):
		return CloseReasonWriteError
	case errors.Is(err, ErrHubUnavailable):
		return CloseReasonHubUnavailable
	case errors.Is(err, context.Canceled):
		return CloseReasonShutdown
	default:
		return CloseReasonUnknown
	}
}
