package model

import "errors"

var (
	// ErrBind is returned when the listening endpoint cannot be bound.
	ErrBind = errors.New("failed to bind listener")

	// ErrUpgrade is returned when an HTTP request cannot be upgraded to a WebSocket.
	ErrUpgrade = errors.New("websocket upgrade failed")

	// ErrTransportRead is returned when reading from a client connection fails.
	ErrTransportRead = errors.New("transport read failed")

	// ErrTransportWrite is returned when writing to a client connection fails.
	ErrTransportWrite = errors.New("transport write failed")

	// ErrTransportClosed is returned when the client closed the connection.
	ErrTransportClosed = errors.New("transport closed")

	// ErrHubUnavailable is returned when the broadcast hub has been shut down.
	ErrHubUnavailable = errors.New("broadcast hub unavailable")

	// ErrShuttingDown is returned when a connection arrives after shutdown began.
	ErrShuttingDown = errors.New("server shutting down")

	// ErrConnectionNotFound is returned when a connection record is not found.
	ErrConnectionNotFound = errors.New("connection not found")
)
