// Package server binds the relay's listening endpoint and runs its accept loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/remote-agent-terminal/relay/internal/logger"
	"github.com/remote-agent-terminal/relay/internal/model"
)

// DefaultShutdownTimeout bounds how long Serve waits for in-flight HTTP requests.
const DefaultShutdownTimeout = 10 * time.Second

// Option configures server behavior.
type Option func(*Server)

// WithLogger sets a custom logger for server operations.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.OrDiscard(log)
	}
}

// WithShutdownTimeout sets the maximum time to wait for graceful shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdown = timeout
		}
	}
}

// Server owns a bound listener and serves HTTP on it. Every accepted
// connection is handled on its own goroutine by net/http, so a slow
// handshake never holds up the next accept.
type Server struct {
	listener net.Listener
	logger   *slog.Logger
	shutdown time.Duration
}

// Listen binds addr. The returned error wraps model.ErrBind.
func Listen(addr string, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", model.ErrBind, addr, err)
	}

	s := &Server{
		listener: ln,
		logger:   logger.Discard(),
		shutdown: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then shuts the HTTP
// server down gracefully. Hijacked WebSocket connections are not tracked by
// net/http and must be closed by their owner. Returns nil after a graceful
// shutdown.
func (s *Server) Serve(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "listening", slog.String("addr", s.listener.Addr().String()))
		if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server gracefully", logger.Duration(s.shutdown))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", logger.Error(err))
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Close releases the listener without serving. It is only needed when Serve
// is never called.
func (s *Server) Close() error {
	return s.listener.Close()
}
