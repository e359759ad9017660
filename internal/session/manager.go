package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/remote-agent-terminal/relay/internal/logger"
	"github.com/remote-agent-terminal/relay/internal/model"
	"github.com/remote-agent-terminal/relay/internal/ws"
)

const storeTimeout = 5 * time.Second

// Store records connection lifecycle events. ConnectionRepository satisfies it.
type Store interface {
	Create(ctx context.Context, conn *model.Connection) error
	MarkClosed(ctx context.Context, id, reason string, messagesIn, messagesOut int64, closedAt time.Time) error
}

// Config holds configuration for the session manager.
type Config struct {
	WelcomeMessage string
}

// Manager starts one goroutine per connection and tracks live sessions.
type Manager struct {
	hub     *ws.Hub
	store   Store
	logger  *slog.Logger
	welcome string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a new session manager. store may be nil.
func NewManager(hub *ws.Hub, store Store, config Config, log *slog.Logger) *Manager {
	if config.WelcomeMessage == "" {
		config.WelcomeMessage = DefaultWelcomeMessage
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		hub:      hub,
		store:    store,
		logger:   logger.OrDiscard(log),
		welcome:  config.WelcomeMessage,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Start attaches transport to the hub and runs its session in a new
// goroutine. It returns without waiting for the session to finish.
func (m *Manager) Start(transport ws.Transport) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		transport.Close()
		return nil, model.ErrShuttingDown
	}

	sess := New(uuid.NewString(), transport, m.hub, m.welcome, m.logger)
	m.sessions[sess.ID()] = sess
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(sess)
	return sess, nil
}

func (m *Manager) run(sess *Session) {
	defer m.wg.Done()

	m.recordOpen(sess)
	sess.logger.Info("connection accepted")

	err := sess.Run(m.ctx)

	m.mu.Lock()
	delete(m.sessions, sess.ID())
	m.mu.Unlock()

	m.recordClose(sess, err)

	stats := sess.Stats()
	attrs := []any{
		slog.String("reason", model.CloseReasonFor(err)),
		slog.Int64("in", stats.MessagesIn),
		slog.Int64("out", stats.MessagesOut),
		slog.Uint64("dropped", stats.Dropped),
		logger.Duration(time.Since(stats.OpenedAt)),
	}
	if ws.IsClosed(err) || errors.Is(err, context.Canceled) {
		sess.logger.Info("connection closed", attrs...)
	} else {
		sess.logger.Warn("connection closed", append(attrs, logger.Error(err))...)
	}
}

func (m *Manager) recordOpen(sess *Session) {
	if m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	conn := &model.Connection{
		ID:         sess.ID(),
		RemoteAddr: sess.RemoteAddr(),
		State:      model.ConnectionStateOpen,
		OpenedAt:   sess.openedAt,
	}
	if err := m.store.Create(ctx, conn); err != nil {
		sess.logger.Error("failed to record connection", logger.Error(err))
	}
}

func (m *Manager) recordClose(sess *Session, cause error) {
	if m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	stats := sess.Stats()
	err := m.store.MarkClosed(ctx, sess.ID(), model.CloseReasonFor(cause), stats.MessagesIn, stats.MessagesOut, time.Now())
	if err != nil {
		sess.logger.Error("failed to record connection close", logger.Error(err))
	}
}

// Get returns a live session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// List returns stats for every live session, oldest first.
func (m *Manager) List() []Stats {
	m.mu.RLock()
	stats := make([]Stats, 0, len(m.sessions))
	for _, sess := range m.sessions {
		stats = append(stats, sess.Stats())
	}
	m.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].OpenedAt.Before(stats[j].OpenedAt)
	})
	return stats
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops accepting sessions, ends every live session, and waits for
// their goroutines to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}
