// Package session runs one relay connection per goroutine and tracks the live set.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remote-agent-terminal/relay/internal/logger"
	"github.com/remote-agent-terminal/relay/internal/model"
	"github.com/remote-agent-terminal/relay/internal/ws"
)

// DefaultWelcomeMessage is sent to every client when its session starts.
const DefaultWelcomeMessage = "Welcome to chat! Type a message"

// State is the lifecycle state of a Session.
type State int32

const (
	StateWelcoming State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWelcoming:
		return "welcoming"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of a session's counters.
type Stats struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr"`
	State       string    `json:"state"`
	MessagesIn  int64     `json:"messagesIn"`
	MessagesOut int64     `json:"messagesOut"`
	Dropped     uint64    `json:"dropped"`
	Queued      int       `json:"queued"`
	OpenedAt    time.Time `json:"openedAt"`
}

// Session relays between one client transport and the broadcast hub.
// It owns exactly one Transport and one Subscription for its whole life.
type Session struct {
	id        string
	transport ws.Transport
	hub       *ws.Hub
	sub       *ws.Subscription
	origin    string
	welcome   string
	logger    *slog.Logger
	openedAt  time.Time

	state       atomic.Int32
	messagesIn  atomic.Int64
	messagesOut atomic.Int64

	closeOnce sync.Once
}

type inbound struct {
	frame ws.Frame
	err   error
}

// New creates a session and subscribes it to hub. The subscription is
// released when Run returns.
func New(id string, transport ws.Transport, hub *ws.Hub, welcome string, log *slog.Logger) *Session {
	if welcome == "" {
		welcome = DefaultWelcomeMessage
	}
	origin := transport.RemoteAddr()
	return &Session{
		id:        id,
		transport: transport,
		hub:       hub,
		sub:       hub.Subscribe(),
		origin:    origin,
		welcome:   welcome,
		logger:    logger.OrDiscard(log).With(logger.ConnID(id), logger.Remote(origin)),
		openedAt:  time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the client address used to tag published messages.
func (s *Session) RemoteAddr() string {
	return s.origin
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		ID:          s.id,
		RemoteAddr:  s.origin,
		State:       s.State().String(),
		MessagesIn:  s.messagesIn.Load(),
		MessagesOut: s.messagesOut.Load(),
		Dropped:     s.sub.Dropped(),
		Queued:      s.sub.Len(),
		OpenedAt:    s.openedAt,
	}
}

// Run sends the welcome message and then relays until the client goes away,
// a send fails, the hub closes, or ctx is cancelled. It returns the cause.
// Run must be called at most once.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	if err := s.transport.Send(s.welcome); err != nil {
		return err
	}
	s.state.Store(int32(StateActive))

	frames := make(chan inbound)
	stop := make(chan struct{})
	defer close(stop)
	go s.readLoop(frames, stop)

	for {
		select {
		case in := <-frames:
			if in.err != nil {
				return in.err
			}
			if !in.frame.IsText() {
				continue
			}
			s.messagesIn.Add(1)
			s.hub.Publish(s.origin, in.frame.Text())
			s.logger.Debug("message published", slog.Int("bytes", len(in.frame.Data)))

		case <-s.sub.Ready():
			msg, ok := s.sub.Next()
			if !ok {
				continue
			}
			if err := s.transport.Send(msg.String()); err != nil {
				return err
			}
			s.messagesOut.Add(1)

		case <-s.sub.Done():
			return model.ErrHubUnavailable

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readLoop turns the blocking Receive into channel sends so Run can select
// on it. It exits after the first error or once stop is closed.
func (s *Session) readLoop(frames chan<- inbound, stop <-chan struct{}) {
	for {
		frame, err := s.transport.Receive()
		select {
		case frames <- inbound{frame: frame, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// shutdown releases the subscription and the transport exactly once.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		s.hub.Unsubscribe(s.sub)
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("transport close failed", logger.Error(err))
		}
		s.state.Store(int32(StateClosed))
	})
}
