package ws

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/remote-agent-terminal/relay/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 8192
)

// FrameKind distinguishes inbound data frames.
type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
)

// Frame is one inbound data message.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// IsText reports whether the frame carries text.
func (f Frame) IsText() bool {
	return f.Kind == TextFrame
}

// Text returns the payload as a string.
func (f Frame) Text() string {
	return string(f.Data)
}

// Transport is a negotiated duplex stream of framed messages.
//
// Receive returns an error wrapping model.ErrTransportClosed when the peer
// closed cleanly and model.ErrTransportRead otherwise. Send returns an error
// wrapping model.ErrTransportWrite. Close is idempotent.
type Transport interface {
	Receive() (Frame, error)
	Send(text string) error
	Close() error
	RemoteAddr() string
}

// ConnOptions configures deadlines and limits of a WebSocket connection.
type ConnOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	return o
}

// pingPeriod must be less than pongWait.
func (o ConnOptions) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Conn adapts a gorilla WebSocket connection to Transport.
// Receive and Send must each be called from a single goroutine; Close may be
// called from any goroutine.
type Conn struct {
	conn *websocket.Conn
	opts ConnOptions

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps conn and starts its keepalive pinger.
func NewConn(conn *websocket.Conn, opts ConnOptions) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		conn: conn,
		opts: opts,
		done: make(chan struct{}),
	}

	conn.SetReadLimit(opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.keepalive()
	return c
}

// Receive blocks until the next data frame arrives.
func (c *Conn) Receive() (Frame, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, c.readError(err)
	}

	if mt == websocket.BinaryMessage {
		return Frame{Kind: BinaryFrame, Data: data}, nil
	}
	return Frame{Kind: TextFrame, Data: data}, nil
}

// Send writes text as a single text frame.
func (c *Conn) Send(text string) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransportWrite, err)
	}
	return nil
}

// Close sends a normal close frame, best effort, and closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) readError(err error) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: %w", model.ErrTransportClosed, err)
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return fmt.Errorf("%w: %w", model.ErrTransportClosed, err)
	}
	return fmt.Errorf("%w: %w", model.ErrTransportRead, err)
}

func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Upgrader turns HTTP requests into WebSocket transports.
type Upgrader struct {
	upgrader websocket.Upgrader
	opts     ConnOptions
}

// NewUpgrader creates an Upgrader. An empty allowedOrigins list accepts any origin.
func NewUpgrader(opts ConnOptions, allowedOrigins []string) *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		opts: opts.withDefaults(),
	}
}

// Upgrade performs the WebSocket handshake. On failure gorilla has already
// written an HTTP error response and the returned error wraps model.ErrUpgrade.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrUpgrade, err)
	}
	return NewConn(conn, u.opts), nil
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send an Origin header
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// IsClosed reports whether err means the peer went away, cleanly or not.
func IsClosed(err error) bool {
	return errors.Is(err, model.ErrTransportClosed) || errors.Is(err, model.ErrTransportRead)
}
