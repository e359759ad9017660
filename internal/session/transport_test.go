package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/remote-agent-terminal/relay/internal/model"
	"github.com/remote-agent-terminal/relay/internal/ws"
)

// fakeTransport is an in-memory ws.Transport driven by the test.
type fakeTransport struct {
	addr string

	inbound chan ws.Frame
	readErr chan error
	sent    chan string
	closed  chan struct{}

	mu       sync.Mutex
	sendErr  error
	closeCnt int
	once     sync.Once
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{
		addr:    addr,
		inbound: make(chan ws.Frame, 16),
		readErr: make(chan error, 1),
		sent:    make(chan string, 256),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Receive() (ws.Frame, error) {
	select {
	case frame := <-f.inbound:
		return frame, nil
	case err := <-f.readErr:
		return ws.Frame{}, err
	case <-f.closed:
		return ws.Frame{}, fmt.Errorf("%w: closed locally", model.ErrTransportClosed)
	}
}

func (f *fakeTransport) Send(text string) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-f.closed:
		return fmt.Errorf("%w: closed", model.ErrTransportWrite)
	default:
	}

	select {
	case f.sent <- text:
		return nil
	case <-f.closed:
		return fmt.Errorf("%w: closed", model.ErrTransportWrite)
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closeCnt++
	f.mu.Unlock()
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string {
	return f.addr
}

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) sendText(text string) {
	f.inbound <- ws.Frame{Kind: ws.TextFrame, Data: []byte(text)}
}

func (f *fakeTransport) sendBinary(data []byte) {
	f.inbound <- ws.Frame{Kind: ws.BinaryFrame, Data: data}
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// expectSent waits for the next outbound message.
func (f *fakeTransport) expectSent(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: timed out waiting for outbound message", f.addr)
		return ""
	}
}

// expectNothingSent asserts no outbound message arrives within d.
func (f *fakeTransport) expectNothingSent(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-f.sent:
		t.Fatalf("%s: unexpected outbound message %q", f.addr, msg)
	case <-time.After(d):
	}
}
