package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/relay/internal/model"
)

// newTestServer starts an HTTP server whose upgraded connections are handed
// to the returned channel.
func newTestServer(t *testing.T, upgrader *Upgrader) (*httptest.Server, <-chan *Conn, <-chan error) {
	t.Helper()

	conns := make(chan *Conn, 4)
	errs := make(chan error, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r)
		if err != nil {
			errs <- err
			return
		}
		conns <- conn
	}))
	t.Cleanup(server.Close)

	return server, conns, errs
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func acceptConn(t *testing.T, conns <-chan *Conn) *Conn {
	t.Helper()
	select {
	case c := <-conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept connection")
		return nil
	}
}

func TestConn_ReceiveFrames(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{}, nil))

	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	conn := acceptConn(t, conns)
	assert.Equal(t, client.LocalAddr().String(), conn.RemoteAddr())

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	frame, err := conn.Receive()
	require.NoError(t, err)
	assert.True(t, frame.IsText())
	assert.Equal(t, "hello", frame.Text())

	frame, err = conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, BinaryFrame, frame.Kind)
	assert.Equal(t, []byte{0x01, 0x02}, frame.Data)
}

func TestConn_Send(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{}, nil))

	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	conn := acceptConn(t, conns)
	require.NoError(t, conn.Send("welcome"))

	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "welcome", string(data))
}

func TestConn_ClientCloseIsTransportClosed(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{}, nil))

	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)

	conn := acceptConn(t, conns)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, client.WriteMessage(websocket.CloseMessage, msg))
	client.Close()

	_, err = conn.Receive()
	assert.ErrorIs(t, err, model.ErrTransportClosed)
	assert.True(t, IsClosed(err))
}

func TestConn_AbruptDisconnectIsReadError(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{}, nil))

	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)

	conn := acceptConn(t, conns)
	client.UnderlyingConn().Close()

	_, err = conn.Receive()
	assert.ErrorIs(t, err, model.ErrTransportRead)
	assert.True(t, IsClosed(err))
}

func TestConn_LocalCloseSendsCloseFrame(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{}, nil))

	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	conn := acceptConn(t, conns)
	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close(), "second close is a no-op")

	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// Receive after local close reports a closed transport
	_, err = conn.Receive()
	assert.ErrorIs(t, err, model.ErrTransportClosed)

	err = conn.Send("late")
	assert.ErrorIs(t, err, model.ErrTransportWrite)
}

func TestConn_ReadLimit(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{MaxMessageSize: 8}, nil))

	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	conn := acceptConn(t, conns)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("this message is too long")))

	_, err = conn.Receive()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTransportRead) || errors.Is(err, model.ErrTransportClosed))
}

func TestConn_KeepalivePings(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{PongWait: 500 * time.Millisecond}, nil))

	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer client.Close()

	var pings atomic.Int32
	client.SetPingHandler(func(appData string) error {
		pings.Add(1)
		return client.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn := acceptConn(t, conns)
	go func() {
		for {
			if _, err := conn.Receive(); err != nil {
				return
			}
		}
	}()

	assert.Eventually(t, func() bool { return pings.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestUpgrader_PlainHTTPRequestFails(t *testing.T) {
	server, _, errs := newTestServer(t, NewUpgrader(ConnOptions{}, nil))

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, model.ErrUpgrade)
	case <-time.After(2 * time.Second):
		t.Fatal("expected upgrade error")
	}
}

func TestUpgrader_OriginAllowList(t *testing.T) {
	server, conns, _ := newTestServer(t, NewUpgrader(ConnOptions{}, []string{"http://chat.example.com/"}))

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://CHAT.example.com")
	client, _, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	defer client.Close()
	acceptConn(t, conns)
}

func TestCheckOrigin(t *testing.T) {
	allowAll := checkOrigin(nil)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "http://anything.test")
	assert.True(t, allowAll(r))

	restricted := checkOrigin([]string{"https://a.test"})
	assert.True(t, restricted(httptest.NewRequest(http.MethodGet, "/", nil)), "no origin header")

	r.Header.Set("Origin", "https://a.test")
	assert.True(t, restricted(r))
	r.Header.Set("Origin", "http://a.test")
	assert.False(t, restricted(r))
	r.Header.Set("Origin", "::not a url")
	assert.False(t, restricted(r))
}
