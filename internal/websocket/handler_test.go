package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/broker"
	"chatrelay/internal/presence"
	"chatrelay/internal/router"
	"chatrelay/internal/session"
	"chatrelay/internal/testutil"
)

type testServer struct {
	server   *httptest.Server
	handler  *Handler
	registry *presence.Registry
	bridge   *broker.Bridge
	store    *testutil.MemoryStore
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := testutil.NewMemoryStore()
	mb := broker.NewMemoryBroker(0, nil)
	registry := presence.NewRegistry(store, nil)
	bridge := broker.NewBridge(mb, "", nil)
	rtr := router.NewRouter(registry, bridge, store, nil, nil)
	handler := NewHandler(session.NewManager(registry, bridge, rtr, nil), opts, nil)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		_ = bridge.Close()
		_ = mb.Close()
	})

	return &testServer{server: server, handler: handler, registry: registry, bridge: bridge, store: store}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readLine(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

func writeLine(t *testing.T, conn *websocket.Conn, line string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

// login dials, consumes the greeting and authenticates as username
func (ts *testServer) login(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	conn := ts.dial(t)
	require.Equal(t, "Welcome to ChatServer.", readLine(t, conn))
	require.Equal(t, "To authenticate enter your username.", readLine(t, conn))
	writeLine(t, conn, username)
	require.Equal(t, "Authenticated as "+username+".", readLine(t, conn))
	return conn
}

func TestHandler_GreetingAndInvalidUsername(t *testing.T) {
	ts := newTestServer(t, Options{})
	conn := ts.dial(t)

	require.Equal(t, "Welcome to ChatServer.", readLine(t, conn))
	require.Equal(t, "To authenticate enter your username.", readLine(t, conn))

	writeLine(t, conn, "two words")
	require.Equal(t, "Invalid username.", readLine(t, conn))

	writeLine(t, conn, "alice\n")
	require.Equal(t, "Authenticated as alice.", readLine(t, conn))
}

func TestHandler_ChatBetweenClients(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, Options{})

	alice := ts.login(t, "alice")
	bob := ts.login(t, "bob")

	writeLine(t, alice, "@bob hello")
	req.Equal("@alice >> hello", readLine(t, bob))

	writeLine(t, bob, "@alice hi back")
	req.Equal("@bob >> hi back", readLine(t, alice))

	writeLine(t, alice, "@ghost boo")
	req.Equal("User does not exist.", readLine(t, alice))

	writeLine(t, alice, "no-at-sign here")
	req.Equal("Message could not be parsed.", readLine(t, alice))

	req.Eventually(func() bool { return len(ts.store.Messages()) == 2 }, 2*time.Second, 10*time.Millisecond)
	stored := ts.store.Messages()
	req.True(stored[0].Delivered)
	req.True(stored[1].Delivered)
}

func TestHandler_ChatTextPassesThroughUnmodified(t *testing.T) {
	ts := newTestServer(t, Options{})
	alice := ts.login(t, "alice")
	bob := ts.login(t, "bob")

	writeLine(t, alice, "@bob  spaced out \r\n")

	require.Equal(t, "@alice >> spaced out \r\n", readLine(t, bob))
}

func TestHandler_OfflineReplayOnLogin(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, Options{})

	dave := ts.login(t, "dave")
	req.NoError(dave.Close())
	req.Eventually(func() bool { return !ts.registry.IsOnline("dave") }, 2*time.Second, 10*time.Millisecond)

	carol := ts.login(t, "carol")
	writeLine(t, carol, "@dave hi")
	req.Eventually(func() bool { return len(ts.store.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.False(ts.store.Messages()[0].Delivered)

	back := ts.dial(t)
	req.Equal("Welcome to ChatServer.", readLine(t, back))
	req.Equal("To authenticate enter your username.", readLine(t, back))
	writeLine(t, back, "dave")
	req.Equal("@carol >> hi", readLine(t, back))
	req.Equal("Authenticated as dave.", readLine(t, back))
	req.True(ts.store.Messages()[0].Delivered)
}

func TestHandler_DisconnectCleansUp(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, Options{})

	eve := ts.login(t, "eve")
	req.True(ts.registry.IsOnline("eve"))
	req.Equal(1, ts.bridge.ListenerCount())
	req.Equal(1, ts.handler.ConnectionCount())

	req.NoError(eve.Close())

	req.Eventually(func() bool {
		return len(ts.registry.LiveConnectionsFor("eve")) == 0 &&
			ts.bridge.ListenerCount() == 0 &&
			ts.handler.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_Heartbeat(t *testing.T) {
	ts := newTestServer(t, Options{PingInterval: 20 * time.Millisecond, PongWait: time.Second})
	conn := ts.dial(t)

	pings := make(chan struct{}, 10)
	conn.SetPingHandler(func(data string) error {
		pings <- struct{}{}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// The ping handler only runs while the client is reading
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestHandler_Shutdown(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, Options{})

	ts.login(t, "alice")
	ts.login(t, "bob")
	req.Equal(2, ts.handler.ConnectionCount())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(ts.handler.Shutdown(ctx))

	req.Zero(ts.handler.ConnectionCount())
	req.Empty(ts.registry.OnlineUsers())
	req.Zero(ts.bridge.ListenerCount())
}
