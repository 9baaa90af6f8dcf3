package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"chatrelay/internal/session"
)

// Handler upgrades HTTP requests and runs one chat session per connection
// ARCHITECTURAL DISCOVERY: The transport knows nothing about chat; it feeds text frames
// into the session and tears the session down when the socket dies
type Handler struct {
	sessions *session.Manager
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*Connection
}

func NewHandler(sessions *session.Manager, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		opts:     opts.withDefaults(),
		log:      log,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Clients are plain chat tools, not browsers on a known origin
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		conns: make(map[string]*Connection),
	}
}

// HandleWebSocket is the /ws endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, h.opts)
	s, err := h.sessions.NewSession(conn)
	if err != nil {
		h.log.Error("failed to create session", zap.Error(err))
		_ = conn.Close()
		return
	}

	h.track(conn)
	s.Open()

	go h.handleConnection(conn, s)
}

// handleConnection runs the read loop and heartbeat until the socket closes
func (h *Handler) handleConnection(conn *Connection, s *session.Session) {
	defer func() {
		s.Close()
		_ = conn.Close()
		h.untrack(conn)
	}()

	ws := conn.conn
	ws.SetReadLimit(h.opts.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.opts.PongWait)); err != nil {
		h.log.Warn("failed to set read deadline", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		// One text frame is one protocol line, passed through byte for byte
		if err := s.Receive(conn.ctx, string(data)); err != nil {
			return
		}
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.opts.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) track(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.ID())
}

// ConnectionCount returns the number of open sockets
func (h *Handler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes every open socket and waits for their sessions to finish,
// or until ctx is done
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	conns := lo.Values(h.conns)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for h.ConnectionCount() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
