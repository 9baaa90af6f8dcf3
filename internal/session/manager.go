package session

import (
	"sync/atomic"

	"go.uber.org/zap"

	"chatrelay/internal/broker"
	"chatrelay/internal/presence"
	"chatrelay/internal/router"
	"chatrelay/pkg/interfaces"
)

// Manager builds a Session for every accepted connection and shares the routing
// services between them
// ARCHITECTURAL DISCOVERY: Services are constructed once by the application and injected,
// so sessions hold no global state
type Manager struct {
	registry *presence.Registry
	bridge   *broker.Bridge
	router   *router.Router
	log      *zap.Logger

	open          atomic.Int64
	authenticated atomic.Int64
}

// Stats counts sessions currently open on this instance
type Stats struct {
	Open          int64 `json:"open"`
	Authenticated int64 `json:"authenticated"`
}

func NewManager(registry *presence.Registry, bridge *broker.Bridge, rtr *router.Router, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		registry: registry,
		bridge:   bridge,
		router:   rtr,
		log:      log,
	}
}

// NewSession wraps conn in an unauthenticated session
func (m *Manager) NewSession(conn interfaces.Connection) (*Session, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}
	m.open.Add(1)
	return &Session{
		manager: m,
		conn:    conn,
		state:   Unauthenticated,
		log:     m.log.With(zap.String("conn_id", conn.ID())),
	}, nil
}

func (m *Manager) Stats() Stats {
	return Stats{
		Open:          m.open.Load(),
		Authenticated: m.authenticated.Load(),
	}
}
