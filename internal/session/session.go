package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatrelay/internal/protocol"
	"chatrelay/pkg/interfaces"
)

// Session drives one connection through login and chat
// FUNCTIONAL DISCOVERY: Receive and Close are called from the connection's read loop,
// but Close may also race in from shutdown, so state sits behind a mutex
type Session struct {
	manager *Manager
	conn    interfaces.Connection
	log     *zap.Logger

	mu       sync.Mutex
	state    State
	username string
	closed   bool
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username is empty until the session authenticates
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Open greets the client
func (s *Session) Open() {
	for _, line := range protocol.Greeting() {
		s.send(line)
	}
}

// Receive handles one line from the client according to the current state
func (s *Session) Receive(ctx context.Context, raw string) error {
	s.mu.Lock()
	closed, state := s.closed, s.state
	s.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}

	switch state {
	case Unauthenticated:
		s.login(ctx, raw)
	case Authenticated:
		s.manager.router.ProcessMessage(ctx, raw, s.conn)
	}
	return nil
}

// login attempts the Unauthenticated -> Authenticated transition. Any failure leaves
// the session unauthenticated so the client can try again.
func (s *Session) login(ctx context.Context, raw string) {
	username, err := protocol.Authenticate(raw)
	if err != nil {
		s.send(protocol.InvalidUsername)
		return
	}

	m := s.manager
	if _, err := m.registry.RegisterConnection(ctx, username, s.conn); err != nil {
		s.log.Warn("registration failed", zap.String("username", username), zap.Error(err))
		s.send(err.Error())
		return
	}

	if err := m.bridge.Subscribe(ctx, username, s.conn); err != nil {
		m.registry.UnregisterConnection(username, s.conn)
		s.log.Warn("broker subscription failed", zap.String("username", username), zap.Error(err))
		s.send(err.Error())
		return
	}

	if !s.transition(username) {
		// Closed while logging in; undo what Close could not see
		m.registry.UnregisterConnection(username, s.conn)
		m.bridge.Unsubscribe(username, s.conn)
		return
	}

	m.router.ReplayOffline(ctx, username, s.conn)
	s.send(protocol.Authenticated(username))

	s.log.Info("user authenticated", zap.String("username", username))
}

// transition moves to Authenticated; it reports false if the session closed meanwhile
func (s *Session) transition(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.state = Authenticated
	s.username = username
	s.manager.authenticated.Add(1)
	return true
}

// Close releases the session's presence and listener. It is safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	state, username := s.state, s.username
	s.mu.Unlock()

	m := s.manager
	m.open.Add(-1)
	if state != Authenticated {
		return
	}
	m.authenticated.Add(-1)

	m.registry.UnregisterConnection(username, s.conn)
	m.bridge.Unsubscribe(username, s.conn)

	s.log.Info("user disconnected", zap.String("username", username))
}

func (s *Session) send(line string) {
	if err := s.conn.Send(line); err != nil {
		s.log.Debug("send failed", zap.Error(err))
	}
}
