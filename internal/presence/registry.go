package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Registry tracks which connections are live for each authenticated username
// ARCHITECTURAL DISCOVERY: The store decides whether a user exists; the registry only
// caches users that currently have at least one connection
type Registry struct {
	store interfaces.Store
	log   *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry // username -> live connections
}

type entry struct {
	user  *types.User
	conns map[string]interfaces.Connection // conn ID -> connection
}

// Stats is a point-in-time summary of presence
type Stats struct {
	OnlineUsers      int `json:"online_users"`
	TotalConnections int `json:"total_connections"`
}

func NewRegistry(store interfaces.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:   store,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// RegisterConnection loads or creates the user and adds conn to its live set.
// The store call happens outside the lock; two first logins racing on one username
// are resolved by the store's uniqueness constraint.
func (r *Registry) RegisterConnection(ctx context.Context, username string, conn interfaces.Connection) (*types.User, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}

	user, err := r.store.GetOrCreateUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", username, err)
	}

	r.mu.Lock()
	e, ok := r.entries[username]
	if !ok {
		e = &entry{user: user, conns: make(map[string]interfaces.Connection)}
		r.entries[username] = e
	}
	e.conns[conn.ID()] = conn
	count := len(e.conns)
	r.mu.Unlock()

	conn.SetUsername(username)

	r.log.Debug("connection registered",
		zap.String("username", username),
		zap.String("conn_id", conn.ID()),
		zap.Int("connections", count),
	)
	return user, nil
}

// UnregisterConnection removes conn from username's live set. Unknown pairs are ignored.
func (r *Registry) UnregisterConnection(username string, conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[username]
	if !ok {
		return
	}
	if _, ok := e.conns[conn.ID()]; !ok {
		return
	}

	delete(e.conns, conn.ID())
	// TECHNICAL DISCOVERY: Prune empty sets so the cache never outlives the last connection
	if len(e.conns) == 0 {
		delete(r.entries, username)
	}

	r.log.Debug("connection unregistered",
		zap.String("username", username),
		zap.String("conn_id", conn.ID()),
	)
}

// ResolveRecipient returns the user for username, consulting the cache before the store
func (r *Registry) ResolveRecipient(ctx context.Context, username string) (*types.User, error) {
	r.mu.RLock()
	e, ok := r.entries[username]
	var cached *types.User
	if ok {
		cached = e.user
	}
	r.mu.RUnlock()

	if cached != nil {
		return cached, nil
	}

	user, err := r.store.FindUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// LiveConnectionsFor returns a snapshot of username's live connections
func (r *Registry) LiveConnectionsFor(username string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[username]
	if !ok {
		return nil
	}
	return lo.Values(e.conns)
}

// IsOnline reports whether username has at least one live connection
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[username]
	return ok
}

// OnlineUsers returns the usernames that currently have live connections
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.entries)
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		OnlineUsers: len(r.entries),
		TotalConnections: lo.SumBy(lo.Values(r.entries), func(e *entry) int {
			return len(e.conns)
		}),
	}
}
