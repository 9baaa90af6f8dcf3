package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"chatrelay/pkg/interfaces"
)

// DefaultChannelPrefix namespaces per-user broker channels
const DefaultChannelPrefix = "chat.user."

// Bridge forwards broker payloads published for a username to each of that
// user's live connections on this instance
// ARCHITECTURAL DISCOVERY: One broker subscription and one listener goroutine per
// (username, connection); the subscription handle lives with its listener so removing
// the last connection leaves nothing subscribed
type Bridge struct {
	broker interfaces.Broker
	prefix string
	log    *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[string]*listener // username -> conn ID -> listener
	closed bool
}

type listener struct {
	conn   interfaces.Connection
	sub    interfaces.BrokerSubscription
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *listener) exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func NewBridge(broker interfaces.Broker, prefix string, log *zap.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		broker: broker,
		prefix: prefix,
		log:    log,
		subs:   make(map[string]map[string]*listener),
	}
}

// ChannelFor returns the broker channel carrying messages addressed to username
func (b *Bridge) ChannelFor(username string) string {
	return b.prefix + username
}

// Subscribe attaches conn to username's channel and starts its listener.
// Calling it again for an attached connection is a no-op unless the listener has exited,
// in which case a fresh subscription and listener replace it.
func (b *Bridge) Subscribe(ctx context.Context, username string, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	var stale *listener
	if existing, ok := b.subs[username][conn.ID()]; ok {
		if !existing.exited() {
			b.mu.Unlock()
			return nil
		}
		stale = existing
		b.removeLocked(username, conn.ID())
	}
	b.mu.Unlock()

	if stale != nil {
		b.log.Info("restarting exited listener", zap.String("username", username), zap.String("conn_id", conn.ID()))
		b.teardown(username, stale)
	}

	sub, err := b.broker.Subscribe(ctx, b.ChannelFor(username))
	if err != nil {
		return err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	l := &listener{
		conn:   conn,
		sub:    sub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		_ = sub.Close()
		return ErrBridgeClosed
	}
	if _, ok := b.subs[username][conn.ID()]; ok {
		// A concurrent Subscribe for the same connection won
		b.mu.Unlock()
		cancel()
		_ = sub.Close()
		return nil
	}
	if b.subs[username] == nil {
		b.subs[username] = make(map[string]*listener)
	}
	b.subs[username][conn.ID()] = l
	b.mu.Unlock()

	go b.listen(listenCtx, username, l)

	b.log.Debug("listener started", zap.String("username", username), zap.String("conn_id", conn.ID()))
	return nil
}

func (b *Bridge) listen(ctx context.Context, username string, l *listener) {
	defer close(l.done)

	for {
		payload, err := l.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, interfaces.ErrSubscriptionClosed) {
				return
			}
			b.log.Warn("listener stopped on broker error",
				zap.String("username", username),
				zap.String("conn_id", l.conn.ID()),
				zap.Error(err),
			)
			return
		}

		if err := l.conn.Send(payload); err != nil {
			b.log.Warn("failed to forward broker payload",
				zap.String("username", username),
				zap.String("conn_id", l.conn.ID()),
				zap.Error(err),
			)
		}
	}
}

// Unsubscribe stops conn's listener and releases its broker subscription.
// Unknown pairs are ignored; teardown failures are only logged.
func (b *Bridge) Unsubscribe(username string, conn interfaces.Connection) {
	if conn == nil {
		return
	}

	b.mu.Lock()
	l, ok := b.subs[username][conn.ID()]
	if ok {
		b.removeLocked(username, conn.ID())
	}
	b.mu.Unlock()

	if ok {
		b.teardown(username, l)
	}
}

// Publish sends payload to username's channel and returns the broker's subscriber count
func (b *Bridge) Publish(ctx context.Context, username, payload string) (int64, error) {
	return b.broker.Publish(ctx, b.ChannelFor(username), payload)
}

// ListenerCount returns the number of listeners across all usernames
func (b *Bridge) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.SumBy(lo.Values(b.subs), func(set map[string]*listener) int {
		return len(set)
	})
}

// ListenersFor returns the IDs of connections listening for username
func (b *Bridge) ListenersFor(username string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.Keys(b.subs[username])
}

// Close stops every listener; Subscribe fails afterwards
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	all := b.subs
	b.subs = make(map[string]map[string]*listener)
	b.mu.Unlock()

	for username, set := range all {
		for _, l := range set {
			b.teardown(username, l)
		}
	}
	return nil
}

func (b *Bridge) removeLocked(username, connID string) {
	set, ok := b.subs[username]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(b.subs, username)
	}
}

func (b *Bridge) teardown(username string, l *listener) {
	l.cancel()
	if err := l.sub.Close(); err != nil {
		b.log.Warn("failed to close broker subscription",
			zap.String("username", username),
			zap.String("conn_id", l.conn.ID()),
			zap.Error(err),
		)
	}
	<-l.done
}
