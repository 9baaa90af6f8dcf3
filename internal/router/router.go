package router

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chatrelay/internal/broker"
	"chatrelay/internal/presence"
	"chatrelay/internal/protocol"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Router delivers chat lines from authenticated senders and replays queued messages
// ARCHITECTURAL DISCOVERY: Local connections are written directly; everything else goes
// through the broker so other instances can deliver it
type Router struct {
	registry *presence.Registry
	bridge   *broker.Bridge
	store    interfaces.Store
	limiter  *RateLimiter
	log      *zap.Logger
}

// NewRouter wires the router; a nil limiter disables rate limiting
func NewRouter(registry *presence.Registry, bridge *broker.Bridge, store interfaces.Store, limiter *RateLimiter, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		registry: registry,
		bridge:   bridge,
		store:    store,
		limiter:  limiter,
		log:      log,
	}
}

// ProcessMessage routes raw and reports any failure back to the sender as a text line.
// The connection always stays open.
func (r *Router) ProcessMessage(ctx context.Context, raw string, sender interfaces.Connection) {
	err := r.RouteMessage(ctx, raw, sender)
	if err == nil {
		return
	}

	r.log.Debug("message not routed",
		zap.String("username", sender.Username()),
		zap.String("conn_id", sender.ID()),
		zap.Error(err),
	)
	if sendErr := sender.Send(ReplyFor(err)); sendErr != nil {
		r.log.Warn("failed to report routing error",
			zap.String("username", sender.Username()),
			zap.String("conn_id", sender.ID()),
			zap.Error(sendErr),
		)
	}
}

// ReplyFor maps a routing error to the line shown to the sender
func ReplyFor(err error) string {
	switch {
	case errors.Is(err, protocol.ErrParse):
		return protocol.Unparseable
	case errors.Is(err, interfaces.ErrUserNotFound):
		return protocol.UnknownUser
	default:
		return err.Error()
	}
}

// RouteMessage parses raw, delivers it to the recipient and persists the outcome.
// Nothing is persisted when parsing, rate limiting or recipient lookup fails.
func (r *Router) RouteMessage(ctx context.Context, raw string, sender interfaces.Connection) error {
	recipient, text, err := protocol.Parse(raw)
	if err != nil {
		return err
	}

	from := sender.Username()
	if !r.limiter.Allow(from) {
		return fmt.Errorf("%w: %d messages per %s", ErrRateLimitExceeded, r.limiter.limit, r.limiter.window)
	}

	if _, err := r.registry.ResolveRecipient(ctx, recipient); err != nil {
		return err
	}

	line, err := protocol.Format(from, text)
	if err != nil {
		return err
	}

	message := &types.Message{
		FromUser: from,
		ToUser:   recipient,
		Text:     text,
	}

	var deliveryErr error
	if local := r.registry.LiveConnectionsFor(recipient); len(local) > 0 {
		message.Delivered, deliveryErr = r.deliverLocal(recipient, local, line)
	} else {
		count, err := r.bridge.Publish(ctx, recipient, line)
		if err != nil {
			r.log.Warn("broker publish failed",
				zap.String("username", from),
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			deliveryErr = fmt.Errorf("%w: %w", ErrBroker, err)
		}
		message.Delivered = err == nil && count > 0
	}

	// FUNCTIONAL DISCOVERY: The message is stored even when delivery failed so the
	// recipient still gets it on next login
	if err := r.store.SaveMessage(ctx, message); err != nil {
		return errors.Join(deliveryErr, fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	r.log.Debug("message routed",
		zap.String("username", from),
		zap.String("recipient", recipient),
		zap.Bool("delivered", message.Delivered),
	)
	return deliveryErr
}

// deliverLocal writes line to every connection; it only reports an error when
// none of them took it
func (r *Router) deliverLocal(recipient string, conns []interfaces.Connection, line string) (bool, error) {
	var errs []error
	for _, conn := range conns {
		if err := conn.Send(line); err != nil {
			r.log.Warn("local delivery failed",
				zap.String("recipient", recipient),
				zap.String("conn_id", conn.ID()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	if len(errs) < len(conns) {
		return true, nil
	}
	return false, fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
}

// ReplayOffline sends username's undelivered messages to conn oldest first and marks
// each one delivered. Failures are reported to conn and replay moves on to the next
// message. It returns how many messages were sent.
func (r *Router) ReplayOffline(ctx context.Context, username string, conn interfaces.Connection) int {
	pending, err := r.store.QueryUndelivered(ctx, username)
	if err != nil {
		r.reportReplayFailure(username, conn, fmt.Errorf("%w: %w", ErrReplay, err))
		return 0
	}

	replayed := 0
	for _, message := range pending {
		line, err := protocol.Format(message.FromUser, message.Text)
		if err != nil {
			r.reportReplayFailure(username, conn, fmt.Errorf("%w %s: %w", ErrReplay, message.ID, err))
			continue
		}

		if err := conn.Send(line); err != nil {
			r.reportReplayFailure(username, conn, fmt.Errorf("%w %s: %w", ErrReplay, message.ID, err))
			continue
		}
		replayed++

		message.MarkDelivered()
		if err := r.store.UpdateMessage(ctx, message); err != nil {
			r.reportReplayFailure(username, conn, fmt.Errorf("%w: %w", ErrPersistence, err))
		}
	}

	if replayed > 0 {
		r.log.Info("replayed offline messages",
			zap.String("username", username),
			zap.Int("count", replayed),
			zap.Int("pending", len(pending)),
		)
	}
	return replayed
}

func (r *Router) reportReplayFailure(username string, conn interfaces.Connection, err error) {
	r.log.Warn("offline replay failure",
		zap.String("username", username),
		zap.String("conn_id", conn.ID()),
		zap.Error(err),
	)
	if sendErr := conn.Send(err.Error()); sendErr != nil {
		r.log.Debug("could not report replay failure", zap.String("conn_id", conn.ID()), zap.Error(sendErr))
	}
}
