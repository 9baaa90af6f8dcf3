package interfaces

import "context"

// Broker is the publish/subscribe transport shared by all server instances
// FUNCTIONAL DISCOVERY: Publish reports how many subscribers were attached at publish
// time; callers treat it as a delivery signal, not an acknowledgement
type Broker interface {
	Subscribe(ctx context.Context, channel string) (BrokerSubscription, error)
	Publish(ctx context.Context, channel, payload string) (int64, error)
	Close() error
}

// BrokerSubscription is a handle on one subscription to one channel
type BrokerSubscription interface {
	// Next blocks until a payload arrives, ctx is done, or the subscription is closed
	// (ErrSubscriptionClosed)
	Next(ctx context.Context) (string, error)

	// Close unsubscribes; it is safe to call more than once
	Close() error
}
