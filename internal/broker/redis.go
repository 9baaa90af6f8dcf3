package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatrelay/pkg/interfaces"
)

// RedisBroker carries payloads between server instances over Redis pub/sub
// TECHNICAL DISCOVERY: PUBLISH replies with the number of clients that received the
// message across all instances, which is exactly the delivered signal the router needs
type RedisBroker struct {
	client *redis.Client
	log    *zap.Logger
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	messages <-chan *redis.Message
	done     chan struct{}
	once     sync.Once
}

// NewRedisBroker takes ownership of client; Close closes it
func NewRedisBroker(client *redis.Client, log *zap.Logger) *RedisBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroker{client: client, log: log}
}

// Subscribe waits for the server to confirm the subscription so that a publish
// issued after Subscribe returns is guaranteed to be counted
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (interfaces.BrokerSubscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	return &redisSubscription{
		pubsub:   pubsub,
		messages: pubsub.Channel(),
		done:     make(chan struct{}),
	}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel, payload string) (int64, error) {
	count, err := b.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return count, nil
}

// Ping checks connectivity to the Redis server
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	if err := b.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

func (s *redisSubscription) Next(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return "", interfaces.ErrSubscriptionClosed
	default:
	}

	select {
	case msg, ok := <-s.messages:
		if !ok {
			return "", interfaces.ErrSubscriptionClosed
		}
		return msg.Payload, nil
	case <-s.done:
		return "", interfaces.ErrSubscriptionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
