package broker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatrelay/pkg/interfaces"
)

// DefaultBufferSize is the per-subscription queue length of MemoryBroker
const DefaultBufferSize = 100

// MemoryBroker is an in-process interfaces.Broker for single-instance deployments
// FUNCTIONAL DISCOVERY: A subscriber whose queue is full misses the payload and is not
// counted, mirroring a broker that could not hand the message over
type MemoryBroker struct {
	bufferSize int
	log        *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[*memorySubscription]struct{}
	closed   bool
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	queue   chan string
	done    chan struct{}
	once    sync.Once
}

func NewMemoryBroker(bufferSize int, log *zap.Logger) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryBroker{
		bufferSize: bufferSize,
		log:        log,
		channels:   make(map[string]map[*memorySubscription]struct{}),
	}
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (interfaces.BrokerSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := &memorySubscription{
		broker:  b,
		channel: channel,
		queue:   make(chan string, b.bufferSize),
		done:    make(chan struct{}),
	}
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[*memorySubscription]struct{})
	}
	b.channels[channel][sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBroker) Publish(ctx context.Context, channel, payload string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrBrokerClosed
	}

	var delivered int64
	for sub := range b.channels[channel] {
		select {
		case sub.queue <- payload:
			delivered++
		default:
			b.log.Warn("subscriber queue full, dropping payload", zap.String("channel", channel))
		}
	}
	return delivered, nil
}

// SubscriberCount returns the number of open subscriptions on channel
func (b *MemoryBroker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// ChannelCount returns the number of channels with at least one subscription
func (b *MemoryBroker) ChannelCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

// Close closes every open subscription; later calls are no-ops
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*memorySubscription
	for _, set := range b.channels {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.channels = make(map[string]map[*memorySubscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.done) })
	}
	return nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.channels[sub.channel]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.channels, sub.channel)
	}
}

func (s *memorySubscription) Next(ctx context.Context) (string, error) {
	// A closed subscription never yields buffered payloads
	select {
	case <-s.done:
		return "", interfaces.ErrSubscriptionClosed
	default:
	}

	select {
	case payload := <-s.queue:
		return payload, nil
	case <-s.done:
		return "", interfaces.ErrSubscriptionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
	return nil
}
