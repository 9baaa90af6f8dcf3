package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/testutil"
	"chatrelay/pkg/interfaces"
)

func newTestRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	b := NewRedisBroker(client, nil)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, _ := newTestRedisBroker(t)

	req.NoError(b.Ping(ctx))

	count, err := b.Publish(ctx, "chat.user.bob", "nobody")
	req.NoError(err)
	req.Zero(count)

	sub, err := b.Subscribe(ctx, "chat.user.bob")
	req.NoError(err)
	defer sub.Close()

	count, err = b.Publish(ctx, "chat.user.bob", "@alice >> hi")
	req.NoError(err)
	req.Equal(int64(1), count)

	payload, err := sub.Next(ctx)
	req.NoError(err)
	req.Equal("@alice >> hi", payload)
}

func TestRedisBroker_SubscriptionClose(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, mr := newTestRedisBroker(t)

	sub, err := b.Subscribe(ctx, "chat.user.bob")
	req.NoError(err)

	req.NoError(sub.Close())
	req.NoError(sub.Close())

	_, err = sub.Next(ctx)
	req.ErrorIs(err, interfaces.ErrSubscriptionClosed)

	req.Eventually(func() bool {
		return mr.PubSubNumSub("chat.user.bob")["chat.user.bob"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBroker_PublishFailsWhenServerDown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, mr := newTestRedisBroker(t)

	mr.Close()

	_, err := b.Publish(ctx, "chat.user.bob", "lost")
	require.Error(t, err)
}

func TestBridge_OverRedis(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, _ := newTestRedisBroker(t)

	// Two bridges on one Redis model two server instances
	instanceA := NewBridge(b, "", nil)
	instanceB := NewBridge(b, "", nil)
	defer instanceA.Close()
	defer instanceB.Close()

	bob := testutil.NewFakeConnection()
	req.NoError(instanceB.Subscribe(ctx, "bob", bob))

	count, err := instanceA.Publish(ctx, "bob", "@alice >> across instances")
	req.NoError(err)
	req.Equal(int64(1), count)

	sent := bob.WaitForCount(1, 2*time.Second)
	req.Equal([]string{"@alice >> across instances"}, sent)

	instanceB.Unsubscribe("bob", bob)
	req.Zero(instanceB.ListenerCount())

	req.Eventually(func() bool {
		count, err := instanceA.Publish(ctx, "bob", "after logout")
		return err == nil && count == 0
	}, 2*time.Second, 20*time.Millisecond)
}
