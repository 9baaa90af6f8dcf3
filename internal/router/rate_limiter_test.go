package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(DefaultRateLimit, DefaultRateWindow)

	for i := 0; i < DefaultRateLimit; i++ {
		req.True(limiter.Allow("alice"), "message %d should be allowed", i+1)
	}
	req.False(limiter.Allow("alice"))

	// Budgets are per user
	req.True(limiter.Allow("bob"))
}

func TestRateLimiter_WindowReset(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(3, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		req.True(limiter.Allow("alice"))
	}
	req.False(limiter.Allow("alice"))

	now = now.Add(time.Minute)
	req.True(limiter.Allow("alice"))
}

func TestRateLimiter_WindowIsFixedFromFirstMessage(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	// Given a window opened at 12:00 and filled at 12:00:50
	req.True(limiter.Allow("alice"))
	now = now.Add(50 * time.Second)
	req.True(limiter.Allow("alice"))

	// When the window expires at 12:01 the whole budget returns at once,
	// even though the second message is only 10s old
	now = now.Add(10 * time.Second)
	req.True(limiter.Allow("alice"))
	req.True(limiter.Allow("alice"))
	req.False(limiter.Allow("alice"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(0, time.Minute)
	req.Nil(limiter)

	for i := 0; i < 1000; i++ {
		req.True(limiter.Allow("alice"))
	}
	req.NotPanics(limiter.Cleanup)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(10, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("alice")
	now = now.Add(3 * time.Minute)
	limiter.Allow("bob")

	now = now.Add(3 * time.Minute)
	limiter.Cleanup()

	req.Equal(1, limiter.tracked())
}

func TestRateLimiter_RunCleanupStopsWithContext(t *testing.T) {
	limiter := NewRateLimiter(10, time.Millisecond)
	limiter.Allow("alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		limiter.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return limiter.tracked() == 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}
