package router

import (
	"context"
	"sync"
	"time"
)

// Default sending budget per user
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Minute
)

// RateLimiter caps how many chat lines each user may send per window. Windows are
// fixed: one opens on the first message after the previous window expired.
// ARCHITECTURAL DISCOVERY: Per-user state with periodic cleanup prevents unbounded growth
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	users map[string]*userWindow
}

type userWindow struct {
	count int
	start time.Time
}

// NewRateLimiter returns nil when limit is not positive; a nil limiter allows everything
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		users:  make(map[string]*userWindow),
	}
}

// Allow records one message for username and reports whether it is within budget
func (rl *RateLimiter) Allow(username string) bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.users[username]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.users[username] = &userWindow{count: 1, start: now}
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Cleanup drops users whose window expired more than four windows ago
func (rl *RateLimiter) Cleanup() {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for username, w := range rl.users {
		if now.Sub(w.start) > 5*rl.window {
			delete(rl.users, username)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	if rl == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.users)
}
