package ratelimiter

import (
	"sync"
	"time"
)

// Limiter throttles outbound operations per key (a booking id).
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// FixedWindowRateLimiter counts operations per key in aligned windows.
type FixedWindowRateLimiter struct {
	mu          sync.Mutex
	counts      map[string]*window
	limit       int
	size        time.Duration
	now         func() time.Time
	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

type window struct {
	count   int
	resetAt time.Time
}

func NewFixedWindowRateLimiter(limit int, size time.Duration) *FixedWindowRateLimiter {
	rl := newFixedWindow(limit, size, time.Now)
	if size > 0 {
		rl.cleanupTick = time.NewTicker(size)
		go rl.startCleanup()
	}
	return rl
}

func newFixedWindow(limit int, size time.Duration, now func() time.Time) *FixedWindowRateLimiter {
	return &FixedWindowRateLimiter{
		counts: make(map[string]*window),
		limit:  limit,
		size:   size,
		now:    now,
		done:   make(chan struct{}),
	}
}

// Allow reports whether one more operation fits in key's window and, if not,
// how long until the window resets. A non-positive limit disables limiting.
func (rl *FixedWindowRateLimiter) Allow(key string) (bool, time.Duration) {
	if rl.limit <= 0 || rl.size <= 0 {
		return true, 0
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.counts[key]
	if !ok || !now.Before(w.resetAt) {
		rl.counts[key] = &window{count: 1, resetAt: now.Truncate(rl.size).Add(rl.size)}
		return true, 0
	}

	if w.count >= rl.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

func (rl *FixedWindowRateLimiter) startCleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *FixedWindowRateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.counts {
		if !now.Before(w.resetAt) {
			delete(rl.counts, key)
		}
	}
}

func (rl *FixedWindowRateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		if rl.cleanupTick != nil {
			rl.cleanupTick.Stop()
		}
	})
}
