package api

import (
	"sync"
	"time"
)

// sweepThreshold bounds the attempts map: once it grows past this, expired
// windows are dropped before admitting the next key.
const sweepThreshold = 1024

type loginAttempt struct {
	count       int
	windowStart time.Time
}

// attemptLimiter throttles login attempts per client key (IP) within a
// fixed window.
type attemptLimiter struct {
	mu       sync.Mutex
	attempts map[string]loginAttempt
	limit    int
	window   time.Duration
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		attempts: make(map[string]loginAttempt),
		limit:    limit,
		window:   window,
	}
}

func (l *attemptLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.attempts) >= sweepThreshold {
		l.sweep(now)
	}

	a, exists := l.attempts[key]
	if !exists || now.Sub(a.windowStart) >= l.window {
		l.attempts[key] = loginAttempt{count: 1, windowStart: now}
		return true
	}
	if a.count >= l.limit {
		return false
	}
	a.count++
	l.attempts[key] = a
	return true
}

// sweep drops entries whose window has passed, so one-off clients do not
// accumulate in the map forever. Callers hold the lock.
func (l *attemptLimiter) sweep(now time.Time) {
	for k, a := range l.attempts {
		if now.Sub(a.windowStart) >= l.window {
			delete(l.attempts, k)
		}
	}
}
