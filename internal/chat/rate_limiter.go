package chat

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by author within a room.
// A limit of zero or less disables it.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// sweepThreshold bounds how many idle keys accumulate before a full sweep.
const sweepThreshold = 1024

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.limit <= 0 || rl.interval <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	fresh := freshSince(rl.history[key], windowStart)
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}
	rl.history[key] = append(fresh, now)

	if len(rl.history) > sweepThreshold {
		for k, attempts := range rl.history {
			if left := freshSince(attempts, windowStart); len(left) == 0 {
				delete(rl.history, k)
			} else {
				rl.history[k] = left
			}
		}
	}
	return true
}

// Refund takes back the latest attempt recorded for key, for a call that was
// allowed but then failed.
func (rl *RateLimiter) Refund(key string) {
	if rl == nil || rl.limit <= 0 || rl.interval <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	attempts := rl.history[key]
	switch len(attempts) {
	case 0:
	case 1:
		delete(rl.history, key)
	default:
		rl.history[key] = attempts[:len(attempts)-1]
	}
}

func freshSince(attempts []time.Time, windowStart time.Time) []time.Time {
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

// Len reports how many keys currently have attempts on record.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}
