package chat

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatalf("first two attempts should pass")
	}
	if rl.Allow("k") {
		t.Fatalf("third attempt inside the window should be blocked")
	}
	if !rl.Allow("other") {
		t.Fatalf("keys must not share a budget")
	}

	now = now.Add(11 * time.Second)
	if !rl.Allow("k") {
		t.Fatalf("attempt after the window should pass")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !rl.Allow("k") {
			t.Fatalf("disabled limiter blocked attempt %d", i)
		}
	}
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("k") {
		t.Fatalf("nil limiter should allow")
	}
}

func TestRateLimiterSweepsIdleKeys(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	for i := 0; i < sweepThreshold; i++ {
		rl.Allow(fmt.Sprintf("k%d", i))
	}
	now = now.Add(time.Minute)
	rl.Allow("fresh")
	if n := rl.Len(); n != 1 {
		t.Fatalf("expected idle keys to be swept, %d left", n)
	}
}

func TestRateLimiterRefund(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if !rl.Allow("k") {
		t.Fatalf("first attempt should pass")
	}
	rl.Refund("k")
	if !rl.Allow("k") {
		t.Fatalf("refunded attempt should free the slot")
	}
	if rl.Allow("k") {
		t.Fatalf("second attempt should be blocked")
	}
	rl.Refund("never-seen")
	if rl.Len() != 1 {
		t.Fatalf("refund of an unknown key should not add entries, got %d keys", rl.Len())
	}
}
