package handlers

import (
	"testing"
	"time"
)

func TestWindowLimiterPerCaller(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newWindowLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("user-1") || !limiter.Allow("user-1") {
		t.Fatal("expected the burst to pass")
	}
	if limiter.Allow("user-1") {
		t.Fatal("expected third export to be rejected")
	}
	if !limiter.Allow("user-2") {
		t.Fatal("expected limits to be tracked per caller")
	}

	// One token refills every window/limit.
	now = now.Add(30 * time.Second)
	if !limiter.Allow("user-1") {
		t.Fatal("expected a refilled token")
	}
	if limiter.Allow("user-1") {
		t.Fatal("expected only one token after half a window")
	}
}

func TestWindowLimiterEvictsIdleCallers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newWindowLimiter(1, time.Minute, func() time.Time { return now }).(*keyedLimiter)

	limiter.Allow("user-1")
	now = now.Add(2 * time.Minute)
	limiter.Allow("user-2")

	if _, ok := limiter.bucket["user-1"]; ok {
		t.Fatal("expected idle caller to be evicted")
	}
}

func TestWindowLimiterDisabled(t *testing.T) {
	if limiter := newWindowLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatalf("expected nil limiter for zero limit, got %T", limiter)
	}
	if limiter := newWindowLimiter(5, 0, nil); limiter != nil {
		t.Fatalf("expected nil limiter for zero window, got %T", limiter)
	}
}
