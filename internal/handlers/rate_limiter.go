package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow(key string) bool
}

// keyedLimiter gives every caller its own token bucket holding limit tokens that refill
// evenly across window.
type keyedLimiter struct {
	every  rate.Limit
	burst  int
	idle   time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	bucket map[string]*keyedBucket
}

type keyedBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedLimiter{
		every:  rate.Every(window / time.Duration(limit)),
		burst:  limit,
		idle:   window,
		clock:  clock,
		bucket: make(map[string]*keyedBucket),
	}
}

func (l *keyedLimiter) Allow(key string) bool {
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bucket[key]
	if !ok {
		l.evictIdle(now)
		b = &keyedBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.bucket[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// evictIdle drops buckets untouched for a full window; they would be full again anyway.
func (l *keyedLimiter) evictIdle(now time.Time) {
	for key, b := range l.bucket {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.bucket, key)
		}
	}
}
