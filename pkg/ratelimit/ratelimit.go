// Package ratelimit implements fixed-window request limiting, either per
// process or shared through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, never negative
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter admits at most limit requests per key per window
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) Decision
}

type window struct {
	start time.Time
	count int
}

// InMemoryLimiter keeps counters in the process
type InMemoryLimiter struct {
	Window time.Duration

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemory creates a process-local limiter
func NewInMemory(w time.Duration) *InMemoryLimiter {
	if w <= 0 {
		w = time.Minute
	}
	return &InMemoryLimiter{Window: w, windows: make(map[string]*window), now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (l *InMemoryLimiter) WithClock(now func() time.Time) *InMemoryLimiter {
	l.now = now
	return l
}

func (l *InMemoryLimiter) Allow(_ context.Context, key string, limit int) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	resetAt := w.start.Add(l.Window)
	if limit <= 0 {
		return Decision{Allowed: true, ResetAt: resetAt}
	}
	if w.count >= limit {
		return Decision{Allowed: false, ResetAt: resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: limit - w.count, ResetAt: resetAt}
}

// Cleanup drops windows that have ended and returns how many were removed
func (l *InMemoryLimiter) Cleanup() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.Window {
			delete(l.windows, key)
			n++
		}
	}
	return n
}

// RedisLimiter shares counters between instances. A Redis failure admits
// the request.
type RedisLimiter struct {
	Window time.Duration
	Prefix string

	client *redis.Client
	now    func() time.Time
}

// NewRedis creates a limiter on client. Windows are counted in whole
// milliseconds; shorter windows are raised to one millisecond.
func NewRedis(client *redis.Client, w time.Duration) *RedisLimiter {
	switch {
	case w <= 0:
		w = time.Minute
	case w < time.Millisecond:
		w = time.Millisecond
	}
	return &RedisLimiter{Window: w, Prefix: "tablestore:ratelimit:", client: client, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	now := l.now()
	slot := now.UnixMilli() / l.Window.Milliseconds()
	resetAt := time.UnixMilli((slot + 1) * l.Window.Milliseconds())
	if limit <= 0 {
		return Decision{Allowed: true, ResetAt: resetAt}
	}

	redisKey := l.Prefix + key + ":" + strconv.FormatInt(slot, 10)
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.Window)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true, Remaining: limit, ResetAt: resetAt}
	}
	count := int(incr.Val())
	if count > limit {
		return Decision{Allowed: false, ResetAt: resetAt}
	}
	return Decision{Allowed: true, Remaining: limit - count, ResetAt: resetAt}
}

// Key joins the parts of a limiter key, e.g. Key("tenant", tenantID)
func Key(scope string, segment string) string {
	if segment == "" {
		segment = "anonymous"
	}
	return fmt.Sprintf("%s:%s", scope, segment)
}
