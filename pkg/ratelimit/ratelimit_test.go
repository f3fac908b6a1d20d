package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_FixedWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewInMemory(time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		d := l.Allow(ctx, "tenant:1", 3)
		require.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}
	d := l.Allow(ctx, "tenant:1", 3)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter(now))

	// other keys are independent
	assert.True(t, l.Allow(ctx, "tenant:2", 3).Allowed)

	now = now.Add(time.Minute)
	assert.True(t, l.Allow(ctx, "tenant:1", 3).Allowed)
}

func TestInMemory_Cleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewInMemory(time.Minute).WithClock(func() time.Time { return now })
	l.Allow(ctx, "a", 1)
	l.Allow(ctx, "b", 1)

	assert.Equal(t, 0, l.Cleanup())
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Cleanup())
}

func TestInMemory_NonPositiveLimitAdmits(t *testing.T) {
	l := NewInMemory(0)
	assert.Equal(t, time.Minute, l.Window)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(context.Background(), "k", 0).Allowed)
	}
}

func TestRedis_FixedWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedis(client, time.Minute)
	now := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow(ctx, "actor:u1", 2).Allowed)
	d := l.Allow(ctx, "actor:u1", 2)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d = l.Allow(ctx, "actor:u1", 2)
	assert.False(t, d.Allowed)
	assert.Equal(t, 55*time.Second, d.RetryAfter(now))

	now = now.Add(time.Minute)
	assert.True(t, l.Allow(ctx, "actor:u1", 2).Allowed)
}

func TestRedis_FailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	d := NewRedis(client, time.Minute).Allow(context.Background(), "k", 1)
	assert.True(t, d.Allowed)
}

func TestRedis_SubMillisecondWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedis(client, 500*time.Microsecond)
	assert.Equal(t, time.Millisecond, l.Window)

	var d Decision
	require.NotPanics(t, func() { d = l.Allow(context.Background(), "k", 1) })
	assert.True(t, d.Allowed)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "tenant:t1", Key("tenant", "t1"))
	assert.Equal(t, "actor:anonymous", Key("actor", ""))
}
