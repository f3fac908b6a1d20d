package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T, ttl time.Duration, max int) (*RedisCache, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := &clock{t: testNow}
	return NewRedisCache(client, ttl, max).WithClock(c.now), mr, c
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRedis(t, time.Minute, 10)

	entry := &Entry{
		TableID:    4,
		Rows:       []models.Row{{ID: 9, TableID: 4, Cells: []models.Cell{{RowID: 9, ColumnID: 1, Value: "Acme"}}}},
		Pagination: models.NewPagination(1, 25, 1),
		ColumnIDs:  []int64{1},
	}
	require.NoError(t, r.Set(ctx, "k", entry))

	got, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Acme", got.Rows[0].Cells[0].Value)
	assert.Equal(t, 1, got.Pagination.TotalRows)
	assert.Equal(t, 1, r.Len(ctx))

	_, ok, err = r.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ServerExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr, c := newRedis(t, time.Minute, 10)
	require.NoError(t, r.Set(ctx, "k", &Entry{TableID: 1}))

	mr.FastForward(time.Minute)
	c.advance(time.Minute)
	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := r.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, r.Len(ctx))
}

func TestRedisCache_EvictsOldestInsertion(t *testing.T) {
	ctx := context.Background()
	r, _, c := newRedis(t, time.Hour, 2)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Set(ctx, fmt.Sprintf("k%d", i), &Entry{TableID: 1}))
		c.advance(time.Second)
	}
	assert.Equal(t, 2, r.Len(ctx))
	_, ok, _ := r.Get(ctx, "k0")
	assert.False(t, ok)
	_, ok, _ = r.Get(ctx, "k2")
	assert.True(t, ok)
}

func TestRedisCache_InvalidateTable(t *testing.T) {
	ctx := context.Background()
	r, mr, _ := newRedis(t, time.Hour, 10)
	require.NoError(t, r.Set(ctx, "a", &Entry{TableID: 1}))
	require.NoError(t, r.Set(ctx, "b", &Entry{TableID: 1}))
	require.NoError(t, r.Set(ctx, "c", &Entry{TableID: 2}))

	n, err := r.InvalidateTable(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, r.Len(ctx))
	assert.False(t, mr.Exists("tablestore:filter:table:1"))
	_, ok, _ := r.Get(ctx, "c")
	assert.True(t, ok)
}

func TestRedisCache_InvalidateFilters(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRedis(t, time.Hour, 10)
	require.NoError(t, r.Set(ctx, "filters", &Entry{TableID: 1, ColumnIDs: []int64{10}}))
	require.NoError(t, r.Set(ctx, "search", &Entry{TableID: 1, GlobalSearch: true}))
	require.NoError(t, r.Set(ctx, "plain", &Entry{TableID: 1, ColumnIDs: []int64{12}}))

	n, err := r.InvalidateFilters(ctx, 1, []int64{10})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, _ := r.Get(ctx, "plain")
	assert.True(t, ok)
	_, ok, _ = r.Get(ctx, "filters")
	assert.False(t, ok)
}

func TestRedisCache_DropsFillOlderThanInvalidation(t *testing.T) {
	ctx := context.Background()
	r, mr, _ := newRedis(t, time.Hour, 10)

	gen, err := r.Generation(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, gen)

	_, err = r.InvalidateTable(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, r.Set(ctx, "late", &Entry{TableID: 1, Generation: gen}))
	assert.False(t, mr.Exists("tablestore:filter:entry:late"))
	assert.Zero(t, r.Len(ctx))

	_, err = r.InvalidateFilters(ctx, 1, []int64{10})
	require.NoError(t, err)
	gen, err = r.Generation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	require.NoError(t, r.Set(ctx, "fresh", &Entry{TableID: 1, Generation: gen}))
	_, ok, _ := r.Get(ctx, "fresh")
	assert.True(t, ok)
}

func TestRedisCache_Prefix(t *testing.T) {
	ctx := context.Background()
	r, mr, _ := newRedis(t, time.Hour, 10)
	r.WithPrefix("test:")
	require.NoError(t, r.Set(ctx, "k", &Entry{TableID: 3}))
	assert.True(t, mr.Exists("test:entry:k"))
	assert.True(t, mr.Exists("test:table:3"))
}

func TestMemoryAndRedisSatisfyInterface(t *testing.T) {
	var _ FilterCache = (*MemoryCache)(nil)
	var _ FilterCache = (*RedisCache)(nil)
}
