package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nexuscrm/tablestore/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "tablestore:filter:"

// RedisCache is a FilterCache shared between server instances. Entries are
// JSON values with a server-side expiry; a sorted set keeps insertion order
// for capacity eviction and a set per table supports invalidation. A counter
// per table is incremented on every invalidation and watched by Set.
type RedisCache struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewRedisCache creates a RedisCache on client
func NewRedisCache(client *redis.Client, ttl time.Duration, maxEntries int) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &RedisCache{
		client:     client,
		prefix:     defaultRedisPrefix,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithPrefix namespaces every key. Used to share one Redis between deployments.
func (r *RedisCache) WithPrefix(prefix string) *RedisCache {
	r.prefix = prefix
	return r
}

// WithClock replaces the time source used for insertion order and purging
func (r *RedisCache) WithClock(now func() time.Time) *RedisCache {
	r.now = now
	return r
}

func (r *RedisCache) entryKey(key string) string { return r.prefix + "entry:" + key }
func (r *RedisCache) orderKey() string { return r.prefix + "order" }
func (r *RedisCache) tableKey(tableID int64) string {
	return r.prefix + "table:" + strconv.FormatInt(tableID, 10)
}
func (r *RedisCache) generationKey(tableID int64) string {
	return r.prefix + "gen:" + strconv.FormatInt(tableID, 10)
}

func (r *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("filter cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("filter cache decode: %w", err)
	}
	if r.now().Sub(entry.InsertedAt) >= r.ttl {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = r.now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("filter cache encode: %w", err)
	}

	genKey := r.generationKey(entry.TableID)
	stale := false
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != entry.Generation {
			stale = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.entryKey(key), raw, r.ttl)
			pipe.ZAdd(ctx, r.orderKey(), redis.Z{Score: float64(entry.InsertedAt.UnixMilli()), Member: key})
			pipe.SAdd(ctx, r.tableKey(entry.TableID), key)
			pipe.Expire(ctx, r.tableKey(entry.TableID), r.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		stale, err = true, nil
	}
	if err != nil {
		return fmt.Errorf("filter cache set: %w", err)
	}
	if stale {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonStale).Inc()
		return nil
	}
	return r.evictOverflow(ctx)
}

func (r *RedisCache) Generation(ctx context.Context, tableID int64) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey(tableID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("filter cache generation: %w", err)
	}
	return gen, nil
}

// bump must run before the table's entries are read for removal
func (r *RedisCache) bump(ctx context.Context, tableID int64) error {
	if err := r.client.Incr(ctx, r.generationKey(tableID)).Err(); err != nil {
		return fmt.Errorf("filter cache generation: %w", err)
	}
	return nil
}

func (r *RedisCache) evictOverflow(ctx context.Context) error {
	size, err := r.client.ZCard(ctx, r.orderKey()).Result()
	if err != nil {
		return fmt.Errorf("filter cache size: %w", err)
	}
	excess := size - int64(r.maxEntries)
	if excess <= 0 {
		return nil
	}
	oldest, err := r.client.ZRange(ctx, r.orderKey(), 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("filter cache evict: %w", err)
	}
	if err := r.drop(ctx, oldest); err != nil {
		return err
	}
	metrics.FilterCacheEvictions.WithLabelValues(ReasonCapacity).Add(float64(len(oldest)))
	return nil
}

// drop deletes entries and their order members. Table set members are left
// for the next invalidation of that table to clear.
func (r *RedisCache) drop(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	entryKeys := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		entryKeys[i] = r.entryKey(k)
		members[i] = k
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKeys...)
		pipe.ZRem(ctx, r.orderKey(), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("filter cache delete: %w", err)
	}
	return nil
}

func (r *RedisCache) InvalidateTable(ctx context.Context, tableID int64) (int, error) {
	if err := r.bump(ctx, tableID); err != nil {
		return 0, err
	}
	keys, err := r.client.SMembers(ctx, r.tableKey(tableID)).Result()
	if err != nil {
		return 0, fmt.Errorf("filter cache members: %w", err)
	}
	live, err := r.liveCount(ctx, keys)
	if err != nil {
		return 0, err
	}
	if err := r.drop(ctx, keys); err != nil {
		return 0, err
	}
	if err := r.client.Del(ctx, r.tableKey(tableID)).Err(); err != nil {
		return 0, fmt.Errorf("filter cache delete: %w", err)
	}
	if live > 0 {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonTable).Add(float64(live))
	}
	return live, nil
}

func (r *RedisCache) InvalidateFilters(ctx context.Context, tableID int64, columnIDs []int64) (int, error) {
	if err := r.bump(ctx, tableID); err != nil {
		return 0, err
	}
	keys, err := r.client.SMembers(ctx, r.tableKey(tableID)).Result()
	if err != nil {
		return 0, fmt.Errorf("filter cache members: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	entryKeys := make([]string, len(keys))
	for i, k := range keys {
		entryKeys[i] = r.entryKey(k)
	}
	values, err := r.client.MGet(ctx, entryKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("filter cache read: %w", err)
	}

	var doomed, stale []string
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(s), &entry); err != nil || entry.Touches(columnIDs) {
			doomed = append(doomed, keys[i])
		}
	}
	if err := r.drop(ctx, doomed); err != nil {
		return 0, err
	}
	if gone := append(doomed, stale...); len(gone) > 0 {
		members := make([]interface{}, len(gone))
		for i, k := range gone {
			members[i] = k
		}
		if err := r.client.SRem(ctx, r.tableKey(tableID), members...).Err(); err != nil {
			return 0, fmt.Errorf("filter cache members: %w", err)
		}
	}
	if len(doomed) > 0 {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonColumns).Add(float64(len(doomed)))
	}
	return len(doomed), nil
}

// PurgeExpired trims the insertion index of entries Redis has already expired
func (r *RedisCache) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	keys, err := r.client.ZRangeByScore(ctx, r.orderKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("filter cache purge: %w", err)
	}
	if err := r.drop(ctx, keys); err != nil {
		return 0, err
	}
	if len(keys) > 0 {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonTTL).Add(float64(len(keys)))
	}
	return len(keys), nil
}

// Len counts indexed entries. Returns 0 when Redis is unreachable.
func (r *RedisCache) Len(ctx context.Context) int {
	n, err := r.client.ZCard(ctx, r.orderKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (r *RedisCache) liveCount(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	entryKeys := make([]string, len(keys))
	for i, k := range keys {
		entryKeys[i] = r.entryKey(k)
	}
	n, err := r.client.Exists(ctx, entryKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("filter cache exists: %w", err)
	}
	return int(n), nil
}
