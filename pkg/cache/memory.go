package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/nexuscrm/tablestore/pkg/metrics"
)

type memoryItem struct {
	key   string
	entry *Entry
}

// MemoryCache is a process-local FilterCache. Entries expire TTL after
// insertion; when full, the oldest insertion is evicted first.
type MemoryCache struct {
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	items      map[string]*list.Element
	order      *list.List // front = oldest insertion
	generation map[int64]int64
	now        func() time.Time
}

// NewMemoryCache creates a MemoryCache. Non-positive arguments fall back to defaults.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		generation: make(map[int64]int64),
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (m *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	m.now = now
	return m
}

func (m *MemoryCache) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.InsertedAt) >= m.ttl
}

// Get returns a live entry. An expired entry is removed and reported as a miss.
func (m *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	el, ok := m.items[key]
	if !ok {
		m.mu.RUnlock()
		return nil, false, nil
	}
	entry := el.Value.(*memoryItem).entry
	m.mu.RUnlock()

	if m.expired(entry, m.now()) {
		m.mu.Lock()
		// re-check: a concurrent Set may have replaced it
		if cur, ok := m.items[key]; ok && cur.Value.(*memoryItem).entry == entry {
			m.remove(cur)
			metrics.FilterCacheEvictions.WithLabelValues(ReasonTTL).Inc()
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry, true, nil
}

// Set stores entry under key. Re-setting a key counts as a new insertion.
func (m *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation[entry.TableID] != entry.Generation {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonStale).Inc()
		return nil
	}

	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	m.items[key] = m.order.PushBack(&memoryItem{key: key, entry: entry})

	evicted := 0
	for m.order.Len() > m.maxEntries {
		m.remove(m.order.Front())
		evicted++
	}
	if evicted > 0 {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonCapacity).Add(float64(evicted))
	}
	return nil
}

// Generation returns how often tableID has been invalidated
func (m *MemoryCache) Generation(_ context.Context, tableID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation[tableID], nil
}

// InvalidateTable removes every entry of tableID
func (m *MemoryCache) InvalidateTable(_ context.Context, tableID int64) (int, error) {
	n := m.invalidate(tableID, func(e *Entry) bool { return e.TableID == tableID })
	if n > 0 {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonTable).Add(float64(n))
	}
	return n, nil
}

// InvalidateFilters removes the entries of tableID that depend on any of columnIDs
func (m *MemoryCache) InvalidateFilters(_ context.Context, tableID int64, columnIDs []int64) (int, error) {
	n := m.invalidate(tableID, func(e *Entry) bool {
		return e.TableID == tableID && e.Touches(columnIDs)
	})
	if n > 0 {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonColumns).Add(float64(n))
	}
	return n, nil
}

// PurgeExpired removes all expired entries
func (m *MemoryCache) PurgeExpired(_ context.Context) (int, error) {
	now := m.now()
	n := m.removeWhere(func(e *Entry) bool { return m.expired(e, now) })
	if n > 0 {
		metrics.FilterCacheEvictions.WithLabelValues(ReasonTTL).Add(float64(n))
	}
	return n, nil
}

// Len counts stored entries, expired or not
func (m *MemoryCache) Len(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.order.Len()
}

// invalidate bumps the table generation and removes matching entries under one lock
func (m *MemoryCache) invalidate(tableID int64, match func(*Entry) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation[tableID]++
	return m.removeLocked(match)
}

func (m *MemoryCache) removeWhere(match func(*Entry) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(match)
}

func (m *MemoryCache) removeLocked(match func(*Entry) bool) int {
	n := 0
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*memoryItem).entry) {
			m.remove(el)
			n++
		}
		el = next
	}
	return n
}

// remove must be called with mu held
func (m *MemoryCache) remove(el *list.Element) {
	item := m.order.Remove(el).(*memoryItem)
	delete(m.items, item.key)
}
