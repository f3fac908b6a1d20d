package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/infrastructure/memory"
	"github.com/nexuscrm/tablestore/pkg/cache"
	"github.com/nexuscrm/tablestore/pkg/filter"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingRows counts store queries so tests can assert none ran
type countingRows struct {
	*memory.Store
	mu      sync.Mutex
	queries int
	// afterQuery runs once after the next query has read its rows
	afterQuery func()
}

func (c *countingRows) QueryRows(ctx context.Context, plan *filter.Plan) ([]models.Row, int, error) {
	c.mu.Lock()
	c.queries++
	hook := c.afterQuery
	c.afterQuery = nil
	c.mu.Unlock()

	rows, total, err := c.Store.QueryRows(ctx, plan)
	if hook != nil {
		hook()
	}
	return rows, total, err
}

func (c *countingRows) onNextQuery(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterQuery = fn
}

func (c *countingRows) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

type testEnv struct {
	store *memory.Store
	rows  *countingRows
	cache *cache.MemoryCache
	clock *testClock
	sm    *ServiceManager

	admin *models.UserSession
	user  *models.UserSession
}

func newTestEnv(t *testing.T, limits StaticPlanLimits) *testEnv {
	t.Helper()
	clock := &testClock{t: baseTime}
	store := memory.NewStore().WithClock(clock.Now)
	rows := &countingRows{Store: store}
	filterCache := cache.NewMemoryCache(5*time.Minute, 100).WithClock(clock.Now)

	sm := NewServiceManager(Repositories{
		Tx:     store,
		Schema: store,
		Rows:   rows,
		Rules:  store,
		Grants: store,
		Audit:  store,
	}, Options{
		Limits:          limits,
		Cache:           filterCache,
		Now:             clock.Now,
		PageSizeDefault: 25,
		PageSizeMax:     100,
	})

	return &testEnv{
		store: store,
		rows:  rows,
		cache: filterCache,
		clock: clock,
		sm:    sm,
		admin: &models.UserSession{ID: "admin-1", TenantID: testTenant, IsTenantAdmin: true},
		user:  &models.UserSession{ID: "user-1", TenantID: testTenant},
	}
}

func (e *testEnv) database(t *testing.T, name string) *models.Database {
	t.Helper()
	db, err := e.sm.Schema.CreateDatabase(context.Background(), testTenant, models.DatabaseInput{Name: name})
	require.NoError(t, err)
	return db
}

// table creates a table with columns and returns it described
func (e *testEnv) table(t *testing.T, databaseID int64, name string, columns ...models.ColumnInput) *models.Table {
	t.Helper()
	ctx := context.Background()
	table, err := e.sm.Schema.CreateTable(ctx, testTenant, databaseID, models.TableInput{Name: name}, e.admin.ID)
	require.NoError(t, err)
	if len(columns) > 0 {
		_, err = e.sm.Schema.CreateColumns(ctx, testTenant, table.ID, columns, nil)
		require.NoError(t, err)
	}
	out, err := e.sm.Schema.DescribeTable(ctx, testTenant, table.ID)
	require.NoError(t, err)
	return out
}

func column(t *testing.T, table *models.Table, name string) *models.Column {
	t.Helper()
	col, ok := table.ColumnByName(name)
	require.True(t, ok, "column %s", name)
	return col
}

func intPtr(v int) *int { return &v }
