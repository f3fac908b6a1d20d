package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nexuscrm/tablestore/internal/config"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StorageDriver:         config.DriverMemory,
		CacheDriver:           config.DriverMemory,
		FilterCacheTTL:        time.Minute,
		FilterCacheMaxEntries: 10,
		PageSizeDefault:       25,
		PageSizeMax:           100,
		PlanMaxTables:         1,
		SweepInterval:         time.Hour,
		RateLimitWindow:       time.Minute,
	}
}

func TestNew_Memory(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &ratelimit.InMemoryLimiter{}, a.Limiter)

	db, err := a.Services.Schema.CreateDatabase(ctx, "t1", models.DatabaseInput{Name: "crm"})
	require.NoError(t, err)
	_, err = a.Services.Schema.CreateTable(ctx, "t1", db.ID, models.TableInput{Name: "a"}, "admin")
	require.NoError(t, err)

	// the configured plan allows one table
	_, err = a.Services.Schema.CreateTable(ctx, "t1", db.ID, models.TableInput{Name: "b"}, "admin")
	assert.Error(t, err)
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.CacheDriver = config.DriverRedis
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &ratelimit.RedisLimiter{}, a.Limiter)

	d := a.Limiter.Allow(context.Background(), ratelimit.Key("user", "t1:u1"), 5)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestNew_RedisUnavailable(t *testing.T) {
	cfg := memoryConfig()
	cfg.CacheDriver = config.DriverRedis
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
