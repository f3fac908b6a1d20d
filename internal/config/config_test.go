package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMySQL, cfg.StorageDriver)
	assert.Equal(t, DriverMemory, cfg.CacheDriver)
	assert.Equal(t, 5*time.Minute, cfg.FilterCacheTTL)
	assert.Equal(t, 1000, cfg.FilterCacheMaxEntries)
	assert.Equal(t, 25, cfg.PageSizeDefault)
	assert.Equal(t, 100, cfg.PageSizeMax)
	assert.Equal(t, 50, cfg.PlanMaxTables)
	assert.Equal(t, 100000, cfg.PlanMaxRows)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, 600, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CACHE_DRIVER", "redis")
	t.Setenv("FILTER_CACHE_TTL", "90s")
	t.Setenv("PAGE_SIZE_MAX", "200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, DriverRedis, cfg.CacheDriver)
	assert.Equal(t, 90*time.Second, cfg.FilterCacheTTL)
	assert.Equal(t, 200, cfg.PageSizeMax)
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StorageDriver:   DriverMemory,
			CacheDriver:     DriverMemory,
			PageSizeDefault: 25,
			PageSizeMax:     100,
			SweepInterval:   time.Hour,
			RateLimitWindow: time.Minute,
		}
	}
	assert.NoError(t, validate(base()))

	c := base()
	c.PageSizeDefault = 101
	assert.Error(t, validate(c))

	c = base()
	c.StorageDriver = "postgres"
	assert.Error(t, validate(c))

	c = base()
	c.CacheDriver = "memcached"
	assert.Error(t, validate(c))

	c = base()
	c.SweepInterval = 0
	assert.Error(t, validate(c))

	c = base()
	c.RateLimitWindow = 500 * time.Microsecond
	assert.ErrorContains(t, validate(c), "RATE_LIMIT_WINDOW")
}
