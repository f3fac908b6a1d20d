// Package app assembles storage, cache and services from configuration.
// Both the server and the provisioning CLI start from here.
package app

import (
	"context"
	"fmt"

	"github.com/nexuscrm/tablestore/internal/application/services"
	"github.com/nexuscrm/tablestore/internal/bootstrap"
	"github.com/nexuscrm/tablestore/internal/config"
	"github.com/nexuscrm/tablestore/internal/infrastructure/database"
	"github.com/nexuscrm/tablestore/internal/infrastructure/memory"
	"github.com/nexuscrm/tablestore/internal/infrastructure/persistence"
	"github.com/nexuscrm/tablestore/pkg/cache"
	"github.com/nexuscrm/tablestore/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired services and what must be closed on shutdown
type App struct {
	Services *services.ServiceManager
	Limiter  ratelimit.Limiter

	closers []func() error
}

// New connects the configured backends and builds the services
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	repos, err := a.storage(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := services.Options{
		Limits:          services.StaticPlanLimits{Tables: cfg.PlanMaxTables, Rows: cfg.PlanMaxRows},
		PageSizeDefault: cfg.PageSizeDefault,
		PageSizeMax:     cfg.PageSizeMax,
		SweepInterval:   cfg.SweepInterval,
	}

	switch cfg.CacheDriver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		zap.L().Info("🔌 Redis connected", zap.String("addr", cfg.RedisAddr))

		opts.Cache = cache.NewRedisCache(client, cfg.FilterCacheTTL, cfg.FilterCacheMaxEntries)
		a.Limiter = ratelimit.NewRedis(client, cfg.RateLimitWindow)
	default:
		opts.Cache = cache.NewMemoryCache(cfg.FilterCacheTTL, cfg.FilterCacheMaxEntries)
		limiter := ratelimit.NewInMemory(cfg.RateLimitWindow)
		opts.Limiter = limiter // redis windows expire on their own
		a.Limiter = limiter
	}

	a.Services = services.NewServiceManager(repos, opts)
	return a, nil
}

func (a *App) storage(ctx context.Context, cfg *config.Config) (services.Repositories, error) {
	if cfg.StorageDriver == config.DriverMemory {
		zap.L().Warn("⚠️ Using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return services.Repositories{
			Tx:     store,
			Schema: store,
			Rows:   store,
			Rules:  store,
			Grants: store,
			Audit:  store,
		}, nil
	}

	conn, err := database.Open(ctx, database.Settings{
		Host:     cfg.TiDBHost,
		Port:     cfg.TiDBPort,
		User:     cfg.TiDBUser,
		Password: cfg.TiDBPassword,
		Database: cfg.TiDBDatabase,
	})
	if err != nil {
		return services.Repositories{}, err
	}
	a.closers = append(a.closers, conn.Close)

	db := conn.DB()
	if err := bootstrap.InitializeSchema(ctx, db); err != nil {
		return services.Repositories{}, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return services.Repositories{
		Tx:     persistence.NewTransactionManager(db),
		Schema: persistence.NewSchemaRepository(db),
		Rows:   persistence.NewRowRepository(db),
		Rules:  persistence.NewRuleRepository(db),
		Grants: persistence.NewGrantRepository(db),
		Audit:  persistence.NewAuditRepository(db),
	}, nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			zap.L().Warn("⚠️ Close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
