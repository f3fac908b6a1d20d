package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nexuscrm/tablestore/pkg/cache"
)

// Intervals of the housekeeping jobs
const (
	DefaultSweepInterval = time.Hour
	cachePurgeInterval   = time.Minute
	limiterCleanInterval = time.Minute
)

// WindowCleaner drops rate limit windows that have ended
type WindowCleaner interface {
	Cleanup() int
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// MaintenanceService runs the background jobs: the permission sweep, the
// filter cache purge and rate-limit window cleanup. Jobs run on cron
// goroutines and never on request paths.
type MaintenanceService struct {
	cron *cron.Cron
	jobs []job

	mu      sync.Mutex
	running bool
}

// NewMaintenanceService creates the scheduler. limiter may be nil when the
// limiter keeps no local state.
func NewMaintenanceService(perms *PermissionService, filterCache cache.FilterCache, limiter WindowCleaner, sweepInterval time.Duration) *MaintenanceService {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	ms := &MaintenanceService{}

	ms.jobs = append(ms.jobs, job{
		name:     "permission-sweep",
		interval: sweepInterval,
		run: func(ctx context.Context) error {
			_, err := perms.SweepExpiredGrants(ctx)
			return err
		},
	}, job{
		name:     "filter-cache-purge",
		interval: cachePurgeInterval,
		run: func(ctx context.Context) error {
			n, err := filterCache.PurgeExpired(ctx)
			if n > 0 {
				zap.L().Debug("🧽 Filter cache purged", zap.Int("entries", n))
			}
			return err
		},
	})
	if limiter != nil {
		ms.jobs = append(ms.jobs, job{
			name:     "rate-limit-cleanup",
			interval: limiterCleanInterval,
			run: func(context.Context) error {
				limiter.Cleanup()
				return nil
			},
		})
	}
	return ms
}

// Start schedules every job on a new scheduler. Calling Start while running
// is a no-op; Start after Stop schedules each job once again.
func (ms *MaintenanceService) Start() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.running {
		return nil
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, j := range ms.jobs {
		j := j
		schedule := fmt.Sprintf("@every %s", j.interval)
		if _, err := scheduler.AddFunc(schedule, func() { ms.runJob(context.Background(), j) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
	}
	scheduler.Start()
	ms.cron = scheduler
	ms.running = true
	zap.L().Info("⏰ Maintenance scheduler started", zap.Int("jobs", len(ms.jobs)))
	return nil
}

// Stop halts scheduling and waits for running jobs, up to ctx's deadline
func (ms *MaintenanceService) Stop(ctx context.Context) error {
	ms.mu.Lock()
	if !ms.running {
		ms.mu.Unlock()
		return nil
	}
	ms.running = false
	scheduler := ms.cron
	ms.mu.Unlock()

	done := scheduler.Stop()
	select {
	case <-done.Done():
		zap.L().Info("⏰ Maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs every job once, synchronously, and returns the first error
func (ms *MaintenanceService) RunNow(ctx context.Context) error {
	var first error
	for _, j := range ms.jobs {
		if err := ms.runJob(ctx, j); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ms *MaintenanceService) runJob(ctx context.Context, j job) error {
	start := time.Now()
	err := j.run(ctx)
	if err != nil {
		zap.L().Error("❌ Maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return err
	}
	zap.L().Debug("✅ Maintenance job finished", zap.String("job", j.name), zap.Duration("took", time.Since(start)))
	return nil
}
