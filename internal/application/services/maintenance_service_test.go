package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/cache"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	calls atomic.Int32
}

func (c *fakeCleaner) Cleanup() int {
	c.calls.Add(1)
	return 0
}

func TestMaintenanceService_RunNow(t *testing.T) {
	env := newTestEnv(t, StaticPlanLimits{})
	ctx := context.Background()
	db := env.database(t, "crm")
	table := env.table(t, db.ID, "deals", models.ColumnInput{Name: "title"})

	_, err := env.sm.Permissions.GrantPermission(ctx, env.admin, models.GrantRequest{
		UserID: env.user.ID, ResourceType: constants.ResourceTable, ResourceID: table.ID,
		CanRead: true, ExpiresAt: expiresIn(baseTime, time.Minute),
	})
	require.NoError(t, err)
	key := seedCache(t, env, table, models.FilterPayload{})
	require.True(t, cached(t, env, key))

	cleaner := &fakeCleaner{}
	ms := NewMaintenanceService(env.sm.Permissions, env.cache, cleaner, 0)

	env.clock.Advance(cache.DefaultTTL + time.Minute)
	require.NoError(t, ms.RunNow(ctx))

	grants, err := env.sm.Permissions.ListGrants(ctx, testTenant, "")
	require.NoError(t, err)
	assert.Empty(t, grants)
	assert.Zero(t, env.cache.Len(ctx))
	assert.Equal(t, int32(1), cleaner.calls.Load())
}

func TestMaintenanceService_StartStop(t *testing.T) {
	env := newTestEnv(t, StaticPlanLimits{})
	ms := NewMaintenanceService(env.sm.Permissions, env.cache, nil, time.Hour)

	require.NoError(t, ms.Start())
	require.NoError(t, ms.Start())
	assert.Len(t, ms.cron.Entries(), len(ms.jobs))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ms.Stop(ctx))
	require.NoError(t, ms.Stop(ctx))

	t.Run("restart schedules each job once", func(t *testing.T) {
		require.NoError(t, ms.Start())
		assert.Len(t, ms.cron.Entries(), len(ms.jobs))
		require.NoError(t, ms.Stop(ctx))
	})
}

func TestServiceManager_Maintenance(t *testing.T) {
	env := newTestEnv(t, StaticPlanLimits{})
	require.NotNil(t, env.sm.Maintenance)
	assert.NoError(t, env.sm.Maintenance.RunNow(context.Background()))
}
