package services

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type permFixture struct {
	env    *testEnv
	table  *models.Table
	public *models.Table
}

func newPermFixture(t *testing.T) *permFixture {
	t.Helper()
	env := newTestEnv(t, StaticPlanLimits{})
	db := env.database(t, "crm")
	table := env.table(t, db.ID, "salaries",
		models.ColumnInput{Name: "employee"},
		models.ColumnInput{Name: "amount", Type: "number"},
	)

	public, err := env.sm.Schema.CreateTable(context.Background(), testTenant, db.ID, models.TableInput{Name: "holidays", IsPublic: true}, env.admin.ID)
	require.NoError(t, err)
	return &permFixture{env: env, table: table, public: public}
}

func (f *permFixture) grant(t *testing.T, req models.GrantRequest) *models.Grant {
	t.Helper()
	g, err := f.env.sm.Permissions.GrantPermission(context.Background(), f.env.admin, req)
	require.NoError(t, err)
	return g
}

func (f *permFixture) allowed(t *testing.T, resourceType string, resourceID int64, action string) bool {
	t.Helper()
	ok, err := f.env.sm.Permissions.AuthorizeUser(context.Background(), f.env.user, resourceType, resourceID, action)
	require.NoError(t, err)
	return ok
}

func expiresIn(now time.Time, d time.Duration) *time.Time {
	at := now.Add(d)
	return &at
}

func TestPermissionService_TableGrants(t *testing.T) {
	f := newPermFixture(t)
	user := f.env.user

	assert.False(t, f.allowed(t, constants.ResourceTable, f.table.ID, constants.ActionRead))
	assert.True(t, f.allowed(t, constants.ResourceTable, f.public.ID, constants.ActionRead))
	assert.False(t, f.allowed(t, constants.ResourceTable, f.public.ID, constants.ActionEdit))

	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceTable, ResourceID: f.table.ID, CanRead: true})
	assert.True(t, f.allowed(t, constants.ResourceTable, f.table.ID, constants.ActionRead))
	assert.False(t, f.allowed(t, constants.ResourceTable, f.table.ID, constants.ActionDelete))

	assert.False(t, f.allowed(t, constants.ResourceTable, 9999, constants.ActionRead))

	err := f.env.sm.Permissions.RequireTable(context.Background(), user, f.table.ID, constants.ActionEdit)
	assert.True(t, apperrors.IsPermission(err), err)
}

func TestPermissionService_ExpiredGrantDeniesBeforeSweep(t *testing.T) {
	f := newPermFixture(t)
	user := f.env.user

	f.grant(t, models.GrantRequest{
		UserID: user.ID, ResourceType: constants.ResourceTable, ResourceID: f.table.ID,
		CanRead: true, ExpiresAt: expiresIn(baseTime, time.Hour),
	})
	assert.True(t, f.allowed(t, constants.ResourceTable, f.table.ID, constants.ActionRead))

	f.env.clock.Advance(time.Hour)
	assert.False(t, f.allowed(t, constants.ResourceTable, f.table.ID, constants.ActionRead))

	grants, err := f.env.sm.Permissions.ListGrants(context.Background(), testTenant, user.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1, "denied before the sweep removes it")
}

func TestPermissionService_ColumnGrantsOverrideTable(t *testing.T) {
	f := newPermFixture(t)
	ctx := context.Background()
	user := f.env.user
	employee, amount := column(t, f.table, "employee"), column(t, f.table, "amount")

	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceTable, ResourceID: f.table.ID, CanRead: true})
	g := f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceColumn, ResourceID: amount.ID, CanEdit: true})
	assert.Equal(t, f.table.ID, g.TableID)

	assert.True(t, f.allowed(t, constants.ResourceColumn, employee.ID, constants.ActionRead))
	assert.False(t, f.allowed(t, constants.ResourceColumn, amount.ID, constants.ActionRead))
	assert.True(t, f.allowed(t, constants.ResourceColumn, amount.ID, constants.ActionEdit))

	access, err := f.env.sm.Permissions.TableAccess(ctx, user, f.table)
	require.NoError(t, err)
	assert.True(t, access.CanRead)
	assert.True(t, access.ColumnReadable(employee.ID))
	assert.False(t, access.ColumnReadable(amount.ID))
}

func TestPermissionService_ColumnGrantWithoutTableGrant(t *testing.T) {
	f := newPermFixture(t)
	user := f.env.user
	amount := column(t, f.table, "amount")

	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceColumn, ResourceID: amount.ID, CanRead: true})

	access, err := f.env.sm.Permissions.TableAccess(context.Background(), user, f.table)
	require.NoError(t, err)
	assert.True(t, access.CanRead)
	assert.True(t, access.ColumnReadable(amount.ID))
	assert.False(t, access.ColumnReadable(column(t, f.table, "employee").ID))
}

func TestPermissionService_TenantAdmin(t *testing.T) {
	f := newPermFixture(t)
	ctx := context.Background()
	admin := f.env.admin

	ok, err := f.env.sm.Permissions.AuthorizeUser(ctx, admin, constants.ResourceTable, f.table.ID, constants.ActionDelete)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.env.sm.Permissions.AuthorizeUser(ctx, admin, constants.ResourceColumn, column(t, f.table, "amount").ID, constants.ActionEdit)
	require.NoError(t, err)
	assert.True(t, ok)

	outsider := &models.UserSession{ID: "admin-2", TenantID: "tenant-2", IsTenantAdmin: true}
	ok, err = f.env.sm.Permissions.AuthorizeUser(ctx, outsider, constants.ResourceTable, f.table.ID, constants.ActionRead)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, f.env.sm.Permissions.RequireAdmin(admin))
	assert.True(t, apperrors.IsPermission(f.env.sm.Permissions.RequireAdmin(f.env.user)))
}

func TestPermissionService_AuthorizeValidation(t *testing.T) {
	f := newPermFixture(t)
	ctx := context.Background()

	_, err := f.env.sm.Permissions.Authorize(ctx, models.AuthorizeRequest{UserID: "u", TenantID: testTenant, ResourceType: "report", ResourceID: 1, Action: "read"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.env.sm.Permissions.Authorize(ctx, models.AuthorizeRequest{UserID: "u", TenantID: testTenant, ResourceType: "table", ResourceID: 1, Action: "admin"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestPermissionService_GrantValidation(t *testing.T) {
	f := newPermFixture(t)
	ctx := context.Background()
	admin := f.env.admin

	tests := []struct {
		name  string
		req   models.GrantRequest
		check func(error) bool
	}{
		{"no flags", models.GrantRequest{UserID: "u", ResourceType: "table", ResourceID: f.table.ID}, apperrors.IsValidation},
		{"expiry in the past", models.GrantRequest{UserID: "u", ResourceType: "table", ResourceID: f.table.ID, CanRead: true, ExpiresAt: expiresIn(baseTime, -time.Minute)}, apperrors.IsValidation},
		{"unknown type", models.GrantRequest{UserID: "u", ResourceType: "report", ResourceID: 1, CanRead: true}, apperrors.IsValidation},
		{"unknown table", models.GrantRequest{UserID: "u", ResourceType: "table", ResourceID: 9999, CanRead: true}, apperrors.IsNotFound},
		{"unknown column", models.GrantRequest{UserID: "u", ResourceType: "column", ResourceID: 9999, CanRead: true}, apperrors.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.sm.Permissions.GrantPermission(ctx, admin, tt.req)
			assert.True(t, tt.check(err), err)
		})
	}
	assert.Empty(t, f.env.store.AuditRecords())
}

func TestPermissionService_GrantAndRevokeAreAudited(t *testing.T) {
	f := newPermFixture(t)
	ctx := context.Background()

	g := f.grant(t, models.GrantRequest{UserID: f.env.user.ID, ResourceType: constants.ResourceTable, ResourceID: f.table.ID, CanRead: true, CanEdit: true})

	outsider := &models.UserSession{ID: "admin-2", TenantID: "tenant-2", IsTenantAdmin: true}
	err := f.env.sm.Permissions.RevokePermission(ctx, outsider, constants.ResourceTable, g.ID)
	assert.True(t, apperrors.IsNotFound(err), err)

	require.NoError(t, f.env.sm.Permissions.RevokePermission(ctx, f.env.admin, constants.ResourceTable, g.ID))
	assert.False(t, f.allowed(t, constants.ResourceTable, f.table.ID, constants.ActionRead))

	records := f.env.store.AuditRecords()
	require.Len(t, records, 2)
	assert.Equal(t, constants.AuditPermissionGranted, records[0].Action)
	assert.Equal(t, constants.AuditPermissionRevoked, records[1].Action)
	for _, r := range records {
		assert.Equal(t, f.env.admin.ID, r.ActorID)
		assert.Equal(t, f.env.user.ID, r.UserID)
		assert.Equal(t, constants.ResourceTable, r.ResourceType)
	}
}

func TestPermissionService_SweepExpiredGrants(t *testing.T) {
	f := newPermFixture(t)
	ctx := context.Background()
	user := f.env.user
	amount := column(t, f.table, "amount")

	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceTable, ResourceID: f.table.ID, CanRead: true, ExpiresAt: expiresIn(baseTime, time.Hour)})
	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceTable, ResourceID: f.public.ID, CanEdit: true})
	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceColumn, ResourceID: amount.ID, CanRead: true, ExpiresAt: expiresIn(baseTime, 2*time.Hour)})
	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceDashboard, ResourceID: 7, CanRead: true, ExpiresAt: expiresIn(baseTime, 48*time.Hour)})
	granted := len(f.env.store.AuditRecords())

	f.env.clock.Advance(3 * time.Hour)
	result, err := f.env.sm.Permissions.SweepExpiredGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SweepResult{TablePermissions: 1, ColumnPermissions: 1}, result)

	expired := f.env.store.AuditRecords()[granted:]
	require.Len(t, expired, 2)
	for _, r := range expired {
		assert.Equal(t, constants.AuditPermissionExpired, r.Action)
		assert.Equal(t, "system", r.ActorID)
	}

	again, err := f.env.sm.Permissions.SweepExpiredGrants(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Total())
	assert.Len(t, f.env.store.AuditRecords(), granted+2)

	remaining, err := f.env.sm.Permissions.ListGrants(ctx, testTenant, "")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestPermissionService_ListExpiringSoon(t *testing.T) {
	f := newPermFixture(t)
	ctx := context.Background()
	user := f.env.user

	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceTable, ResourceID: f.table.ID, CanRead: true, ExpiresAt: expiresIn(baseTime, 24*time.Hour)})
	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceTable, ResourceID: f.public.ID, CanRead: true, ExpiresAt: expiresIn(baseTime, 10*24*time.Hour)})
	f.grant(t, models.GrantRequest{UserID: user.ID, ResourceType: constants.ResourceDashboard, ResourceID: 3, CanRead: true})

	soon, err := f.env.sm.Permissions.ListExpiringSoon(ctx, testTenant, 7)
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, f.table.ID, soon[0].ResourceID)

	all, err := f.env.sm.Permissions.ListExpiringSoon(ctx, testTenant, 30)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := f.env.sm.Permissions.ListExpiringSoon(ctx, "tenant-2", 30)
	require.NoError(t, err)
	assert.Empty(t, other)

	widest, err := f.env.sm.Permissions.ListExpiringSoon(ctx, testTenant, MaxExpiringWindowDays)
	require.NoError(t, err)
	assert.Len(t, widest, 2)

	for _, days := range []int{0, -1, MaxExpiringWindowDays + 1, 1 << 40} {
		_, err := f.env.sm.Permissions.ListExpiringSoon(ctx, testTenant, days)
		assert.True(t, apperrors.IsValidation(err), days)
	}
}
