package memory

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.Transactor       = (*Store)(nil)
	_ ports.SchemaRepository = (*Store)(nil)
	_ ports.RowRepository    = (*Store)(nil)
	_ ports.RuleRepository   = (*Store)(nil)
	_ ports.GrantRepository  = (*Store)(nil)
	_ ports.AuditSink        = (*Store)(nil)
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func seedTable(t *testing.T, s *Store) *models.Table {
	t.Helper()
	ctx := context.Background()
	db := &models.Database{TenantID: "t1", Name: "crm"}
	require.NoError(t, s.CreateDatabase(ctx, db))
	table := &models.Table{TenantID: "t1", DatabaseID: db.ID, Name: "deals"}
	require.NoError(t, s.CreateTable(ctx, table))
	for i, c := range []models.Column{
		{Name: "name", Type: constants.ColumnTypeText, Order: 1},
		{Name: "amount", Type: constants.ColumnTypeNumber, Order: 0},
	} {
		c.TableID = table.ID
		require.NoError(t, s.CreateColumn(ctx, &c), i)
	}
	out, err := s.GetTable(ctx, table.ID)
	require.NoError(t, err)
	return out
}

func TestStore_ColumnsOrdered(t *testing.T) {
	s := NewStore()
	table := seedTable(t, s)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "amount", table.Columns[0].Name)
	assert.Equal(t, "name", table.Columns[1].Name)
}

func TestStore_DuplicateNames(t *testing.T) {
	s := NewStore()
	table := seedTable(t, s)
	ctx := context.Background()

	err := s.CreateTable(ctx, &models.Table{TenantID: "t1", DatabaseID: table.DatabaseID, Name: "deals"})
	assert.True(t, apperrors.IsConflict(err))

	err = s.CreateColumn(ctx, &models.Column{TableID: table.ID, Name: "name", Type: constants.ColumnTypeText})
	assert.True(t, apperrors.IsConflict(err))
}

func TestStore_TransactionRollback(t *testing.T) {
	s := NewStore()
	table := seedTable(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		row := &models.Row{TableID: table.ID, TenantID: "t1", Cells: []models.Cell{{ColumnID: table.Columns[0].ID, Value: "5"}}}
		require.NoError(t, s.CreateRow(ctx, row))

		got, err := s.GetRow(ctx, table.ID, row.ID)
		require.NoError(t, err)
		assert.Len(t, got.Cells, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.CountRows(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_NestedTransactionJoins(t *testing.T) {
	s := NewStore()
	seedTable(t, s)

	err := s.WithTransaction(context.Background(), func(ctx context.Context) error {
		return s.WithTransaction(ctx, func(ctx context.Context) error {
			return s.CreateDatabase(ctx, &models.Database{TenantID: "t1", Name: "second"})
		})
	})
	require.NoError(t, err)

	dbs, err := s.ListDatabases(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, dbs, 2)
}

func TestStore_ReplaceCellsAndDelete(t *testing.T) {
	s := NewStore()
	table := seedTable(t, s)
	ctx := context.Background()
	amount, name := table.Columns[0].ID, table.Columns[1].ID

	row := &models.Row{TableID: table.ID, TenantID: "t1", Cells: []models.Cell{{ColumnID: amount, Value: "5"}}}
	require.NoError(t, s.CreateRow(ctx, row))
	cellID := row.Cells[0].ID

	require.NoError(t, s.ReplaceCells(ctx, row.ID, []models.Cell{{ColumnID: amount, Value: "6"}, {ColumnID: name, Value: "x"}}, nil, testNow))
	got, err := s.GetRow(ctx, table.ID, row.ID)
	require.NoError(t, err)
	require.Len(t, got.Cells, 2)
	assert.Equal(t, cellID, got.Cells[0].ID)
	assert.Equal(t, "6", got.Cells[0].Value)
	assert.Equal(t, testNow, got.UpdatedAt)

	require.NoError(t, s.ReplaceCells(ctx, row.ID, nil, []int64{name}, testNow))
	got, err = s.GetRow(ctx, table.ID, row.ID)
	require.NoError(t, err)
	assert.Len(t, got.Cells, 1)

	assert.True(t, apperrors.IsNotFound(s.DeleteRow(ctx, table.ID+1, row.ID)))
	require.NoError(t, s.DeleteRow(ctx, table.ID, row.ID))
	_, err = s.GetRow(ctx, table.ID, row.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_DeleteTableCascades(t *testing.T) {
	s := NewStore()
	table := seedTable(t, s)
	ctx := context.Background()

	other := &models.Table{TenantID: "t1", DatabaseID: table.DatabaseID, Name: "contacts"}
	require.NoError(t, s.CreateTable(ctx, other))
	ref := &models.Column{TableID: other.ID, Name: "deal", Type: constants.ColumnTypeReference, ReferenceTableID: &table.ID}
	require.NoError(t, s.CreateColumn(ctx, ref))

	require.NoError(t, s.CreateRow(ctx, &models.Row{TableID: table.ID, TenantID: "t1"}))
	require.NoError(t, s.CreateGrant(ctx, &models.Grant{TenantID: "t1", UserID: "u1", ResourceType: constants.ResourceTable, ResourceID: table.ID, CanRead: true}))
	require.NoError(t, s.CreateGrant(ctx, &models.Grant{TenantID: "t1", UserID: "u1", ResourceType: constants.ResourceColumn, ResourceID: table.Columns[0].ID, TableID: table.ID}))
	require.NoError(t, s.CreateRule(ctx, &models.ValidationRule{TableID: table.ID, Name: "r", Condition: "true", Active: true}))

	require.NoError(t, s.DeleteTable(ctx, table.ID))

	n, _ := s.CountRows(ctx, "t1")
	assert.Zero(t, n)
	grants, _ := s.ListGrants(ctx, "t1", "")
	assert.Empty(t, grants)
	rules, _ := s.ListRules(ctx, table.ID, false)
	assert.Empty(t, rules)
	col, err := s.GetColumn(ctx, ref.ID)
	require.NoError(t, err)
	assert.Nil(t, col.ReferenceTableID)
}

func TestStore_QueryRows(t *testing.T) {
	s := NewStore()
	table := seedTable(t, s)
	ctx := context.Background()
	amount := table.Columns[0].ID

	for i := 1; i <= 30; i++ {
		row := &models.Row{TableID: table.ID, TenantID: "t1", Cells: []models.Cell{{ColumnID: amount, Value: strconv.Itoa(i)}}}
		require.NoError(t, s.CreateRow(ctx, row))
	}

	plan, err := filter.Compile(table, models.FilterPayload{
		Page: 2, PageSize: 5, SortBy: "id", SortOrder: "desc",
		Filters: []models.FilterConfig{{ID: "a", ColumnID: amount, Operator: constants.OpBetween, Value: 10, SecondValue: 25}},
	}, filter.Options{Now: testNow})
	require.NoError(t, err)

	rows, total, err := s.QueryRows(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 16, total)
	require.Len(t, rows, 5)
	assert.Equal(t, int64(20), rows[0].ID)
	assert.Equal(t, int64(16), rows[4].ID)
}

func TestStore_GrantsExpiry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	past, future := testNow.Add(-time.Minute), testNow.Add(48*time.Hour)

	for _, g := range []models.Grant{
		{TenantID: "t1", UserID: "u1", ResourceType: constants.ResourceDashboard, ResourceID: 9, CanRead: true, ExpiresAt: &past},
		{TenantID: "t1", UserID: "u1", ResourceType: constants.ResourceDashboard, ResourceID: 9, CanEdit: true, ExpiresAt: &future},
		{TenantID: "t1", UserID: "u1", ResourceType: constants.ResourceDashboard, ResourceID: 9, CanDelete: true, ExpiresAt: &testNow},
	} {
		g := g
		require.NoError(t, s.CreateGrant(ctx, &g))
	}

	active, err := s.ActiveGrants(ctx, "t1", "u1", constants.ResourceDashboard, 9, testNow)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].CanEdit)

	soon, err := s.ExpiringBetween(ctx, "t1", testNow, testNow.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Len(t, soon, 1)

	removed, err := s.DeleteExpired(ctx, constants.ResourceDashboard, testNow)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	removed, err = s.DeleteExpired(ctx, constants.ResourceDashboard, testNow)
	require.NoError(t, err)
	assert.Empty(t, removed)

	_, err = s.ActiveGrants(ctx, "t1", "u1", "widget", 9, testNow)
	assert.True(t, apperrors.IsValidation(err))
}

func TestStore_AuditRecords(t *testing.T) {
	s := NewStore().WithClock(func() time.Time { return testNow })
	require.NoError(t, s.Record(context.Background(), models.AuditRecord{Action: constants.AuditPermissionGranted}))

	records := s.AuditRecords()
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, testNow, records[0].CreatedAt)
}
