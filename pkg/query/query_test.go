package query

import (
	"strings"
	"testing"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/nexuscrm/tablestore/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *models.Table {
	return &models.Table{
		ID: 4,
		Columns: []models.Column{
			{ID: 11, Name: "name", Type: constants.ColumnTypeText},
			{ID: 12, Name: "amount", Type: constants.ColumnTypeNumber},
			{ID: 13, Name: "due", Type: constants.ColumnTypeDate},
			{ID: 14, Name: "tags", Type: constants.ColumnTypeCustomArray},
			{ID: 15, Name: "active", Type: constants.ColumnTypeBoolean},
			{ID: 16, Name: "owner", Type: constants.ColumnTypeReference},
		},
	}
}

func mustPlan(t *testing.T, payload models.FilterPayload) *filter.Plan {
	t.Helper()
	plan, err := filter.Compile(testTable(), payload, filter.Options{
		Now:             time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		DefaultPageSize: 25,
		MaxPageSize:     100,
	})
	require.NoError(t, err)
	return plan
}

func TestBuilder_Select(t *testing.T) {
	q := From("tenant_tables").
		Select("id", "name").
		Where("`tenant_tables`.`database_id` = ?", int64(3)).
		OrderBy("name", "ASC").
		Limit(10).
		Build()

	assert.Equal(t, "SELECT `tenant_tables`.`id`, `tenant_tables`.`name` FROM `tenant_tables` WHERE `tenant_tables`.`database_id` = ? ORDER BY `tenant_tables`.`name` ASC LIMIT 10", q.SQL)
	assert.Equal(t, []interface{}{int64(3)}, q.Params)
}

func TestBuilder_InsertIsDeterministic(t *testing.T) {
	q := Insert("row_cells", map[string]interface{}{"value": "x", "column_id": 2, "row_id": 1}).Build()
	assert.Equal(t, "INSERT INTO `row_cells` (`column_id`, `row_id`, `value`) VALUES (?, ?, ?)", q.SQL)
	assert.Equal(t, []interface{}{2, 1, "x"}, q.Params)
}

func TestBuilder_UpdateAndDelete(t *testing.T) {
	q := Update("tenant_columns").Set(map[string]interface{}{"name": "n", "required": true}).Where("`id` = ?", 5).Build()
	assert.Equal(t, "UPDATE `tenant_columns` SET `name` = ?, `required` = ? WHERE `id` = ?", q.SQL)
	assert.Equal(t, []interface{}{"n", true, 5}, q.Params)

	d := Delete("row_cells").Where("`row_id` = ?", 9).Build()
	assert.Equal(t, "DELETE FROM `row_cells` WHERE `row_id` = ?", d.SQL)
}

func TestBuilder_WhereInEmpty(t *testing.T) {
	q := From("row_cells").WhereIn("`row_id`", nil).Build()
	assert.Contains(t, q.SQL, "WHERE 1 = 0")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now\\`, EscapeLike(`50% off_now\`))
}

func TestBuildRowsQuery_Defaults(t *testing.T) {
	q := BuildRowsQuery(mustPlan(t, models.FilterPayload{}))
	assert.Equal(t, "SELECT COUNT(*) FROM `table_rows` AS `r` WHERE `r`.`table_id` = ?", q.Count.SQL)
	assert.Equal(t, []interface{}{int64(4)}, q.Count.Params)
	assert.True(t, strings.HasSuffix(q.Page.SQL, "ORDER BY `r`.`id` ASC LIMIT 25 OFFSET 0"), q.Page.SQL)
}

func TestBuildRowsQuery_ParamsLineUp(t *testing.T) {
	plan := mustPlan(t, models.FilterPayload{
		Page:         2,
		PageSize:     10,
		GlobalSearch: "Acme",
		SortBy:       "12",
		SortOrder:    "desc",
		Filters: []models.FilterConfig{
			{ID: "a", ColumnID: 12, Operator: constants.OpBetween, Value: 20, SecondValue: 10},
			{ID: "b", ColumnID: 11, Operator: constants.OpNotContains, Value: "50%"},
		},
	})
	q := BuildRowsQuery(plan)

	assert.Equal(t, strings.Count(q.Page.SQL, "?"), len(q.Page.Params))
	assert.Equal(t, strings.Count(q.Count.SQL, "?"), len(q.Count.Params))
	assert.Equal(t, []interface{}{
		int64(4),
		int64(12), float64(10), float64(20),
		int64(11), `%50\%%`,
		int64(11), "%acme%",
		int64(12), int64(12),
	}, q.Page.Params)
	assert.Contains(t, q.Page.SQL, "NOT EXISTS (SELECT 1 FROM `row_cells`")
	assert.Contains(t, q.Page.SQL, "LIMIT 10 OFFSET 10")
	assert.Contains(t, q.Page.SQL, "IS NULL, ")
}

func TestBuildRowsQuery_MatchNone(t *testing.T) {
	table := &models.Table{ID: 4, Columns: []models.Column{{ID: 12, Type: constants.ColumnTypeNumber}}}
	plan, err := filter.Compile(table, models.FilterPayload{GlobalSearch: "x"}, filter.Options{})
	require.NoError(t, err)
	q := BuildRowsQuery(plan)
	assert.Contains(t, q.Count.SQL, "1 = 0")
	assert.NotContains(t, q.Count.SQL, "LIKE")
}

func TestBuildRowsQuery_EveryKindParses(t *testing.T) {
	v := NewVerifier(constants.TableRows, constants.TableCells)
	filters := []models.FilterConfig{
		{ID: "1", ColumnID: 11, Operator: constants.OpRegex, Value: "^a.*z$"},
		{ID: "2", ColumnID: 11, Operator: constants.OpStartsWith, Value: "a"},
		{ID: "3", ColumnID: 11, Operator: constants.OpIsEmpty},
		{ID: "4", ColumnID: 12, Operator: constants.OpGreaterThan, Value: 3},
		{ID: "5", ColumnID: 13, Operator: constants.OpThisMonth},
		{ID: "6", ColumnID: 13, Operator: constants.OpBefore, Value: "2026-01-01"},
		{ID: "7", ColumnID: 14, Operator: constants.OpContains, Value: "x"},
		{ID: "8", ColumnID: 14, Operator: constants.OpIsNotEmpty},
		{ID: "9", ColumnID: 15, Operator: constants.OpEquals, Value: true},
		{ID: "10", ColumnID: 16, Operator: constants.OpNotEquals, Value: 5},
	}
	for _, sortBy := range []string{"", "11", "12", "13", "15", "16"} {
		q := BuildRowsQuery(mustPlan(t, models.FilterPayload{Filters: filters, GlobalSearch: "q", SortBy: sortBy}))
		require.NoError(t, v.Verify(q.Count.SQL), q.Count.SQL)
		require.NoError(t, v.Verify(q.Page.SQL), q.Page.SQL)
	}
	require.NoError(t, v.Verify(CellsQuery([]int64{1, 2}).SQL))
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier(constants.TableRows, constants.TableCells)

	assert.Error(t, v.Verify("DELETE FROM `table_rows`"))
	assert.Error(t, v.Verify("SELECT 1 FROM `table_rows`; SELECT 2 FROM `table_rows`"))
	assert.Error(t, v.Verify("SELECT * FROM `audit_log`"))
	assert.Error(t, v.Verify("SELECT * FROM `table_rows` AS r WHERE r.id IN (SELECT user_id FROM table_permissions)"))
	assert.Error(t, v.Verify("SELEKT nonsense"))
	assert.NoError(t, v.Verify("SELECT `r`.`id` FROM `table_rows` AS `r` WHERE `r`.`table_id` = ?"))
}

func TestVerifier_Normalize(t *testing.T) {
	v := NewVerifier(constants.TableRows)
	a, err := v.Normalize("select id   from table_rows where table_id = 1")
	require.NoError(t, err)
	b, err := v.Normalize("SELECT `id` FROM `table_rows` WHERE `table_id`=1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
