package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexuscrm/tablestore/pkg/coerce"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/nexuscrm/tablestore/pkg/filter"
)

// Patterns for stored text that coerces cleanly. Encoded values are always
// in these shapes, so SQL guards and in-memory parsing agree.
const (
	numberPattern    = `^-{0,1}[0-9]+([.][0-9]+){0,1}$`
	datePattern      = `^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}[.][0-9]{3}Z$`
	referencePattern = `^[1-9][0-9]*$`
)

const (
	rowAlias  = "r"
	cellAlias = "c"
)

const (
	trueTokens  = "'true', '1', 'yes', 'y', 'on', 't'"
	falseTokens = "'false', '0', 'no', 'n', 'off', 'f'"
)

// RowsQuery is the pair of statements that answers a plan
type RowsQuery struct {
	Count QueryResult
	Page  QueryResult
}

// RowColumns are the row fields selected by Page, in scan order
var RowColumns = []string{constants.FieldID, constants.FieldTableID, constants.FieldCreatedAt, constants.FieldUpdatedAt}

// BuildRowsQuery translates a compiled plan into a COUNT and a page SELECT
// over the rows and cells tables.
func BuildRowsQuery(plan *filter.Plan) RowsQuery {
	where, params := planWhere(plan)

	count := From(constants.TableRows).As(rowAlias).
		Select("COUNT(*)").
		WhereRaw(where, params).
		Build()

	page := From(constants.TableRows).As(rowAlias).
		Select(RowColumns...).
		WhereRaw(where, params)
	applySort(page, plan.Sort)
	page.Limit(plan.PageSize).Offset(plan.Offset())

	return RowsQuery{Count: count, Page: page.Build()}
}

// CellsQuery selects the cells of the given rows
func CellsQuery(rowIDs []int64) QueryResult {
	ids := make([]interface{}, len(rowIDs))
	for i, id := range rowIDs {
		ids[i] = id
	}
	return From(constants.TableCells).
		Select(constants.FieldID, constants.FieldRowID, constants.FieldColumnID, constants.FieldValue).
		WhereIn(fmt.Sprintf("`%s`.`%s`", constants.TableCells, constants.FieldRowID), ids).
		OrderBy(constants.FieldRowID, "ASC").
		OrderBy(constants.FieldColumnID, "ASC").
		Build()
}

func planWhere(plan *filter.Plan) (string, []interface{}) {
	clauses := []string{fmt.Sprintf("`%s`.`%s` = ?", rowAlias, constants.FieldTableID)}
	params := []interface{}{plan.TableID}

	if plan.MatchNone {
		clauses = append(clauses, "1 = 0")
	}
	for i := range plan.Conditions {
		sql, p := conditionSQL(&plan.Conditions[i])
		clauses = append(clauses, sql)
		params = append(params, p...)
	}
	if plan.Search != nil && !plan.MatchNone {
		ids := make([]interface{}, len(plan.Search.ColumnIDs))
		for i, id := range plan.Search.ColumnIDs {
			ids[i] = id
		}
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM `%s` AS `%s` WHERE `%s`.`%s` = `%s`.`%s` AND `%s`.`%s` IN (%s) AND LOWER(`%s`.`%s`) LIKE ?)",
			constants.TableCells, cellAlias,
			cellAlias, constants.FieldRowID, rowAlias, constants.FieldID,
			cellAlias, constants.FieldColumnID, Placeholders(len(ids)),
			cellAlias, constants.FieldValue))
		params = append(params, ids...)
		params = append(params, "%"+EscapeLike(plan.Search.Term)+"%")
	}
	return strings.Join(clauses, " AND "), params
}

// conditionSQL renders one condition as a correlated EXISTS over the row's
// cell for the column. Negation wraps the whole subquery so rows without a
// cell fall into the complement.
func conditionSQL(c *filter.Condition) (string, []interface{}) {
	pred, params := predicateSQL(c)
	exists := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM `%s` AS `%s` WHERE `%s`.`%s` = `%s`.`%s` AND `%s`.`%s` = ? AND %s)",
		constants.TableCells, cellAlias,
		cellAlias, constants.FieldRowID, rowAlias, constants.FieldID,
		cellAlias, constants.FieldColumnID, pred)
	if c.Negate {
		exists = "NOT " + exists
	}
	return exists, append([]interface{}{c.ColumnID}, params...)
}

func value() string {
	return fmt.Sprintf("`%s`.`%s`", cellAlias, constants.FieldValue)
}

func predicateSQL(c *filter.Condition) (string, []interface{}) {
	v := value()
	switch c.Kind {
	case filter.KindHasValue:
		if c.ColumnType == constants.ColumnTypeCustomArray {
			return fmt.Sprintf("TRIM(%s) <> '' AND TRIM(%s) <> '[]'", v, v), nil
		}
		return fmt.Sprintf("TRIM(%s) <> ''", v), nil
	case filter.KindTextContains:
		return fmt.Sprintf("LOWER(%s) LIKE ?", v), []interface{}{"%" + EscapeLike(c.Text) + "%"}
	case filter.KindTextPrefix:
		return fmt.Sprintf("LOWER(%s) LIKE ?", v), []interface{}{EscapeLike(c.Text) + "%"}
	case filter.KindTextSuffix:
		return fmt.Sprintf("LOWER(%s) LIKE ?", v), []interface{}{"%" + EscapeLike(c.Text)}
	case filter.KindTextEquals:
		return fmt.Sprintf("LOWER(%s) = ?", v), []interface{}{c.Text}
	case filter.KindTextRegex:
		return fmt.Sprintf("REGEXP_LIKE(%s, ?, 'i')", v), []interface{}{c.Source}
	case filter.KindNumberEquals:
		return numberGuard(v) + " = ?", []interface{}{c.Number}
	case filter.KindNumberGreater:
		return numberGuard(v) + " > ?", []interface{}{c.Number}
	case filter.KindNumberLess:
		return numberGuard(v) + " < ?", []interface{}{c.Number}
	case filter.KindNumberRange:
		return numberGuard(v) + " BETWEEN ? AND ?", []interface{}{c.Number, c.NumberTo}
	case filter.KindBoolEquals:
		tokens := falseTokens
		if c.Bool {
			tokens = trueTokens
		}
		return fmt.Sprintf("LOWER(TRIM(%s)) IN (%s)", v, tokens), nil
	case filter.KindRefEquals:
		return fmt.Sprintf("TRIM(%s) = ?", v), []interface{}{strconv.FormatInt(c.Ref, 10)}
	case filter.KindArrayContains:
		items, _ := json.Marshal(c.Items)
		return fmt.Sprintf("JSON_VALID(%s) AND JSON_CONTAINS(%s, ?)", v, v), []interface{}{string(items)}
	case filter.KindDateRange:
		parts := []string{fmt.Sprintf("%s REGEXP '%s'", v, datePattern)}
		var params []interface{}
		if c.From != nil {
			parts = append(parts, fmt.Sprintf("%s >= ?", v))
			params = append(params, coerce.FormatDate(*c.From))
		}
		if c.To != nil {
			parts = append(parts, fmt.Sprintf("%s < ?", v))
			params = append(params, coerce.FormatDate(*c.To))
		}
		return strings.Join(parts, " AND "), params
	}
	return "1 = 0", nil
}

// numberGuard yields the numeric value of a cell, or NULL for text that is
// not a number. NULL never satisfies a comparison.
func numberGuard(v string) string {
	return fmt.Sprintf("(CASE WHEN TRIM(%s) REGEXP '%s' THEN CAST(TRIM(%s) AS DECIMAL(65,10)) END)", v, numberPattern, v)
}

// sortKeySQL mirrors filter.SortKey: NULL for cells without a usable value.
func sortKeySQL(columnType string) string {
	v := value()
	switch columnType {
	case constants.ColumnTypeNumber:
		return numberGuard(v)
	case constants.ColumnTypeBoolean:
		return fmt.Sprintf("(CASE WHEN LOWER(TRIM(%s)) IN (%s) THEN 1 WHEN LOWER(TRIM(%s)) IN (%s) THEN 0 END)", v, trueTokens, v, falseTokens)
	case constants.ColumnTypeDate:
		return fmt.Sprintf("(CASE WHEN %s REGEXP '%s' THEN %s END)", v, datePattern, v)
	case constants.ColumnTypeReference:
		return fmt.Sprintf("(CASE WHEN TRIM(%s) REGEXP '%s' THEN CAST(TRIM(%s) AS SIGNED) END)", v, referencePattern, v)
	}
	return fmt.Sprintf("(CASE WHEN TRIM(%s) <> '' THEN LOWER(%s) END)", v, v)
}

func applySort(b *Builder, s filter.Sort) {
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	if s.ColumnID == 0 {
		b.OrderBy(constants.FieldID, dir)
		return
	}
	key := fmt.Sprintf("(SELECT %s FROM `%s` AS `%s` WHERE `%s`.`%s` = `%s`.`%s` AND `%s`.`%s` = ?)",
		sortKeySQL(s.ColumnType),
		constants.TableCells, cellAlias,
		cellAlias, constants.FieldRowID, rowAlias, constants.FieldID,
		cellAlias, constants.FieldColumnID)
	b.OrderByRaw(key+" IS NULL", s.ColumnID)
	b.OrderByRaw(key+" "+dir, s.ColumnID)
	b.OrderBy(constants.FieldID, "ASC")
}

// EscapeLike escapes LIKE wildcards in a literal term
func EscapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
