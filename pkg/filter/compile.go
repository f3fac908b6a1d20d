package filter

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/coerce"
	"github.com/nexuscrm/tablestore/pkg/columntypes"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
)

// Options configures compilation
type Options struct {
	Now             time.Time
	DefaultPageSize int
	MaxPageSize     int
	// Readable reports whether the caller may read a column. nil allows all.
	Readable func(columnID int64) bool
}

const day = 24 * time.Hour

// Compile validates payload against table and returns the plan to execute.
// No store access happens here; every request error surfaces before a query runs.
func Compile(table *models.Table, payload models.FilterPayload, opts Options) (*Plan, error) {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = constants.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = constants.DefaultMaxPageSize
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	readable := opts.Readable
	if readable == nil {
		readable = func(int64) bool { return true }
	}

	page, pageSize, err := NormalizePage(payload.Page, payload.PageSize, opts.DefaultPageSize, opts.MaxPageSize)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		TableID:  table.ID,
		Page:     page,
		PageSize: pageSize,
	}

	if err := compileSort(plan, table, payload.SortBy, payload.SortOrder, readable); err != nil {
		return nil, err
	}

	plan.Filters = CanonicalFilters(payload.Filters)
	for _, fc := range plan.Filters {
		col, ok := table.Column(fc.ColumnID)
		if !ok {
			return nil, apperrors.NewValidationError("filters", fmt.Sprintf("column %d does not belong to table %d", fc.ColumnID, table.ID))
		}
		if !readable(col.ID) {
			return nil, apperrors.NewPermissionError(constants.ActionRead, "column")
		}
		cond, err := compileCondition(col, fc, opts.Now)
		if err != nil {
			return nil, err
		}
		plan.Conditions = append(plan.Conditions, cond)
	}

	plan.SearchTerm = strings.TrimSpace(payload.GlobalSearch)
	if plan.SearchTerm != "" {
		reg := columntypes.GetRegistry()
		search := &Search{Term: strings.ToLower(plan.SearchTerm)}
		for _, col := range table.Columns {
			if reg.IsSearchable(col.Type) && readable(col.ID) {
				search.ColumnIDs = append(search.ColumnIDs, col.ID)
			}
		}
		plan.Search = search
		plan.MatchNone = len(search.ColumnIDs) == 0
	}

	return plan, nil
}

// NormalizePage applies page defaults and bounds.
func NormalizePage(page, pageSize, defaultSize, maxSize int) (int, int, error) {
	if page < 0 {
		return 0, 0, apperrors.NewValidationError("page", "page must be 1 or greater")
	}
	if page == 0 {
		page = 1
	}
	if pageSize < 0 {
		return 0, 0, apperrors.NewValidationError("pageSize", "pageSize must be positive")
	}
	if pageSize == 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		return 0, 0, apperrors.NewPageSizeExceededError(pageSize, maxSize)
	}
	// the row offset must fit in an int
	if page-1 > math.MaxInt/pageSize {
		return 0, 0, apperrors.NewValidationError("page", fmt.Sprintf("page must not exceed %d", math.MaxInt/pageSize))
	}
	return page, pageSize, nil
}

// NormalizeSort returns the canonical sort column and direction.
func NormalizeSort(sortBy, sortOrder string) (string, string, error) {
	sortBy = strings.TrimSpace(sortBy)
	if sortBy == "" {
		sortBy = constants.SortByID
	}
	order := strings.ToLower(strings.TrimSpace(sortOrder))
	switch order {
	case "":
		order = constants.SortASC
	case constants.SortASC, constants.SortDESC:
	default:
		return "", "", apperrors.NewValidationError("sortOrder", "sortOrder must be 'asc' or 'desc'")
	}
	return sortBy, order, nil
}

func compileSort(plan *Plan, table *models.Table, sortBy, sortOrder string, readable func(int64) bool) error {
	by, order, err := NormalizeSort(sortBy, sortOrder)
	if err != nil {
		return err
	}
	plan.SortBy = by
	plan.SortOrder = order
	plan.Sort.Desc = order == constants.SortDESC
	if by == constants.SortByID {
		return nil
	}

	id, err := strconv.ParseInt(by, 10, 64)
	if err != nil {
		return apperrors.NewInvalidSortColumnError(by)
	}
	col, ok := table.Column(id)
	if !ok || !columntypes.GetRegistry().IsSortable(col.Type) {
		return apperrors.NewInvalidSortColumnError(by)
	}
	if !readable(col.ID) {
		return apperrors.NewPermissionError(constants.ActionRead, "column")
	}
	plan.Sort.ColumnID = col.ID
	plan.Sort.ColumnType = col.Type
	return nil
}

// CanonicalFilters returns a copy of filters in a stable order that does not
// depend on the order the caller listed them in.
func CanonicalFilters(filters []models.FilterConfig) []models.FilterConfig {
	out := make([]models.FilterConfig, len(filters))
	copy(out, filters)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.ColumnID != b.ColumnID {
			return a.ColumnID < b.ColumnID
		}
		if a.Operator != b.Operator {
			return a.Operator < b.Operator
		}
		av, bv := valueKey(a.Value), valueKey(b.Value)
		if av != bv {
			return av < bv
		}
		return valueKey(a.SecondValue) < valueKey(b.SecondValue)
	})
	return out
}

func valueKey(v any) string {
	if v == nil {
		return ""
	}
	return coerce.Stringify(v)
}

func missing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func compileCondition(col *models.Column, fc models.FilterConfig, now time.Time) (Condition, error) {
	if fc.ColumnType != "" && constants.NormalizeColumnType(fc.ColumnType) != col.Type {
		return Condition{}, apperrors.NewValidationError("columnType",
			fmt.Sprintf("column %d is of type %s, not %s", col.ID, col.Type, fc.ColumnType))
	}
	op := strings.TrimSpace(fc.Operator)
	if !columntypes.GetRegistry().SupportsOperator(col.Type, op) {
		return Condition{}, apperrors.NewInvalidOperatorError(col.ID, col.Type, fc.Operator)
	}

	cond := Condition{
		FilterID:   fc.ID,
		ColumnID:   col.ID,
		ColumnType: col.Type,
		Operator:   op,
	}

	switch op {
	case constants.OpIsEmpty:
		cond.Kind = KindHasValue
		cond.Negate = true
		return cond, nil
	case constants.OpIsNotEmpty:
		cond.Kind = KindHasValue
		return cond, nil
	case constants.OpBetween, constants.OpNotBetween:
		if missing(fc.Value) || missing(fc.SecondValue) {
			return Condition{}, apperrors.NewMissingRangeValueError(col.ID, op)
		}
		cond.Negate = op == constants.OpNotBetween
	case constants.OpToday, constants.OpYesterday, constants.OpThisWeek, constants.OpThisMonth, constants.OpThisYear:
		from, to := relativeWindow(op, now)
		cond.Kind = KindDateRange
		cond.From, cond.To = &from, &to
		return cond, nil
	default:
		if missing(fc.Value) {
			return Condition{}, apperrors.NewValidationError("value", fmt.Sprintf("operator '%s' requires a value", op))
		}
		cond.Negate = op == constants.OpNotContains || op == constants.OpNotEquals
	}

	var err error
	switch col.Type {
	case constants.ColumnTypeText:
		err = compileText(&cond, op, fc.Value)
	case constants.ColumnTypeNumber:
		err = compileNumber(&cond, op, fc.Value, fc.SecondValue)
	case constants.ColumnTypeBoolean:
		b, ok := coerce.ParseBool(coerce.Stringify(fc.Value))
		if !ok {
			err = apperrors.NewValidationError("value", "boolean filter needs true or false")
		}
		cond.Kind, cond.Bool = KindBoolEquals, b
	case constants.ColumnTypeDate:
		err = compileDate(&cond, op, fc.Value, fc.SecondValue)
	case constants.ColumnTypeReference:
		id, ok := coerce.ParseReference(coerce.Stringify(fc.Value))
		if !ok {
			err = apperrors.NewValidationError("value", "reference filter needs a row id")
		}
		cond.Kind, cond.Ref = KindRefEquals, id
	case constants.ColumnTypeCustomArray:
		cond.Kind = KindArrayContains
		cond.Items = coerce.ArrayItems(fc.Value)
		if len(cond.Items) == 0 {
			err = apperrors.NewValidationError("value", "array filter needs at least one value")
		}
	}
	if err != nil {
		return Condition{}, err
	}
	return cond, nil
}

func compileText(cond *Condition, op string, value any) error {
	term := coerce.Stringify(value)
	cond.Text = strings.ToLower(term)
	switch op {
	case constants.OpContains, constants.OpNotContains:
		cond.Kind = KindTextContains
	case constants.OpEquals, constants.OpNotEquals:
		cond.Kind = KindTextEquals
	case constants.OpStartsWith:
		cond.Kind = KindTextPrefix
	case constants.OpEndsWith:
		cond.Kind = KindTextSuffix
	case constants.OpRegex:
		re, err := regexp.Compile("(?i)" + term)
		if err != nil {
			return apperrors.NewValidationError("value", fmt.Sprintf("invalid regular expression: %v", err))
		}
		cond.Kind = KindTextRegex
		cond.Pattern = re
		cond.Source = term
		cond.Text = ""
	}
	return nil
}

func parseNumber(v any) (float64, error) {
	f, ok := coerce.ParseNumber(coerce.Stringify(v))
	if !ok {
		return 0, apperrors.NewValidationError("value", fmt.Sprintf("'%v' is not a number", v))
	}
	return f, nil
}

func compileNumber(cond *Condition, op string, value, second any) error {
	n, err := parseNumber(value)
	if err != nil {
		return err
	}
	cond.Number = n
	switch op {
	case constants.OpEquals, constants.OpNotEquals:
		cond.Kind = KindNumberEquals
	case constants.OpGreaterThan:
		cond.Kind = KindNumberGreater
	case constants.OpLessThan:
		cond.Kind = KindNumberLess
	case constants.OpBetween, constants.OpNotBetween:
		hi, err := parseNumber(second)
		if err != nil {
			return err
		}
		if hi < n {
			n, hi = hi, n
		}
		cond.Kind = KindNumberRange
		cond.Number, cond.NumberTo = n, hi
	}
	return nil
}

func parseDate(v any) (time.Time, bool, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), false, nil
	}
	t, dateOnly, ok := coerce.ParseDate(coerce.Stringify(v))
	if !ok {
		return time.Time{}, false, apperrors.NewValidationError("value", fmt.Sprintf("'%v' is not an ISO-8601 date", v))
	}
	return t, dateOnly, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ceilMs rounds t up to the millisecond precision values are stored with.
func ceilMs(t time.Time) time.Time {
	tr := t.Truncate(time.Millisecond)
	if tr.Equal(t) {
		return tr
	}
	return tr.Add(time.Millisecond)
}

func compileDate(cond *Condition, op string, value, second any) error {
	t, dateOnly, err := parseDate(value)
	if err != nil {
		return err
	}
	cond.Kind = KindDateRange
	var from, to time.Time
	switch op {
	case constants.OpEquals, constants.OpNotEquals:
		from = startOfDay(t)
		to = from.Add(day)
		cond.From, cond.To = &from, &to
	case constants.OpBefore:
		if dateOnly {
			to = startOfDay(t)
		} else {
			to = ceilMs(t)
		}
		cond.To = &to
	case constants.OpAfter:
		if dateOnly {
			from = startOfDay(t).Add(day)
		} else {
			from = t.Truncate(time.Millisecond).Add(time.Millisecond)
		}
		cond.From = &from
	case constants.OpBetween, constants.OpNotBetween:
		hi, hiDateOnly, err := parseDate(second)
		if err != nil {
			return err
		}
		lo, loDateOnly := t, dateOnly
		if hi.Before(lo) {
			lo, hi = hi, lo
			loDateOnly, hiDateOnly = hiDateOnly, loDateOnly
		}
		if loDateOnly {
			from = startOfDay(lo)
		} else {
			from = ceilMs(lo)
		}
		if hiDateOnly {
			to = startOfDay(hi).Add(day)
		} else {
			to = hi.Truncate(time.Millisecond).Add(time.Millisecond)
		}
		cond.From, cond.To = &from, &to
	}
	return nil
}

// relativeWindow returns [from, to) for a relative date operator in UTC.
// Weeks start on Monday.
func relativeWindow(op string, now time.Time) (time.Time, time.Time) {
	today := startOfDay(now)
	switch op {
	case constants.OpYesterday:
		return today.Add(-day), today
	case constants.OpThisWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case constants.OpThisMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	case constants.OpThisYear:
		start := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
	return today, today.Add(day)
}
