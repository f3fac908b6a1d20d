package filter

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/coerce"
	"github.com/nexuscrm/tablestore/pkg/constants"
)

// Match reports whether row satisfies every condition and the search.
func (p *Plan) Match(row *models.Row) bool {
	if p.MatchNone {
		return false
	}
	values := row.Values()
	for i := range p.Conditions {
		if !p.Conditions[i].Match(values) {
			return false
		}
	}
	if p.Search != nil {
		found := false
		for _, id := range p.Search.ColumnIDs {
			if v, ok := values[id]; ok && strings.Contains(strings.ToLower(v), p.Search.Term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Match evaluates the condition against a row's stored values.
func (c *Condition) Match(values map[int64]string) bool {
	v, ok := values[c.ColumnID]
	hit := ok && c.positive(v)
	if c.Negate {
		return !hit
	}
	return hit
}

func (c *Condition) positive(v string) bool {
	switch c.Kind {
	case KindHasValue:
		return !coerce.IsEmpty(c.ColumnType, v)
	case KindTextContains:
		return strings.Contains(strings.ToLower(v), c.Text)
	case KindTextEquals:
		return strings.ToLower(v) == c.Text
	case KindTextPrefix:
		return strings.HasPrefix(strings.ToLower(v), c.Text)
	case KindTextSuffix:
		return strings.HasSuffix(strings.ToLower(v), c.Text)
	case KindTextRegex:
		return c.Pattern.MatchString(v)
	case KindNumberEquals, KindNumberGreater, KindNumberLess, KindNumberRange:
		n, ok := coerce.ParseNumber(v)
		if !ok {
			return false
		}
		switch c.Kind {
		case KindNumberEquals:
			return n == c.Number
		case KindNumberGreater:
			return n > c.Number
		case KindNumberLess:
			return n < c.Number
		}
		return n >= c.Number && n <= c.NumberTo
	case KindBoolEquals:
		b, ok := coerce.ParseBool(v)
		return ok && b == c.Bool
	case KindDateRange:
		t, _, ok := coerce.ParseDate(v)
		if !ok {
			return false
		}
		t = t.Truncate(time.Millisecond)
		if c.From != nil && t.Before(*c.From) {
			return false
		}
		if c.To != nil && !t.Before(*c.To) {
			return false
		}
		return true
	case KindRefEquals:
		id, ok := coerce.ParseReference(v)
		return ok && id == c.Ref
	case KindArrayContains:
		items, ok := coerce.ParseArray(v)
		if !ok {
			return false
		}
		for _, want := range c.Items {
			if !slices.Contains(items, want) {
				return false
			}
		}
		return true
	}
	return false
}

// SortRows orders rows by the plan's sort. Rows without a value come last
// in either direction; ties fall back to ascending row id.
func (p *Plan) SortRows(rows []models.Row) {
	if p.Sort.ColumnID == 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			if p.Sort.Desc {
				return rows[i].ID > rows[j].ID
			}
			return rows[i].ID < rows[j].ID
		})
		return
	}

	keys := make(map[int64]any, len(rows))
	for i := range rows {
		if cell, ok := rows[i].Cell(p.Sort.ColumnID); ok {
			keys[rows[i].ID] = SortKey(p.Sort.ColumnType, cell.Value)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := keys[rows[i].ID], keys[rows[j].ID]
		switch {
		case a == nil && b == nil:
			return rows[i].ID < rows[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		}
		cmp := compareKeys(a, b)
		if cmp == 0 {
			return rows[i].ID < rows[j].ID
		}
		if p.Sort.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// SortKey returns the comparable value of stored text, or nil when the
// text has no value for the column type.
func SortKey(columnType, v string) any {
	if coerce.IsEmpty(columnType, v) {
		return nil
	}
	switch columnType {
	case constants.ColumnTypeText:
		return strings.ToLower(v)
	case constants.ColumnTypeBoolean:
		b, ok := coerce.ParseBool(v)
		if !ok {
			return nil
		}
		if b {
			return float64(1)
		}
		return float64(0)
	case constants.ColumnTypeReference:
		id, ok := coerce.ParseReference(v)
		if !ok {
			return nil
		}
		return float64(id)
	}
	return coerce.Decode(columnType, v)
}

func compareKeys(a, b any) int {
	switch av := a.(type) {
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		return av.Compare(b.(time.Time))
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}
