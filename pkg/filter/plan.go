// Package filter validates a filter payload against a table's columns and
// compiles it into a Plan. A Plan can be evaluated in memory or translated
// into SQL by pkg/query; both must agree on the semantics defined here.
package filter

import (
	"regexp"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
)

// Kind is the positive predicate a condition tests. Negated operators reuse
// the positive kind with Negate set, so a negated condition is the exact
// complement of its positive form and matches rows without a cell.
type Kind string

const (
	KindHasValue      Kind = "has_value"
	KindTextContains  Kind = "text_contains"
	KindTextEquals    Kind = "text_equals"
	KindTextPrefix    Kind = "text_prefix"
	KindTextSuffix    Kind = "text_suffix"
	KindTextRegex     Kind = "text_regex"
	KindNumberEquals  Kind = "number_equals"
	KindNumberGreater Kind = "number_greater"
	KindNumberLess    Kind = "number_less"
	KindNumberRange   Kind = "number_range"
	KindBoolEquals    Kind = "bool_equals"
	KindDateRange     Kind = "date_range"
	KindRefEquals     Kind = "ref_equals"
	KindArrayContains Kind = "array_contains"
)

// Condition is one compiled filter.
type Condition struct {
	FilterID   string
	ColumnID   int64
	ColumnType string
	Operator   string
	Kind       Kind
	Negate     bool

	// Text is the lower-cased term of text kinds.
	Text    string
	Pattern *regexp.Regexp
	// Source is the user-supplied regex pattern.
	Source string

	Number   float64
	NumberTo float64

	Bool  bool
	Ref   int64
	Items []string

	// From and To bound a date range as [From, To). nil is unbounded.
	From *time.Time
	To   *time.Time
}

// Search is a case-insensitive contains over the listed text columns.
type Search struct {
	Term      string
	ColumnIDs []int64
}

// Sort orders rows. ColumnID 0 sorts by row id.
type Sort struct {
	ColumnID   int64
	ColumnType string
	Desc       bool
}

// Plan is a validated request ready to run against a store.
type Plan struct {
	TableID    int64
	Conditions []Condition
	Search     *Search
	// MatchNone is set when a search was requested but no column can satisfy it.
	MatchNone bool
	Sort      Sort
	Page      int
	PageSize  int

	// Filters is the request's filter list in canonical order.
	Filters []models.FilterConfig
	// SearchTerm is the trimmed, original-case global search.
	SearchTerm string
	SortBy     string
	SortOrder  string
}

// Offset is the number of rows to skip for the requested page.
func (p *Plan) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ColumnIDs returns every column the plan filters or sorts on.
func (p *Plan) ColumnIDs() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, c := range p.Conditions {
		add(c.ColumnID)
	}
	add(p.Sort.ColumnID)
	return out
}

// FilterColumnIDs returns the columns referenced by conditions only.
func (p *Plan) FilterColumnIDs() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, c := range p.Conditions {
		if _, ok := seen[c.ColumnID]; ok {
			continue
		}
		seen[c.ColumnID] = struct{}{}
		out = append(out, c.ColumnID)
	}
	return out
}
