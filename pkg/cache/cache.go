// Package cache stores filtered row pages keyed by a fingerprint of the
// request. Entries hold raw rows; per-user projection happens after a hit,
// so one entry can serve every caller who asked the same question.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/filter"
	"golang.org/x/crypto/blake2b"
)

// Defaults for the filter result cache
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 1000
)

// Eviction reasons reported to metrics
const (
	ReasonTTL      = "ttl"
	ReasonCapacity = "capacity"
	ReasonTable    = "table"
	ReasonColumns  = "columns"
	ReasonStale    = "stale"
)

// Entry is one cached page. Entries must not be mutated after Set.
type Entry struct {
	Rows       []models.Row      `json:"rows"`
	Pagination models.Pagination `json:"pagination"`
	InsertedAt time.Time         `json:"insertedAt"`
	FilterHash string            `json:"filterHash"`
	TableID    int64             `json:"tableId"`
	// ColumnIDs are the columns the entry's filters test.
	ColumnIDs    []int64 `json:"columnIds"`
	SortColumnID int64   `json:"sortColumnId"`
	GlobalSearch bool    `json:"globalSearch"`
	// Generation is the table generation read before the rows were queried.
	Generation int64 `json:"generation"`
}

// Touches reports whether a change to any of columnIDs can alter the entry.
// Entries built with a global search depend on every text column.
func (e *Entry) Touches(columnIDs []int64) bool {
	if e.GlobalSearch {
		return true
	}
	for _, id := range columnIDs {
		if id == e.SortColumnID || slices.Contains(e.ColumnIDs, id) {
			return true
		}
	}
	return false
}

// FilterCache is the result cache used by the query path
type FilterCache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Set stores entry unless the table was invalidated after entry.Generation
	// was read, in which case the entry is dropped.
	Set(ctx context.Context, key string, entry *Entry) error
	// Generation returns the table's invalidation counter
	Generation(ctx context.Context, tableID int64) (int64, error)
	// InvalidateTable removes every entry of the table
	InvalidateTable(ctx context.Context, tableID int64) (int, error)
	// InvalidateFilters removes the table's entries whose filters, sort or
	// search depend on any of the given columns
	InvalidateFilters(ctx context.Context, tableID int64, columnIDs []int64) (int, error)
	// PurgeExpired drops entries past their TTL
	PurgeExpired(ctx context.Context) (int, error)
	Len(ctx context.Context) int
}

type keyPayload struct {
	TableID       int64                 `json:"t"`
	Filters       []models.FilterConfig `json:"f"`
	Search        string                `json:"q"`
	SearchColumns []int64               `json:"qc,omitempty"`
	SortBy        string                `json:"s"`
	SortOrder     string                `json:"o"`
	Page          int                   `json:"p"`
	PageSize      int                   `json:"n"`
	// Windows are the resolved bounds of date conditions; relative
	// operators such as today move with the clock.
	Windows []keyWindow `json:"w,omitempty"`
}

type keyWindow struct {
	FilterID string `json:"i"`
	ColumnID int64  `json:"c"`
	From     *int64 `json:"f,omitempty"`
	To       *int64 `json:"t,omitempty"`
}

func unixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// Key fingerprints a compiled plan. Plans carry canonical filter order and
// defaulted paging, so requests that differ only in filter order or search
// whitespace map to the same key. Date conditions contribute the window they
// resolved to, so a relative filter gets a new key when its window moves.
func Key(plan *filter.Plan) string {
	payload := keyPayload{
		TableID:   plan.TableID,
		Filters:   plan.Filters,
		SortBy:    plan.SortBy,
		SortOrder: plan.SortOrder,
		Page:      plan.Page,
		PageSize:  plan.PageSize,
	}
	if plan.Search != nil {
		payload.Search = plan.Search.Term
		payload.SearchColumns = plan.Search.ColumnIDs
	}
	if payload.Filters == nil {
		payload.Filters = []models.FilterConfig{}
	}
	for _, cond := range plan.Conditions {
		if cond.Kind != filter.KindDateRange {
			continue
		}
		payload.Windows = append(payload.Windows, keyWindow{
			FilterID: cond.FilterID,
			ColumnID: cond.ColumnID,
			From:     unixMilli(cond.From),
			To:       unixMilli(cond.To),
		})
	}
	return hash(payload)
}

// FilterSetHash hashes only the canonical filter list of a plan
func FilterSetHash(filters []models.FilterConfig) string {
	if filters == nil {
		filters = []models.FilterConfig{}
	}
	return hash(filter.CanonicalFilters(filters))
}

// NewEntry builds the cache entry for a plan's result page. The caller sets
// Generation when the page was read concurrently with writes.
func NewEntry(plan *filter.Plan, rows []models.Row, pagination models.Pagination, now time.Time) *Entry {
	return &Entry{
		Rows:         rows,
		Pagination:   pagination,
		InsertedAt:   now,
		FilterHash:   FilterSetHash(plan.Filters),
		TableID:      plan.TableID,
		ColumnIDs:    plan.FilterColumnIDs(),
		SortColumnID: plan.Sort.ColumnID,
		GlobalSearch: plan.Search != nil,
	}
}

func hash(v any) string {
	b, _ := json.Marshal(v)
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}
