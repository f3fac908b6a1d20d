package services

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/cache"
	"github.com/nexuscrm/tablestore/pkg/coerce"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/filter"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/metrics"
	"go.uber.org/zap"
)

// Cache lookup results reported to metrics
const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"
)

// QueryConfig holds paging bounds and the clock relative date filters resolve against
type QueryConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	Now             func() time.Time
}

// QueryService answers filtered row listings. Results are cached as raw
// rows; column projection, coercion and reference expansion run per caller.
type QueryService struct {
	schema ports.SchemaRepository
	rows   ports.RowRepository
	perms  *PermissionService
	cache  cache.FilterCache
	config QueryConfig
}

// NewQueryService creates a new QueryService
func NewQueryService(schema ports.SchemaRepository, rows ports.RowRepository, perms *PermissionService, filterCache cache.FilterCache, config QueryConfig) *QueryService {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &QueryService{schema: schema, rows: rows, perms: perms, cache: filterCache, config: config}
}

// readableTable loads a table of the user's tenant and the user's access to it
func (qs *QueryService) readableTable(ctx context.Context, user *models.UserSession, tableID int64) (*models.Table, *TableAccess, error) {
	if user == nil {
		return nil, nil, apperrors.NewUnauthorizedError("no session")
	}
	table, err := tableForTenant(ctx, qs.schema, user.TenantID, tableID)
	if err != nil {
		return nil, nil, err
	}
	access, err := qs.perms.TableAccess(ctx, user, table)
	if err != nil {
		return nil, nil, err
	}
	if !access.CanRead {
		return nil, nil, apperrors.NewPermissionError(constants.ActionRead, constants.ResourceTable)
	}
	return table, access, nil
}

// ListRows validates payload, consults the filter cache and queries the
// store on a miss. Every validation error surfaces before the store is hit.
func (qs *QueryService) ListRows(ctx context.Context, user *models.UserSession, tableID int64, payload models.FilterPayload) (*models.FilteredRowsResponse, error) {
	start := time.Now()

	table, access, err := qs.readableTable(ctx, user, tableID)
	if err != nil {
		return nil, err
	}

	plan, err := filter.Compile(table, payload, filter.Options{
		Now:             qs.config.Now(),
		DefaultPageSize: qs.config.DefaultPageSize,
		MaxPageSize:     qs.config.MaxPageSize,
		Readable:        access.ColumnReadable,
	})
	if err != nil {
		return nil, err
	}

	rows, pagination, hit, err := qs.fetch(ctx, plan)
	if err != nil {
		return nil, err
	}

	data, err := qs.views(ctx, user, table, access, rows, payload.IncludeCells)
	if err != nil {
		return nil, err
	}

	filters := plan.Filters
	if filters == nil {
		filters = []models.FilterConfig{}
	}
	return &models.FilteredRowsResponse{
		Data:       data,
		Pagination: pagination,
		Filters:    filters,
		Performance: &models.Performance{
			DurationMs: time.Since(start).Milliseconds(),
			CacheHit:   hit,
		},
	}, nil
}

// fetch returns the plan's page from the cache or the store
func (qs *QueryService) fetch(ctx context.Context, plan *filter.Plan) ([]models.Row, models.Pagination, bool, error) {
	log := logger.FromContext(ctx)
	key := cache.Key(plan)

	entry, ok, err := qs.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.FilterCacheLookups.WithLabelValues(lookupError).Inc()
		log.Warn("⚠️ Filter cache read failed", zap.Error(err))
	case ok:
		metrics.FilterCacheLookups.WithLabelValues(lookupHit).Inc()
		return entry.Rows, entry.Pagination, true, nil
	default:
		metrics.FilterCacheLookups.WithLabelValues(lookupMiss).Inc()
	}

	// read before the store so a write landing mid-query voids the fill
	generation, genErr := qs.cache.Generation(ctx, plan.TableID)
	if genErr != nil {
		log.Warn("⚠️ Filter cache generation read failed", zap.Error(genErr))
	}

	rows, total, err := qs.rows.QueryRows(ctx, plan)
	if err != nil {
		return nil, models.Pagination{}, false, err
	}
	pagination := models.NewPagination(plan.Page, plan.PageSize, total)

	if genErr != nil {
		return rows, pagination, false, nil
	}
	entry = cache.NewEntry(plan, rows, pagination, qs.config.Now())
	entry.Generation = generation
	if err := qs.cache.Set(ctx, key, entry); err != nil {
		log.Warn("⚠️ Filter cache write failed", zap.Error(err))
	}
	return rows, pagination, false, nil
}

// GetRow returns one row projected to the columns the user may read
func (qs *QueryService) GetRow(ctx context.Context, user *models.UserSession, tableID, rowID int64) (*models.RowView, error) {
	table, access, err := qs.readableTable(ctx, user, tableID)
	if err != nil {
		return nil, err
	}
	row, err := qs.rows.GetRow(ctx, tableID, rowID)
	if err != nil {
		return nil, err
	}
	views, err := qs.views(ctx, user, table, access, []models.Row{*row}, true)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// RowView projects a row the caller just wrote. Callers without read
// access get the row identity only.
func (qs *QueryService) RowView(ctx context.Context, user *models.UserSession, row *models.Row) (*models.RowView, error) {
	table, access, err := qs.readableTable(ctx, user, row.TableID)
	if apperrors.IsPermission(err) {
		return &models.RowView{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt, Values: map[string]any{}}, nil
	}
	if err != nil {
		return nil, err
	}
	views, err := qs.views(ctx, user, table, access, []models.Row{*row}, true)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (qs *QueryService) views(ctx context.Context, user *models.UserSession, table *models.Table, access *TableAccess, rows []models.Row, includeCells bool) ([]models.RowView, error) {
	var columns []models.Column
	for _, c := range table.Columns {
		if access.ColumnReadable(c.ID) {
			columns = append(columns, c)
		}
	}

	var refs map[int64]map[int64]string
	if includeCells {
		var err error
		if refs, err = qs.resolveReferences(ctx, user, columns, rows); err != nil {
			return nil, err
		}
	}

	out := make([]models.RowView, len(rows))
	for i := range rows {
		row := &rows[i]
		view := models.RowView{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Values:    make(map[string]any, len(columns)),
		}
		for _, col := range columns {
			var value any
			cell, ok := row.Cell(col.ID)
			if ok && !coerce.IsEmpty(col.Type, cell.Value) {
				value = coerce.Decode(col.Type, cell.Value)
			}
			view.Values[strconv.FormatInt(col.ID, 10)] = value
			if !includeCells {
				continue
			}

			cv := models.CellView{
				ColumnID:   col.ID,
				ColumnName: col.Name,
				ColumnType: col.Type,
				Value:      value,
			}
			if id, isRef := value.(int64); isRef && col.ReferenceTableID != nil {
				display, found := refs[*col.ReferenceTableID][id]
				if !found {
					display = strconv.FormatInt(id, 10)
				}
				cv.Reference = &models.ReferenceValue{ID: id, DisplayValue: display}
			}
			view.Cells = append(view.Cells, cv)
		}
		out[i] = view
	}
	return out, nil
}

// resolveReferences looks up the display values of every referenced row,
// one batched read per target table. Targets the user cannot read, or rows
// that no longer exist, are left out and displayed by id.
func (qs *QueryService) resolveReferences(ctx context.Context, user *models.UserSession, columns []models.Column, rows []models.Row) (map[int64]map[int64]string, error) {
	wanted := make(map[int64][]int64)
	for _, col := range columns {
		if col.Type != constants.ColumnTypeReference || col.ReferenceTableID == nil {
			continue
		}
		target := *col.ReferenceTableID
		for i := range rows {
			cell, ok := rows[i].Cell(col.ID)
			if !ok {
				continue
			}
			if id, ok := coerce.ParseReference(cell.Value); ok && !slices.Contains(wanted[target], id) {
				wanted[target] = append(wanted[target], id)
			}
		}
	}

	out := make(map[int64]map[int64]string, len(wanted))
	for target, ids := range wanted {
		table, err := qs.schema.GetTable(ctx, target)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		access, err := qs.perms.TableAccess(ctx, user, table)
		if err != nil {
			return nil, err
		}
		display := displayColumn(table)
		if display == nil || !access.ColumnReadable(display.ID) {
			continue
		}

		slices.Sort(ids)
		targetRows, err := qs.rows.GetRows(ctx, target, ids)
		if err != nil {
			return nil, err
		}
		values := make(map[int64]string, len(targetRows))
		for i := range targetRows {
			if cell, ok := targetRows[i].Cell(display.ID); ok && strings.TrimSpace(cell.Value) != "" {
				values[targetRows[i].ID] = cell.Value
			}
		}
		out[target] = values
	}
	return out, nil
}

// displayColumn is the primary column, else the first text column
func displayColumn(table *models.Table) *models.Column {
	if col, ok := table.PrimaryColumn(); ok {
		return col
	}
	for i := range table.Columns {
		if table.Columns[i].Type == constants.ColumnTypeText {
			return &table.Columns[i]
		}
	}
	return nil
}
