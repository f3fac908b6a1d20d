package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/coerce"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/expression"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"go.uber.org/zap"
)

// RowService writes and reads rows of tenant tables
type RowService struct {
	tx     ports.Transactor
	schema ports.SchemaRepository
	rows   ports.RowRepository
	rules  ports.RuleRepository
	limits ports.PlanLimits
	cache  ports.FilterCacheInvalidator
	engine *expression.Engine
	now    func() time.Time
}

// NewRowService creates a new RowService
func NewRowService(
	tx ports.Transactor,
	schema ports.SchemaRepository,
	rows ports.RowRepository,
	rules ports.RuleRepository,
	limits ports.PlanLimits,
	cache ports.FilterCacheInvalidator,
	engine *expression.Engine,
	now func() time.Time,
) *RowService {
	return &RowService{
		tx:     tx,
		schema: schema,
		rows:   rows,
		rules:  rules,
		limits: limits,
		cache:  cache,
		engine: engine,
		now:    now,
	}
}

// cellChanges is a request's values encoded for storage
type cellChanges struct {
	set     map[int64]string
	cleared []int64
}

// encodeValues encodes raw request values per column type and checks
// column membership, reference targets and allowed options
func (s *RowService) encodeValues(ctx context.Context, table *models.Table, values map[int64]any) (*cellChanges, error) {
	ids := make([]int64, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	changes := &cellChanges{set: make(map[int64]string, len(values))}
	refs := make(map[int64][]int64) // target table -> row ids
	refColumn := make(map[int64]string)

	for _, id := range ids {
		col, ok := table.Column(id)
		if !ok {
			return nil, apperrors.NewValidationError("values", fmt.Sprintf("column %d does not belong to table %d", id, table.ID))
		}
		text, present := coerce.Encode(col.Type, values[id])
		if !present {
			changes.cleared = append(changes.cleared, id)
			continue
		}

		switch col.Type {
		case constants.ColumnTypeReference:
			if coerce.IsEmpty(col.Type, text) {
				break
			}
			if col.ReferenceTableID == nil {
				return nil, apperrors.NewValidationError(col.Name, "referenced table no longer exists")
			}
			rowID, ok := coerce.ParseReference(text)
			if !ok {
				return nil, apperrors.NewValidationError(col.Name, "reference value must be a row id")
			}
			refs[*col.ReferenceTableID] = append(refs[*col.ReferenceTableID], rowID)
			refColumn[*col.ReferenceTableID] = col.Name
		case constants.ColumnTypeCustomArray:
			if len(col.Options) == 0 {
				break
			}
			items, _ := coerce.ParseArray(text)
			for _, item := range items {
				if !slices.Contains(col.Options, item) {
					return nil, apperrors.NewValidationError(col.Name, fmt.Sprintf("'%s' is not an allowed option", item))
				}
			}
		}
		changes.set[id] = text
	}

	targets := make([]int64, 0, len(refs))
	for t := range refs {
		targets = append(targets, t)
	}
	slices.Sort(targets)
	for _, target := range targets {
		existing, err := s.rows.ExistingRowIDs(ctx, target, refs[target])
		if err != nil {
			return nil, err
		}
		for _, rowID := range refs[target] {
			if !existing[rowID] {
				return nil, apperrors.NewValidationError(refColumn[target], fmt.Sprintf("referenced row %d does not exist", rowID))
			}
		}
	}
	return changes, nil
}

// checkRules evaluates the table's active validation rules against the row's
// values. A rule whose condition is true rejects the write; a rule that
// fails to evaluate is skipped.
func (s *RowService) checkRules(ctx context.Context, table *models.Table, values map[int64]string) error {
	rules, err := s.rules.ListRules(ctx, table.ID, true)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	typed := make(map[string]any, len(table.Columns))
	for _, col := range table.Columns {
		var v any
		if text, ok := values[col.ID]; ok && !coerce.IsEmpty(col.Type, text) {
			v = coerce.Decode(col.Type, text)
		}
		typed[col.Name] = v
	}
	env := expression.Env(typed)

	for _, rule := range rules {
		violated, err := s.engine.EvaluateBool(rule.Condition, env)
		if err != nil {
			logger.FromContext(ctx).Warn("⚠️ Validation rule failed to evaluate",
				zap.Int64("rule_id", rule.ID), zap.String("rule", rule.Name), zap.Error(err))
			continue
		}
		if violated {
			return apperrors.NewValidationError(rule.Name, rule.ErrorMessage)
		}
	}
	return nil
}

// CreateRow stores a new row. Columns without a value get no cell.
func (s *RowService) CreateRow(ctx context.Context, tenantID string, tableID int64, values map[int64]any) (*models.Row, error) {
	var row *models.Row
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		table, err := tableForTenant(ctx, s.schema, tenantID, tableID)
		if err != nil {
			return err
		}
		changes, err := s.encodeValues(ctx, table, values)
		if err != nil {
			return err
		}
		for _, col := range table.Columns {
			if text, ok := changes.set[col.ID]; col.Required && (!ok || coerce.IsEmpty(col.Type, text)) {
				return apperrors.NewRequiredFieldError(col.ID, col.Name)
			}
		}
		if err := s.checkRules(ctx, table, changes.set); err != nil {
			return err
		}

		limit, err := s.limits.MaxRows(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to read row limit: %w", err)
		}
		count, err := s.rows.CountRows(ctx, tenantID)
		if err != nil {
			return err
		}
		if count >= limit {
			return apperrors.NewPlanLimitError(constants.LimitRows, count, limit)
		}

		now := s.now().UTC()
		row = &models.Row{
			TableID:   tableID,
			TenantID:  tenantID,
			CreatedAt: now,
			UpdatedAt: now,
			Cells:     toCells(changes.set),
		}
		return s.rows.CreateRow(ctx, row)
	})
	if err != nil {
		return nil, err
	}

	invalidateTable(ctx, s.cache, tableID)
	logger.FromContext(ctx).Debug("➕ Row created", zap.Int64("table_id", tableID), zap.Int64("row_id", row.ID))
	return row, nil
}

func toCells(values map[int64]string) []models.Cell {
	cells := make([]models.Cell, 0, len(values))
	for id, v := range values {
		cells = append(cells, models.Cell{ColumnID: id, Value: v})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].ColumnID < cells[j].ColumnID })
	return cells
}

// ReadRows returns rows of the table with their cells. Nil ids reads every row.
func (s *RowService) ReadRows(ctx context.Context, tenantID string, tableID int64, rowIDs []int64) ([]models.Row, error) {
	if _, err := tableForTenant(ctx, s.schema, tenantID, tableID); err != nil {
		return nil, err
	}
	return s.rows.GetRows(ctx, tableID, rowIDs)
}

func (s *RowService) GetRow(ctx context.Context, tenantID string, tableID, rowID int64) (*models.Row, error) {
	if _, err := tableForTenant(ctx, s.schema, tenantID, tableID); err != nil {
		return nil, err
	}
	return s.rows.GetRow(ctx, tableID, rowID)
}

// UpdateRow applies values to an existing row atomically. A nil value clears the cell.
func (s *RowService) UpdateRow(ctx context.Context, tenantID string, tableID, rowID int64, values map[int64]any) (*models.Row, error) {
	var row *models.Row
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		table, err := tableForTenant(ctx, s.schema, tenantID, tableID)
		if err != nil {
			return err
		}
		current, err := s.rows.GetRow(ctx, tableID, rowID)
		if err != nil {
			return err
		}
		changes, err := s.encodeValues(ctx, table, values)
		if err != nil {
			return err
		}

		for _, id := range changes.cleared {
			if col, _ := table.Column(id); col.Required {
				return apperrors.NewRequiredFieldError(col.ID, col.Name)
			}
		}
		for id, text := range changes.set {
			if col, _ := table.Column(id); col.Required && coerce.IsEmpty(col.Type, text) {
				return apperrors.NewRequiredFieldError(col.ID, col.Name)
			}
		}

		merged := current.Values()
		for id, text := range changes.set {
			merged[id] = text
		}
		for _, id := range changes.cleared {
			delete(merged, id)
		}
		if err := s.checkRules(ctx, table, merged); err != nil {
			return err
		}

		if err := s.rows.ReplaceCells(ctx, rowID, toCells(changes.set), changes.cleared, s.now().UTC()); err != nil {
			return err
		}
		row, err = s.rows.GetRow(ctx, tableID, rowID)
		return err
	})
	if err != nil {
		return nil, err
	}

	invalidateTable(ctx, s.cache, tableID)
	return row, nil
}

// DeleteRow removes a row and its cells
func (s *RowService) DeleteRow(ctx context.Context, tenantID string, tableID, rowID int64) error {
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := tableForTenant(ctx, s.schema, tenantID, tableID); err != nil {
			return err
		}
		return s.rows.DeleteRow(ctx, tableID, rowID)
	})
	if err != nil {
		return err
	}
	invalidateTable(ctx, s.cache, tableID)
	logger.FromContext(ctx).Debug("➖ Row deleted", zap.Int64("table_id", tableID), zap.Int64("row_id", rowID))
	return nil
}
