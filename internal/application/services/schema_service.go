package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"go.uber.org/zap"
)

// SchemaService manages databases, tables and columns of tenants
type SchemaService struct {
	tx     ports.Transactor
	repo   ports.SchemaRepository
	limits ports.PlanLimits
	cache  ports.FilterCacheInvalidator
	now    func() time.Time
}

// NewSchemaService creates a new SchemaService
func NewSchemaService(tx ports.Transactor, repo ports.SchemaRepository, limits ports.PlanLimits, cache ports.FilterCacheInvalidator, now func() time.Time) *SchemaService {
	return &SchemaService{tx: tx, repo: repo, limits: limits, cache: cache, now: now}
}

// validateName trims name and checks it is usable as a database, table or column name
func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.NewValidationError(field, "name is required")
	}
	if utf8.RuneCountInString(name) > constants.MaxNameLength {
		return "", apperrors.NewValidationError(field, fmt.Sprintf("name must be at most %d characters", constants.MaxNameLength))
	}
	return name, nil
}

// duplicateAsValidation turns a storage uniqueness conflict into the
// ValidationError callers see.
func duplicateAsValidation(err error, field, message string) error {
	if apperrors.IsConflict(err) {
		return apperrors.NewValidationError(field, message)
	}
	return err
}

func (s *SchemaService) CreateDatabase(ctx context.Context, tenantID string, input models.DatabaseInput) (*models.Database, error) {
	name, err := validateName("name", input.Name)
	if err != nil {
		return nil, err
	}
	db := &models.Database{
		TenantID:    tenantID,
		Name:        name,
		Description: input.Description,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateDatabase(ctx, db); err != nil {
		return nil, duplicateAsValidation(err, "name", fmt.Sprintf("database '%s' already exists", name))
	}
	logger.FromContext(ctx).Info("🗄️ Database created", zap.Int64("database_id", db.ID), zap.String("name", name))
	return db, nil
}

func (s *SchemaService) ListDatabases(ctx context.Context, tenantID string) ([]models.Database, error) {
	return s.repo.ListDatabases(ctx, tenantID)
}

// databaseForTenant loads a database, hiding other tenants' databases as not found
func (s *SchemaService) databaseForTenant(ctx context.Context, tenantID string, databaseID int64) (*models.Database, error) {
	db, err := s.repo.GetDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if db.TenantID != tenantID {
		return nil, apperrors.NewNotFoundError("database", strconv.FormatInt(databaseID, 10))
	}
	return db, nil
}

// tableForTenant loads a table with its columns, hiding other tenants' tables as not found
func tableForTenant(ctx context.Context, repo ports.SchemaRepository, tenantID string, tableID int64) (*models.Table, error) {
	table, err := repo.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.TenantID != tenantID {
		return nil, apperrors.NewNotFoundError("table", strconv.FormatInt(tableID, 10))
	}
	return table, nil
}

// CreateTable creates an empty table in a database of the tenant
func (s *SchemaService) CreateTable(ctx context.Context, tenantID string, databaseID int64, input models.TableInput, createdBy string) (*models.Table, error) {
	name, err := validateName("name", input.Name)
	if err != nil {
		return nil, err
	}

	var table *models.Table
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.databaseForTenant(ctx, tenantID, databaseID); err != nil {
			return err
		}

		limit, err := s.limits.MaxTables(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to read table limit: %w", err)
		}
		count, err := s.repo.CountTables(ctx, tenantID)
		if err != nil {
			return err
		}
		if count >= limit {
			return apperrors.NewPlanLimitError(constants.LimitTables, count, limit)
		}

		duplicate := fmt.Sprintf("table '%s' already exists in this database", name)
		if _, err := s.repo.GetTableByName(ctx, databaseID, name); err == nil {
			return apperrors.NewValidationError("name", duplicate)
		} else if !apperrors.IsNotFound(err) {
			return err
		}

		now := s.now().UTC()
		table = &models.Table{
			TenantID:    tenantID,
			DatabaseID:  databaseID,
			Name:        name,
			Description: input.Description,
			IsPublic:    input.IsPublic,
			CreatedBy:   createdBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.CreateTable(ctx, table); err != nil {
			return duplicateAsValidation(err, "name", duplicate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("📋 Table created",
		zap.Int64("table_id", table.ID),
		zap.Int64("database_id", databaseID),
		zap.String("name", name))
	return table, nil
}

// CreateColumns adds columns to a table, all or nothing. batch maps names
// of tables created earlier in the same provisioning batch to their ids.
func (s *SchemaService) CreateColumns(ctx context.Context, tenantID string, tableID int64, inputs []models.ColumnInput, batch map[string]int64) ([]models.Column, error) {
	if len(inputs) == 0 {
		return nil, apperrors.NewValidationError("columns", "at least one column is required")
	}

	var created []models.Column
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		table, err := tableForTenant(ctx, s.repo, tenantID, tableID)
		if err != nil {
			return err
		}

		names := make(map[string]bool, len(table.Columns)+len(inputs))
		hasPrimary := false
		maxOrder := -1
		for _, c := range table.Columns {
			names[c.Name] = true
			hasPrimary = hasPrimary || c.Primary
			maxOrder = max(maxOrder, c.Order)
		}

		now := s.now().UTC()
		created = make([]models.Column, 0, len(inputs))
		for i, in := range inputs {
			field := fmt.Sprintf("columns[%d]", i)
			col, err := s.buildColumn(ctx, table, field, in, batch)
			if err != nil {
				return err
			}
			if names[col.Name] {
				return apperrors.NewValidationError(field, fmt.Sprintf("column '%s' already exists", col.Name))
			}
			if col.Primary && hasPrimary {
				return apperrors.NewValidationError(field, "table already has a primary column")
			}
			if in.Order == nil {
				col.Order = maxOrder + 1
			}
			maxOrder = max(maxOrder, col.Order)
			col.CreatedAt = now

			if err := s.repo.CreateColumn(ctx, col); err != nil {
				return duplicateAsValidation(err, field, fmt.Sprintf("column '%s' already exists", col.Name))
			}
			names[col.Name] = true
			hasPrimary = hasPrimary || col.Primary
			created = append(created, *col)
		}
		return s.repo.TouchTable(ctx, tableID, now)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(created))
	for i, c := range created {
		ids[i] = c.ID
	}
	invalidateFilters(ctx, s.cache, tableID, ids)
	logger.FromContext(ctx).Info("🧱 Columns created", zap.Int64("table_id", tableID), zap.Int("count", len(created)))
	return created, nil
}

func (s *SchemaService) buildColumn(ctx context.Context, table *models.Table, field string, in models.ColumnInput, batch map[string]int64) (*models.Column, error) {
	name, err := validateName(field, in.Name)
	if err != nil {
		return nil, err
	}
	col := &models.Column{
		TableID:      table.ID,
		Name:         name,
		Type:         constants.NormalizeColumnType(in.Type),
		SemanticType: strings.TrimSpace(in.SemanticType),
		Required:     in.Required,
		Primary:      in.Primary,
	}
	if in.Order != nil {
		col.Order = *in.Order
	}

	switch col.Type {
	case constants.ColumnTypeReference:
		target, err := s.resolveReference(ctx, table, name, in, batch)
		if err != nil {
			return nil, err
		}
		col.ReferenceTableID = &target
	case constants.ColumnTypeCustomArray:
		col.Options = normalizeOptions(in.Options)
	}
	return col, nil
}

// resolveReference finds the target table of a reference column: by id,
// then by name among the batch, then by name within the same database
func (s *SchemaService) resolveReference(ctx context.Context, table *models.Table, column string, in models.ColumnInput, batch map[string]int64) (int64, error) {
	if in.ReferenceTableID != nil {
		target, err := s.repo.GetTable(ctx, *in.ReferenceTableID)
		targetName := strconv.FormatInt(*in.ReferenceTableID, 10)
		if apperrors.IsNotFound(err) || (err == nil && target.TenantID != table.TenantID) {
			return 0, apperrors.NewReferenceResolutionError(column, targetName, "table does not exist")
		}
		if err != nil {
			return 0, err
		}
		return target.ID, nil
	}

	ref := strings.TrimSpace(in.ReferenceName)
	if ref == "" {
		return 0, apperrors.NewReferenceResolutionError(column, "", "reference columns need a target table")
	}
	if id, ok := batch[ref]; ok {
		return id, nil
	}
	target, err := s.repo.GetTableByName(ctx, table.DatabaseID, ref)
	if apperrors.IsNotFound(err) {
		return 0, apperrors.NewReferenceResolutionError(column, ref, "table does not exist")
	}
	if err != nil {
		return 0, err
	}
	return target.ID, nil
}

// normalizeOptions trims and de-duplicates allowed values, keeping their order
func normalizeOptions(options []string) []string {
	var out []string
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o != "" && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

// DescribeTable returns the table with its columns in display order
func (s *SchemaService) DescribeTable(ctx context.Context, tenantID string, tableID int64) (*models.Table, error) {
	return tableForTenant(ctx, s.repo, tenantID, tableID)
}

func (s *SchemaService) ListTables(ctx context.Context, tenantID string, databaseID int64) ([]models.Table, error) {
	if _, err := s.databaseForTenant(ctx, tenantID, databaseID); err != nil {
		return nil, err
	}
	return s.repo.ListTables(ctx, databaseID)
}

// UpdateColumn applies patch to a column. A type change drops every cached
// page of the table; other changes drop only pages that depend on the column.
func (s *SchemaService) UpdateColumn(ctx context.Context, tenantID string, columnID int64, patch models.ColumnPatch) (*models.Column, error) {
	var (
		col         *models.Column
		typeChanged bool
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		col, err = s.repo.GetColumn(ctx, columnID)
		if err != nil {
			return err
		}
		table, err := tableForTenant(ctx, s.repo, tenantID, col.TableID)
		if err != nil {
			return apperrors.NewNotFoundError("column", strconv.FormatInt(columnID, 10))
		}

		if patch.Name != nil {
			name, err := validateName("name", *patch.Name)
			if err != nil {
				return err
			}
			if other, ok := table.ColumnByName(name); ok && other.ID != col.ID {
				return apperrors.NewValidationError("name", fmt.Sprintf("column '%s' already exists", name))
			}
			col.Name = name
		}
		if patch.Type != nil {
			newType := constants.NormalizeColumnType(*patch.Type)
			if newType != col.Type {
				if newType == constants.ColumnTypeReference {
					return apperrors.NewValidationError("type", "a column cannot be converted to a reference; create a new reference column")
				}
				col.Type = newType
				col.ReferenceTableID = nil
				if newType != constants.ColumnTypeCustomArray {
					col.Options = nil
				}
				typeChanged = true
			}
		}
		if patch.SemanticType != nil {
			col.SemanticType = strings.TrimSpace(*patch.SemanticType)
		}
		if patch.Required != nil {
			col.Required = *patch.Required
		}
		if patch.Order != nil {
			col.Order = *patch.Order
		}
		if patch.Options != nil {
			if col.Type != constants.ColumnTypeCustomArray {
				return apperrors.NewValidationError("options", "options apply to customArray columns only")
			}
			col.Options = normalizeOptions(*patch.Options)
		}

		if err := s.repo.UpdateColumn(ctx, col); err != nil {
			return duplicateAsValidation(err, "name", fmt.Sprintf("column '%s' already exists", col.Name))
		}
		return s.repo.TouchTable(ctx, col.TableID, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	if typeChanged {
		invalidateTable(ctx, s.cache, col.TableID)
	} else {
		invalidateFilters(ctx, s.cache, col.TableID, []int64{col.ID})
	}
	return col, nil
}

// DeleteColumn removes a column together with its cells and column grants
func (s *SchemaService) DeleteColumn(ctx context.Context, tenantID string, columnID int64) error {
	var tableID int64
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		col, err := s.repo.GetColumn(ctx, columnID)
		if err != nil {
			return err
		}
		if _, err := tableForTenant(ctx, s.repo, tenantID, col.TableID); err != nil {
			return apperrors.NewNotFoundError("column", strconv.FormatInt(columnID, 10))
		}
		tableID = col.TableID
		if err := s.repo.DeleteColumn(ctx, columnID); err != nil {
			return err
		}
		return s.repo.TouchTable(ctx, tableID, s.now().UTC())
	})
	if err != nil {
		return err
	}
	invalidateTable(ctx, s.cache, tableID)
	logger.FromContext(ctx).Info("🗑️ Column deleted", zap.Int64("table_id", tableID), zap.Int64("column_id", columnID))
	return nil
}

// DeleteTable removes a table with its rows, cells, rules and grants
func (s *SchemaService) DeleteTable(ctx context.Context, tenantID string, tableID int64) error {
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := tableForTenant(ctx, s.repo, tenantID, tableID); err != nil {
			return err
		}
		return s.repo.DeleteTable(ctx, tableID)
	})
	if err != nil {
		return err
	}
	invalidateTable(ctx, s.cache, tableID)
	logger.FromContext(ctx).Info("🗑️ Table deleted", zap.Int64("table_id", tableID))
	return nil
}
