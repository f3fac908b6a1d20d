package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/query"
)

// SchemaRepository stores tenant databases, tables and columns
type SchemaRepository struct {
	db *sql.DB
}

// NewSchemaRepository creates a new SchemaRepository
func NewSchemaRepository(db *sql.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

var databaseColumns = []string{
	constants.FieldID,
	constants.FieldTenantID,
	constants.FieldName,
	constants.FieldDescription,
	constants.FieldCreatedAt,
}

var tableColumns = []string{
	constants.FieldID,
	constants.FieldTenantID,
	constants.FieldDatabaseID,
	constants.FieldName,
	constants.FieldDescription,
	constants.FieldIsPublic,
	constants.FieldCreatedBy,
	constants.FieldCreatedAt,
	constants.FieldUpdatedAt,
}

var columnColumns = []string{
	constants.FieldID,
	constants.FieldTableID,
	constants.FieldName,
	constants.FieldType,
	constants.FieldSemanticType,
	constants.FieldRequired,
	constants.FieldPrimary,
	constants.FieldOrder,
	constants.FieldReferenceTableID,
	constants.FieldOptions,
	constants.FieldCreatedAt,
}

// =================================================================================
// Databases
// =================================================================================

func (r *SchemaRepository) CreateDatabase(ctx context.Context, db *models.Database) error {
	if db.CreatedAt.IsZero() {
		db.CreatedAt = utcNow()
	}
	q := query.Insert(constants.TableDatabases, map[string]interface{}{
		constants.FieldTenantID:    db.TenantID,
		constants.FieldName:        db.Name,
		constants.FieldDescription: nullString(db.Description),
		constants.FieldCreatedAt:   db.CreatedAt,
	}).Build()

	res, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperrors.NewConflictError("database", constants.FieldName, db.Name)
		}
		return fmt.Errorf("failed to insert database: %w", err)
	}
	db.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read database id: %w", err)
	}
	return nil
}

func (r *SchemaRepository) GetDatabase(ctx context.Context, id int64) (*models.Database, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ?",
		columnList(databaseColumns...), constants.TableDatabases, constants.FieldID)
	db, err := scanDatabase(executor(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("database", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	return db, nil
}

func (r *SchemaRepository) ListDatabases(ctx context.Context, tenantID string) ([]models.Database, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ? ORDER BY `%s` ASC",
		columnList(databaseColumns...), constants.TableDatabases, constants.FieldTenantID, constants.FieldID)
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	dbs := []models.Database{}
	for rows.Next() {
		db, err := scanDatabase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan database: %w", err)
		}
		dbs = append(dbs, *db)
	}
	return dbs, rows.Err()
}

func scanDatabase(s scanner) (*models.Database, error) {
	var db models.Database
	var description sql.NullString
	if err := s.Scan(&db.ID, &db.TenantID, &db.Name, &description, &db.CreatedAt); err != nil {
		return nil, err
	}
	db.Description = description.String
	return &db, nil
}

// =================================================================================
// Tables
// =================================================================================

func (r *SchemaRepository) CreateTable(ctx context.Context, table *models.Table) error {
	if table.CreatedAt.IsZero() {
		table.CreatedAt = utcNow()
	}
	table.UpdatedAt = table.CreatedAt
	q := query.Insert(constants.TableTables, map[string]interface{}{
		constants.FieldTenantID:    table.TenantID,
		constants.FieldDatabaseID:  table.DatabaseID,
		constants.FieldName:        table.Name,
		constants.FieldDescription: nullString(table.Description),
		constants.FieldIsPublic:    table.IsPublic,
		constants.FieldCreatedBy:   nullString(table.CreatedBy),
		constants.FieldCreatedAt:   table.CreatedAt,
		constants.FieldUpdatedAt:   table.UpdatedAt,
	}).Build()

	res, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperrors.NewConflictError("table", constants.FieldName, table.Name)
		}
		return fmt.Errorf("failed to insert table: %w", err)
	}
	table.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read table id: %w", err)
	}
	return nil
}

func (r *SchemaRepository) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ?",
		columnList(tableColumns...), constants.TableTables, constants.FieldID)
	return r.getTable(ctx, q, strconv.FormatInt(id, 10), id)
}

func (r *SchemaRepository) GetTableByName(ctx context.Context, databaseID int64, name string) (*models.Table, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ? AND `%s` = ?",
		columnList(tableColumns...), constants.TableTables, constants.FieldDatabaseID, constants.FieldName)
	return r.getTable(ctx, q, name, databaseID, name)
}

func (r *SchemaRepository) getTable(ctx context.Context, q, label string, args ...interface{}) (*models.Table, error) {
	table, err := scanTable(executor(ctx, r.db).QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("table", label)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	if table.Columns, err = r.listColumns(ctx, table.ID); err != nil {
		return nil, err
	}
	return table, nil
}

func (r *SchemaRepository) ListTables(ctx context.Context, databaseID int64) ([]models.Table, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ? ORDER BY `%s` ASC",
		columnList(tableColumns...), constants.TableTables, constants.FieldDatabaseID, constants.FieldID)
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []models.Table{}
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, *table)
	}
	return tables, rows.Err()
}

func (r *SchemaRepository) CountTables(ctx context.Context, tenantID string) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `%s` = ?", constants.TableTables, constants.FieldTenantID)
	var n int
	if err := executor(ctx, r.db).QueryRowContext(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tables: %w", err)
	}
	return n, nil
}

// DeleteTable removes dependents explicitly, so deletion does not rely on the
// engine enforcing foreign key cascades. Callers run it inside a transaction.
func (r *SchemaRepository) DeleteTable(ctx context.Context, id int64) error {
	exec := executor(ctx, r.db)
	statements := []string{
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` IN (SELECT `%s` FROM `%s` WHERE `%s` = ?)",
			constants.TableCells, constants.FieldRowID, constants.FieldID, constants.TableRows, constants.FieldTableID),
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableRows, constants.FieldTableID),
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableColumnPermissions, constants.FieldTableID),
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableTablePermissions, constants.FieldTableID),
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableValidationRules, constants.FieldTableID),
		fmt.Sprintf("UPDATE `%s` SET `%s` = NULL WHERE `%s` = ?",
			constants.TableColumns, constants.FieldReferenceTableID, constants.FieldReferenceTableID),
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableColumns, constants.FieldTableID),
	}
	for _, stmt := range statements {
		if _, err := exec.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete table dependents: %w", err)
		}
	}

	res, err := exec.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableTables, constants.FieldID), id)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	return requireAffected(res, "table", id)
}

func (r *SchemaRepository) TouchTable(ctx context.Context, id int64, at time.Time) error {
	q := query.Update(constants.TableTables).
		Set(map[string]interface{}{constants.FieldUpdatedAt: at.UTC()}).
		Where(fmt.Sprintf("`%s` = ?", constants.FieldID), id).
		Build()
	if _, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("failed to touch table: %w", err)
	}
	return nil
}

func scanTable(s scanner) (*models.Table, error) {
	var t models.Table
	var description, createdBy sql.NullString
	err := s.Scan(&t.ID, &t.TenantID, &t.DatabaseID, &t.Name, &description,
		&t.IsPublic, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.CreatedBy = createdBy.String
	return &t, nil
}

// =================================================================================
// Columns
// =================================================================================

func (r *SchemaRepository) CreateColumn(ctx context.Context, column *models.Column) error {
	if column.CreatedAt.IsZero() {
		column.CreatedAt = utcNow()
	}
	options, err := encodeOptions(column.Options)
	if err != nil {
		return err
	}
	q := query.Insert(constants.TableColumns, map[string]interface{}{
		constants.FieldTableID:          column.TableID,
		constants.FieldName:             column.Name,
		constants.FieldType:             column.Type,
		constants.FieldSemanticType:     nullString(column.SemanticType),
		constants.FieldRequired:         column.Required,
		constants.FieldPrimary:          column.Primary,
		constants.FieldOrder:            column.Order,
		constants.FieldReferenceTableID: nullInt64(column.ReferenceTableID),
		constants.FieldOptions:          options,
		constants.FieldCreatedAt:        column.CreatedAt,
	}).Build()

	res, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperrors.NewConflictError("column", constants.FieldName, column.Name)
		}
		return fmt.Errorf("failed to insert column: %w", err)
	}
	column.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read column id: %w", err)
	}
	return nil
}

func (r *SchemaRepository) GetColumn(ctx context.Context, id int64) (*models.Column, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ?",
		columnList(columnColumns...), constants.TableColumns, constants.FieldID)
	col, err := scanColumn(executor(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("column", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get column: %w", err)
	}
	return col, nil
}

// UpdateColumn writes every mutable attribute of the column
func (r *SchemaRepository) UpdateColumn(ctx context.Context, column *models.Column) error {
	options, err := encodeOptions(column.Options)
	if err != nil {
		return err
	}
	q := query.Update(constants.TableColumns).
		Set(map[string]interface{}{
			constants.FieldName:             column.Name,
			constants.FieldType:             column.Type,
			constants.FieldSemanticType:     nullString(column.SemanticType),
			constants.FieldRequired:         column.Required,
			constants.FieldOrder:            column.Order,
			constants.FieldReferenceTableID: nullInt64(column.ReferenceTableID),
			constants.FieldOptions:          options,
		}).
		Where(fmt.Sprintf("`%s` = ?", constants.FieldID), column.ID).
		Build()

	if _, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		if isDuplicateEntry(err) {
			return apperrors.NewConflictError("column", constants.FieldName, column.Name)
		}
		return fmt.Errorf("failed to update column: %w", err)
	}
	return nil
}

func (r *SchemaRepository) DeleteColumn(ctx context.Context, id int64) error {
	exec := executor(ctx, r.db)
	for _, table := range []string{constants.TableCells, constants.TableColumnPermissions} {
		stmt := fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", table, constants.FieldColumnID)
		if _, err := exec.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete column dependents: %w", err)
		}
	}
	res, err := exec.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableColumns, constants.FieldID), id)
	if err != nil {
		return fmt.Errorf("failed to delete column: %w", err)
	}
	return requireAffected(res, "column", id)
}

func (r *SchemaRepository) listColumns(ctx context.Context, tableID int64) ([]models.Column, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ? ORDER BY `%s` ASC, `%s` ASC",
		columnList(columnColumns...), constants.TableColumns, constants.FieldTableID,
		constants.FieldOrder, constants.FieldID)
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	cols := []models.Column{}
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, *col)
	}
	return cols, rows.Err()
}

func scanColumn(s scanner) (*models.Column, error) {
	var c models.Column
	var semantic, options sql.NullString
	var ref sql.NullInt64
	err := s.Scan(&c.ID, &c.TableID, &c.Name, &c.Type, &semantic, &c.Required,
		&c.Primary, &c.Order, &ref, &options, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.SemanticType = semantic.String
	c.ReferenceTableID = int64Ptr(ref)
	if c.Options, err = decodeOptions(options); err != nil {
		return nil, err
	}
	return &c, nil
}

func requireAffected(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(resource, strconv.FormatInt(id, 10))
	}
	return nil
}
