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
	"github.com/nexuscrm/tablestore/pkg/filter"
	"github.com/nexuscrm/tablestore/pkg/query"
	"go.uber.org/zap"
)

// RowRepository stores rows and cells in the EAV tables
type RowRepository struct {
	db       *sql.DB
	verifier *query.Verifier
}

// NewRowRepository creates a new RowRepository
func NewRowRepository(db *sql.DB) *RowRepository {
	return &RowRepository{
		db:       db,
		verifier: query.NewVerifier(constants.TableRows, constants.TableCells),
	}
}

func (r *RowRepository) CreateRow(ctx context.Context, row *models.Row) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = utcNow()
	}
	row.UpdatedAt = row.CreatedAt
	exec := executor(ctx, r.db)

	q := query.Insert(constants.TableRows, map[string]interface{}{
		constants.FieldTenantID:  row.TenantID,
		constants.FieldTableID:   row.TableID,
		constants.FieldCreatedAt: row.CreatedAt,
		constants.FieldUpdatedAt: row.UpdatedAt,
	}).Build()
	res, err := exec.ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	if row.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read row id: %w", err)
	}

	for i := range row.Cells {
		cell := &row.Cells[i]
		cell.RowID = row.ID
		q := query.Insert(constants.TableCells, map[string]interface{}{
			constants.FieldRowID:    cell.RowID,
			constants.FieldColumnID: cell.ColumnID,
			constants.FieldValue:    cell.Value,
		}).Build()
		res, err := exec.ExecContext(ctx, q.SQL, q.Params...)
		if err != nil {
			return fmt.Errorf("failed to insert cell: %w", err)
		}
		if cell.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read cell id: %w", err)
		}
	}
	return nil
}

func (r *RowRepository) GetRow(ctx context.Context, tableID, rowID int64) (*models.Row, error) {
	q := query.From(constants.TableRows).
		Select(query.RowColumns...).
		Where(fmt.Sprintf("`%s`.`%s` = ?", constants.TableRows, constants.FieldID), rowID).
		Where(fmt.Sprintf("`%s`.`%s` = ?", constants.TableRows, constants.FieldTableID), tableID).
		Build()

	var row models.Row
	err := executor(ctx, r.db).QueryRowContext(ctx, q.SQL, q.Params...).
		Scan(&row.ID, &row.TableID, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("row", strconv.FormatInt(rowID, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row: %w", err)
	}

	rows := []models.Row{row}
	if err := r.attachCells(ctx, rows); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (r *RowRepository) GetRows(ctx context.Context, tableID int64, rowIDs []int64) ([]models.Row, error) {
	b := query.From(constants.TableRows).
		Select(query.RowColumns...).
		Where(fmt.Sprintf("`%s`.`%s` = ?", constants.TableRows, constants.FieldTableID), tableID)
	if rowIDs != nil {
		b.WhereIn(fmt.Sprintf("`%s`.`%s`", constants.TableRows, constants.FieldID), int64Args(rowIDs))
	}
	q := b.OrderBy(constants.FieldID, "ASC").Build()

	rows, err := r.scanRows(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := r.attachCells(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceCells relies on the unique (row_id, column_id) key for upserts
func (r *RowRepository) ReplaceCells(ctx context.Context, rowID int64, upserts []models.Cell, deletes []int64, at time.Time) error {
	exec := executor(ctx, r.db)

	upsert := fmt.Sprintf("INSERT INTO `%s` (`%s`, `%s`, `%s`) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE `%s` = VALUES(`%s`)",
		constants.TableCells, constants.FieldRowID, constants.FieldColumnID, constants.FieldValue,
		constants.FieldValue, constants.FieldValue)
	for _, cell := range upserts {
		if _, err := exec.ExecContext(ctx, upsert, rowID, cell.ColumnID, cell.Value); err != nil {
			return fmt.Errorf("failed to upsert cell: %w", err)
		}
	}

	if len(deletes) > 0 {
		q := query.Delete(constants.TableCells).
			Where(fmt.Sprintf("`%s` = ?", constants.FieldRowID), rowID).
			WhereIn(fmt.Sprintf("`%s`", constants.FieldColumnID), int64Args(deletes)).
			Build()
		if _, err := exec.ExecContext(ctx, q.SQL, q.Params...); err != nil {
			return fmt.Errorf("failed to delete cells: %w", err)
		}
	}

	q := query.Update(constants.TableRows).
		Set(map[string]interface{}{constants.FieldUpdatedAt: at.UTC()}).
		Where(fmt.Sprintf("`%s` = ?", constants.FieldID), rowID).
		Build()
	if _, err := exec.ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("failed to touch row: %w", err)
	}
	return nil
}

// DeleteRow removes the row first so a row id of another table never loses its cells
func (r *RowRepository) DeleteRow(ctx context.Context, tableID, rowID int64) error {
	exec := executor(ctx, r.db)

	res, err := exec.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ? AND `%s` = ?", constants.TableRows, constants.FieldID, constants.FieldTableID),
		rowID, tableID)
	if err != nil {
		return fmt.Errorf("failed to delete row: %w", err)
	}
	if err := requireAffected(res, "row", rowID); err != nil {
		return err
	}

	if _, err := exec.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableCells, constants.FieldRowID), rowID); err != nil {
		return fmt.Errorf("failed to delete cells: %w", err)
	}
	return nil
}

func (r *RowRepository) CountRows(ctx context.Context, tenantID string) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `%s` = ?", constants.TableRows, constants.FieldTenantID)
	var n int
	if err := executor(ctx, r.db).QueryRowContext(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func (r *RowRepository) ExistingRowIDs(ctx context.Context, tableID int64, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	q := query.From(constants.TableRows).
		Select(constants.FieldID).
		Where(fmt.Sprintf("`%s`.`%s` = ?", constants.TableRows, constants.FieldTableID), tableID).
		WhereIn(fmt.Sprintf("`%s`.`%s`", constants.TableRows, constants.FieldID), int64Args(ids)).
		Build()

	rows, err := executor(ctx, r.db).QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to check rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row id: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}

// QueryRows runs the COUNT and page statements for a compiled plan. Both are
// checked by the SQL verifier before execution.
func (r *RowRepository) QueryRows(ctx context.Context, plan *filter.Plan) ([]models.Row, int, error) {
	rq := query.BuildRowsQuery(plan)
	for _, stmt := range []string{rq.Count.SQL, rq.Page.SQL} {
		if err := r.verifier.Verify(stmt); err != nil {
			zap.L().Error("❌ Generated filter query rejected", zap.Error(err), zap.String("sql", stmt))
			return nil, 0, apperrors.NewInternalError("generated query rejected", err)
		}
	}

	var total int
	if err := executor(ctx, r.db).QueryRowContext(ctx, rq.Count.SQL, rq.Count.Params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count matching rows: %w", err)
	}
	if total == 0 || plan.Offset() >= total {
		return []models.Row{}, total, nil
	}

	rows, err := r.scanRows(ctx, rq.Page)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachCells(ctx, rows); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *RowRepository) scanRows(ctx context.Context, q query.QueryResult) ([]models.Row, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	out := []models.Row{}
	for rows.Next() {
		var row models.Row
		if err := rows.Scan(&row.ID, &row.TableID, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// attachCells loads the cells of rows in one query
func (r *RowRepository) attachCells(ctx context.Context, rows []models.Row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	index := make(map[int64]int, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
		index[rows[i].ID] = i
		rows[i].Cells = []models.Cell{}
	}

	q := query.CellsQuery(ids)
	cells, err := executor(ctx, r.db).QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return fmt.Errorf("failed to load cells: %w", err)
	}
	defer cells.Close()
	for cells.Next() {
		var c models.Cell
		if err := cells.Scan(&c.ID, &c.RowID, &c.ColumnID, &c.Value); err != nil {
			return fmt.Errorf("failed to scan cell: %w", err)
		}
		if i, ok := index[c.RowID]; ok {
			rows[i].Cells = append(rows[i].Cells, c)
		}
	}
	return cells.Err()
}
