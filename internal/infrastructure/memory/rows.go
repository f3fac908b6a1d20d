package memory

import (
	"context"
	"sort"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/filter"
)

// materialize returns the record's row with cells ordered by column id
func (rec *rowRecord) materialize() models.Row {
	row := rec.row
	row.Cells = make([]models.Cell, 0, len(rec.cells))
	for _, c := range rec.cells {
		row.Cells = append(row.Cells, c)
	}
	sort.Slice(row.Cells, func(i, j int) bool { return row.Cells[i].ColumnID < row.Cells[j].ColumnID })
	return row
}

func (s *Store) CreateRow(ctx context.Context, row *models.Row) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.tables[row.TableID]; !ok {
			return notFound("table", row.TableID)
		}
		row.ID = d.next(seqRows)
		if row.CreatedAt.IsZero() {
			row.CreatedAt = s.timestamp()
		}
		row.UpdatedAt = row.CreatedAt

		rec := &rowRecord{row: *row, cells: make(map[int64]models.Cell, len(row.Cells))}
		rec.row.Cells = nil
		for i := range row.Cells {
			row.Cells[i].ID = d.next(seqCells)
			row.Cells[i].RowID = row.ID
			rec.cells[row.Cells[i].ColumnID] = row.Cells[i]
		}
		d.rows[row.ID] = rec
		return nil
	})
}

func (s *Store) GetRow(_ context.Context, tableID, rowID int64) (*models.Row, error) {
	var out models.Row
	err := s.read(func(d *state) error {
		rec, ok := d.rows[rowID]
		if !ok || rec.row.TableID != tableID {
			return notFound("row", rowID)
		}
		out = rec.materialize()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetRows(_ context.Context, tableID int64, rowIDs []int64) ([]models.Row, error) {
	var wanted map[int64]bool
	if rowIDs != nil {
		wanted = make(map[int64]bool, len(rowIDs))
		for _, id := range rowIDs {
			wanted[id] = true
		}
	}

	out := []models.Row{}
	_ = s.read(func(d *state) error {
		for id, rec := range d.rows {
			if rec.row.TableID != tableID || (wanted != nil && !wanted[id]) {
				continue
			}
			out = append(out, rec.materialize())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ReplaceCells(ctx context.Context, rowID int64, upserts []models.Cell, deletes []int64, at time.Time) error {
	return s.write(ctx, func(d *state) error {
		rec, ok := d.rows[rowID]
		if !ok {
			return notFound("row", rowID)
		}
		for _, c := range upserts {
			if existing, ok := rec.cells[c.ColumnID]; ok {
				existing.Value = c.Value
				rec.cells[c.ColumnID] = existing
				continue
			}
			c.ID = d.next(seqCells)
			c.RowID = rowID
			rec.cells[c.ColumnID] = c
		}
		for _, colID := range deletes {
			delete(rec.cells, colID)
		}
		rec.row.UpdatedAt = at.UTC()
		return nil
	})
}

func (s *Store) DeleteRow(ctx context.Context, tableID, rowID int64) error {
	return s.write(ctx, func(d *state) error {
		rec, ok := d.rows[rowID]
		if !ok || rec.row.TableID != tableID {
			return notFound("row", rowID)
		}
		delete(d.rows, rowID)
		return nil
	})
}

func (s *Store) CountRows(_ context.Context, tenantID string) (int, error) {
	n := 0
	_ = s.read(func(d *state) error {
		for _, rec := range d.rows {
			if rec.row.TenantID == tenantID {
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (s *Store) ExistingRowIDs(_ context.Context, tableID int64, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	_ = s.read(func(d *state) error {
		for _, id := range ids {
			if rec, ok := d.rows[id]; ok && rec.row.TableID == tableID {
				found[id] = true
			}
		}
		return nil
	})
	return found, nil
}

// QueryRows evaluates the plan directly over the table's rows
func (s *Store) QueryRows(ctx context.Context, plan *filter.Plan) ([]models.Row, int, error) {
	rows, err := s.GetRows(ctx, plan.TableID, nil)
	if err != nil {
		return nil, 0, err
	}

	matched := rows[:0]
	for i := range rows {
		if plan.Match(&rows[i]) {
			matched = append(matched, rows[i])
		}
	}
	plan.SortRows(matched)

	total := len(matched)
	start := plan.Offset()
	if start >= total {
		return []models.Row{}, total, nil
	}
	end := min(start+plan.PageSize, total)
	return matched[start:end], total, nil
}
