package models

import "time"

// Row is one record of a table. Cells are sparse: a column without a cell has no value.
type Row struct {
	ID        int64     `json:"id"`
	TableID   int64     `json:"tableId"`
	TenantID  string    `json:"tenantId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Cells     []Cell    `json:"cells"`
}

// Cell returns the stored cell for a column.
func (r *Row) Cell(columnID int64) (*Cell, bool) {
	for i := range r.Cells {
		if r.Cells[i].ColumnID == columnID {
			return &r.Cells[i], true
		}
	}
	return nil, false
}

// Values returns the stored text of every cell keyed by column id.
func (r *Row) Values() map[int64]string {
	out := make(map[int64]string, len(r.Cells))
	for _, c := range r.Cells {
		out[c.ColumnID] = c.Value
	}
	return out
}

// Cell holds a value as text
type Cell struct {
	ID       int64  `json:"id"`
	RowID    int64  `json:"rowId"`
	ColumnID int64  `json:"columnId"`
	Value    string `json:"value"`
}

// RowView is a row with values coerced to their column types.
type RowView struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Values    map[string]any `json:"values"`
	Cells     []CellView     `json:"cells,omitempty"`
}

// CellView is an expanded cell returned when includeCells is requested.
type CellView struct {
	ColumnID   int64           `json:"columnId"`
	ColumnName string          `json:"columnName"`
	ColumnType string          `json:"columnType"`
	Value      any             `json:"value"`
	Reference  *ReferenceValue `json:"reference,omitempty"`
}

// ReferenceValue is the resolved target of a reference cell
type ReferenceValue struct {
	ID           int64  `json:"id"`
	DisplayValue string `json:"displayValue"`
}
