package models

import "time"

// Database groups tables within a tenant
type Database struct {
	ID          int64     `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Table is a tenant-defined table. Columns are ordered by Order then ID.
type Table struct {
	ID          int64     `json:"id"`
	TenantID    string    `json:"tenantId"`
	DatabaseID  int64     `json:"databaseId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPublic    bool      `json:"isPublic"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Columns     []Column  `json:"columns,omitempty"`
}

// Column returns the column with the given id.
func (t *Table) Column(id int64) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].ID == id {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnByName returns the column with the given name.
func (t *Table) ColumnByName(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryColumn returns the column flagged primary, if any.
func (t *Table) PrimaryColumn() (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Primary {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Column describes one attribute of a table
type Column struct {
	ID               int64     `json:"id"`
	TableID          int64     `json:"tableId"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	SemanticType     string    `json:"semanticType,omitempty"`
	Required         bool      `json:"required"`
	Primary          bool      `json:"primary"`
	Order            int       `json:"order"`
	ReferenceTableID *int64    `json:"referenceTableId,omitempty"`
	Options          []string  `json:"options,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// DatabaseInput is the request body for creating a database
type DatabaseInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// TableInput is the request body for creating a table
type TableInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// ColumnInput is a column definition to be created.
// ReferenceName is resolved against tables created earlier in the same batch,
// then against the tables of the same database.
type ColumnInput struct {
	Name             string   `json:"name" binding:"required"`
	Type             string   `json:"type"`
	SemanticType     string   `json:"semanticType,omitempty"`
	Required         bool     `json:"required"`
	Primary          bool     `json:"primary"`
	Order            *int     `json:"order,omitempty"`
	ReferenceTableID *int64   `json:"referenceTableId,omitempty"`
	ReferenceName    string   `json:"referenceName,omitempty"`
	Options          []string `json:"options,omitempty"`
}

// ColumnPatch carries optional column changes
type ColumnPatch struct {
	Name         *string   `json:"name,omitempty"`
	Type         *string   `json:"type,omitempty"`
	SemanticType *string   `json:"semanticType,omitempty"`
	Required     *bool     `json:"required,omitempty"`
	Order        *int      `json:"order,omitempty"`
	Options      *[]string `json:"options,omitempty"`
}

// ValidationRule rejects a row write when Condition evaluates to true.
type ValidationRule struct {
	ID           int64     `json:"id"`
	TableID      int64     `json:"tableId"`
	Name         string    `json:"name" binding:"required"`
	Condition    string    `json:"condition" binding:"required"`
	ErrorMessage string    `json:"errorMessage" binding:"required"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}
