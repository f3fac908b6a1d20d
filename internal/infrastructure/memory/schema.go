package memory

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
)

const (
	seqDatabases = "databases"
	seqTables    = "tables"
	seqColumns   = "columns"
	seqRows      = "rows"
	seqCells     = "cells"
	seqRules     = "rules"
	seqGrants    = "grants:"
)

func notFound(resource string, id int64) error {
	return apperrors.NewNotFoundError(resource, strconv.FormatInt(id, 10))
}

func (s *Store) CreateDatabase(ctx context.Context, db *models.Database) error {
	return s.write(ctx, func(d *state) error {
		for _, existing := range d.databases {
			if existing.TenantID == db.TenantID && existing.Name == db.Name {
				return apperrors.NewConflictError("database", constants.FieldName, db.Name)
			}
		}
		db.ID = d.next(seqDatabases)
		if db.CreatedAt.IsZero() {
			db.CreatedAt = s.timestamp()
		}
		d.databases[db.ID] = *db
		return nil
	})
}

func (s *Store) GetDatabase(_ context.Context, id int64) (*models.Database, error) {
	var out models.Database
	err := s.read(func(d *state) error {
		db, ok := d.databases[id]
		if !ok {
			return notFound("database", id)
		}
		out = db
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListDatabases(_ context.Context, tenantID string) ([]models.Database, error) {
	out := []models.Database{}
	_ = s.read(func(d *state) error {
		for _, db := range d.databases {
			if db.TenantID == tenantID {
				out = append(out, db)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateTable(ctx context.Context, table *models.Table) error {
	return s.write(ctx, func(d *state) error {
		for _, existing := range d.tables {
			if existing.DatabaseID == table.DatabaseID && existing.Name == table.Name {
				return apperrors.NewConflictError("table", constants.FieldName, table.Name)
			}
		}
		table.ID = d.next(seqTables)
		if table.CreatedAt.IsZero() {
			table.CreatedAt = s.timestamp()
		}
		table.UpdatedAt = table.CreatedAt
		stored := *table
		stored.Columns = nil
		d.tables[table.ID] = stored
		return nil
	})
}

func (s *Store) GetTable(_ context.Context, id int64) (*models.Table, error) {
	var out *models.Table
	err := s.read(func(d *state) error {
		t, ok := d.tables[id]
		if !ok {
			return notFound("table", id)
		}
		out = d.withColumns(t)
		return nil
	})
	return out, err
}

func (s *Store) GetTableByName(_ context.Context, databaseID int64, name string) (*models.Table, error) {
	var out *models.Table
	err := s.read(func(d *state) error {
		for _, t := range d.tables {
			if t.DatabaseID == databaseID && t.Name == name {
				out = d.withColumns(t)
				return nil
			}
		}
		return apperrors.NewNotFoundError("table", name)
	})
	return out, err
}

// withColumns returns t with its columns ordered by Order then ID
func (d *state) withColumns(t models.Table) *models.Table {
	t.Columns = []models.Column{}
	for _, c := range d.columns {
		if c.TableID == t.ID {
			c.Options = slices.Clone(c.Options)
			t.Columns = append(t.Columns, c)
		}
	}
	sort.Slice(t.Columns, func(i, j int) bool {
		if t.Columns[i].Order != t.Columns[j].Order {
			return t.Columns[i].Order < t.Columns[j].Order
		}
		return t.Columns[i].ID < t.Columns[j].ID
	})
	return &t
}

func (s *Store) ListTables(_ context.Context, databaseID int64) ([]models.Table, error) {
	out := []models.Table{}
	_ = s.read(func(d *state) error {
		for _, t := range d.tables {
			if t.DatabaseID == databaseID {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountTables(_ context.Context, tenantID string) (int, error) {
	n := 0
	_ = s.read(func(d *state) error {
		for _, t := range d.tables {
			if t.TenantID == tenantID {
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (s *Store) DeleteTable(ctx context.Context, id int64) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.tables[id]; !ok {
			return notFound("table", id)
		}
		for rowID, rec := range d.rows {
			if rec.row.TableID == id {
				delete(d.rows, rowID)
			}
		}
		for colID, c := range d.columns {
			if c.TableID == id {
				delete(d.columns, colID)
			} else if c.ReferenceTableID != nil && *c.ReferenceTableID == id {
				c.ReferenceTableID = nil
				d.columns[colID] = c
			}
		}
		for ruleID, r := range d.rules {
			if r.TableID == id {
				delete(d.rules, ruleID)
			}
		}
		for _, rt := range []string{constants.ResourceTable, constants.ResourceColumn} {
			for grantID, g := range d.grants[rt] {
				if g.TableID == id {
					delete(d.grants[rt], grantID)
				}
			}
		}
		delete(d.tables, id)
		return nil
	})
}

func (s *Store) TouchTable(ctx context.Context, id int64, at time.Time) error {
	return s.write(ctx, func(d *state) error {
		t, ok := d.tables[id]
		if !ok {
			return notFound("table", id)
		}
		t.UpdatedAt = at.UTC()
		d.tables[id] = t
		return nil
	})
}

func (s *Store) CreateColumn(ctx context.Context, column *models.Column) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.tables[column.TableID]; !ok {
			return notFound("table", column.TableID)
		}
		for _, existing := range d.columns {
			if existing.TableID == column.TableID && existing.Name == column.Name {
				return apperrors.NewConflictError("column", constants.FieldName, column.Name)
			}
		}
		column.ID = d.next(seqColumns)
		if column.CreatedAt.IsZero() {
			column.CreatedAt = s.timestamp()
		}
		stored := *column
		stored.Options = slices.Clone(column.Options)
		d.columns[column.ID] = stored
		return nil
	})
}

func (s *Store) GetColumn(_ context.Context, id int64) (*models.Column, error) {
	var out models.Column
	err := s.read(func(d *state) error {
		c, ok := d.columns[id]
		if !ok {
			return notFound("column", id)
		}
		out = c
		out.Options = slices.Clone(c.Options)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateColumn(ctx context.Context, column *models.Column) error {
	return s.write(ctx, func(d *state) error {
		current, ok := d.columns[column.ID]
		if !ok {
			return notFound("column", column.ID)
		}
		for id, existing := range d.columns {
			if id != column.ID && existing.TableID == current.TableID && existing.Name == column.Name {
				return apperrors.NewConflictError("column", constants.FieldName, column.Name)
			}
		}
		current.Name = column.Name
		current.Type = column.Type
		current.SemanticType = column.SemanticType
		current.Required = column.Required
		current.Order = column.Order
		current.ReferenceTableID = column.ReferenceTableID
		current.Options = slices.Clone(column.Options)
		d.columns[column.ID] = current
		return nil
	})
}

func (s *Store) DeleteColumn(ctx context.Context, id int64) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.columns[id]; !ok {
			return notFound("column", id)
		}
		for _, rec := range d.rows {
			delete(rec.cells, id)
		}
		for grantID, g := range d.grants[constants.ResourceColumn] {
			if g.ResourceID == id {
				delete(d.grants[constants.ResourceColumn], grantID)
			}
		}
		delete(d.columns, id)
		return nil
	})
}
