package ports

import (
	"context"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/filter"
)

// Transactor runs fn atomically. Repository calls made with the ctx passed
// to fn join the transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SchemaRepository stores databases, tables and columns.
// Lookups of missing entities return a NotFoundError.
type SchemaRepository interface {
	CreateDatabase(ctx context.Context, db *models.Database) error
	GetDatabase(ctx context.Context, id int64) (*models.Database, error)
	ListDatabases(ctx context.Context, tenantID string) ([]models.Database, error)

	CreateTable(ctx context.Context, table *models.Table) error
	// GetTable returns the table with its columns ordered by Order then ID
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	GetTableByName(ctx context.Context, databaseID int64, name string) (*models.Table, error)
	ListTables(ctx context.Context, databaseID int64) ([]models.Table, error)
	CountTables(ctx context.Context, tenantID string) (int, error)
	// DeleteTable removes the table with its columns, rows, cells, rules and grants
	DeleteTable(ctx context.Context, id int64) error
	TouchTable(ctx context.Context, id int64, at time.Time) error

	CreateColumn(ctx context.Context, column *models.Column) error
	GetColumn(ctx context.Context, id int64) (*models.Column, error)
	UpdateColumn(ctx context.Context, column *models.Column) error
	// DeleteColumn removes the column, its cells and its column grants
	DeleteColumn(ctx context.Context, id int64) error
}

// RowRepository stores rows and their cells
type RowRepository interface {
	// CreateRow inserts the row and its cells, assigning ids
	CreateRow(ctx context.Context, row *models.Row) error
	GetRow(ctx context.Context, tableID, rowID int64) (*models.Row, error)
	// GetRows returns rows of the table in id order. Nil ids means every row.
	GetRows(ctx context.Context, tableID int64, rowIDs []int64) ([]models.Row, error)
	// ReplaceCells upserts the given cells and deletes the cells of the
	// listed columns, then bumps the row's updated_at
	ReplaceCells(ctx context.Context, rowID int64, upserts []models.Cell, deletes []int64, at time.Time) error
	DeleteRow(ctx context.Context, tableID, rowID int64) error
	CountRows(ctx context.Context, tenantID string) (int, error)
	// ExistingRowIDs returns which of ids are rows of the table
	ExistingRowIDs(ctx context.Context, tableID int64, ids []int64) (map[int64]bool, error)
	// QueryRows answers a compiled plan: the page of rows (with cells) and the total match count
	QueryRows(ctx context.Context, plan *filter.Plan) ([]models.Row, int, error)
}

// RuleRepository stores table validation rules
type RuleRepository interface {
	CreateRule(ctx context.Context, rule *models.ValidationRule) error
	GetRule(ctx context.Context, id int64) (*models.ValidationRule, error)
	ListRules(ctx context.Context, tableID int64, activeOnly bool) ([]models.ValidationRule, error)
	DeleteRule(ctx context.Context, id int64) error
}

// GrantRepository stores table, column and dashboard grants. Every read
// that serves an authorization decision filters on expires_at > now itself.
type GrantRepository interface {
	CreateGrant(ctx context.Context, grant *models.Grant) error
	GetGrant(ctx context.Context, resourceType string, id int64) (*models.Grant, error)
	DeleteGrant(ctx context.Context, resourceType string, id int64) error

	// ActiveGrants returns the user's unexpired grants on one resource
	ActiveGrants(ctx context.Context, tenantID, userID, resourceType string, resourceID int64, now time.Time) ([]models.Grant, error)
	// ActiveTableGrants returns the user's unexpired grants on a table and all of its columns
	ActiveTableGrants(ctx context.Context, tenantID, userID string, tableID int64, now time.Time) (*models.TableGrants, error)
	// ListGrants returns the tenant's grants, optionally limited to one user
	ListGrants(ctx context.Context, tenantID, userID string) ([]models.Grant, error)
	// ExpiringBetween returns grants with from < expires_at <= to
	ExpiringBetween(ctx context.Context, tenantID string, from, to time.Time) ([]models.Grant, error)
	// DeleteExpired removes grants of one resource type with expires_at <= now and returns them
	DeleteExpired(ctx context.Context, resourceType string, now time.Time) ([]models.Grant, error)
}
