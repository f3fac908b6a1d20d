package ports

import (
	"context"

	"github.com/nexuscrm/tablestore/internal/domain/models"
)

// AuditSink receives one record per grant, revoke, expiry and provisioning failure
type AuditSink interface {
	Record(ctx context.Context, record models.AuditRecord) error
}

// PlanLimits answers how much a tenant may store
type PlanLimits interface {
	MaxTables(ctx context.Context, tenantID string) (int, error)
	MaxRows(ctx context.Context, tenantID string) (int, error)
}

// FilterCacheInvalidator is the slice of the filter cache that write paths need
type FilterCacheInvalidator interface {
	InvalidateTable(ctx context.Context, tableID int64) (int, error)
	InvalidateFilters(ctx context.Context, tableID int64, columnIDs []int64) (int, error)
}
