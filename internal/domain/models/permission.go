package models

import (
	"time"

	"github.com/nexuscrm/tablestore/pkg/constants"
)

// Grant authorizes a user for actions on a table, column or dashboard.
// TableID is the owning table for table and column grants.
type Grant struct {
	ID           int64      `json:"id"`
	TenantID     string     `json:"tenantId"`
	UserID       string     `json:"userId"`
	ResourceType string     `json:"resourceType"`
	ResourceID   int64      `json:"resourceId"`
	TableID      int64      `json:"tableId,omitempty"`
	CanRead      bool       `json:"canRead"`
	CanEdit      bool       `json:"canEdit"`
	CanDelete    bool       `json:"canDelete"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	GrantedBy    string     `json:"grantedBy,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Allows reports whether the grant carries the action flag.
func (g *Grant) Allows(action string) bool {
	switch action {
	case constants.ActionRead:
		return g.CanRead
	case constants.ActionEdit:
		return g.CanEdit
	case constants.ActionDelete:
		return g.CanDelete
	}
	return false
}

// ActiveAt reports whether the grant is unexpired at now.
func (g *Grant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// AuthorizeRequest asks whether a user may perform action on a resource
type AuthorizeRequest struct {
	UserID       string `json:"userId"`
	TenantID     string `json:"tenantId"`
	ResourceType string `json:"resourceType" binding:"required"`
	ResourceID   int64  `json:"resourceId" binding:"required"`
	Action       string `json:"action" binding:"required"`
}

// GrantRequest creates a grant
type GrantRequest struct {
	UserID       string     `json:"userId" binding:"required"`
	ResourceType string     `json:"resourceType" binding:"required"`
	ResourceID   int64      `json:"resourceId" binding:"required"`
	CanRead      bool       `json:"canRead"`
	CanEdit      bool       `json:"canEdit"`
	CanDelete    bool       `json:"canDelete"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// SweepResult counts the grants removed by one sweep
type SweepResult struct {
	TablePermissions     int `json:"tablePermissions"`
	ColumnPermissions    int `json:"columnPermissions"`
	DashboardPermissions int `json:"dashboardPermissions"`
}

// Total returns the number of grants removed
func (r SweepResult) Total() int {
	return r.TablePermissions + r.ColumnPermissions + r.DashboardPermissions
}

// TableGrants holds every unexpired grant a user has on one table and its columns.
type TableGrants struct {
	Table   []Grant
	Columns map[int64][]Grant
}
