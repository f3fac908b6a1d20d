package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/metrics"
	"go.uber.org/zap"
)

// systemActor is the audit actor of background jobs
const systemActor = "system"

// PermissionService answers table, column and dashboard authorization
// questions from expiring grants.
//
// Every decision reads the grant store with the current time, so an expired
// grant denies access whether or not the sweep has removed it yet.
//
// Evaluation order:
//  1. Tenant admins are allowed everything inside their tenant
//  2. Column grants, when any exist for the column, decide for that column
//  3. Table grants, then table visibility (public tables are readable)
type PermissionService struct {
	tx     ports.Transactor
	schema ports.SchemaRepository
	grants ports.GrantRepository
	audit  ports.AuditSink
	now    func() time.Time
}

// NewPermissionService creates a new PermissionService
func NewPermissionService(tx ports.Transactor, schema ports.SchemaRepository, grants ports.GrantRepository, audit ports.AuditSink, now func() time.Time) *PermissionService {
	return &PermissionService{tx: tx, schema: schema, grants: grants, audit: audit, now: now}
}

func validateTarget(resourceType, action string) error {
	if !constants.IsValidResourceType(resourceType) {
		return apperrors.NewValidationError("resourceType", fmt.Sprintf("unknown resource type '%s'", resourceType))
	}
	if !constants.IsValidAction(action) {
		return apperrors.NewValidationError("action", fmt.Sprintf("unknown action '%s'", action))
	}
	return nil
}

func anyAllows(grants []models.Grant, action string) bool {
	for i := range grants {
		if grants[i].Allows(action) {
			return true
		}
	}
	return false
}

// Authorize reports whether the user may perform action on the resource.
// Resources that do not exist, or belong to another tenant, are denied.
func (ps *PermissionService) Authorize(ctx context.Context, req models.AuthorizeRequest) (bool, error) {
	if err := validateTarget(req.ResourceType, req.Action); err != nil {
		return false, err
	}
	now := ps.now()

	switch req.ResourceType {
	case constants.ResourceTable:
		table, err := ps.tenantTable(ctx, req.TenantID, req.ResourceID)
		if table == nil || err != nil {
			return false, err
		}
		return ps.tableAllows(ctx, req, table, now)

	case constants.ResourceColumn:
		col, err := ps.schema.GetColumn(ctx, req.ResourceID)
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		table, err := ps.tenantTable(ctx, req.TenantID, col.TableID)
		if table == nil || err != nil {
			return false, err
		}
		grants, err := ps.grants.ActiveGrants(ctx, req.TenantID, req.UserID, constants.ResourceColumn, col.ID, now)
		if err != nil {
			return false, err
		}
		if len(grants) > 0 {
			return anyAllows(grants, req.Action), nil
		}
		return ps.tableAllows(ctx, req, table, now)

	default:
		grants, err := ps.grants.ActiveGrants(ctx, req.TenantID, req.UserID, constants.ResourceDashboard, req.ResourceID, now)
		if err != nil {
			return false, err
		}
		return anyAllows(grants, req.Action), nil
	}
}

// tenantTable returns nil without error when the table is missing or foreign
func (ps *PermissionService) tenantTable(ctx context.Context, tenantID string, tableID int64) (*models.Table, error) {
	table, err := ps.schema.GetTable(ctx, tableID)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if table.TenantID != tenantID {
		return nil, nil
	}
	return table, nil
}

func (ps *PermissionService) tableAllows(ctx context.Context, req models.AuthorizeRequest, table *models.Table, now time.Time) (bool, error) {
	grants, err := ps.grants.ActiveGrants(ctx, req.TenantID, req.UserID, constants.ResourceTable, table.ID, now)
	if err != nil {
		return false, err
	}
	if anyAllows(grants, req.Action) {
		return true, nil
	}
	return table.IsPublic && req.Action == constants.ActionRead, nil
}

// AuthorizeUser is Authorize for a session. Tenant admins bypass grants for
// resources of their own tenant.
func (ps *PermissionService) AuthorizeUser(ctx context.Context, user *models.UserSession, resourceType string, resourceID int64, action string) (bool, error) {
	if user == nil {
		return false, nil
	}
	req := models.AuthorizeRequest{
		UserID:       user.ID,
		TenantID:     user.TenantID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
	}
	if !user.IsTenantAdmin {
		return ps.Authorize(ctx, req)
	}

	if err := validateTarget(resourceType, action); err != nil {
		return false, err
	}
	switch resourceType {
	case constants.ResourceTable:
		table, err := ps.tenantTable(ctx, user.TenantID, resourceID)
		return table != nil, err
	case constants.ResourceColumn:
		col, err := ps.schema.GetColumn(ctx, resourceID)
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		table, err := ps.tenantTable(ctx, user.TenantID, col.TableID)
		return table != nil, err
	}
	return true, nil
}

// Require returns a PermissionError unless the user may perform action
func (ps *PermissionService) Require(ctx context.Context, user *models.UserSession, resourceType string, resourceID int64, action string) error {
	ok, err := ps.AuthorizeUser(ctx, user, resourceType, resourceID, action)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewPermissionError(action, resourceType)
	}
	return nil
}

// RequireTable is Require for a table
func (ps *PermissionService) RequireTable(ctx context.Context, user *models.UserSession, tableID int64, action string) error {
	return ps.Require(ctx, user, constants.ResourceTable, tableID, action)
}

// RequireAdmin rejects everyone but tenant admins
func (ps *PermissionService) RequireAdmin(user *models.UserSession) error {
	if user == nil || !user.IsTenantAdmin {
		return apperrors.NewPermissionError("administer", "tenant")
	}
	return nil
}

// TableAccess is what one user may read of one table
type TableAccess struct {
	CanRead bool
	columns map[int64]bool
}

// ColumnReadable reports whether the column's values may be returned
func (a *TableAccess) ColumnReadable(columnID int64) bool {
	return a.columns[columnID]
}

// TableAccess evaluates the user's read access to a table and all of its
// columns with a single grant lookup
func (ps *PermissionService) TableAccess(ctx context.Context, user *models.UserSession, table *models.Table) (*TableAccess, error) {
	access := &TableAccess{columns: make(map[int64]bool, len(table.Columns))}
	if user == nil || table.TenantID != user.TenantID {
		return access, nil
	}
	if user.IsTenantAdmin {
		access.CanRead = true
		for _, c := range table.Columns {
			access.columns[c.ID] = true
		}
		return access, nil
	}

	grants, err := ps.grants.ActiveTableGrants(ctx, user.TenantID, user.ID, table.ID, ps.now())
	if err != nil {
		return nil, err
	}
	tableRead := table.IsPublic || anyAllows(grants.Table, constants.ActionRead)
	access.CanRead = tableRead
	for _, c := range table.Columns {
		readable := tableRead
		if cg := grants.Columns[c.ID]; len(cg) > 0 {
			readable = anyAllows(cg, constants.ActionRead)
		}
		access.columns[c.ID] = readable
		access.CanRead = access.CanRead || readable
	}
	return access, nil
}

// GrantPermission stores a grant and records it in the audit log
func (ps *PermissionService) GrantPermission(ctx context.Context, actor *models.UserSession, req models.GrantRequest) (*models.Grant, error) {
	if !constants.IsValidResourceType(req.ResourceType) {
		return nil, apperrors.NewValidationError("resourceType", fmt.Sprintf("unknown resource type '%s'", req.ResourceType))
	}
	if !req.CanRead && !req.CanEdit && !req.CanDelete {
		return nil, apperrors.NewValidationError("permissions", "a grant must allow at least one action")
	}
	now := ps.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apperrors.NewValidationError("expiresAt", "expiry must be in the future")
	}

	grant := &models.Grant{
		TenantID:     actor.TenantID,
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		CanRead:      req.CanRead,
		CanEdit:      req.CanEdit,
		CanDelete:    req.CanDelete,
		ExpiresAt:    req.ExpiresAt,
		GrantedBy:    actor.ID,
		CreatedAt:    now.UTC(),
	}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		grant.ExpiresAt = &exp
	}

	err := ps.tx.WithTransaction(ctx, func(ctx context.Context) error {
		switch req.ResourceType {
		case constants.ResourceTable:
			if _, err := tableForTenant(ctx, ps.schema, actor.TenantID, req.ResourceID); err != nil {
				return err
			}
		case constants.ResourceColumn:
			col, err := ps.schema.GetColumn(ctx, req.ResourceID)
			if err != nil {
				return err
			}
			if _, err := tableForTenant(ctx, ps.schema, actor.TenantID, col.TableID); err != nil {
				return apperrors.NewNotFoundError("column", strconv.FormatInt(req.ResourceID, 10))
			}
			grant.TableID = col.TableID
		}
		if err := ps.grants.CreateGrant(ctx, grant); err != nil {
			return err
		}
		return ps.audit.Record(ctx, grantAudit(constants.AuditPermissionGranted, actor.ID, grant))
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("🔑 Permission granted",
		zap.String("resource_type", grant.ResourceType),
		zap.Int64("resource_id", grant.ResourceID),
		zap.String("user_id", grant.UserID))
	return grant, nil
}

// RevokePermission deletes a grant of the actor's tenant and records it in the audit log
func (ps *PermissionService) RevokePermission(ctx context.Context, actor *models.UserSession, resourceType string, grantID int64) error {
	err := ps.tx.WithTransaction(ctx, func(ctx context.Context) error {
		grant, err := ps.grants.GetGrant(ctx, resourceType, grantID)
		if err != nil {
			return err
		}
		if grant.TenantID != actor.TenantID {
			return apperrors.NewNotFoundError("grant", strconv.FormatInt(grantID, 10))
		}
		if err := ps.grants.DeleteGrant(ctx, resourceType, grantID); err != nil {
			return err
		}
		return ps.audit.Record(ctx, grantAudit(constants.AuditPermissionRevoked, actor.ID, grant))
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("🔒 Permission revoked", zap.String("resource_type", resourceType), zap.Int64("grant_id", grantID))
	return nil
}

func grantAudit(action, actorID string, g *models.Grant) models.AuditRecord {
	details := map[string]any{
		"grantId":   g.ID,
		"canRead":   g.CanRead,
		"canEdit":   g.CanEdit,
		"canDelete": g.CanDelete,
	}
	if g.ExpiresAt != nil {
		details["expiresAt"] = g.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if g.TableID != 0 && g.ResourceType == constants.ResourceColumn {
		details["tableId"] = g.TableID
	}
	return models.AuditRecord{
		TenantID:     g.TenantID,
		ActorID:      actorID,
		Action:       action,
		ResourceType: g.ResourceType,
		ResourceID:   strconv.FormatInt(g.ResourceID, 10),
		UserID:       g.UserID,
		Details:      details,
	}
}

// ListGrants returns the tenant's grants, optionally for one user
func (ps *PermissionService) ListGrants(ctx context.Context, tenantID, userID string) ([]models.Grant, error) {
	return ps.grants.ListGrants(ctx, tenantID, userID)
}

// SweepExpiredGrants deletes every grant with expires_at <= now and records
// one audit entry per deleted grant. Each resource type is swept in its own
// transaction; a failing type does not stop the others.
func (ps *PermissionService) SweepExpiredGrants(ctx context.Context) (models.SweepResult, error) {
	var (
		result models.SweepResult
		errs   []error
	)
	now := ps.now()
	log := logger.FromContext(ctx)

	for _, rt := range []string{constants.ResourceTable, constants.ResourceColumn, constants.ResourceDashboard} {
		var removed []models.Grant
		err := ps.tx.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			removed, err = ps.grants.DeleteExpired(ctx, rt, now)
			if err != nil {
				return err
			}
			for i := range removed {
				record := grantAudit(constants.AuditPermissionExpired, systemActor, &removed[i])
				if err := ps.audit.Record(ctx, record); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Error("❌ Permission sweep failed", zap.String("resource_type", rt), zap.Error(err))
			errs = append(errs, fmt.Errorf("sweep %s grants: %w", rt, err))
			continue
		}

		switch rt {
		case constants.ResourceTable:
			result.TablePermissions = len(removed)
		case constants.ResourceColumn:
			result.ColumnPermissions = len(removed)
		case constants.ResourceDashboard:
			result.DashboardPermissions = len(removed)
		}
		if len(removed) > 0 {
			metrics.PermissionSweepRevocations.WithLabelValues(rt).Add(float64(len(removed)))
		}
	}

	log.Info("🧹 Permission sweep finished",
		zap.Int("table", result.TablePermissions),
		zap.Int("column", result.ColumnPermissions),
		zap.Int("dashboard", result.DashboardPermissions))
	return result, errors.Join(errs...)
}

// MaxExpiringWindowDays bounds the look-ahead of ListExpiringSoon
const MaxExpiringWindowDays = 3650

// ListExpiringSoon returns the tenant's grants expiring within the next withinDays days
func (ps *PermissionService) ListExpiringSoon(ctx context.Context, tenantID string, withinDays int) ([]models.Grant, error) {
	if withinDays <= 0 {
		return nil, apperrors.NewValidationError("withinDays", "withinDays must be positive")
	}
	if withinDays > MaxExpiringWindowDays {
		return nil, apperrors.NewValidationError("withinDays", fmt.Sprintf("withinDays must not exceed %d", MaxExpiringWindowDays))
	}
	now := ps.now()
	return ps.grants.ExpiringBetween(ctx, tenantID, now, now.AddDate(0, 0, withinDays))
}
