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

// grantTable describes the physical table of one resource type
type grantTable struct {
	resourceType  string
	name          string
	resourceField string
	// withTable is set for column grants, which also store their owning table
	withTable bool
}

var grantTables = []grantTable{
	{resourceType: constants.ResourceTable, name: constants.TableTablePermissions, resourceField: constants.FieldTableID},
	{resourceType: constants.ResourceColumn, name: constants.TableColumnPermissions, resourceField: constants.FieldColumnID, withTable: true},
	{resourceType: constants.ResourceDashboard, name: constants.TableDashboardPermissions, resourceField: constants.FieldDashboardID},
}

func grantTableFor(resourceType string) (grantTable, error) {
	for _, gt := range grantTables {
		if gt.resourceType == resourceType {
			return gt, nil
		}
	}
	return grantTable{}, apperrors.NewValidationError("resourceType", fmt.Sprintf("unknown resource type '%s'", resourceType))
}

func (gt grantTable) columns() []string {
	cols := []string{constants.FieldID, constants.FieldTenantID, constants.FieldUserID, gt.resourceField}
	if gt.withTable {
		cols = append(cols, constants.FieldTableID)
	}
	return append(cols,
		constants.FieldCanRead, constants.FieldCanEdit, constants.FieldCanDelete,
		constants.FieldExpiresAt, constants.FieldGrantedBy, constants.FieldCreatedAt)
}

func (gt grantTable) selectSQL(where string) string {
	return fmt.Sprintf("SELECT %s FROM `%s` WHERE %s ORDER BY `%s` ASC",
		columnList(gt.columns()...), gt.name, where, constants.FieldID)
}

func (gt grantTable) scan(s scanner) (*models.Grant, error) {
	g := models.Grant{ResourceType: gt.resourceType}
	var expires sql.NullTime
	var grantedBy sql.NullString
	dest := []interface{}{&g.ID, &g.TenantID, &g.UserID, &g.ResourceID}
	if gt.withTable {
		dest = append(dest, &g.TableID)
	}
	dest = append(dest, &g.CanRead, &g.CanEdit, &g.CanDelete, &expires, &grantedBy, &g.CreatedAt)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	g.ExpiresAt = timePtr(expires)
	g.GrantedBy = grantedBy.String
	if gt.resourceType == constants.ResourceTable {
		g.TableID = g.ResourceID
	}
	return &g, nil
}

// GrantRepository stores table, column and dashboard grants
type GrantRepository struct {
	db *sql.DB
}

// NewGrantRepository creates a new GrantRepository
func NewGrantRepository(db *sql.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) CreateGrant(ctx context.Context, grant *models.Grant) error {
	gt, err := grantTableFor(grant.ResourceType)
	if err != nil {
		return err
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = utcNow()
	}
	values := map[string]interface{}{
		constants.FieldTenantID:  grant.TenantID,
		constants.FieldUserID:    grant.UserID,
		gt.resourceField:         grant.ResourceID,
		constants.FieldCanRead:   grant.CanRead,
		constants.FieldCanEdit:   grant.CanEdit,
		constants.FieldCanDelete: grant.CanDelete,
		constants.FieldExpiresAt: nullTime(grant.ExpiresAt),
		constants.FieldGrantedBy: nullString(grant.GrantedBy),
		constants.FieldCreatedAt: grant.CreatedAt,
	}
	if gt.withTable {
		values[constants.FieldTableID] = grant.TableID
	}
	q := query.Insert(gt.name, values).Build()

	res, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return fmt.Errorf("failed to insert %s grant: %w", gt.resourceType, err)
	}
	if grant.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read grant id: %w", err)
	}
	return nil
}

func (r *GrantRepository) GetGrant(ctx context.Context, resourceType string, id int64) (*models.Grant, error) {
	gt, err := grantTableFor(resourceType)
	if err != nil {
		return nil, err
	}
	q := gt.selectSQL(fmt.Sprintf("`%s` = ?", constants.FieldID))
	g, err := gt.scan(executor(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("grant", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return g, nil
}

func (r *GrantRepository) DeleteGrant(ctx context.Context, resourceType string, id int64) error {
	gt, err := grantTableFor(resourceType)
	if err != nil {
		return err
	}
	res, err := executor(ctx, r.db).ExecContext(ctx,
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", gt.name, constants.FieldID), id)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	return requireAffected(res, "grant", id)
}

// unexpired is the predicate every authorization read carries
func unexpired() string {
	return fmt.Sprintf("(`%s` IS NULL OR `%s` > ?)", constants.FieldExpiresAt, constants.FieldExpiresAt)
}

func (r *GrantRepository) ActiveGrants(ctx context.Context, tenantID, userID, resourceType string, resourceID int64, now time.Time) ([]models.Grant, error) {
	gt, err := grantTableFor(resourceType)
	if err != nil {
		return nil, err
	}
	where := fmt.Sprintf("`%s` = ? AND `%s` = ? AND `%s` = ? AND %s",
		constants.FieldTenantID, constants.FieldUserID, gt.resourceField, unexpired())
	return r.list(ctx, gt, where, tenantID, userID, resourceID, now.UTC())
}

func (r *GrantRepository) ActiveTableGrants(ctx context.Context, tenantID, userID string, tableID int64, now time.Time) (*models.TableGrants, error) {
	where := fmt.Sprintf("`%s` = ? AND `%s` = ? AND `%s` = ? AND %s",
		constants.FieldTenantID, constants.FieldUserID, constants.FieldTableID, unexpired())

	tableGrants, err := r.list(ctx, grantTables[0], where, tenantID, userID, tableID, now.UTC())
	if err != nil {
		return nil, err
	}
	columnGrants, err := r.list(ctx, grantTables[1], where, tenantID, userID, tableID, now.UTC())
	if err != nil {
		return nil, err
	}

	out := &models.TableGrants{Table: tableGrants, Columns: make(map[int64][]models.Grant)}
	for _, g := range columnGrants {
		out.Columns[g.ResourceID] = append(out.Columns[g.ResourceID], g)
	}
	return out, nil
}

func (r *GrantRepository) ListGrants(ctx context.Context, tenantID, userID string) ([]models.Grant, error) {
	where := fmt.Sprintf("`%s` = ?", constants.FieldTenantID)
	args := []interface{}{tenantID}
	if userID != "" {
		where += fmt.Sprintf(" AND `%s` = ?", constants.FieldUserID)
		args = append(args, userID)
	}

	out := []models.Grant{}
	for _, gt := range grantTables {
		grants, err := r.list(ctx, gt, where, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, grants...)
	}
	return out, nil
}

func (r *GrantRepository) ExpiringBetween(ctx context.Context, tenantID string, from, to time.Time) ([]models.Grant, error) {
	where := fmt.Sprintf("`%s` = ? AND `%s` > ? AND `%s` <= ?",
		constants.FieldTenantID, constants.FieldExpiresAt, constants.FieldExpiresAt)

	out := []models.Grant{}
	for _, gt := range grantTables {
		grants, err := r.list(ctx, gt, where, tenantID, from.UTC(), to.UTC())
		if err != nil {
			return nil, err
		}
		out = append(out, grants...)
	}
	return out, nil
}

// DeleteExpired selects then deletes by id. Inside a transaction the
// selected rows are locked, so every returned grant was really removed.
func (r *GrantRepository) DeleteExpired(ctx context.Context, resourceType string, now time.Time) ([]models.Grant, error) {
	gt, err := grantTableFor(resourceType)
	if err != nil {
		return nil, err
	}
	where := fmt.Sprintf("`%s` IS NOT NULL AND `%s` <= ?", constants.FieldExpiresAt, constants.FieldExpiresAt)
	q := gt.selectSQL(where)
	if ExtractTx(ctx) != nil {
		q += " FOR UPDATE"
	}
	expired, err := r.query(ctx, gt, q, now.UTC())
	if err != nil || len(expired) == 0 {
		return expired, err
	}

	ids := make([]int64, len(expired))
	for i, g := range expired {
		ids[i] = g.ID
	}
	del := query.Delete(gt.name).WhereIn(fmt.Sprintf("`%s`", constants.FieldID), int64Args(ids)).Build()
	if _, err := executor(ctx, r.db).ExecContext(ctx, del.SQL, del.Params...); err != nil {
		return nil, fmt.Errorf("failed to delete expired %s grants: %w", gt.resourceType, err)
	}
	return expired, nil
}

func (r *GrantRepository) list(ctx context.Context, gt grantTable, where string, args ...interface{}) ([]models.Grant, error) {
	return r.query(ctx, gt, gt.selectSQL(where), args...)
}

func (r *GrantRepository) query(ctx context.Context, gt grantTable, q string, args ...interface{}) ([]models.Grant, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s grants: %w", gt.resourceType, err)
	}
	defer rows.Close()

	out := []models.Grant{}
	for rows.Next() {
		g, err := gt.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
