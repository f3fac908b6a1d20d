package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
)

var resourceTypes = []string{constants.ResourceTable, constants.ResourceColumn, constants.ResourceDashboard}

func checkResourceType(rt string) error {
	if !constants.IsValidResourceType(rt) {
		return apperrors.NewValidationError("resourceType", fmt.Sprintf("unknown resource type '%s'", rt))
	}
	return nil
}

func sortGrants(grants []models.Grant) {
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
}

func (s *Store) CreateGrant(ctx context.Context, grant *models.Grant) error {
	if err := checkResourceType(grant.ResourceType); err != nil {
		return err
	}
	return s.write(ctx, func(d *state) error {
		if d.grants[grant.ResourceType] == nil {
			d.grants[grant.ResourceType] = make(map[int64]models.Grant)
		}
		grant.ID = d.next(seqGrants + grant.ResourceType)
		if grant.CreatedAt.IsZero() {
			grant.CreatedAt = s.timestamp()
		}
		if grant.ResourceType == constants.ResourceTable {
			grant.TableID = grant.ResourceID
		}
		d.grants[grant.ResourceType][grant.ID] = *grant
		return nil
	})
}

func (s *Store) GetGrant(_ context.Context, resourceType string, id int64) (*models.Grant, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}
	var out models.Grant
	err := s.read(func(d *state) error {
		g, ok := d.grants[resourceType][id]
		if !ok {
			return notFound("grant", id)
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteGrant(ctx context.Context, resourceType string, id int64) error {
	if err := checkResourceType(resourceType); err != nil {
		return err
	}
	return s.write(ctx, func(d *state) error {
		if _, ok := d.grants[resourceType][id]; !ok {
			return notFound("grant", id)
		}
		delete(d.grants[resourceType], id)
		return nil
	})
}

func (s *Store) ActiveGrants(_ context.Context, tenantID, userID, resourceType string, resourceID int64, now time.Time) ([]models.Grant, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}
	out := []models.Grant{}
	_ = s.read(func(d *state) error {
		for _, g := range d.grants[resourceType] {
			if g.TenantID == tenantID && g.UserID == userID && g.ResourceID == resourceID && g.ActiveAt(now) {
				out = append(out, g)
			}
		}
		return nil
	})
	sortGrants(out)
	return out, nil
}

func (s *Store) ActiveTableGrants(_ context.Context, tenantID, userID string, tableID int64, now time.Time) (*models.TableGrants, error) {
	out := &models.TableGrants{Table: []models.Grant{}, Columns: make(map[int64][]models.Grant)}
	_ = s.read(func(d *state) error {
		for _, g := range d.grants[constants.ResourceTable] {
			if g.TenantID == tenantID && g.UserID == userID && g.ResourceID == tableID && g.ActiveAt(now) {
				out.Table = append(out.Table, g)
			}
		}
		for _, g := range d.grants[constants.ResourceColumn] {
			if g.TenantID == tenantID && g.UserID == userID && g.TableID == tableID && g.ActiveAt(now) {
				out.Columns[g.ResourceID] = append(out.Columns[g.ResourceID], g)
			}
		}
		return nil
	})
	sortGrants(out.Table)
	for _, grants := range out.Columns {
		sortGrants(grants)
	}
	return out, nil
}

func (s *Store) ListGrants(_ context.Context, tenantID, userID string) ([]models.Grant, error) {
	return s.collect(func(g models.Grant) bool {
		return g.TenantID == tenantID && (userID == "" || g.UserID == userID)
	}), nil
}

func (s *Store) ExpiringBetween(_ context.Context, tenantID string, from, to time.Time) ([]models.Grant, error) {
	return s.collect(func(g models.Grant) bool {
		return g.TenantID == tenantID && g.ExpiresAt != nil && g.ExpiresAt.After(from) && !g.ExpiresAt.After(to)
	}), nil
}

// collect returns matching grants grouped by resource type, each group in id order
func (s *Store) collect(match func(models.Grant) bool) []models.Grant {
	out := []models.Grant{}
	_ = s.read(func(d *state) error {
		for _, rt := range resourceTypes {
			var group []models.Grant
			for _, g := range d.grants[rt] {
				if match(g) {
					group = append(group, g)
				}
			}
			sortGrants(group)
			out = append(out, group...)
		}
		return nil
	})
	return out
}

func (s *Store) DeleteExpired(ctx context.Context, resourceType string, now time.Time) ([]models.Grant, error) {
	if err := checkResourceType(resourceType); err != nil {
		return nil, err
	}
	out := []models.Grant{}
	err := s.write(ctx, func(d *state) error {
		for id, g := range d.grants[resourceType] {
			if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
				out = append(out, g)
				delete(d.grants[resourceType], id)
			}
		}
		return nil
	})
	sortGrants(out)
	return out, err
}
