package memory

import (
	"context"
	"sort"

	"github.com/nexuscrm/tablestore/internal/domain/models"
)

func (s *Store) CreateRule(ctx context.Context, rule *models.ValidationRule) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.tables[rule.TableID]; !ok {
			return notFound("table", rule.TableID)
		}
		rule.ID = d.next(seqRules)
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = s.timestamp()
		}
		d.rules[rule.ID] = *rule
		return nil
	})
}

func (s *Store) GetRule(_ context.Context, id int64) (*models.ValidationRule, error) {
	var out models.ValidationRule
	err := s.read(func(d *state) error {
		r, ok := d.rules[id]
		if !ok {
			return notFound("validation rule", id)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListRules(_ context.Context, tableID int64, activeOnly bool) ([]models.ValidationRule, error) {
	out := []models.ValidationRule{}
	_ = s.read(func(d *state) error {
		for _, r := range d.rules {
			if r.TableID == tableID && (!activeOnly || r.Active) {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.rules[id]; !ok {
			return notFound("validation rule", id)
		}
		delete(d.rules, id)
		return nil
	})
}
