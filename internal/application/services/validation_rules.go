package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"go.uber.org/zap"
)

// CreateValidationRule adds an active rule to a table. The condition must
// compile against the table's column names and yield a boolean; rows for
// which it is true are rejected with the rule's message.
func (s *RowService) CreateValidationRule(ctx context.Context, tenantID string, tableID int64, rule models.ValidationRule) (*models.ValidationRule, error) {
	table, err := tableForTenant(ctx, s.schema, tenantID, tableID)
	if err != nil {
		return nil, err
	}
	name, err := validateName("name", rule.Name)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(rule.ErrorMessage)
	if message == "" {
		return nil, apperrors.NewValidationError("errorMessage", "error message is required")
	}

	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = c.Name
	}
	if err := s.engine.Validate(rule.Condition, names); err != nil {
		return nil, apperrors.NewValidationError("condition", err.Error())
	}

	out := &models.ValidationRule{
		TableID:      tableID,
		Name:         name,
		Condition:    rule.Condition,
		ErrorMessage: message,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.rules.CreateRule(ctx, out); err != nil {
		return nil, duplicateAsValidation(err, "name", "a rule with this name already exists")
	}
	logger.FromContext(ctx).Info("📏 Validation rule created", zap.Int64("table_id", tableID), zap.String("rule", name))
	return out, nil
}

func (s *RowService) ListValidationRules(ctx context.Context, tenantID string, tableID int64) ([]models.ValidationRule, error) {
	if _, err := tableForTenant(ctx, s.schema, tenantID, tableID); err != nil {
		return nil, err
	}
	return s.rules.ListRules(ctx, tableID, false)
}

func (s *RowService) DeleteValidationRule(ctx context.Context, tenantID string, ruleID int64) error {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if _, err := tableForTenant(ctx, s.schema, tenantID, rule.TableID); err != nil {
		return apperrors.NewNotFoundError("rule", strconv.FormatInt(ruleID, 10))
	}
	return s.rules.DeleteRule(ctx, ruleID)
}
