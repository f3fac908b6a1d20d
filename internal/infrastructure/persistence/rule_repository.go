package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/query"
)

// RuleRepository stores validation rules
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository creates a new RuleRepository
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

var ruleColumns = []string{
	constants.FieldID,
	constants.FieldTableID,
	constants.FieldName,
	constants.FieldCondition,
	constants.FieldErrorMessage,
	constants.FieldActive,
	constants.FieldCreatedAt,
}

func (r *RuleRepository) CreateRule(ctx context.Context, rule *models.ValidationRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = utcNow()
	}
	q := query.Insert(constants.TableValidationRules, map[string]interface{}{
		constants.FieldTableID:      rule.TableID,
		constants.FieldName:         rule.Name,
		constants.FieldCondition:    rule.Condition,
		constants.FieldErrorMessage: rule.ErrorMessage,
		constants.FieldActive:       rule.Active,
		constants.FieldCreatedAt:    rule.CreatedAt,
	}).Build()

	res, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return fmt.Errorf("failed to insert validation rule: %w", err)
	}
	if rule.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read validation rule id: %w", err)
	}
	return nil
}

func (r *RuleRepository) GetRule(ctx context.Context, id int64) (*models.ValidationRule, error) {
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ?",
		columnList(ruleColumns...), constants.TableValidationRules, constants.FieldID)
	rule, err := scanRule(executor(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("validation rule", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) ListRules(ctx context.Context, tableID int64, activeOnly bool) ([]models.ValidationRule, error) {
	where := fmt.Sprintf("`%s` = ?", constants.FieldTableID)
	if activeOnly {
		where += fmt.Sprintf(" AND `%s` = TRUE", constants.FieldActive)
	}
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE %s ORDER BY `%s` ASC",
		columnList(ruleColumns...), constants.TableValidationRules, where, constants.FieldID)

	rows, err := executor(ctx, r.db).QueryContext(ctx, q, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation rules: %w", err)
	}
	defer rows.Close()

	rules := []models.ValidationRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validation rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) DeleteRule(ctx context.Context, id int64) error {
	res, err := executor(ctx, r.db).ExecContext(ctx,
		fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", constants.TableValidationRules, constants.FieldID), id)
	if err != nil {
		return fmt.Errorf("failed to delete validation rule: %w", err)
	}
	return requireAffected(res, "validation rule", id)
}

func scanRule(s scanner) (*models.ValidationRule, error) {
	var rule models.ValidationRule
	err := s.Scan(&rule.ID, &rule.TableID, &rule.Name, &rule.Condition,
		&rule.ErrorMessage, &rule.Active, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}
