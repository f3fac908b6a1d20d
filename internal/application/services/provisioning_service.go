package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/metrics"
	"go.uber.org/zap"
)

const resourceTemplate = "template"

const missingFromBatch = "table not found among created tables"

// ProvisioningService creates batches of related template tables in dependency order
type ProvisioningService struct {
	schema    *SchemaService
	audit     ports.AuditSink
	validator *validator.Validate
}

// NewProvisioningService creates a new ProvisioningService
func NewProvisioningService(schema *SchemaService, audit ports.AuditSink) *ProvisioningService {
	return &ProvisioningService{
		schema:    schema,
		audit:     audit,
		validator: validator.New(),
	}
}

// ProvisionTemplateBatch creates one table per template. Templates are
// ordered so every template follows the ones it depends on; a cycle fails
// the batch before any table exists. After that, each template succeeds or
// fails on its own and failures are collected in the result.
func (p *ProvisioningService) ProvisionTemplateBatch(ctx context.Context, tenantID string, databaseID int64, actorID string, templates []models.Template) (*models.ProvisionResult, error) {
	if len(templates) == 0 {
		return nil, apperrors.NewValidationError("templates", "at least one template is required")
	}
	if err := p.validateBatch(templates); err != nil {
		return nil, err
	}
	if _, err := p.schema.databaseForTenant(ctx, tenantID, databaseID); err != nil {
		return nil, err
	}

	ordered, err := OrderTemplates(templates)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	log.Info("🚀 Provisioning template batch", zap.Int64("database_id", databaseID), zap.Int("templates", len(ordered)))

	inBatch := make(map[string]bool, len(ordered))
	for _, t := range ordered {
		inBatch[t.ID] = true
	}

	result := &models.ProvisionResult{
		Created: []models.ProvisionedTable{},
		Errors:  []models.ProvisionError{},
	}
	created := make(map[string]int64, len(ordered))
	for _, tpl := range ordered {
		table, err := p.provisionOne(ctx, tenantID, databaseID, actorID, tpl, created, inBatch)
		if err != nil {
			result.Errors = append(result.Errors, p.recordFailure(ctx, tenantID, databaseID, actorID, tpl.ID, err))
			continue
		}
		created[tpl.ID] = table.ID
		result.Created = append(result.Created, models.ProvisionedTable{TemplateID: tpl.ID, Table: table})
	}

	log.Info("✅ Template batch provisioned",
		zap.Int64("database_id", databaseID),
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Errors)))
	return result, nil
}

func (p *ProvisioningService) validateBatch(templates []models.Template) error {
	seen := make(map[string]bool, len(templates))
	for i := range templates {
		if err := p.validator.Struct(&templates[i]); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				fe := verrs[0]
				return apperrors.NewValidationError(
					fmt.Sprintf("templates[%d].%s", i, strings.TrimPrefix(fe.Namespace(), "Template.")),
					fmt.Sprintf("failed on '%s'", fe.Tag()))
			}
			return apperrors.NewValidationError(fmt.Sprintf("templates[%d]", i), err.Error())
		}
		if seen[templates[i].ID] {
			return apperrors.NewValidationError(fmt.Sprintf("templates[%d].ID", i), fmt.Sprintf("duplicate template id '%s'", templates[i].ID))
		}
		seen[templates[i].ID] = true
	}
	return nil
}

// dependencies lists the template ids tpl needs created first: its declared
// dependencies plus the targets of its reference columns. References to
// itself resolve to the table being created and are not dependencies.
func dependencies(tpl models.Template) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string, allowSelf bool) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] || (allowSelf && id == tpl.ID) {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, dep := range tpl.Dependencies {
		add(dep, false)
	}
	for _, c := range tpl.Columns {
		if constants.NormalizeColumnType(c.Type) == constants.ColumnTypeReference {
			add(c.ReferenceTemplate, true)
		}
	}
	return out
}

// OrderTemplates sorts templates so each follows its in-batch dependencies.
// Templates without in-batch dependencies come first in input order; the
// rest follow a depth-first visit in input order. Dependencies on ids that
// are not in the batch are ignored here.
func OrderTemplates(templates []models.Template) ([]models.Template, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	index := make(map[string]int, len(templates))
	for i, t := range templates {
		index[t.ID] = i
	}
	inBatchDeps := func(t models.Template) []int {
		var out []int
		for _, dep := range dependencies(t) {
			if j, ok := index[dep]; ok {
				out = append(out, j)
			}
		}
		return out
	}

	state := make([]int, len(templates))
	ordered := make([]models.Template, 0, len(templates))

	for i, t := range templates {
		if len(inBatchDeps(t)) == 0 {
			state[i] = visited
			ordered = append(ordered, t)
		}
	}

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visited:
			return nil
		case visiting:
			return apperrors.NewCircularDependencyError(templates[i].ID)
		}
		state[i] = visiting
		for _, j := range inBatchDeps(templates[i]) {
			if err := visit(j); err != nil {
				return err
			}
		}
		state[i] = visited
		ordered = append(ordered, templates[i])
		return nil
	}
	for i := range templates {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (p *ProvisioningService) provisionOne(ctx context.Context, tenantID string, databaseID int64, actorID string, tpl models.Template, created map[string]int64, inBatch map[string]bool) (*models.Table, error) {
	for _, dep := range tpl.Dependencies {
		if inBatch[dep] && dep != tpl.ID {
			if _, ok := created[dep]; !ok {
				return nil, apperrors.NewReferenceResolutionError("", dep, missingFromBatch)
			}
		}
	}
	for _, c := range tpl.Columns {
		ref := c.ReferenceTemplate
		if ref == "" || ref == tpl.ID || !inBatch[ref] {
			continue
		}
		if _, ok := created[ref]; !ok {
			return nil, apperrors.NewReferenceResolutionError(c.Name, ref, missingFromBatch)
		}
	}

	table, err := p.schema.CreateTable(ctx, tenantID, databaseID, models.TableInput{
		Name:        tpl.Name,
		Description: tpl.Description,
		IsPublic:    tpl.IsPublic,
	}, actorID)
	if err != nil {
		return nil, err
	}

	if len(tpl.Columns) > 0 {
		batch := maps.Clone(created)
		batch[tpl.ID] = table.ID
		if _, err := p.schema.CreateColumns(ctx, tenantID, table.ID, columnInputs(tpl.Columns), batch); err != nil {
			// the table must not outlive its failed columns
			if delErr := p.schema.DeleteTable(ctx, tenantID, table.ID); delErr != nil {
				logger.FromContext(ctx).Error("❌ Failed to remove partially provisioned table",
					zap.Int64("table_id", table.ID), zap.Error(delErr))
			}
			return nil, err
		}
	}

	return p.schema.DescribeTable(ctx, tenantID, table.ID)
}

func columnInputs(columns []models.TemplateColumn) []models.ColumnInput {
	out := make([]models.ColumnInput, len(columns))
	for i, c := range columns {
		out[i] = models.ColumnInput{
			Name:             c.Name,
			Type:             c.Type,
			SemanticType:     c.SemanticType,
			Required:         c.Required,
			Primary:          c.Primary,
			Order:            c.Order,
			ReferenceTableID: c.ReferenceTableID,
			ReferenceName:    c.ReferenceTemplate,
			Options:          c.Options,
		}
	}
	return out
}

func (p *ProvisioningService) recordFailure(ctx context.Context, tenantID string, databaseID int64, actorID, templateID string, cause error) models.ProvisionError {
	failure := models.ProvisionError{
		TemplateID: templateID,
		Code:       apperrors.GetErrorCode(cause),
		Message:    cause.Error(),
	}
	metrics.ProvisioningFailures.WithLabelValues(failure.Code).Inc()
	logger.FromContext(ctx).Warn("❌ Template provisioning failed",
		zap.String("template_id", templateID),
		zap.String("code", failure.Code),
		zap.Error(cause))

	err := p.audit.Record(ctx, models.AuditRecord{
		TenantID:     tenantID,
		ActorID:      actorID,
		Action:       constants.AuditProvisioningFailed,
		ResourceType: resourceTemplate,
		ResourceID:   templateID,
		Details: map[string]any{
			"databaseId": databaseID,
			"code":       failure.Code,
			"message":    failure.Message,
		},
	})
	if err != nil {
		logger.FromContext(ctx).Error("❌ Failed to record provisioning failure", zap.Error(err))
	}
	return failure
}
