package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/query"
	"github.com/nexuscrm/tablestore/pkg/utils"
	"go.uber.org/zap"
)

// AuditRepository writes audit records to the audit_log table and mirrors
// each one to the structured log.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, record models.AuditRecord) error {
	if record.ID == "" {
		record.ID = utils.GenerateID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = utcNow()
	}

	details := sql.NullString{}
	if len(record.Details) > 0 {
		b, err := json.Marshal(record.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	q := query.Insert(constants.TableAuditLog, map[string]interface{}{
		constants.FieldID:           record.ID,
		constants.FieldTenantID:     nullString(record.TenantID),
		constants.FieldActorID:      nullString(record.ActorID),
		constants.FieldAction:       record.Action,
		constants.FieldResourceType: record.ResourceType,
		constants.FieldResourceID:   record.ResourceID,
		constants.FieldUserID:       nullString(record.UserID),
		constants.FieldDetails:      details,
		constants.FieldCreatedAt:    record.CreatedAt,
	}).Build()
	if _, err := executor(ctx, r.db).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	logger.FromContext(ctx).Info("📋 Audit",
		zap.String("action", record.Action),
		zap.String("resource_type", record.ResourceType),
		zap.String("resource_id", record.ResourceID),
		zap.String("user_id", record.UserID),
		zap.String("tenant_id", record.TenantID))
	return nil
}
