package memory

import (
	"context"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/utils"
	"go.uber.org/zap"
)

// Record keeps the audit record in memory and logs it
func (s *Store) Record(ctx context.Context, record models.AuditRecord) error {
	if record.ID == "" {
		record.ID = utils.GenerateID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.timestamp()
	}
	err := s.write(ctx, func(d *state) error {
		d.audit = append(d.audit, record)
		return nil
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("📋 Audit",
		zap.String("action", record.Action),
		zap.String("resource_type", record.ResourceType),
		zap.String("resource_id", record.ResourceID),
		zap.String("user_id", record.UserID))
	return nil
}

// AuditRecords returns a copy of every record written so far
func (s *Store) AuditRecords() []models.AuditRecord {
	var out []models.AuditRecord
	_ = s.read(func(d *state) error {
		out = append(out, d.audit...)
		return nil
	})
	return out
}
