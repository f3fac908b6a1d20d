package bootstrap

import (
	"context"
	"database/sql"

	"github.com/nexuscrm/tablestore/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// InitializeSchema creates the system tables that back the EAV store
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	zap.L().Info("🔧 Initializing system schema...")

	defs, err := GetSystemTableDefinitions()
	if err != nil {
		return err
	}
	if err := persistence.CreatePhysicalTables(ctx, db, defs); err != nil {
		zap.L().Error("⚠️ System schema initialization failed", zap.Error(err))
		return err
	}

	zap.L().Info("✅ System schema initialized", zap.Int("tables", len(defs)))
	return nil
}
