package services

import (
	"context"

	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"go.uber.org/zap"
)

// Invalidation failures leave entries to expire by TTL; they never fail the write.

func invalidateTable(ctx context.Context, cache ports.FilterCacheInvalidator, tableID int64) {
	if _, err := cache.InvalidateTable(ctx, tableID); err != nil {
		logger.FromContext(ctx).Warn("⚠️ Filter cache invalidation failed", zap.Int64("table_id", tableID), zap.Error(err))
	}
}

func invalidateFilters(ctx context.Context, cache ports.FilterCacheInvalidator, tableID int64, columnIDs []int64) {
	if _, err := cache.InvalidateFilters(ctx, tableID, columnIDs); err != nil {
		logger.FromContext(ctx).Warn("⚠️ Filter cache invalidation failed", zap.Int64("table_id", tableID), zap.Error(err))
	}
}
