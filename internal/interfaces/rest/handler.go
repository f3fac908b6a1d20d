package rest

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/internal/application/services"
	"github.com/nexuscrm/tablestore/internal/domain/models"
)

// SchemaAPI is the schema registry as seen by the handlers
type SchemaAPI interface {
	CreateDatabase(ctx context.Context, tenantID string, input models.DatabaseInput) (*models.Database, error)
	ListDatabases(ctx context.Context, tenantID string) ([]models.Database, error)
	CreateTable(ctx context.Context, tenantID string, databaseID int64, input models.TableInput, createdBy string) (*models.Table, error)
	ListTables(ctx context.Context, tenantID string, databaseID int64) ([]models.Table, error)
	DescribeTable(ctx context.Context, tenantID string, tableID int64) (*models.Table, error)
	DeleteTable(ctx context.Context, tenantID string, tableID int64) error
	CreateColumns(ctx context.Context, tenantID string, tableID int64, inputs []models.ColumnInput, batch map[string]int64) ([]models.Column, error)
	UpdateColumn(ctx context.Context, tenantID string, columnID int64, patch models.ColumnPatch) (*models.Column, error)
	DeleteColumn(ctx context.Context, tenantID string, columnID int64) error
}

// ProvisioningAPI creates tables from template batches
type ProvisioningAPI interface {
	ProvisionTemplateBatch(ctx context.Context, tenantID string, databaseID int64, actorID string, templates []models.Template) (*models.ProvisionResult, error)
}

// RowAPI writes rows and manages validation rules
type RowAPI interface {
	CreateRow(ctx context.Context, tenantID string, tableID int64, values map[int64]any) (*models.Row, error)
	UpdateRow(ctx context.Context, tenantID string, tableID, rowID int64, values map[int64]any) (*models.Row, error)
	DeleteRow(ctx context.Context, tenantID string, tableID, rowID int64) error
	CreateValidationRule(ctx context.Context, tenantID string, tableID int64, rule models.ValidationRule) (*models.ValidationRule, error)
	ListValidationRules(ctx context.Context, tenantID string, tableID int64) ([]models.ValidationRule, error)
	DeleteValidationRule(ctx context.Context, tenantID string, ruleID int64) error
}

// QueryAPI reads rows on behalf of a user
type QueryAPI interface {
	ListRows(ctx context.Context, user *models.UserSession, tableID int64, payload models.FilterPayload) (*models.FilteredRowsResponse, error)
	GetRow(ctx context.Context, user *models.UserSession, tableID, rowID int64) (*models.RowView, error)
	RowView(ctx context.Context, user *models.UserSession, row *models.Row) (*models.RowView, error)
}

// PermissionAPI answers and manages access grants
type PermissionAPI interface {
	Authorize(ctx context.Context, req models.AuthorizeRequest) (bool, error)
	AuthorizeUser(ctx context.Context, user *models.UserSession, resourceType string, resourceID int64, action string) (bool, error)
	RequireTable(ctx context.Context, user *models.UserSession, tableID int64, action string) error
	RequireAdmin(user *models.UserSession) error
	GrantPermission(ctx context.Context, actor *models.UserSession, req models.GrantRequest) (*models.Grant, error)
	RevokePermission(ctx context.Context, actor *models.UserSession, resourceType string, grantID int64) error
	ListGrants(ctx context.Context, tenantID, userID string) ([]models.Grant, error)
	ListExpiringSoon(ctx context.Context, tenantID string, withinDays int) ([]models.Grant, error)
}

// Services groups the handler dependencies
type Services struct {
	Schema       SchemaAPI
	Provisioning ProvisioningAPI
	Rows         RowAPI
	Query        QueryAPI
	Permissions  PermissionAPI
}

// FromManager exposes a ServiceManager through the handler interfaces
func FromManager(sm *services.ServiceManager) Services {
	return Services{
		Schema:       sm.Schema,
		Provisioning: sm.Provisioning,
		Rows:         sm.Rows,
		Query:        sm.Query,
		Permissions:  sm.Permissions,
	}
}

// Handler serves the /api routes
type Handler struct {
	schema       SchemaAPI
	provisioning ProvisioningAPI
	rows         RowAPI
	query        QueryAPI
	perms        PermissionAPI
}

// NewHandler creates a Handler
func NewHandler(svc Services) *Handler {
	return &Handler{
		schema:       svc.Schema,
		provisioning: svc.Provisioning,
		rows:         svc.Rows,
		query:        svc.Query,
		perms:        svc.Permissions,
	}
}

// RegisterRoutes mounts every route on api. Authentication middleware is
// expected to run on api already.
func (h *Handler) RegisterRoutes(api gin.IRouter) {
	// Schema
	api.POST("/databases", h.CreateDatabase)
	api.GET("/databases", h.ListDatabases)
	api.POST("/databases/:databaseId/tables", h.CreateTable)
	api.GET("/databases/:databaseId/tables", h.ListTables)
	api.POST("/databases/:databaseId/templates", h.ProvisionTemplates)
	api.GET("/tables/:tableId", h.DescribeTable)
	api.DELETE("/tables/:tableId", h.DeleteTable)
	api.POST("/tables/:tableId/columns", h.CreateColumns)
	api.PATCH("/columns/:columnId", h.UpdateColumn)
	api.DELETE("/columns/:columnId", h.DeleteColumn)

	// Rows
	api.POST("/tables/:tableId/rows/query", h.QueryRows)
	api.POST("/tables/:tableId/rows", h.CreateRow)
	api.GET("/tables/:tableId/rows/:rowId", h.GetRow)
	api.PATCH("/tables/:tableId/rows/:rowId", h.UpdateRow)
	api.DELETE("/tables/:tableId/rows/:rowId", h.DeleteRow)

	// Validation rules
	api.POST("/tables/:tableId/rules", h.CreateRule)
	api.GET("/tables/:tableId/rules", h.ListRules)
	api.DELETE("/rules/:ruleId", h.DeleteRule)

	// Permissions
	api.POST("/permissions/authorize", h.Authorize)
	api.POST("/permissions", h.GrantPermission)
	api.GET("/permissions", h.ListGrants)
	api.GET("/permissions/expiring", h.ListExpiring)
	api.DELETE("/permissions/:resourceType/:grantId", h.RevokePermission)
}
