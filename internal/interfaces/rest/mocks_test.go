package rest_test

import (
	"context"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/stretchr/testify/mock"
)

type MockSchemaService struct {
	mock.Mock
}

func (m *MockSchemaService) CreateDatabase(ctx context.Context, tenantID string, input models.DatabaseInput) (*models.Database, error) {
	args := m.Called(ctx, tenantID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Database), args.Error(1)
}

func (m *MockSchemaService) ListDatabases(ctx context.Context, tenantID string) ([]models.Database, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Database), args.Error(1)
}

func (m *MockSchemaService) CreateTable(ctx context.Context, tenantID string, databaseID int64, input models.TableInput, createdBy string) (*models.Table, error) {
	args := m.Called(ctx, tenantID, databaseID, input, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Table), args.Error(1)
}

func (m *MockSchemaService) ListTables(ctx context.Context, tenantID string, databaseID int64) ([]models.Table, error) {
	args := m.Called(ctx, tenantID, databaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Table), args.Error(1)
}

func (m *MockSchemaService) DescribeTable(ctx context.Context, tenantID string, tableID int64) (*models.Table, error) {
	args := m.Called(ctx, tenantID, tableID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Table), args.Error(1)
}

func (m *MockSchemaService) DeleteTable(ctx context.Context, tenantID string, tableID int64) error {
	args := m.Called(ctx, tenantID, tableID)
	return args.Error(0)
}

func (m *MockSchemaService) CreateColumns(ctx context.Context, tenantID string, tableID int64, inputs []models.ColumnInput, batch map[string]int64) ([]models.Column, error) {
	args := m.Called(ctx, tenantID, tableID, inputs, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Column), args.Error(1)
}

func (m *MockSchemaService) UpdateColumn(ctx context.Context, tenantID string, columnID int64, patch models.ColumnPatch) (*models.Column, error) {
	args := m.Called(ctx, tenantID, columnID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Column), args.Error(1)
}

func (m *MockSchemaService) DeleteColumn(ctx context.Context, tenantID string, columnID int64) error {
	args := m.Called(ctx, tenantID, columnID)
	return args.Error(0)
}

type MockProvisioningService struct {
	mock.Mock
}

func (m *MockProvisioningService) ProvisionTemplateBatch(ctx context.Context, tenantID string, databaseID int64, actorID string, templates []models.Template) (*models.ProvisionResult, error) {
	args := m.Called(ctx, tenantID, databaseID, actorID, templates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProvisionResult), args.Error(1)
}

type MockRowService struct {
	mock.Mock
}

func (m *MockRowService) CreateRow(ctx context.Context, tenantID string, tableID int64, values map[int64]any) (*models.Row, error) {
	args := m.Called(ctx, tenantID, tableID, values)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Row), args.Error(1)
}

func (m *MockRowService) UpdateRow(ctx context.Context, tenantID string, tableID, rowID int64, values map[int64]any) (*models.Row, error) {
	args := m.Called(ctx, tenantID, tableID, rowID, values)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Row), args.Error(1)
}

func (m *MockRowService) DeleteRow(ctx context.Context, tenantID string, tableID, rowID int64) error {
	args := m.Called(ctx, tenantID, tableID, rowID)
	return args.Error(0)
}

func (m *MockRowService) CreateValidationRule(ctx context.Context, tenantID string, tableID int64, rule models.ValidationRule) (*models.ValidationRule, error) {
	args := m.Called(ctx, tenantID, tableID, rule)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ValidationRule), args.Error(1)
}

func (m *MockRowService) ListValidationRules(ctx context.Context, tenantID string, tableID int64) ([]models.ValidationRule, error) {
	args := m.Called(ctx, tenantID, tableID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ValidationRule), args.Error(1)
}

func (m *MockRowService) DeleteValidationRule(ctx context.Context, tenantID string, ruleID int64) error {
	args := m.Called(ctx, tenantID, ruleID)
	return args.Error(0)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) ListRows(ctx context.Context, user *models.UserSession, tableID int64, payload models.FilterPayload) (*models.FilteredRowsResponse, error) {
	args := m.Called(ctx, user, tableID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FilteredRowsResponse), args.Error(1)
}

func (m *MockQueryService) GetRow(ctx context.Context, user *models.UserSession, tableID, rowID int64) (*models.RowView, error) {
	args := m.Called(ctx, user, tableID, rowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RowView), args.Error(1)
}

func (m *MockQueryService) RowView(ctx context.Context, user *models.UserSession, row *models.Row) (*models.RowView, error) {
	args := m.Called(ctx, user, row)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RowView), args.Error(1)
}

type MockPermissionService struct {
	mock.Mock
}

func (m *MockPermissionService) Authorize(ctx context.Context, req models.AuthorizeRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

func (m *MockPermissionService) AuthorizeUser(ctx context.Context, user *models.UserSession, resourceType string, resourceID int64, action string) (bool, error) {
	args := m.Called(ctx, user, resourceType, resourceID, action)
	return args.Bool(0), args.Error(1)
}

func (m *MockPermissionService) RequireTable(ctx context.Context, user *models.UserSession, tableID int64, action string) error {
	args := m.Called(ctx, user, tableID, action)
	return args.Error(0)
}

// RequireAdmin behaves like the real service so tests need not stub it
func (m *MockPermissionService) RequireAdmin(user *models.UserSession) error {
	if user == nil || !user.IsTenantAdmin {
		return errors.NewPermissionError("administer", "tenant")
	}
	return nil
}

func (m *MockPermissionService) GrantPermission(ctx context.Context, actor *models.UserSession, req models.GrantRequest) (*models.Grant, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Grant), args.Error(1)
}

func (m *MockPermissionService) RevokePermission(ctx context.Context, actor *models.UserSession, resourceType string, grantID int64) error {
	args := m.Called(ctx, actor, resourceType, grantID)
	return args.Error(0)
}

func (m *MockPermissionService) ListGrants(ctx context.Context, tenantID, userID string) ([]models.Grant, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Grant), args.Error(1)
}

func (m *MockPermissionService) ListExpiringSoon(ctx context.Context, tenantID string, withinDays int) ([]models.Grant, error) {
	args := m.Called(ctx, tenantID, withinDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Grant), args.Error(1)
}
