package constants

// Physical system tables backing the EAV store. Names avoid MySQL reserved words.
const (
	TableDatabases            = "tenant_databases"
	TableTables               = "tenant_tables"
	TableColumns              = "tenant_columns"
	TableRows                 = "table_rows"
	TableCells                = "row_cells"
	TableValidationRules      = "validation_rules"
	TableTablePermissions     = "table_permissions"
	TableColumnPermissions    = "column_permissions"
	TableDashboardPermissions = "dashboard_permissions"
	TableAuditLog             = "audit_log"
)

// Common fields
const (
	FieldID               = "id"
	FieldTenantID         = "tenant_id"
	FieldDatabaseID       = "database_id"
	FieldTableID          = "table_id"
	FieldColumnID         = "column_id"
	FieldRowID            = "row_id"
	FieldUserID           = "user_id"
	FieldName             = "name"
	FieldDescription      = "description"
	FieldValue            = "value"
	FieldExpiresAt        = "expires_at"
	FieldCreatedAt        = "created_at"
	FieldUpdatedAt        = "updated_at"
	FieldCreatedBy        = "created_by"
	FieldGrantedBy        = "granted_by"
	FieldIsPublic         = "is_public"
	FieldType             = "type"
	FieldSemanticType     = "semantic_type"
	FieldRequired         = "required"
	FieldPrimary          = "is_primary"
	FieldOrder            = "sort_order"
	FieldReferenceTableID = "reference_table_id"
	FieldOptions          = "options"
	FieldCanRead          = "can_read"
	FieldCanEdit          = "can_edit"
	FieldCanDelete        = "can_delete"
	FieldDashboardID      = "dashboard_id"
	FieldCondition        = "condition_expr"
	FieldErrorMessage     = "error_message"
	FieldActive           = "is_active"
	FieldActorID          = "actor_id"
	FieldAction           = "action"
	FieldResourceType     = "resource_type"
	FieldResourceID       = "resource_id"
	FieldDetails          = "details"
)

// PermissionTableFor returns the physical grant table for a resource type.
func PermissionTableFor(resourceType string) (string, bool) {
	switch resourceType {
	case ResourceTable:
		return TableTablePermissions, true
	case ResourceColumn:
		return TableColumnPermissions, true
	case ResourceDashboard:
		return TableDashboardPermissions, true
	}
	return "", false
}

// ResourceFieldFor returns the column holding the granted resource id.
func ResourceFieldFor(resourceType string) string {
	switch resourceType {
	case ResourceColumn:
		return FieldColumnID
	case ResourceDashboard:
		return FieldDashboardID
	}
	return FieldTableID
}
