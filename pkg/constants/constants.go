package constants

import "strings"

// Column types
const (
	ColumnTypeText        = "text"
	ColumnTypeNumber      = "number"
	ColumnTypeBoolean     = "boolean"
	ColumnTypeDate        = "date"
	ColumnTypeReference   = "reference"
	ColumnTypeCustomArray = "customArray"
)

// ColumnTypes lists the canonical column types in display order.
var ColumnTypes = []string{
	ColumnTypeText,
	ColumnTypeNumber,
	ColumnTypeBoolean,
	ColumnTypeDate,
	ColumnTypeReference,
	ColumnTypeCustomArray,
}

// NormalizeColumnType maps a declared type onto the canonical set.
// Anything unknown is stored as text.
func NormalizeColumnType(declared string) string {
	t := strings.TrimSpace(declared)
	switch strings.ToLower(t) {
	case "text", "string":
		return ColumnTypeText
	case "number", "numeric", "integer", "decimal":
		return ColumnTypeNumber
	case "boolean", "bool":
		return ColumnTypeBoolean
	case "date", "datetime":
		return ColumnTypeDate
	case "reference":
		return ColumnTypeReference
	case "customarray", "custom_array", "custom-array", "custom-enumerated-array":
		return ColumnTypeCustomArray
	}
	return ColumnTypeText
}

// Filter operators
const (
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpRegex       = "regex"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpBetween     = "between"
	OpNotBetween  = "not_between"
	OpBefore      = "before"
	OpAfter       = "after"
	OpToday       = "today"
	OpYesterday   = "yesterday"
	OpThisWeek    = "this_week"
	OpThisMonth   = "this_month"
	OpThisYear    = "this_year"
)

// Sort
const (
	SortByID = "id"
	SortASC  = "asc"
	SortDESC = "desc"
)

// MaxNameLength bounds database, table and column names.
const MaxNameLength = 64

// Permission actions
const (
	ActionRead   = "read"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// Permission resource types
const (
	ResourceTable     = "table"
	ResourceColumn    = "column"
	ResourceDashboard = "dashboard"
)

// IsValidAction reports whether action is one of read, edit, delete.
func IsValidAction(action string) bool {
	return action == ActionRead || action == ActionEdit || action == ActionDelete
}

// IsValidResourceType reports whether rt names a grantable resource.
func IsValidResourceType(rt string) bool {
	return rt == ResourceTable || rt == ResourceColumn || rt == ResourceDashboard
}

// Audit actions
const (
	AuditPermissionGranted  = "permission.granted"
	AuditPermissionRevoked  = "permission.revoked"
	AuditPermissionExpired  = "permission.expired"
	AuditProvisioningFailed = "template.provision_failed"
)

// Plan limit resources
const (
	LimitTables = "tables"
	LimitRows   = "rows"
)
