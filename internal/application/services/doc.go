// Package services provides the business logic layer of the table store.
//
// This package contains:
//   - Table, column and database management (SchemaService)
//   - Dependency-ordered template provisioning (ProvisioningService)
//   - Row writes with coercion, required fields and validation rules (RowService)
//   - Filtered, cached row queries with reference expansion (QueryService)
//   - Table, column and dashboard authorization with expiring grants (PermissionService)
//   - Scheduled sweeps and cache upkeep (MaintenanceService)
//
// Services depend only on the interfaces in internal/domain/ports, so they
// run unchanged on the SQL and in-memory drivers.
package services
