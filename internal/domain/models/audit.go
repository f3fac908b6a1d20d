package models

import "time"

// AuditRecord is one entry sent to the audit sink
type AuditRecord struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenantId"`
	ActorID      string         `json:"actorId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	UserID       string         `json:"userId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
