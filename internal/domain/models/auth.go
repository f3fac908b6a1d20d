package models

// UserSession is the identity established by the external identity provider.
type UserSession struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	IsTenantAdmin bool   `json:"is_tenant_admin"`
}
