package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/errors"
)

// Authorize handles POST /api/permissions/authorize. The tenant is always
// the caller's; only admins may ask about other users.
func (h *Handler) Authorize(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.AuthorizeRequest
	if !BindJSON(c, &req) {
		return
	}
	req.TenantID = user.TenantID
	if req.UserID == "" {
		req.UserID = user.ID
	}
	if req.UserID != user.ID && !user.IsTenantAdmin {
		RespondAppError(c, errors.NewPermissionError("inspect", "permissions of other users"))
		return
	}

	ctx := c.Request.Context()
	var (
		allowed bool
		err     error
	)
	if req.UserID == user.ID {
		allowed, err = h.perms.AuthorizeUser(ctx, user, req.ResourceType, req.ResourceID, req.Action)
	} else {
		allowed, err = h.perms.Authorize(ctx, req)
	}
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

// GrantPermission handles POST /api/permissions
func (h *Handler) GrantPermission(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	var req models.GrantRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleCreateEnvelope(c, "grant", "Permission granted successfully", func() (interface{}, error) {
		return h.perms.GrantPermission(c.Request.Context(), user, req)
	})
}

// RevokePermission handles DELETE /api/permissions/:resourceType/:grantId
func (h *Handler) RevokePermission(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	grantID, ok := pathID(c, "grantId")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Permission revoked successfully", func() error {
		return h.perms.RevokePermission(c.Request.Context(), user, c.Param("resourceType"), grantID)
	})
}

// ListGrants handles GET /api/permissions?userId=
func (h *Handler) ListGrants(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	HandleGetEnvelope(c, "grants", func() (interface{}, error) {
		return h.perms.ListGrants(c.Request.Context(), user.TenantID, c.Query("userId"))
	})
}

// ListExpiring handles GET /api/permissions/expiring?withinDays=
func (h *Handler) ListExpiring(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	days := 7
	if raw := c.Query("withinDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			RespondAppError(c, errors.NewValidationError("withinDays", "withinDays must be a number"))
			return
		}
		days = n
	}
	HandleGetEnvelope(c, "grants", func() (interface{}, error) {
		return h.perms.ListExpiringSoon(c.Request.Context(), user.TenantID, days)
	})
}
