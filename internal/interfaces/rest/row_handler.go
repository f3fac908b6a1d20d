package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
)

// rowRequest is the body of row writes, values keyed by column id
type rowRequest struct {
	Values map[int64]any `json:"values" binding:"required"`
}

// tableTarget resolves the user and table id of a table-scoped route and
// checks the action on the table
func (h *Handler) tableTarget(c *gin.Context, action string) (*models.UserSession, int64, bool) {
	user, ok := requireUser(c)
	if !ok {
		return nil, 0, false
	}
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return nil, 0, false
	}
	if action != "" {
		if err := h.perms.RequireTable(c.Request.Context(), user, tableID, action); err != nil {
			RespondAppError(c, err)
			return nil, 0, false
		}
	}
	return user, tableID, true
}

// QueryRows handles POST /api/tables/:tableId/rows/query. Read access is
// checked by the query service, which also projects unreadable columns away.
func (h *Handler) QueryRows(c *gin.Context) {
	user, tableID, ok := h.tableTarget(c, "")
	if !ok {
		return
	}
	var payload models.FilterPayload
	if c.Request.ContentLength != 0 && !BindJSON(c, &payload) {
		return
	}
	resp, err := h.query.ListRows(c.Request.Context(), user, tableID, payload)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetRow handles GET /api/tables/:tableId/rows/:rowId
func (h *Handler) GetRow(c *gin.Context) {
	user, tableID, ok := h.tableTarget(c, "")
	if !ok {
		return
	}
	rowID, ok := pathID(c, "rowId")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "row", func() (interface{}, error) {
		return h.query.GetRow(c.Request.Context(), user, tableID, rowID)
	})
}

// CreateRow handles POST /api/tables/:tableId/rows
func (h *Handler) CreateRow(c *gin.Context) {
	user, tableID, ok := h.tableTarget(c, constants.ActionEdit)
	if !ok {
		return
	}
	var req rowRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleCreateEnvelope(c, "row", "Row created successfully", func() (interface{}, error) {
		ctx := c.Request.Context()
		row, err := h.rows.CreateRow(ctx, user.TenantID, tableID, req.Values)
		if err != nil {
			return nil, err
		}
		return h.query.RowView(ctx, user, row)
	})
}

// UpdateRow handles PATCH /api/tables/:tableId/rows/:rowId
func (h *Handler) UpdateRow(c *gin.Context) {
	user, tableID, ok := h.tableTarget(c, constants.ActionEdit)
	if !ok {
		return
	}
	rowID, ok := pathID(c, "rowId")
	if !ok {
		return
	}
	var req rowRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleUpdateEnvelope(c, "row", "Row updated successfully", func() (interface{}, error) {
		ctx := c.Request.Context()
		row, err := h.rows.UpdateRow(ctx, user.TenantID, tableID, rowID, req.Values)
		if err != nil {
			return nil, err
		}
		return h.query.RowView(ctx, user, row)
	})
}

// DeleteRow handles DELETE /api/tables/:tableId/rows/:rowId
func (h *Handler) DeleteRow(c *gin.Context) {
	user, tableID, ok := h.tableTarget(c, constants.ActionDelete)
	if !ok {
		return
	}
	rowID, ok := pathID(c, "rowId")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Row deleted successfully", func() error {
		return h.rows.DeleteRow(c.Request.Context(), user.TenantID, tableID, rowID)
	})
}

// CreateRule handles POST /api/tables/:tableId/rules
func (h *Handler) CreateRule(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}
	var rule models.ValidationRule
	if !BindJSON(c, &rule) {
		return
	}
	HandleCreateEnvelope(c, "rule", "Validation rule created successfully", func() (interface{}, error) {
		return h.rows.CreateValidationRule(c.Request.Context(), user.TenantID, tableID, rule)
	})
}

// ListRules handles GET /api/tables/:tableId/rules
func (h *Handler) ListRules(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "rules", func() (interface{}, error) {
		return h.rows.ListValidationRules(c.Request.Context(), user.TenantID, tableID)
	})
}

// DeleteRule handles DELETE /api/rules/:ruleId
func (h *Handler) DeleteRule(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	ruleID, ok := pathID(c, "ruleId")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Validation rule deleted successfully", func() error {
		return h.rows.DeleteValidationRule(c.Request.Context(), user.TenantID, ruleID)
	})
}
