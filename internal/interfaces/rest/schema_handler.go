package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/nexuscrm/tablestore/pkg/errors"
)

// adminUser returns the session of a tenant admin or responds with an error
func (h *Handler) adminUser(c *gin.Context) (*models.UserSession, bool) {
	user, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	if err := h.perms.RequireAdmin(user); err != nil {
		RespondAppError(c, err)
		return nil, false
	}
	return user, true
}

// CreateDatabase handles POST /api/databases
func (h *Handler) CreateDatabase(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	var input models.DatabaseInput
	if !BindJSON(c, &input) {
		return
	}
	HandleCreateEnvelope(c, "database", "Database created successfully", func() (interface{}, error) {
		return h.schema.CreateDatabase(c.Request.Context(), user.TenantID, input)
	})
}

// ListDatabases handles GET /api/databases
func (h *Handler) ListDatabases(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	HandleGetEnvelope(c, "databases", func() (interface{}, error) {
		return h.schema.ListDatabases(c.Request.Context(), user.TenantID)
	})
}

// CreateTable handles POST /api/databases/:databaseId/tables
func (h *Handler) CreateTable(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	databaseID, ok := pathID(c, "databaseId")
	if !ok {
		return
	}
	var input struct {
		models.TableInput
		Columns []models.ColumnInput `json:"columns"`
	}
	if !BindJSON(c, &input) {
		return
	}

	ctx := c.Request.Context()
	table, err := h.schema.CreateTable(ctx, user.TenantID, databaseID, input.TableInput, user.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if len(input.Columns) > 0 {
		if _, err := h.schema.CreateColumns(ctx, user.TenantID, table.ID, input.Columns, nil); err != nil {
			// the table is not usable without the columns it was asked for
			_ = h.schema.DeleteTable(ctx, user.TenantID, table.ID)
			RespondAppError(c, err)
			return
		}
		if table, err = h.schema.DescribeTable(ctx, user.TenantID, table.ID); err != nil {
			RespondAppError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{constants.FieldMessage: "Table created successfully", "table": table})
}

// ListTables handles GET /api/databases/:databaseId/tables. Non-admins only
// see the tables they can read.
func (h *Handler) ListTables(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	databaseID, ok := pathID(c, "databaseId")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "tables", func() (interface{}, error) {
		ctx := c.Request.Context()
		tables, err := h.schema.ListTables(ctx, user.TenantID, databaseID)
		if err != nil || user.IsTenantAdmin {
			return tables, err
		}
		visible := make([]models.Table, 0, len(tables))
		for _, t := range tables {
			allowed, err := h.perms.AuthorizeUser(ctx, user, constants.ResourceTable, t.ID, constants.ActionRead)
			if err != nil {
				return nil, err
			}
			if allowed {
				visible = append(visible, t)
			}
		}
		return visible, nil
	})
}

// DescribeTable handles GET /api/tables/:tableId
func (h *Handler) DescribeTable(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}
	HandleGetEnvelope(c, "table", func() (interface{}, error) {
		ctx := c.Request.Context()
		if err := h.perms.RequireTable(ctx, user, tableID, constants.ActionRead); err != nil {
			return nil, err
		}
		return h.schema.DescribeTable(ctx, user.TenantID, tableID)
	})
}

// DeleteTable handles DELETE /api/tables/:tableId
func (h *Handler) DeleteTable(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Table deleted successfully", func() error {
		return h.schema.DeleteTable(c.Request.Context(), user.TenantID, tableID)
	})
}

// CreateColumns handles POST /api/tables/:tableId/columns
func (h *Handler) CreateColumns(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, "tableId")
	if !ok {
		return
	}
	var input struct {
		Columns []models.ColumnInput `json:"columns" binding:"required,min=1,dive"`
	}
	if !BindJSON(c, &input) {
		return
	}
	HandleCreateEnvelope(c, "columns", "Columns created successfully", func() (interface{}, error) {
		return h.schema.CreateColumns(c.Request.Context(), user.TenantID, tableID, input.Columns, nil)
	})
}

// UpdateColumn handles PATCH /api/columns/:columnId
func (h *Handler) UpdateColumn(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	columnID, ok := pathID(c, "columnId")
	if !ok {
		return
	}
	var patch models.ColumnPatch
	if !BindJSON(c, &patch) {
		return
	}
	HandleUpdateEnvelope(c, "column", "Column updated successfully", func() (interface{}, error) {
		return h.schema.UpdateColumn(c.Request.Context(), user.TenantID, columnID, patch)
	})
}

// DeleteColumn handles DELETE /api/columns/:columnId
func (h *Handler) DeleteColumn(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	columnID, ok := pathID(c, "columnId")
	if !ok {
		return
	}
	HandleDeleteEnvelope(c, "Column deleted successfully", func() error {
		return h.schema.DeleteColumn(c.Request.Context(), user.TenantID, columnID)
	})
}

// ProvisionTemplates handles POST /api/databases/:databaseId/templates.
// The batch answers 200 even when some templates failed; the failures are
// listed in the result.
func (h *Handler) ProvisionTemplates(c *gin.Context) {
	user, ok := h.adminUser(c)
	if !ok {
		return
	}
	databaseID, ok := pathID(c, "databaseId")
	if !ok {
		return
	}
	var input struct {
		Templates []models.Template `json:"templates"`
	}
	if !BindJSON(c, &input) {
		return
	}
	if len(input.Templates) == 0 {
		RespondAppError(c, errors.NewValidationError("templates", "at least one template is required"))
		return
	}
	result, err := h.provisioning.ProvisionTemplateBatch(c.Request.Context(), user.TenantID, databaseID, user.ID, input.Templates)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
