package rest

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/internal/interfaces/middleware"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/utils"
	"go.uber.org/zap"
)

// GetUserFromContext extracts the authenticated user from gin.Context
func GetUserFromContext(c *gin.Context) *models.UserSession {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return user
}

// requireUser returns the session or responds 401
func requireUser(c *gin.Context) (*models.UserSession, bool) {
	user := GetUserFromContext(c)
	if user == nil {
		RespondAppError(c, errors.NewUnauthorizedError("no authenticated user"))
		return nil, false
	}
	return user, true
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	resp := errors.ToResponse(err)

	if code >= 500 {
		logger.FromContext(c.Request.Context()).Error("❌ Request failed",
			zap.Int("status", code),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	if wait, ok := errors.RetryAfter(err); ok {
		c.Header(constants.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}

	body := gin.H{
		constants.ResponseError: resp.Message, // Legacy
		constants.FieldMessage:  resp.Message,
		"code":                  resp.Code,
		"data":                  nil,
	}
	if resp.Details != nil {
		body["details"] = resp.Details
	}
	c.JSON(code, body)
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// pathID parses a numeric path parameter, responding 400 on failure
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		RespondAppError(c, errors.NewValidationError(name, err.Error()))
		return 0, false
	}
	return id, true
}

// HandleGetEnvelope executes a read action and returns the result wrapped in a JSON key
// Response: { [key]: result }
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: result})
}

// HandleCreateEnvelope executes a create action and returns the created object
// Response: { constants.FieldMessage: successMsg, [key]: result }
func HandleCreateEnvelope(c *gin.Context, key string, successMsg string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{constants.FieldMessage: successMsg, key: result})
}

// HandleUpdateEnvelope is HandleCreateEnvelope answering 200
func HandleUpdateEnvelope(c *gin.Context, key string, successMsg string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: successMsg, key: result})
}

// HandleDeleteEnvelope executes a delete action and returns a success message
// Response: { constants.FieldMessage: successMsg }
func HandleDeleteEnvelope(c *gin.Context, successMsg string, action func() error) {
	if err := action(); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: successMsg})
}
