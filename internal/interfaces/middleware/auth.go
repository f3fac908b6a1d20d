package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/auth"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"go.uber.org/zap"
)

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		constants.ResponseError: "Unauthorized",
		constants.FieldMessage:  message,
		"code":                  "UNAUTHORIZED",
		"data":                  nil,
	})
}

// RequireAuth validates the bearer token and stores the session under
// constants.ContextKeyUser. The request logger gains user and tenant fields.
func RequireAuth(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			unauthorized(c, "No authorization token provided")
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != strings.TrimSpace(constants.BearerPrefix) || parts[1] == "" {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		user := claims.User
		c.Set(constants.ContextKeyUser, user)

		ctx := c.Request.Context()
		log := logger.FromContext(ctx).With(zap.String("user_id", user.ID), zap.String("tenant_id", user.TenantID))
		c.Request = c.Request.WithContext(logger.WithContext(ctx, log))

		c.Next()
	}
}

// CurrentUser returns the session stored by RequireAuth
func CurrentUser(c *gin.Context) (*models.UserSession, bool) {
	v, exists := c.Get(constants.ContextKeyUser)
	if !exists {
		return nil, false
	}
	user, ok := v.(models.UserSession)
	if !ok {
		return nil, false
	}
	return &user, true
}
