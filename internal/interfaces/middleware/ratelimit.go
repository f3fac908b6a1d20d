package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/nexuscrm/tablestore/pkg/metrics"
	"github.com/nexuscrm/tablestore/pkg/ratelimit"
)

// RateLimit admits at most limit requests per window for each tenant user.
// It must run after RequireAuth. A limit of zero disables it.
func RateLimit(limiter ratelimit.Limiter, limit int, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		segment := c.ClientIP()
		if user, ok := CurrentUser(c); ok {
			segment = user.TenantID + ":" + user.ID
		}
		decision := limiter.Allow(c.Request.Context(), ratelimit.Key("user", segment), limit)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			c.Next()
			return
		}

		metrics.RateLimitRejections.Inc()
		wait := decision.RetryAfter(now())
		err := apperrors.NewRateLimitError(wait)
		c.Header(constants.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			constants.ResponseError: err.Error(),
			constants.FieldMessage:  err.Error(),
			"code":                  err.Code(),
			"data":                  nil,
		})
	}
}
