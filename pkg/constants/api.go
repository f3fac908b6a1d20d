package constants

// HTTP and API constants
const (
	HeaderAuthorization = "Authorization"
	HeaderXRequestID    = "X-Request-ID"
	HeaderRetryAfter    = "Retry-After"

	BearerPrefix = "Bearer "

	ResponseError = "error"
	FieldMessage  = "message"
)

// Context Keys
const (
	ContextKeyUser      = "user"
	ContextKeyRequestID = "request_id"
	ContextKeyLogger    = "logger"
)

// Pagination defaults
const (
	DefaultPageSize    = 25
	DefaultMaxPageSize = 100
)
