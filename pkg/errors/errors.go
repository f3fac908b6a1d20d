package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// NotFoundError represents a resource that was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }
func (e *NotFoundError) Code() string    { return "NOT_FOUND" }

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents invalid input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }
func (e *ValidationError) Code() string    { return "VALIDATION_ERROR" }

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PermissionError represents insufficient permissions. The message never
// reveals whether the resource exists.
type PermissionError struct {
	Action   string
	Resource string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

func (e *PermissionError) HTTPStatus() int { return http.StatusForbidden }
func (e *PermissionError) Code() string    { return "PERMISSION_DENIED" }

// NewPermissionError creates a new PermissionError
func NewPermissionError(action, resource string) *PermissionError {
	return &PermissionError{Action: action, Resource: resource}
}

// UnauthorizedError represents authentication failures
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return "unauthorized"
}

func (e *UnauthorizedError) HTTPStatus() int { return http.StatusUnauthorized }
func (e *UnauthorizedError) Code() string    { return "UNAUTHORIZED" }

// NewUnauthorizedError creates a new UnauthorizedError
func NewUnauthorizedError(reason string) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason}
}

// ConflictError represents a conflict with existing data
type ConflictError struct {
	Resource string
	Field    string
	Value    string
}

func (e *ConflictError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("%s already exists with %s='%s'", e.Resource, e.Field, e.Value)
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *ConflictError) Code() string    { return "CONFLICT" }

// NewConflictError creates a new ConflictError
func NewConflictError(resource, field, value string) *ConflictError {
	return &ConflictError{Resource: resource, Field: field, Value: value}
}

// InternalError represents unexpected server errors
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *InternalError) Code() string    { return "INTERNAL_ERROR" }
func (e *InternalError) Unwrap() error   { return e.Cause }

// NewInternalError creates a new InternalError
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// PlanLimitError is returned when a tenant quota would be exceeded.
type PlanLimitError struct {
	Resource string
	Current  int
	Limit    int
}

func (e *PlanLimitError) Error() string {
	return fmt.Sprintf("plan limit reached for %s: %d of %d used", e.Resource, e.Current, e.Limit)
}

func (e *PlanLimitError) HTTPStatus() int { return http.StatusForbidden }
func (e *PlanLimitError) Code() string    { return "PLAN_LIMIT_EXCEEDED" }

// NewPlanLimitError creates a new PlanLimitError
func NewPlanLimitError(resource string, current, limit int) *PlanLimitError {
	return &PlanLimitError{Resource: resource, Current: current, Limit: limit}
}

// ReferenceResolutionError is returned when a reference column's target
// table cannot be resolved.
type ReferenceResolutionError struct {
	Column string
	Target string
	Reason string
}

func (e *ReferenceResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve reference column '%s' to table '%s'", e.Column, e.Target)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ReferenceResolutionError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *ReferenceResolutionError) Code() string    { return "REFERENCE_RESOLUTION_ERROR" }

// NewReferenceResolutionError creates a new ReferenceResolutionError
func NewReferenceResolutionError(column, target, reason string) *ReferenceResolutionError {
	return &ReferenceResolutionError{Column: column, Target: target, Reason: reason}
}

// CircularDependencyError names a template that takes part in a dependency cycle.
type CircularDependencyError struct {
	TemplateID string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected at template '%s'", e.TemplateID)
}

func (e *CircularDependencyError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *CircularDependencyError) Code() string    { return "CIRCULAR_DEPENDENCY" }

// NewCircularDependencyError creates a new CircularDependencyError
func NewCircularDependencyError(templateID string) *CircularDependencyError {
	return &CircularDependencyError{TemplateID: templateID}
}

// RequiredFieldError rejects a row write that leaves a required column empty.
type RequiredFieldError struct {
	ColumnID int64
	Column   string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("column '%s' is required", e.Column)
}

func (e *RequiredFieldError) HTTPStatus() int { return http.StatusBadRequest }
func (e *RequiredFieldError) Code() string    { return "REQUIRED_FIELD" }

// NewRequiredFieldError creates a new RequiredFieldError
func NewRequiredFieldError(columnID int64, column string) *RequiredFieldError {
	return &RequiredFieldError{ColumnID: columnID, Column: column}
}

// InvalidOperatorError is returned when a filter operator is not valid for the column type.
type InvalidOperatorError struct {
	ColumnID   int64
	ColumnType string
	Operator   string
}

func (e *InvalidOperatorError) Error() string {
	return fmt.Sprintf("operator '%s' is not supported for %s column %d", e.Operator, e.ColumnType, e.ColumnID)
}

func (e *InvalidOperatorError) HTTPStatus() int { return http.StatusBadRequest }
func (e *InvalidOperatorError) Code() string    { return "INVALID_OPERATOR" }

// NewInvalidOperatorError creates a new InvalidOperatorError
func NewInvalidOperatorError(columnID int64, columnType, operator string) *InvalidOperatorError {
	return &InvalidOperatorError{ColumnID: columnID, ColumnType: columnType, Operator: operator}
}

// MissingRangeValueError is returned when a range operator lacks one of its bounds.
type MissingRangeValueError struct {
	ColumnID int64
	Operator string
}

func (e *MissingRangeValueError) Error() string {
	return fmt.Sprintf("operator '%s' on column %d requires both value and secondValue", e.Operator, e.ColumnID)
}

func (e *MissingRangeValueError) HTTPStatus() int { return http.StatusBadRequest }
func (e *MissingRangeValueError) Code() string    { return "MISSING_RANGE_VALUE" }

// NewMissingRangeValueError creates a new MissingRangeValueError
func NewMissingRangeValueError(columnID int64, operator string) *MissingRangeValueError {
	return &MissingRangeValueError{ColumnID: columnID, Operator: operator}
}

// InvalidSortColumnError is returned for a sortBy that names no column of the table.
type InvalidSortColumnError struct {
	SortBy string
}

func (e *InvalidSortColumnError) Error() string {
	return fmt.Sprintf("cannot sort by '%s'", e.SortBy)
}

func (e *InvalidSortColumnError) HTTPStatus() int { return http.StatusBadRequest }
func (e *InvalidSortColumnError) Code() string    { return "INVALID_SORT_COLUMN" }

// NewInvalidSortColumnError creates a new InvalidSortColumnError
func NewInvalidSortColumnError(sortBy string) *InvalidSortColumnError {
	return &InvalidSortColumnError{SortBy: sortBy}
}

// PageSizeExceededError is returned when pageSize is above the configured maximum.
type PageSizeExceededError struct {
	PageSize int
	Max      int
}

func (e *PageSizeExceededError) Error() string {
	return fmt.Sprintf("page size %d exceeds maximum of %d", e.PageSize, e.Max)
}

func (e *PageSizeExceededError) HTTPStatus() int { return http.StatusBadRequest }
func (e *PageSizeExceededError) Code() string    { return "PAGE_SIZE_EXCEEDED" }

// NewPageSizeExceededError creates a new PageSizeExceededError
func NewPageSizeExceededError(pageSize, max int) *PageSizeExceededError {
	return &PageSizeExceededError{PageSize: pageSize, Max: max}
}

// RateLimitError is returned when a caller exhausted its request window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) HTTPStatus() int { return http.StatusTooManyRequests }
func (e *RateLimitError) Code() string    { return "RATE_LIMITED" }

// NewRateLimitError creates a new RateLimitError
func NewRateLimitError(retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{RetryAfter: retryAfter}
}

// Helper functions for error checking

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPermission checks if an error is a PermissionError
func IsPermission(err error) bool {
	var target *PermissionError
	return errors.As(err, &target)
}

// IsUnauthorized checks if an error is an UnauthorizedError
func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}

// IsConflict checks if an error is a ConflictError
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsPlanLimit(err error) bool {
	var target *PlanLimitError
	return errors.As(err, &target)
}

func IsReferenceResolution(err error) bool {
	var target *ReferenceResolutionError
	return errors.As(err, &target)
}

func IsCircularDependency(err error) bool {
	var target *CircularDependencyError
	return errors.As(err, &target)
}

func IsRequiredField(err error) bool {
	var target *RequiredFieldError
	return errors.As(err, &target)
}

func IsInvalidOperator(err error) bool {
	var target *InvalidOperatorError
	return errors.As(err, &target)
}

func IsMissingRangeValue(err error) bool {
	var target *MissingRangeValueError
	return errors.As(err, &target)
}

func IsInvalidSortColumn(err error) bool {
	var target *InvalidSortColumnError
	return errors.As(err, &target)
}

func IsPageSizeExceeded(err error) bool {
	var target *PageSizeExceededError
	return errors.As(err, &target)
}

func IsRateLimit(err error) bool {
	var target *RateLimitError
	return errors.As(err, &target)
}

// RetryAfter returns the wait carried by a RateLimitError
func RetryAfter(err error) (time.Duration, bool) {
	var target *RateLimitError
	if errors.As(err, &target) {
		return target.RetryAfter, true
	}
	return 0, false
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
// Returns "UNKNOWN_ERROR" if the error doesn't implement AppError
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToResponse converts an error to an ErrorResponse. Quota errors carry their
// counts as details so callers can show current/limit.
func ToResponse(err error) ErrorResponse {
	resp := ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
	var planErr *PlanLimitError
	if errors.As(err, &planErr) {
		resp.Details = map[string]any{
			"resource": planErr.Resource,
			"current":  planErr.Current,
			"limit":    planErr.Limit,
		}
	}
	var circular *CircularDependencyError
	if errors.As(err, &circular) {
		resp.Details = map[string]any{"templateId": circular.TemplateID}
	}
	return resp
}
