package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/pushgate/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents invalid input records
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents missing accounts or records
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents limit and uniqueness conflicts
	CategoryConflict ErrorCategory = "conflict"
	// CategoryBusy represents contention on a per-account admission
	CategoryBusy ErrorCategory = "busy"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents lock store (Redis) errors
	CategoryCache ErrorCategory = "cache"
	// CategorySystem represents everything else
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with a category and a stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewValidationError creates an invalid record error
func NewValidationError(record string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "INVALID_" + upper(record),
		Message:  fmt.Sprintf("invalid %s", record),
		Cause:    cause,
		Details: map[string]interface{}{
			"record": record,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "INVALID_PARAMETER",
		Message:  fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewKeywordLimitError is returned by the rule-creation surface when an
// account already holds its keyword limit.
func NewKeywordLimitError(accountID string, count, limit int) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConflict,
		Code:     "KEYWORD_LIMIT_EXCEEDED",
		Message:  fmt.Sprintf("keyword limit reached: %d/%d", count, limit),
		Details: map[string]interface{}{
			"accountId": accountID,
			"count":     count,
			"limit":     limit,
		},
	}
}

// NewAdmissionBusyError is returned when the per-account admission lock could
// not be taken within the configured wait.
func NewAdmissionBusyError(accountID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryBusy,
		Code:     "ADMISSION_BUSY",
		Message:  fmt.Sprintf("another push for account %s is in flight", accountID),
		Cause:    cause,
		Details: map[string]interface{}{
			"accountId": accountID,
		},
	}
}

// NewAdmissionExpiredError is returned when an admission's lease lapsed
// before it was released, so its slot may already have been reissued.
func NewAdmissionExpiredError(accountID string, held time.Duration) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConflict,
		Code:     "ADMISSION_EXPIRED",
		Message:  fmt.Sprintf("admission for account %s expired after %s", accountID, held.Round(time.Millisecond)),
		Details: map[string]interface{}{
			"accountId": accountID,
			"heldMs":    held.Milliseconds(),
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDatabase,
		Code:     "DATABASE_ERROR",
		Message:  fmt.Sprintf("database error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a lock store error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryCache,
		Code:     "CACHE_ERROR",
		Message:  fmt.Sprintf("cache error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySystem,
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error, looking through wrapping
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category := CategorySystem
	switch err.Code {
	case "INVALID_TIER", "INVALID_PARAMETER":
		category = CategoryValidation
	case "ACCOUNT_NOT_FOUND", "NOT_FOUND":
		category = CategoryNotFound
	case "KEYWORD_LIMIT_EXCEEDED":
		category = CategoryConflict
	}
	return &CategorizedError{
		Category: category,
		Code:     err.Code,
		Message:  err.Message,
		Details:  err.Details,
	}
}

// HasCategory reports whether err carries the given category
func HasCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	if !stderrors.As(err, &catErr) {
		return false
	}
	return catErr.Category == category
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return HasCategory(err, CategoryNotFound)
}

// IsRetryable determines if the caller may retry the operation. The core
// itself never retries.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryBusy, CategoryDatabase, CategoryCache:
		return true
	default:
		return false
	}
}

func upper(s string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(s))
}
