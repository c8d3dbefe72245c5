package capability

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory is the normalized failure taxonomy for capability calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the backend took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadOutput indicates the backend answered with unusable data
	ErrorBadOutput ErrorCategory = "bad_output"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorOutage indicates the backend is unavailable
	ErrorOutage ErrorCategory = "outage"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorContractMismatch indicates the response violated the output schema
	ErrorContractMismatch ErrorCategory = "contract_mismatch"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps capability failures with normalized categorization.
type Error struct {
	Category   ErrorCategory
	Capability string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("capability %s [%s]: %s: %v", e.Capability, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("capability %s [%s]: %s", e.Capability, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized capability error. Transient categories and
// schema violations are retryable.
func NewError(category ErrorCategory, capability, message string, underlying error) *Error {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited ||
		category == ErrorContractMismatch

	return &Error{
		Category:   category,
		Capability: capability,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrorInternal
}

// CategoryFromStatus maps an HTTP status from a backend to a category.
func CategoryFromStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTimeout
	case status >= 500:
		return ErrorOutage
	default:
		return ErrorInternal
	}
}
