// Package errors provides categorized errors for Vox.
package errors

import (
	"errors"
	"strings"
	"time"
)

// ============================================================
// Error Categories
// ============================================================

// Category defines the type of error for handling decisions.
type Category int

const (
	// CategoryTemporary errors are retryable (network timeouts, 5xx responses)
	CategoryTemporary Category = iota

	// CategoryPermanent errors are not retryable (invalid input, not found)
	CategoryPermanent

	// CategoryProtocol errors come from a peer breaking the wire contract
	CategoryProtocol

	// CategoryTimeout errors mean a deadline elapsed before an answer arrived
	CategoryTimeout

	// CategoryRateLimit errors are due to API rate limiting
	CategoryRateLimit
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTemporary:
		return "temporary"
	case CategoryPermanent:
		return "permanent"
	case CategoryProtocol:
		return "protocol"
	case CategoryTimeout:
		return "timeout"
	case CategoryRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// ============================================================
// AppError - Main Error Type
// ============================================================

// AppError is the main error type for all Vox errors.
type AppError struct {
	// Code is a unique error code for programmatic handling
	Code string

	// Message is a human-readable error message
	Message string

	// Category determines how the error should be handled
	Category Category

	// Inner is the underlying error
	Inner error

	// Retryable indicates if the operation can be retried
	Retryable bool

	// RetryAfter is the suggested delay before retry
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *AppError) Error() string {
	var sb strings.Builder

	if e.Code != "" {
		sb.WriteString("[")
		sb.WriteString(e.Code)
		sb.WriteString("] ")
	}

	sb.WriteString(e.Message)

	if e.Inner != nil {
		innerMsg := e.Inner.Error()
		if innerMsg != "" && innerMsg != e.Message {
			sb.WriteString(": ")
			sb.WriteString(innerMsg)
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Inner
}

// ============================================================
// Error Constructors
// ============================================================

// New creates a new AppError.
func New(code, message string, category Category) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  category,
		Retryable: category == CategoryTemporary || category == CategoryRateLimit,
	}
}

// Wrap wraps an existing error with context.
// The retry hint of a wrapped AppError is preserved.
func Wrap(err error, code, message string, category Category) *AppError {
	if err == nil {
		return nil
	}

	wrapped := New(code, message, category)
	wrapped.Inner = err

	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped.Retryable = appErr.Retryable
		wrapped.RetryAfter = appErr.RetryAfter
	}

	return wrapped
}

// Temporary creates a retryable temporary error.
func Temporary(code, message string) *AppError {
	return New(code, message, CategoryTemporary)
}

// Permanent creates a non-retryable permanent error.
func Permanent(code, message string) *AppError {
	return New(code, message, CategoryPermanent)
}

// Protocol creates a peer protocol error.
func Protocol(code, message string) *AppError {
	return New(code, message, CategoryProtocol)
}

// RateLimit creates a rate limit error with retry after duration.
func RateLimit(code, message string, retryAfter time.Duration) *AppError {
	e := New(code, message, CategoryRateLimit)
	e.RetryAfter = retryAfter
	return e
}

// ============================================================
// Error Codes
// ============================================================

const (
	// Action errors
	CodeActionNotFound = "ACTION_NOT_FOUND"
	CodeActionFailed   = "ACTION_FAILED"
	CodeActionTimeout  = "ACTION_TIMEOUT"
	CodeActionInvalid  = "ACTION_INVALID"

	// Remote errors
	CodeRemoteSendFailed = "REMOTE_SEND_FAILED"
	CodeUnknownCall      = "UNKNOWN_CALL"

	// Protocol errors
	CodeProtocolMalformed    = "PROTOCOL_MALFORMED"
	CodeProtocolUnknownPath  = "PROTOCOL_UNKNOWN_PATH"
	CodeProtocolMissingField = "PROTOCOL_MISSING_FIELD"

	// Model errors
	CodeModelUnavailable     = "MODEL_UNAVAILABLE"
	CodeModelRateLimit       = "MODEL_RATE_LIMIT"
	CodeModelInvalidResponse = "MODEL_INVALID_RESPONSE"
	CodeForcedActionsUnmet   = "FORCED_ACTIONS_UNMET"

	// Config errors
	CodeConfigInvalid = "CONFIG_INVALID"
)

// ============================================================
// Helpers
// ============================================================

// GetCategory extracts the category from an error.
// Returns CategoryTemporary for non-AppError errors.
func GetCategory(err error) Category {
	if err == nil {
		return CategoryTemporary
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}

	return CategoryTemporary
}

// GetCode returns the code of the outermost AppError, or "".
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	// Default to retryable for unknown errors
	return true
}

// GetRetryAfter returns the suggested retry duration.
func GetRetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}

	return 0
}
