// Package errors provides structured error types for the analytics store.
// Every error carries a category, code, message and retryable flag so the
// service facade can decide which failures degrade silently and which surface.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by component.
type ErrorCategory string

const (
	ErrCategoryStore    ErrorCategory = "STORE"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryImport   ErrorCategory = "IMPORT"
	ErrCategoryReport   ErrorCategory = "REPORT"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes.
const (
	// Store codes
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeRecordRejected   = "RECORD_REJECTED"
	CodeSchemaMismatch   = "SCHEMA_MISMATCH"

	// Query codes
	CodeMalformedQuery = "MALFORMED_QUERY"

	// Import codes
	CodeMalformedImport = "MALFORMED_IMPORT"

	// Report codes
	CodeNotFound = "NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is. Matching compares category and code only.
var (
	ErrStoreUnavailable = New(ErrCategoryStore, CodeStoreUnavailable, "store unavailable")
	ErrRecordRejected   = New(ErrCategoryStore, CodeRecordRejected, "record rejected")
	ErrMalformedImport  = New(ErrCategoryImport, CodeMalformedImport, "malformed import")
	ErrMalformedQuery   = New(ErrCategoryQuery, CodeMalformedQuery, "malformed query")
	ErrNotFound         = New(ErrCategoryReport, CodeNotFound, "not found")
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetCategory extracts the error category from an error chain.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// Store unavailability heals on its own; the next ingestion retries naturally.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStore && code == CodeStoreUnavailable
}

func NewStoreUnavailable(message string, cause error) *Error {
	return Wrap(ErrCategoryStore, CodeStoreUnavailable, message, cause)
}

func NewRecordRejected(message string, cause error) *Error {
	return Wrap(ErrCategoryStore, CodeRecordRejected, message, cause)
}

func NewMalformedImport(message string, cause error) *Error {
	return Wrap(ErrCategoryImport, CodeMalformedImport, message, cause)
}

func NewMalformedQuery(message string) *Error {
	return New(ErrCategoryQuery, CodeMalformedQuery, message)
}

func NewNotFound(message string) *Error {
	return New(ErrCategoryReport, CodeNotFound, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
