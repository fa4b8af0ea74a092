// Package errors provides the unified error type used across the
// synchronization core. Every failure that crosses a component boundary
// is a *UnifiedError classified by ErrorType, so callers can decide on
// retries and user feedback without string matching.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ============================================================================
// ERROR TYPES AND CLASSIFICATION
// ============================================================================

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	// Business logic errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// Infrastructure errors
	ErrorTypeInternal   ErrorType = "INTERNAL"
	ErrorTypeTimeout    ErrorType = "TIMEOUT"
	ErrorTypeConnection ErrorType = "CONNECTION"

	// External service errors
	ErrorTypeExternal    ErrorType = "EXTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
)

// ErrorSeverity defines the severity level for logging and monitoring.
type ErrorSeverity string

const (
	SeverityLow    ErrorSeverity = "LOW"
	SeverityMedium ErrorSeverity = "MEDIUM"
	SeverityHigh   ErrorSeverity = "HIGH"
)

// ============================================================================
// UNIFIED ERROR STRUCTURE
// ============================================================================

// UnifiedError is the single error type returned by gateways, commands and
// the feed layer.
type UnifiedError struct {
	Type    ErrorType `json:"type"`
	Code    Code      `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	Operation string `json:"operation,omitempty"` // e.g. "createNode"
	Resource  string `json:"resource,omitempty"`  // e.g. "node:abc"

	Severity  ErrorSeverity `json:"severity"`
	Retryable bool          `json:"retryable"`
	Cause     error         `json:"-"`

	File string `json:"-"`
	Line int    `json:"-"`
}

// Error implements the error interface.
func (e *UnifiedError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *UnifiedError) Unwrap() error {
	return e.Cause
}

// String provides a multi-line representation for debug logging.
func (e *UnifiedError) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", e.Error())
	if e.Operation != "" {
		fmt.Fprintf(&b, "Operation: %s\n", e.Operation)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, "Resource: %s\n", e.Resource)
	}
	fmt.Fprintf(&b, "Severity: %s\n", e.Severity)
	fmt.Fprintf(&b, "Retryable: %t\n", e.Retryable)
	if e.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Cause)
	}
	if e.File != "" && e.Line > 0 {
		fmt.Fprintf(&b, "Location: %s:%d\n", e.File, e.Line)
	}
	return b.String()
}

// ============================================================================
// ERROR BUILDER FOR FLUENT CONSTRUCTION
// ============================================================================

// ErrorBuilder provides a fluent interface for constructing UnifiedError instances.
type ErrorBuilder struct {
	error *UnifiedError
}

// NewError creates a new error builder with the specified type and message.
func NewError(errType ErrorType, code Code, message string) *ErrorBuilder {
	return newBuilder(2, errType, code, message)
}

func newBuilder(skip int, errType ErrorType, code Code, message string) *ErrorBuilder {
	_, file, line, _ := runtime.Caller(skip)
	return &ErrorBuilder{
		error: &UnifiedError{
			Type:     errType,
			Code:     code,
			Message:  message,
			Severity: SeverityMedium,
			File:     file,
			Line:     line,
		},
	}
}

// WithDetails adds additional details to the error.
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.error.Details = details
	return b
}

// WithOperation specifies the operation that failed.
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.error.Operation = operation
	return b
}

// WithResource specifies the resource being operated on.
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.error.Resource = resource
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.error.Severity = severity
	return b
}

// WithRetryable marks the error as retryable.
func (b *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	b.error.Retryable = retryable
	return b
}

// WithCause adds the underlying cause error.
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.error.Cause = cause
	return b
}

// Build returns the constructed UnifiedError.
func (b *ErrorBuilder) Build() *UnifiedError {
	return b.error
}

// ============================================================================
// CONVENIENCE CONSTRUCTORS
// ============================================================================

// Validation creates a validation error.
func Validation(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeValidation, code, message).
		WithSeverity(SeverityLow)
}

// NotFound creates a not found error.
func NotFound(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeNotFound, code, message).
		WithSeverity(SeverityLow)
}

// Conflict creates a conflict error.
func Conflict(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeConflict, code, message).
		WithRetryable(true)
}

// Internal creates an internal error.
func Internal(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeInternal, code, message).
		WithSeverity(SeverityHigh)
}

// Timeout creates a timeout error.
func Timeout(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeTimeout, code, message).
		WithRetryable(true)
}

// Connection creates a connection error.
func Connection(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeConnection, code, message).
		WithSeverity(SeverityHigh).
		WithRetryable(true)
}

// External creates an external service error.
func External(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeExternal, code, message).
		WithRetryable(true)
}

// Unavailable creates an error for a dependency that is refusing work,
// e.g. behind an open circuit breaker.
func Unavailable(code Code, message string) *ErrorBuilder {
	return newBuilder(2, ErrorTypeUnavailable, code, message).
		WithSeverity(SeverityHigh).
		WithRetryable(true)
}

// ============================================================================
// ERROR CLASSIFICATION AND CHECKING
// ============================================================================

// As returns the first *UnifiedError in err's chain.
func As(err error) (*UnifiedError, bool) {
	var unified *UnifiedError
	if errors.As(err, &unified) {
		return unified, true
	}
	return nil, false
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	unified, ok := As(err)
	return ok && unified.Type == errType
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool {
	return IsType(err, ErrorTypeConnection)
}

// IsUnavailable checks if an error is an unavailable error.
func IsUnavailable(err error) bool {
	return IsType(err, ErrorTypeUnavailable)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	unified, ok := As(err)
	return ok && unified.Retryable
}

// CodeOf returns the error code, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	if unified, ok := As(err); ok {
		return unified.Code
	}
	return CodeUnknown
}

// ============================================================================
// ERROR WRAPPING AND CONTEXT PRESERVATION
// ============================================================================

// Wrap wraps an existing error with additional context while preserving
// the original classification.
func Wrap(err error, operation, message string) *UnifiedError {
	if err == nil {
		return nil
	}

	if existing, ok := As(err); ok {
		return &UnifiedError{
			Type:      existing.Type,
			Code:      existing.Code,
			Message:   message,
			Details:   existing.Message,
			Operation: operation,
			Resource:  existing.Resource,
			Severity:  existing.Severity,
			Retryable: existing.Retryable,
			Cause:     err,
			File:      existing.File,
			Line:      existing.Line,
		}
	}

	_, file, line, _ := runtime.Caller(1)
	return &UnifiedError{
		Type:      ErrorTypeInternal,
		Code:      CodeWrapped,
		Message:   message,
		Details:   err.Error(),
		Operation: operation,
		Severity:  SeverityMedium,
		Cause:     err,
		File:      file,
		Line:      line,
	}
}
