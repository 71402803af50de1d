package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics across the coordinator.
type ErrorCode string

const (
	CodeValidation            ErrorCode = "validation"
	CodeSchemaValidation      ErrorCode = "schema_validation"
	CodeNotFound              ErrorCode = "not_found"
	CodeAggregateNotFound     ErrorCode = "aggregate_not_found"
	CodeRepositoryUnavailable ErrorCode = "repository_unavailable"
	CodeConflict              ErrorCode = "conflict"
	CodeInvariantViolation    ErrorCode = "invariant_violation"
	CodeRequestTimeout        ErrorCode = "request_timeout"
	CodeUnknownEventName      ErrorCode = "unknown_event_name"
	CodeSchemaMismatch        ErrorCode = "schema_mismatch"
	CodeRetryable             ErrorCode = "retryable"
	CodeInternal              ErrorCode = "internal"
)

// Error is the canonical error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with a code.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return false
	}
	return aggErr.Code == code
}

// CodeOf extracts the error code when available.
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Code
}

// Retryable reports whether a redelivery of the same input could succeed.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeRetryable, CodeRepositoryUnavailable, CodeRequestTimeout:
		return true
	default:
		return false
	}
}
