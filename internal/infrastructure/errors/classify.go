package errors

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
)

// ClassifyError maps a driver or standard library error onto an ErrorCode
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ErrCodeUnknown
	}

	if code := classifySQLiteError(err); code != ErrCodeUnknown {
		return code
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrCodeNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrCodeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint"):
		return ErrCodeConstraint
	case strings.Contains(msg, "database is locked"):
		return ErrCodeBusy
	case strings.Contains(msg, "malformed"):
		return ErrCodeCorruption
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"):
		return ErrCodeSchema
	case strings.Contains(msg, "permission denied"):
		return ErrCodePermission
	case strings.Contains(msg, "no space left"), strings.Contains(msg, "disk full"):
		return ErrCodeDiskSpace
	case strings.Contains(msg, "timeout"):
		return ErrCodeTimeout
	default:
		return ErrCodeUnknown
	}
}

// WrapDatabaseError classifies err and wraps it for op
func WrapDatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewRepositoryError(op, err, ClassifyError(err))
}

// WrapDatabaseErrorWithContext is WrapDatabaseError with extra context
func WrapDatabaseErrorWithContext(op string, err error, contextMap map[string]string) error {
	if err == nil {
		return nil
	}
	return NewRepositoryErrorWithContext(op, err, ClassifyError(err), contextMap)
}

// HandleNotFound creates a NOT_FOUND error for a missing resource
func HandleNotFound(op, resource, identifier string) error {
	return NewRepositoryErrorWithContext(op, sql.ErrNoRows, ErrCodeNotFound, map[string]string{
		"resource":   resource,
		"identifier": identifier,
	})
}

// HandleValidationError creates a VALIDATION error for a rejected field value
func HandleValidationError(op, field, value, reason string) error {
	return NewRepositoryErrorWithContext(op, errors.New("validation failed"), ErrCodeValidation, map[string]string{
		"field":  field,
		"value":  value,
		"reason": reason,
	})
}

// HandleConnectionError creates a CONNECTION error
func HandleConnectionError(op, details string) error {
	return NewRepositoryErrorWithContext(op, errors.New("connection error"), ErrCodeConnection, map[string]string{
		"details": details,
	})
}

// HandleCorruptionError creates a CORRUPTION error for unreadable persisted state
func HandleCorruptionError(op, resource, details string) error {
	return NewRepositoryErrorWithContext(op, errors.New("data corruption detected"), ErrCodeCorruption, map[string]string{
		"resource": resource,
		"details":  details,
	})
}

// HandleConflictError creates a retryable CONFLICT error for a lost
// compare-and-swap on a versioned record
func HandleConflictError(op, resource string, expectedVersion int64) error {
	return NewRepositoryErrorWithContext(op, errors.New("concurrent modification"), ErrCodeConflict, map[string]string{
		"resource":         resource,
		"expected_version": strconv.FormatInt(expectedVersion, 10),
	})
}
