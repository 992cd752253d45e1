package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource, reservation or request id is unknown
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeInvalidWindow indicates a malformed or past-dated time range
	ErrorTypeInvalidWindow ErrorType = "INVALID_WINDOW"

	// ErrorTypeConflict indicates an overlapping booking or a lost compare-and-set race
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInvalidTransition indicates a state machine edge that is not allowed
	ErrorTypeInvalidTransition ErrorType = "INVALID_TRANSITION"

	// ErrorTypeUnauthorized indicates the actor lacks the role for the action
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeValidation indicates a missing or malformed field
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error

	// ConflictingIDs lists the reservations or dispatches that caused a CONFLICT,
	// so callers can offer alternatives.
	ConflictingIDs []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if len(e.ConflictingIDs) > 0 {
		msg += fmt.Sprintf(" [conflicts: %s]", strings.Join(e.ConflictingIDs, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewInvalidWindowError creates a new invalid window error
func NewInvalidWindowError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidWindow,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error carrying the ids that won
func NewConflictError(message string, conflictingIDs ...string) *AppError {
	return &AppError{
		Type:           ErrorTypeConflict,
		Message:        message,
		ConflictingIDs: conflictingIDs,
	}
}

// NewInvalidTransitionError creates a new invalid transition error
func NewInvalidTransitionError(entity, from, to string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err (or anything it wraps) is an AppError of type t
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// ConflictIDs returns the conflicting ids attached to a CONFLICT error, if any
func ConflictIDs(err error) []string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Type == ErrorTypeConflict {
		return appErr.ConflictingIDs
	}
	return nil
}
