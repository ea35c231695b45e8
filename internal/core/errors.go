package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers classify with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated: no active session")
	ErrNotFound        = errors.New("record not found")
	ErrForbidden       = errors.New("record belongs to another owner")
	ErrValidation      = errors.New("validation failed")
)

var (
	ErrInvalidAmount  = NewValidationError("amount", "amount must be a positive number")
	ErrAmountTooLarge = NewValidationError("amount", "amount must not exceed 100000000000.00")
	ErrEmptyName      = NewValidationError("name", "name is required")
)

const (
	KindUnauthenticated = "unauthenticated"
	KindNotFound        = "not_found"
	KindForbidden       = "forbidden"
	KindValidation      = "validation"
	KindInternal        = "internal"
)

// ValidationError names the offending field. It unwraps to ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ErrorKind maps an error to its taxonomy label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}
