package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrInsufficientCredit   = errors.New("insufficient credit")
	ErrNoAvailability       = errors.New("no availability")
	ErrSlotUnavailable      = errors.New("slot unavailable")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrInvalidAccountID     = errors.New("invalid account id")
	ErrInvalidLessonID      = errors.New("invalid lesson id")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidLessonStatus  = errors.New("invalid lesson status")
	ErrInvalidSlot          = errors.New("invalid slot")
	ErrDuplicateSlot        = errors.New("duplicate slot")
	ErrInvalidLessonCount   = errors.New("invalid lesson count")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// Not-found variants keep errors.Is(err, ErrNotFound) working.
var (
	ErrUnknownLesson  = fmt.Errorf("unknown lesson: %w", ErrNotFound)
	ErrUnknownAccount = fmt.Errorf("unknown account: %w", ErrNotFound)
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
