package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Processor errors
	ErrAuth                = errors.New("payment processor authentication failed")
	ErrOrderCreation       = errors.New("order creation failed")
	ErrCapture             = errors.New("order capture failed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// Request errors
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrMissingOrderID = errors.New("order id is required")

	// Ledger errors
	ErrLedgerWrite = errors.New("ledger write failed")
)

// ValidationError represents a validation error. Err optionally names the
// request sentinel (ErrInvalidAmount, ErrMissingOrderID) the failure belongs to.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// WrapValidationError creates a validation error that matches kind with errors.Is.
func WrapValidationError(kind error, field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: kind}
}

// ProcessorError describes a failed call to the payment processor. Kind is one
// of the processor sentinels (ErrAuth, ErrOrderCreation, ErrCapture) and is what
// errors.Is matches against. StatusCode is zero when no response was received.
type ProcessorError struct {
	Kind       error
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProcessorError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: unexpected status %d", e.Kind, e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
}

func (e *ProcessorError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Temporary reports whether the failure looks like an outage rather than a
// rejection: no response at all, or a 5xx from the processor. A call the
// caller cancelled says nothing about the processor and is not an outage.
func (e *ProcessorError) Temporary() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// IsOutage reports whether err carries a temporary ProcessorError.
func IsOutage(err error) bool {
	var perr *ProcessorError
	return errors.As(err, &perr) && perr.Temporary()
}

// NewProcessorError creates a processor error for a non-2xx response.
func NewProcessorError(kind error, op string, status int, body string) *ProcessorError {
	return &ProcessorError{Kind: kind, Op: op, StatusCode: status, Body: body}
}

// WrapProcessorError creates a processor error for a transport or decoding failure.
func WrapProcessorError(kind error, op string, err error) *ProcessorError {
	return &ProcessorError{Kind: kind, Op: op, Err: err}
}
