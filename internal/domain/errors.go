package domain

import "fmt"

// Error types for consistent error handling across the ledger.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad amount, missing required
// reference id, zero or negative payment).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrWriteOff indicates a variable fee is written off and can no longer
// accept payment. Write-off is terminal.
type ErrWriteOff struct {
	FeeID string
}

func (e *ErrWriteOff) Error() string {
	return fmt.Sprintf("variable fee written off, no further payment accepted: %s", e.FeeID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrPartialFailure wraps one student's failed reconciliation inside a
// batch. The batch engine counts these and moves on.
type ErrPartialFailure struct {
	StudentID string
	Err       error
}

func (e *ErrPartialFailure) Error() string {
	return fmt.Sprintf("reconciliation failed for student %s: %v", e.StudentID, e.Err)
}

func (e *ErrPartialFailure) Unwrap() error {
	return e.Err
}

// ErrUnauthorized indicates an invalid or missing service token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
