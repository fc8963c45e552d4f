package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so a detailed
// error built with NewDomainErrorf still matches its sentinel via errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf creates a domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// Error codes
const (
	CodeNotFound                = "NOT_FOUND"
	CodeAlreadyExists           = "ALREADY_EXISTS"
	CodeValidation              = "VALIDATION_ERROR"
	CodeConcurrencyConflict     = "CONCURRENCY_CONFLICT"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInvalidState            = "INVALID_STATE"
	CodeInsufficientBalance     = "INSUFFICIENT_BALANCE"
	CodeIndexIntegrityViolation = "INDEX_INTEGRITY_VIOLATION"
	CodeSplitInvariantViolation = "SPLIT_INVARIANT_VIOLATION"
	CodeExternalReadFailure     = "EXTERNAL_READ_FAILURE"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrInsufficientBalance = NewDomainError(CodeInsufficientBalance, "Insufficient balance available")

	// ErrIndexIntegrityViolation marks a growth index candidate that would move
	// the index backwards or more than double it in one step.
	ErrIndexIntegrityViolation = NewDomainError(CodeIndexIntegrityViolation, "Growth index update rejected")

	// ErrSplitInvariantViolation marks a revenue split whose parts do not sum to the input.
	ErrSplitInvariantViolation = NewDomainError(CodeSplitInvariantViolation, "Revenue split does not sum to raw yield")

	// ErrExternalReadFailure marks a balance source that could not be read this cycle.
	ErrExternalReadFailure = NewDomainError(CodeExternalReadFailure, "External balance read failed")
)
