package focus

import (
	"errors"
	"fmt"
	"strings"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error. Errors raised by APIs that do not return enough error
	// information may be converted to this error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., sheet or cell) was not
	// found.
	NotFound AppErrorCode = 5

	// FailedPrecondition indicates operation was rejected because the
	// engine is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// Unimplemented indicates operation is not implemented or not
	// supported/enabled.
	Unimplemented AppErrorCode = 12

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WrapApplicationError creates an application error around a cause
func WrapApplicationError(code AppErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

var (
	ErrCircularReference  = errors.New("circular reference")
	ErrAddressNotFound    = errors.New("address not found")
	ErrUnsupportedFormula = errors.New("unsupported formula")
	ErrNoDependentOutputs = errors.New("no outputs are dependant on it")
)

// CircularReferenceError is returned when a cycle is found while cycle
// support is disabled. Cycle lists the member cells in evaluation order.
type CircularReferenceError struct {
	Cycle []Address
}

func (e *CircularReferenceError) Error() string {
	names := make([]string, len(e.Cycle))
	for i, a := range e.Cycle {
		names[i] = a.String()
	}
	return fmt.Sprintf("circular reference: %s", strings.Join(names, " -> "))
}

func (e *CircularReferenceError) Is(target error) bool {
	return target == ErrCircularReference
}

// UnsupportedFormulaError is raised when evaluating a formula the
// evaluator cannot interpret, either at parse time or for an unknown
// function.
type UnsupportedFormulaError struct {
	Address Address
	Formula string
	Reason  string
}

func (e *UnsupportedFormulaError) Error() string {
	if e.Address.Sheet == "" {
		return fmt.Sprintf("unsupported formula %q: %s", e.Formula, e.Reason)
	}
	return fmt.Sprintf("unsupported formula at %s %q: %s", e.Address, e.Formula, e.Reason)
}

func (e *UnsupportedFormulaError) Is(target error) bool {
	return target == ErrUnsupportedFormula
}

// AddressNotFoundError is returned when the source has no cell for an
// address, for instance because the sheet does not exist.
type AddressNotFoundError struct {
	Address Address
}

func (e *AddressNotFoundError) Error() string {
	return fmt.Sprintf("address not found: %s", e.Address)
}

func (e *AddressNotFoundError) Is(target error) bool {
	return target == ErrAddressNotFound
}
