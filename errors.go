// Package levmarq structured error types for better error handling
package levmarq

import (
	"errors"
	"fmt"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Scratch memory errors
	ErrTypeMemory ErrorType = iota
	// Invalid argument errors
	ErrTypeInvalidArg
	// Kernel execution errors
	ErrTypeExecution
	// Numerical errors
	ErrTypeNumerical
	// Configuration errors, fatal for a whole dispatch
	ErrTypeConfig
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Op      string      // Operation that failed
	Message string      // Human-readable message
	Err     error       // Underlying error if any
	Context interface{} // Additional context (event index, window, ...)
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Context != nil {
		msg = fmt.Sprintf("%s [%v]", msg, e.Context)
	}
	if e.Err != nil {
		return fmt.Sprintf("levmarq %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, msg, e.Err)
	}
	return fmt.Sprintf("levmarq %s error in %s: %s",
		e.Type.String(), e.Op, msg)
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type, op and message.
// This lets errors.Is match a sentinel even when the returned error carries
// extra context or a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Op == t.Op && e.Message == t.Message
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeMemory:
		return "Memory"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	case ErrTypeExecution:
		return "Execution"
	case ErrTypeNumerical:
		return "Numerical"
	case ErrTypeConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Common error constructors

// NewMemoryError creates a scratch-memory error
func NewMemoryError(op string, message string, err error) error {
	return &Error{
		Type:    ErrTypeMemory,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &Error{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// NewExecutionError creates an execution error
func NewExecutionError(op string, message string, err error) error {
	return &Error{
		Type:    ErrTypeExecution,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewNumericalError creates a numerical error
func NewNumericalError(op string, message string, context interface{}) error {
	return &Error{
		Type:    ErrTypeNumerical,
		Op:      op,
		Message: message,
		Context: context,
	}
}

// NewConfigError creates a configuration error
func NewConfigError(op string, message string, context interface{}) error {
	return &Error{
		Type:    ErrTypeConfig,
		Op:      op,
		Message: message,
		Context: context,
	}
}

// Common pre-defined errors

var (
	// ErrInvalidShape indicates a matrix view that does not fit its buffer
	ErrInvalidShape = NewInvalidArgError("Matrix", "invalid shape")

	// ErrInvalidSize indicates an invalid scratch size
	ErrInvalidSize = NewInvalidArgError("Allocate", "size must be positive")

	// ErrScratchExhausted indicates a carve past the end of a scratch partition
	ErrScratchExhausted = NewMemoryError("Scratch", "scratch partition exhausted", nil)

	// ErrDoubleFree indicates an arena returned to the pool twice
	ErrDoubleFree = NewMemoryError("Free", "double free detected", nil)

	// ErrPoolClosed indicates a launch on a closed device
	ErrPoolClosed = NewExecutionError("Launch", "device is closed", nil)

	// ErrBarrierBroken indicates a sibling worker panicked mid-block
	ErrBarrierBroken = NewExecutionError("Barrier", "barrier broken by a failed worker", nil)

	// ErrKernelFailed indicates a kernel panicked
	ErrKernelFailed = NewExecutionError("Kernel", "kernel execution failed", nil)

	// ErrInvalidConfig indicates a configuration that cannot be used
	ErrInvalidConfig = NewConfigError("Config", "invalid configuration", nil)

	// ErrWindowTooWide indicates a window wider than the configured scratch capacity
	ErrWindowTooWide = NewConfigError("Dispatch", "window exceeds max window width", nil)

	// ErrWindowOutOfRange indicates a window that does not lie inside its event
	ErrWindowOutOfRange = NewConfigError("Dispatch", "window outside event samples", nil)
)

// IsMemoryError checks if an error is a memory error
func IsMemoryError(err error) bool {
	return hasType(err, ErrTypeMemory)
}

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool {
	return hasType(err, ErrTypeInvalidArg)
}

// IsExecutionError checks if an error is an execution error
func IsExecutionError(err error) bool {
	return hasType(err, ErrTypeExecution)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return hasType(err, ErrTypeConfig)
}

func hasType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// withContext returns a copy of a sentinel carrying extra context. The copy
// still matches the sentinel through errors.Is.
func withContext(sentinel error, context interface{}, cause error) error {
	var e *Error
	if !errors.As(sentinel, &e) {
		return sentinel
	}
	c := *e
	c.Context = context
	c.Err = cause
	return &c
}
