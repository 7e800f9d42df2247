// Package poolerrors provides structured error handling for connpool with
// pool identity context, stack traces, and error categorization.
//
// # Overview
//
// Every failure surfaced by a lifecycle operation is an *Error carrying:
//   - an ErrorType naming the semantic failure kind
//   - the identity of the pool the operation targeted
//   - the underlying cause, reachable through errors.Is and errors.As
//   - key-value details for logging
//
// # Basic Usage
//
//	desc, err := naming.Lookup(ctx, id, id.ReservedName(), env)
//	if err != nil {
//	    return poolerrors.Wrap(err, poolerrors.ErrorTypeNotBound, "pool descriptor not bound").
//	        WithPool(id).
//	        WithDetail("name", id.ReservedName())
//	}
//
// # Not found conditions
//
// Absence is modelled as ErrorTypeNotBound, checked with IsType or IsNotBound,
// never as a nil value flowing out of a collaborator.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Use WithDetail and
// WithPool before sharing across goroutines.
package poolerrors

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// ErrorType represents the category of a pool lifecycle failure.
type ErrorType string

const (
	// ErrorTypeInvalidRequest represents a missing identity or descriptor
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypeNotBound represents a naming lookup for a pool that is not published
	ErrorTypeNotBound ErrorType = "not_bound"
	// ErrorTypeAdapterNotInitialized represents an adapter module that cannot be resolved
	ErrorTypeAdapterNotInitialized ErrorType = "adapter_not_initialized"
	// ErrorTypeFactoryCreationFailed represents an adapter rejecting the factory configuration
	ErrorTypeFactoryCreationFailed ErrorType = "factory_creation_failed"
	// ErrorTypeTransactionSupportMismatch represents a factory declaring more than its adapter supports
	ErrorTypeTransactionSupportMismatch ErrorType = "transaction_support_mismatch"
	// ErrorTypeRegistrationConflict represents a second factory for an identity
	ErrorTypeRegistrationConflict ErrorType = "registration_conflict"
	// ErrorTypeTestConnectionFailed represents an unpooled connection failure
	ErrorTypeTestConnectionFailed ErrorType = "test_connection_failed"
	// ErrorTypePool represents a physical pool failure
	ErrorTypePool ErrorType = "pool"
	// ErrorTypeNaming represents a naming store failure other than absence
	ErrorTypeNaming ErrorType = "naming"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured pool lifecycle error.
type Error struct {
	Type    ErrorType
	Message string
	Pool    core.PoolIdentity
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if !e.Pool.IsZero() {
		msg = fmt.Sprintf("pool %s: %s", e.Pool, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithPool records the identity of the pool the failure belongs to.
func (e *Error) WithPool(id core.PoolIdentity) *Error {
	e.Pool = id
	return e
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a type and message. The stack and pool of an existing
// *Error are preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Pool:    existingErr.Pool,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if any error in the chain is of the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsNotBound reports whether err signals an unpublished pool descriptor.
func IsNotBound(err error) bool {
	return IsType(err, ErrorTypeNotBound)
}

// TypeOf returns the type of the outermost *Error in the chain.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Type, true
}

// PoolOf returns the pool identity carried by err.
func PoolOf(err error) (core.PoolIdentity, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Pool.IsZero() {
		return core.PoolIdentity{}, false
	}
	return e.Pool, true
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
