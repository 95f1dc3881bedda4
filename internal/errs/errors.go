// Package errs provides the unified error type used across sqlsession.
//
// Every subsystem (config, pool, binder, executor, drivers, filestore) wraps
// its native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates to handle errors without importing
// driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindConnection, "unable to open connection", pgErr)
//
//	// In application code, check the error kind:
//	if errs.IsMissingParameter(err) {
//	    ...
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown               ErrKind = iota
	ErrKindConfiguration                 // missing or invalid configuration
	ErrKindConnection                    // pool init, reserve or release failure
	ErrKindInvalidParameterType          // parameter type has no setter, or value does not fit it
	ErrKindMissingParameter              // named token without a parameter
	ErrKindDuplicateParameter            // named token matched by several parameters
	ErrKindMixedParameterMode            // named and positional indices in one call
	ErrKindUnusedParameter               // named parameter not referenced by any token
	ErrKindInvalidParameterIndex         // empty name or position below 1
	ErrKindQueryExecution                // driver failure during prepare/execute/close
	ErrKindTimeout                       // context deadline / cancellation
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindConnection:
		return "connection"
	case ErrKindInvalidParameterType:
		return "invalid_parameter_type"
	case ErrKindMissingParameter:
		return "missing_parameter"
	case ErrKindDuplicateParameter:
		return "duplicate_parameter"
	case ErrKindMixedParameterMode:
		return "mixed_parameter_mode"
	case ErrKindUnusedParameter:
		return "unused_parameter"
	case ErrKindInvalidParameterIndex:
		return "invalid_parameter_index"
	case ErrKindQueryExecution:
		return "query_execution"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all sqlsession subsystems.
type Error struct {
	Kind    ErrKind
	Message string

	// Name carries the offending parameter name or type for binding errors.
	Name string

	Cause error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Configuration reports a missing or invalid configuration value.
func Configuration(format string, args ...any) *Error {
	return New(ErrKindConfiguration, fmt.Sprintf(format, args...))
}

// InvalidParameterType reports a parameter type that cannot be bound.
func InvalidParameterType(typ string) *Error {
	return &Error{Kind: ErrKindInvalidParameterType, Message: "invalid parameter type: " + typ, Name: typ}
}

// MissingParameter reports a named token with no matching parameter.
func MissingParameter(name string) *Error {
	return &Error{Kind: ErrKindMissingParameter, Message: "missing named parameter: " + name, Name: name}
}

// DuplicateParameter reports a name matched by more than one parameter.
func DuplicateParameter(name string) *Error {
	return &Error{Kind: ErrKindDuplicateParameter, Message: "duplicate named parameter: " + name, Name: name}
}

// UnusedParameter reports a named parameter that no token references.
func UnusedParameter(name string) *Error {
	return &Error{Kind: ErrKindUnusedParameter, Message: "unused named parameter: " + name, Name: name}
}

// InvalidParameterIndex reports an empty parameter name or a position below 1.
func InvalidParameterIndex(index string) *Error {
	return &Error{Kind: ErrKindInvalidParameterIndex, Message: "invalid parameter index: " + index, Name: index}
}

// MixedParameterMode reports a parameter list mixing named and positional indices.
func MixedParameterMode() *Error {
	return New(ErrKindMixedParameterMode, "mixed anonymous and named parameters")
}

// --- Predicates ---

// IsConfiguration reports whether err is a configuration failure.
func IsConfiguration(err error) bool {
	return KindOf(err) == ErrKindConfiguration
}

// IsConnection reports whether err is a connectivity, reserve or release failure.
func IsConnection(err error) bool {
	return KindOf(err) == ErrKindConnection
}

// IsInvalidParameterType reports whether err is an unknown or unfit parameter type.
func IsInvalidParameterType(err error) bool {
	return KindOf(err) == ErrKindInvalidParameterType
}

func IsMissingParameter(err error) bool {
	return KindOf(err) == ErrKindMissingParameter
}

func IsDuplicateParameter(err error) bool {
	return KindOf(err) == ErrKindDuplicateParameter
}

func IsMixedParameterMode(err error) bool {
	return KindOf(err) == ErrKindMixedParameterMode
}

func IsUnusedParameter(err error) bool {
	return KindOf(err) == ErrKindUnusedParameter
}

func IsInvalidParameterIndex(err error) bool {
	return KindOf(err) == ErrKindInvalidParameterIndex
}

// IsBinding reports whether err is any of the binding-time validation failures.
func IsBinding(err error) bool {
	switch KindOf(err) {
	case ErrKindInvalidParameterType, ErrKindMissingParameter, ErrKindDuplicateParameter,
		ErrKindMixedParameterMode, ErrKindUnusedParameter, ErrKindInvalidParameterIndex:
		return true
	}
	return false
}

// IsQueryExecution reports whether err is a driver failure during execution.
func IsQueryExecution(err error) bool {
	return KindOf(err) == ErrKindQueryExecution
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// KindOf extracts the ErrKind of the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
