// Package errs provides the unified error type used across all of datchat.
//
// Every subsystem (prompt, llm, database, pipeline, …) wraps its native errors
// into *errs.Error before returning them to callers. Callers use the Is*
// predicates to handle errors without importing driver-specific packages, and
// UserMessage to render a failure without leaking raw driver or transport text.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// At a boundary, check the error kind:
//	if errs.IsUnsafeQuery(err) {
//	    fmt.Fprintln(os.Stderr, errs.UserMessage(err))
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure

	ErrKindConfiguration         // prompt placeholders or config bundle invalid
	ErrKindEndpointConfig        // model id, API key or base URL unusable
	ErrKindEndpoint              // model endpoint failed mid-turn
	ErrKindUnsafeQuery           // generated SQL would mutate data
	ErrKindExecutionFailed       // candidate query is not executable
	ErrKindRegenerationExhausted // retry bound reached without a runnable query
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindEndpointConfig:
		return "endpoint_config"
	case ErrKindEndpoint:
		return "endpoint"
	case ErrKindUnsafeQuery:
		return "unsafe_query"
	case ErrKindExecutionFailed:
		return "execution_failed"
	case ErrKindRegenerationExhausted:
		return "regeneration_exhausted"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all datchat subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
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

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConfiguration reports whether err is a pre-flight configuration failure.
func IsConfiguration(err error) bool {
	return KindOf(err) == ErrKindConfiguration
}

// IsEndpointConfig reports whether a model endpoint could not be set up.
func IsEndpointConfig(err error) bool {
	return KindOf(err) == ErrKindEndpointConfig
}

// IsEndpoint reports whether a model endpoint failed while serving a turn.
func IsEndpoint(err error) bool {
	return KindOf(err) == ErrKindEndpoint
}

// IsUnsafeQuery reports whether generated SQL was rejected as mutating.
func IsUnsafeQuery(err error) bool {
	return KindOf(err) == ErrKindUnsafeQuery
}

// IsExecutionFailed reports whether a candidate query could not be executed.
func IsExecutionFailed(err error) bool {
	return KindOf(err) == ErrKindExecutionFailed
}

// IsRegenerationExhausted reports whether the retry bound was reached.
func IsRegenerationExhausted(err error) bool {
	return KindOf(err) == ErrKindRegenerationExhausted
}

// KindOf extracts the ErrKind of the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// UserMessage returns the human-readable message of the outermost *Error,
// without the raw cause. Errors that are not *Error fall back to Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
