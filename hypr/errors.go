package hypr

import (
	"fmt"
	"time"
)

// Kind discriminates Error values.
type Kind int32

const (
	// KindTimeout reports that an operation exceeded its time budget.
	KindTimeout Kind = iota

	// KindBackend reports a native call failure with an underlying
	// cause.
	KindBackend

	// KindRuntimeUnavailable reports that no compositor instance is
	// active.
	KindRuntimeUnavailable

	// KindUnsupported reports that the active backend does not
	// implement the operation.
	KindUnsupported

	// KindMessage reports an ad hoc failure description, including
	// commands the compositor rejected.
	KindMessage
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindBackend:
		return "backend"
	case KindRuntimeUnavailable:
		return "runtime_unavailable"
	case KindUnsupported:
		return "unsupported"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by Port operations. Every value
// names the logical operation that failed.
type Error struct {
	// Kind distinguishes the failure classes.
	Kind Kind

	// Operation is the descriptor of the failed operation, one of the
	// Op constants.
	Operation string

	// Timeout is the exceeded budget on KindTimeout errors.
	Timeout time.Duration

	// Message is the failure description on KindMessage errors.
	Message string

	// Err is the underlying cause on KindBackend errors.
	Err error
}

// TimeoutError reports that operation exceeded timeout.
func TimeoutError(operation string, timeout time.Duration) *Error {
	return &Error{Kind: KindTimeout, Operation: operation, Timeout: timeout}
}

// BackendError reports a native call failure with its cause.
func BackendError(operation string, cause error) *Error {
	return &Error{Kind: KindBackend, Operation: operation, Err: cause}
}

// RuntimeUnavailableError reports that no compositor instance is
// active.
func RuntimeUnavailableError(operation string) *Error {
	return &Error{Kind: KindRuntimeUnavailable, Operation: operation}
}

// UnsupportedError reports that the backend does not implement the
// operation.
func UnsupportedError(operation string) *Error {
	return &Error{Kind: KindUnsupported, Operation: operation}
}

// MessageError reports an ad hoc failure.
func MessageError(operation, message string) *Error {
	return &Error{Kind: KindMessage, Operation: operation, Message: message}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("operation %q timed out after %v", e.Operation, e.Timeout)
	case KindBackend:
		return fmt.Sprintf("operation %q failed: %v", e.Operation, e.Err)
	case KindRuntimeUnavailable:
		return fmt.Sprintf("operation %q unavailable because no compositor instance is active", e.Operation)
	case KindUnsupported:
		return fmt.Sprintf("operation %q not supported by this compositor backend", e.Operation)
	case KindMessage:
		return fmt.Sprintf("operation %q failed: %s", e.Operation, e.Message)
	default:
		return fmt.Sprintf("operation %q failed", e.Operation)
	}
}

// Unwrap exposes the backend cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}
