package config

import "fmt"

// Reason classifies why a configuration update was rejected.
type Reason int32

const (
	// ReasonRead indicates the source could not be read.
	ReasonRead Reason = iota

	// ReasonParse indicates the raw bytes could not be decoded.
	ReasonParse

	// ReasonValidation indicates the decoded configuration violates the
	// schema.
	ReasonValidation

	// ReasonState indicates the apply pipeline rejected the change.
	ReasonState

	// ReasonRemoved indicates the watched file disappeared.
	ReasonRemoved
)

// String returns a human-readable reason name.
func (r Reason) String() string {
	switch r {
	case ReasonRead:
		return "read"
	case ReasonParse:
		return "parse"
	case ReasonValidation:
		return "validation"
	case ReasonState:
		return "state"
	case ReasonRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// UpdateError describes a rejected configuration update. The previous
// valid configuration stays live whenever one of these is reported.
type UpdateError struct {
	Reason Reason
	Path   string // source path when known
	Cause  error
}

// ReadError builds an UpdateError for a source read failure.
func ReadError(path string, cause error) *UpdateError {
	return &UpdateError{Reason: ReasonRead, Path: path, Cause: cause}
}

// ParseError builds an UpdateError for a decode failure.
func ParseError(path string, cause error) *UpdateError {
	return &UpdateError{Reason: ReasonParse, Path: path, Cause: cause}
}

// ValidationError builds an UpdateError for a schema violation.
func ValidationError(cause error) *UpdateError {
	return &UpdateError{Reason: ReasonValidation, Cause: cause}
}

// StateError builds an UpdateError for an apply pipeline failure.
func StateError(cause error) *UpdateError {
	return &UpdateError{Reason: ReasonState, Cause: cause}
}

// RemovedError builds an UpdateError for a removed source.
func RemovedError(path string) *UpdateError {
	return &UpdateError{Reason: ReasonRemoved, Path: path}
}

// Error implements the error interface.
func (e *UpdateError) Error() string {
	switch e.Reason {
	case ReasonRead:
		if e.Path != "" {
			return fmt.Sprintf("reading config %s: %v", e.Path, e.Cause)
		}
		return fmt.Sprintf("reading config: %v", e.Cause)
	case ReasonParse:
		if e.Path != "" {
			return fmt.Sprintf("parsing config %s: %v", e.Path, e.Cause)
		}
		return fmt.Sprintf("parsing config: %v", e.Cause)
	case ReasonValidation:
		return fmt.Sprintf("invalid config: %v", e.Cause)
	case ReasonState:
		return fmt.Sprintf("applying config: %v", e.Cause)
	case ReasonRemoved:
		if e.Path != "" {
			return fmt.Sprintf("config file %s removed", e.Path)
		}
		return "config file removed"
	default:
		return fmt.Sprintf("config update rejected: %v", e.Cause)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *UpdateError) Unwrap() error {
	return e.Cause
}
