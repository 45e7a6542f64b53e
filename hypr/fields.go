package hypr

import "github.com/zoobzio/capitan"

// Field keys for hypr events.
var (
	// KeyOperation is the logical operation descriptor.
	KeyOperation = capitan.NewStringKey("operation")

	// KeyAttempt is the 1-based attempt number of a failed request.
	KeyAttempt = capitan.NewIntKey("attempt")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyTimeout is the exceeded deadline on timeout events.
	KeyTimeout = capitan.NewDurationKey("timeout")
)
