package custom

import "github.com/zoobzio/capitan"

// Custom module signals.
var (
	// ListenerFailed is emitted when a module listener cannot start
	// or reports an error on its stream.
	ListenerFailed = capitan.NewSignal(
		"bosun.custom.listener.failed",
		"Custom module listener failed",
	)

	// CommandFailed is emitted when a click command fails after
	// launch. Click commands are fire-and-forget, so this signal is
	// the only trace of the failure.
	CommandFailed = capitan.NewSignal(
		"bosun.custom.command.failed",
		"Custom module click command failed",
	)
)
