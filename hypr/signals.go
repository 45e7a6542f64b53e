package hypr

import "github.com/zoobzio/capitan"

// Synchronous request signals.
var (
	// RequestAttemptFailed is emitted once per failed request
	// attempt, before any backoff pause.
	RequestAttemptFailed = capitan.NewSignal(
		"bosun.hypr.request.attempt.failed",
		"Compositor request attempt failed",
	)
)

// Listener lifecycle signals.
var (
	// ListenerStopped is emitted when a native event loop ends
	// without an error of its own.
	ListenerStopped = capitan.NewSignal(
		"bosun.hypr.listener.stopped",
		"Compositor event loop stopped unexpectedly",
	)

	// ListenerFailed is emitted when a native event loop fails.
	ListenerFailed = capitan.NewSignal(
		"bosun.hypr.listener.failed",
		"Compositor event loop failed",
	)

	// ListenerTimedOut is emitted when a native event loop exceeds
	// the listener timeout and is torn down for rebuild.
	ListenerTimedOut = capitan.NewSignal(
		"bosun.hypr.listener.timeout",
		"Compositor event loop hung past its deadline",
	)
)
