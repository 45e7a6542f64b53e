package config

import "github.com/zoobzio/capitan"

// Manager lifecycle signals.
var (
	// ManagerStarted is emitted when a Manager begins watching.
	ManagerStarted = capitan.NewSignal(
		"bosun.config.manager.started",
		"Config manager watching started",
	)

	// ManagerStopped is emitted when a Manager stops watching.
	ManagerStopped = capitan.NewSignal(
		"bosun.config.manager.stopped",
		"Config manager watching stopped",
	)

	// ManagerStateChanged is emitted when a Manager transitions between states.
	ManagerStateChanged = capitan.NewSignal(
		"bosun.config.state.changed",
		"Config manager state transition",
	)
)

// Update processing signals.
var (
	// ChangeReceived is emitted when an update is received from the watcher.
	ChangeReceived = capitan.NewSignal(
		"bosun.config.change.received",
		"Update received from watcher",
	)

	// ReadFailed is emitted when the source could not be read.
	ReadFailed = capitan.NewSignal(
		"bosun.config.read.failed",
		"Config read failed",
	)

	// DecodeFailed is emitted when the raw bytes cannot be decoded.
	DecodeFailed = capitan.NewSignal(
		"bosun.config.decode.failed",
		"Config decode failed",
	)

	// ValidationFailed is emitted when a decoded config fails validation.
	ValidationFailed = capitan.NewSignal(
		"bosun.config.validation.failed",
		"Config validation failed",
	)

	// ApplyFailed is emitted when the apply pipeline fails.
	ApplyFailed = capitan.NewSignal(
		"bosun.config.apply.failed",
		"Config apply failed",
	)

	// Applied is emitted when a configuration is successfully applied.
	Applied = capitan.NewSignal(
		"bosun.config.applied",
		"Config applied successfully",
	)

	// FileRemoved is emitted when the watched config file disappears.
	FileRemoved = capitan.NewSignal(
		"bosun.config.file.removed",
		"Config file removed",
	)

	// WatchReset is emitted when the file watcher rebuilds its
	// filesystem watch after a stream failure.
	WatchReset = capitan.NewSignal(
		"bosun.config.watch.reset",
		"Filesystem watch reinitialized",
	)
)
