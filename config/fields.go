package config

import "github.com/zoobzio/capitan"

// Field keys for Manager events.
var (
	// KeyState is the current state of the Manager.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyPath is the filesystem path of the watched config file.
	KeyPath = capitan.NewStringKey("path")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeyWatcherType is the type name of the watcher implementation.
	KeyWatcherType = capitan.NewStringKey("watcher_type")

	// KeyAffected is the number of modules affected by an applied change.
	KeyAffected = capitan.NewIntKey("affected_modules")
)
