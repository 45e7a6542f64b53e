package bosun

import "github.com/zoobzio/capitan"

// Service lifecycle signals.
var (
	// ServiceInitialized is emitted when a service publishes its Init
	// event after a successful backend connection.
	ServiceInitialized = capitan.NewSignal(
		"bosun.service.initialized",
		"Service backend connected and handle published",
	)

	// ServiceErrored is emitted when a service publishes an Error event.
	ServiceErrored = capitan.NewSignal(
		"bosun.service.errored",
		"Service backend failed",
	)

	// ServiceReconnecting is emitted when a service enters its backoff
	// phase before the next connection attempt.
	ServiceReconnecting = capitan.NewSignal(
		"bosun.service.reconnecting",
		"Service waiting before reconnect",
	)

	// ServiceListenerStopped is emitted when a lifecycle loop exits.
	ServiceListenerStopped = capitan.NewSignal(
		"bosun.service.listener.stopped",
		"Service lifecycle loop terminated",
	)

	// ServiceCommandFailed is emitted when a dispatched backend command
	// fails. Commands are fire-and-forget, so this signal is the only
	// trace of the failure.
	ServiceCommandFailed = capitan.NewSignal(
		"bosun.service.command.failed",
		"Dispatched backend command failed",
	)

	// ServiceDegraded is emitted when a backend connection comes up
	// without an optional capability and continues with reduced data.
	ServiceDegraded = capitan.NewSignal(
		"bosun.service.degraded",
		"Service running without an optional capability",
	)
)

// Event bus signals.
var (
	// BusEventDropped is emitted when a publish is rejected because the
	// queue is at capacity.
	BusEventDropped = capitan.NewSignal(
		"bosun.bus.event.dropped",
		"Envelope dropped on full queue",
	)

	// BusEventCoalesced is emitted when a publish is merged into the
	// envelope already at the back of the queue.
	BusEventCoalesced = capitan.NewSignal(
		"bosun.bus.event.coalesced",
		"Envelope coalesced with queue tail",
	)

	// BusDrained is emitted when the consumer drains a non-empty batch.
	BusDrained = capitan.NewSignal(
		"bosun.bus.drained",
		"Batch drained from event bus",
	)

	// BusClosed is emitted when the bus is closed.
	BusClosed = capitan.NewSignal(
		"bosun.bus.closed",
		"Event bus closed",
	)
)

// Module registration signals.
var (
	// ModuleRegistered is emitted when a module registers a listener.
	ModuleRegistered = capitan.NewSignal(
		"bosun.module.registered",
		"Module listener registered",
	)

	// ModuleAborted is emitted when re-registration aborts a previous
	// listener.
	ModuleAborted = capitan.NewSignal(
		"bosun.module.aborted",
		"Previous module listener aborted",
	)
)
