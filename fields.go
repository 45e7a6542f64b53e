package bosun

import "github.com/zoobzio/capitan"

// Field keys for bosun events.
var (
	// KeyService is the name of the service a lifecycle event concerns.
	KeyService = capitan.NewStringKey("service")

	// KeyModule is the module identity on bus and registration events.
	KeyModule = capitan.NewStringKey("module")

	// KeyListenerID is the unique identity of a registered listener.
	KeyListenerID = capitan.NewStringKey("listener_id")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyEnvelopeKind is the envelope kind on bus events.
	KeyEnvelopeKind = capitan.NewStringKey("envelope_kind")

	// KeyCapacity is the configured queue capacity when an envelope is
	// dropped.
	KeyCapacity = capitan.NewIntKey("capacity")

	// KeyBatch is the number of envelopes in a drained batch.
	KeyBatch = capitan.NewIntKey("batch")

	// KeyBackoff is the reconnect backoff duration.
	KeyBackoff = capitan.NewDurationKey("backoff")
)
