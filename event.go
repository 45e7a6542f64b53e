package bosun

// EventKind discriminates the three lifecycle phases of a ServiceEvent.
type EventKind int32

const (
	// EventInit marks the first successful backend connection of a
	// service lifetime. The event carries the fully initialized
	// service handle.
	EventInit EventKind = iota

	// EventUpdate carries one incremental domain event.
	EventUpdate

	// EventError reports a recoverable failure. The consumer keeps the
	// previously cached state; the service reconnects on its own.
	EventError
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventInit:
		return "init"
	case EventUpdate:
		return "update"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ServiceEvent is the lifecycle envelope every service publishes.
//
// S is the service handle type delivered on Init, U the domain event
// type delivered on Update. Exactly one Init precedes any Update or
// Error for a given service lifetime; after an Error the service may
// emit a fresh Init once it reconnects.
//
// Service packages typically alias their instantiation:
//
//	type LifecycleEvent = bosun.ServiceEvent[*Service, Event]
type ServiceEvent[S, U any] struct {
	Kind    EventKind
	Service S     // populated when Kind == EventInit
	Update  U     // populated when Kind == EventUpdate
	Err     error // populated when Kind == EventError
}

// NewInit builds an Init event carrying the service handle.
func NewInit[S, U any](service S) ServiceEvent[S, U] {
	return ServiceEvent[S, U]{Kind: EventInit, Service: service}
}

// NewUpdate builds an Update event carrying one domain event.
func NewUpdate[S, U any](update U) ServiceEvent[S, U] {
	return ServiceEvent[S, U]{Kind: EventUpdate, Update: update}
}

// NewError builds an Error event.
func NewError[S, U any](err error) ServiceEvent[S, U] {
	return ServiceEvent[S, U]{Kind: EventError, Err: err}
}
