package bosun

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultReconnectBackoff is the pause between a service failure and
// the next connection attempt.
const DefaultReconnectBackoff = 500 * time.Millisecond

// ReadOnlyService is the read side of the contract every subsystem
// integration satisfies. The handle caches last-known domain state;
// Update applies one incremental domain event to that cache. Mutation
// happens only through Update calls driven by the event stream, never
// concurrently.
type ReadOnlyService[U any] interface {
	Update(event U)
}

// Service adds command dispatch to a read-only service. Command is
// fire-and-forget: it submits a backend command against the live
// connection and relies on the backend's own change notification to
// surface the effect as a later Update. A command failure is reported
// once, not retried.
type Service[U, C any] interface {
	ReadOnlyService[U]
	Command(ctx context.Context, cmd C) error
}

// BackendEvent is one notification from a spawned backend connection.
// A non-nil Err reports a backend-level failure; otherwise Update
// carries one domain event.
type BackendEvent[U any] struct {
	Update U
	Err    error
}

// Backend adapts one external subsystem. Spawn establishes a fresh
// connection and returns the initialized service handle plus the
// channel of backend notifications. The channel closing means the
// connection died. No connection survives across an error boundary:
// the engine calls Spawn again after every failure.
type Backend[S, U any] interface {
	Spawn(ctx context.Context) (S, <-chan BackendEvent[U], error)
}

// Publisher delivers lifecycle events to whoever consumes the service.
// A Publish error means the consumer is gone; the engine stops.
type Publisher[S, U any] interface {
	Publish(event ServiceEvent[S, U]) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc[S, U any] func(ServiceEvent[S, U]) error

// Publish calls f.
func (f PublisherFunc[S, U]) Publish(event ServiceEvent[S, U]) error {
	return f(event)
}

// Engine drives the Init -> Active -> Error lifecycle of one service.
//
// Init attempts a backend connection. Success publishes an Init event
// carrying the handle and enters Active; failure publishes an Error
// event and enters the backoff phase. Active blocks on the next backend
// notification, publishing Updates until the backend errors or its
// stream ends, which publishes an Error event and re-enters backoff.
// After the backoff interval the loop starts over at Init.
//
// The error phase is never terminal. The loop runs until the context is
// canceled or the publisher reports that its receiver is gone.
//
// Example:
//
//	engine := bosun.NewEngine("audio", backend).
//	    Backoff(time.Second)
//	go func() {
//	    _ = engine.Listen(ctx, publisher)
//	}()
type Engine[S, U any] struct {
	name    string
	backend Backend[S, U]
	backoff time.Duration
	clock   clockz.Clock
	metrics MetricsProvider
}

// NewEngine creates a lifecycle engine for one backend. The name
// identifies the service in signals and metrics.
func NewEngine[S, U any](name string, backend Backend[S, U]) *Engine[S, U] {
	return &Engine[S, U]{
		name:    name,
		backend: backend,
		backoff: DefaultReconnectBackoff,
		clock:   clockz.RealClock,
	}
}

// Backoff sets the pause between a failure and the next connection
// attempt. Default: 500ms. Must be called before Listen.
func (e *Engine[S, U]) Backoff(d time.Duration) *Engine[S, U] {
	e.backoff = d
	return e
}

// Clock sets a custom clock for the backoff pause. Use this with
// clockz.FakeClock for deterministic reconnect testing. Must be called
// before Listen.
func (e *Engine[S, U]) Clock(clock clockz.Clock) *Engine[S, U] {
	e.clock = clock
	return e
}

// Metrics sets a metrics provider for observability integration. Must
// be called before Listen.
func (e *Engine[S, U]) Metrics(provider MetricsProvider) *Engine[S, U] {
	e.metrics = provider
	return e
}

type enginePhase int

const (
	phaseInit enginePhase = iota
	phaseActive
	phaseBackoff
)

// Listen runs the lifecycle loop until ctx is canceled or the
// publisher reports closed. The returned error is ctx.Err() on
// cancellation, or the publish error that ended the loop.
func (e *Engine[S, U]) Listen(ctx context.Context, pub Publisher[S, U]) error {
	defer capitan.Emit(ctx, ServiceListenerStopped, KeyService.Field(e.name))

	var events <-chan BackendEvent[U]
	phase := phaseInit

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch phase {
		case phaseInit:
			service, ch, err := e.backend.Spawn(ctx)
			if err != nil {
				if perr := e.publishError(ctx, pub, err); perr != nil {
					return perr
				}
				phase = phaseBackoff
				continue
			}
			capitan.Emit(ctx, ServiceInitialized, KeyService.Field(e.name))
			if e.metrics != nil {
				e.metrics.OnServiceInit(e.name)
			}
			if perr := pub.Publish(NewInit[S, U](service)); perr != nil {
				return perr
			}
			events = ch
			phase = phaseActive

		case phaseActive:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					if perr := e.publishError(ctx, pub, ErrBackendClosed); perr != nil {
						return perr
					}
					events = nil
					phase = phaseBackoff
					continue
				}
				if ev.Err != nil {
					if perr := e.publishError(ctx, pub, ev.Err); perr != nil {
						return perr
					}
					events = nil
					phase = phaseBackoff
					continue
				}
				if e.metrics != nil {
					e.metrics.OnServiceUpdate(e.name)
				}
				if perr := pub.Publish(NewUpdate[S, U](ev.Update)); perr != nil {
					return perr
				}
			}

		case phaseBackoff:
			capitan.Emit(ctx, ServiceReconnecting,
				KeyService.Field(e.name),
				KeyBackoff.Field(e.backoff),
			)
			timer := e.clock.NewTimer(e.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C():
			}
			phase = phaseInit
		}
	}
}

func (e *Engine[S, U]) publishError(ctx context.Context, pub Publisher[S, U], err error) error {
	capitan.Emit(ctx, ServiceErrored,
		KeyService.Field(e.name),
		KeyError.Field(err.Error()),
	)
	if e.metrics != nil {
		e.metrics.OnServiceError(e.name)
	}
	return pub.Publish(NewError[S, U](err))
}
