package bosun

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultBusCapacity bounds the event queue when no capacity is
// configured.
const DefaultBusCapacity = 256

// EnvelopeKind discriminates the bus wire shape.
type EnvelopeKind int32

const (
	// EnvelopeRedraw hints that the presentation layer should redraw.
	EnvelopeRedraw EnvelopeKind = iota

	// EnvelopePopupToggle asks the presentation layer to toggle the
	// popup identified by Envelope.Popup.
	EnvelopePopupToggle

	// EnvelopeModule carries a module event payload keyed by module
	// identity so the consumer can route without a central registry.
	EnvelopeModule
)

// String returns a human-readable kind name.
func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeRedraw:
		return "redraw"
	case EnvelopePopupToggle:
		return "popup_toggle"
	case EnvelopeModule:
		return "module"
	default:
		return "unknown"
	}
}

// Envelope is one bus message.
type Envelope struct {
	Kind    EnvelopeKind
	Popup   string // popup identity when Kind == EnvelopePopupToggle
	Module  string // module identity when Kind == EnvelopeModule
	Payload any    // module payload when Kind == EnvelopeModule
}

// Redraw builds a redraw hint envelope.
func Redraw() Envelope {
	return Envelope{Kind: EnvelopeRedraw}
}

// PopupToggle builds a popup-toggle envelope for the given popup id.
func PopupToggle(id string) Envelope {
	return Envelope{Kind: EnvelopePopupToggle, Popup: id}
}

// ModuleEnvelope builds a module event envelope.
func ModuleEnvelope(module string, payload any) Envelope {
	return Envelope{Kind: EnvelopeModule, Module: module, Payload: payload}
}

// Bus is the bounded multi-producer single-consumer channel between
// background producers and the presentation tick.
//
// Publishing never blocks: a full queue drops the envelope and returns
// a QueueFullError, and an envelope equal in effect to the one already
// at the back of the queue (a second consecutive redraw hint, a second
// toggle of the same popup) is coalesced away. The consumer drains the
// whole queue in one batch per tick, preserving arrival order.
//
// After Close, publishes and drains fail with ErrBusClosed. A closed
// bus is the hard-failure case: the consumer should force its fast
// poll cadence and report rather than terminate.
type Bus struct {
	mu       sync.Mutex
	queue    []Envelope
	capacity int
	closed   bool
	clock    clockz.Clock
	metrics  MetricsProvider
}

// NewBus creates a bus with the default capacity.
func NewBus() *Bus {
	return &Bus{
		queue:    make([]Envelope, 0, DefaultBusCapacity),
		capacity: DefaultBusCapacity,
		clock:    clockz.RealClock,
	}
}

// Capacity sets the maximum number of queued envelopes. Must be called
// before any publish.
func (b *Bus) Capacity(n int) *Bus {
	if n > 0 {
		b.capacity = n
		b.queue = make([]Envelope, 0, n)
	}
	return b
}

// Clock sets a custom clock for drain timing metrics. Must be called
// before any publish.
func (b *Bus) Clock(clock clockz.Clock) *Bus {
	b.clock = clock
	return b
}

// Metrics sets a metrics provider for observability integration. Must
// be called before any publish.
func (b *Bus) Metrics(provider MetricsProvider) *Bus {
	b.metrics = provider
	return b
}

// Publish enqueues an envelope without blocking. It returns
// ErrBusClosed after Close, a QueueFullError when the envelope was
// dropped on a full queue, and nil when the envelope was queued or
// coalesced.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}

	if n := len(b.queue); n > 0 && coalescable(b.queue[n-1], env) {
		b.mu.Unlock()
		capitan.Emit(ctx, BusEventCoalesced, KeyEnvelopeKind.Field(env.Kind.String()))
		return nil
	}

	if len(b.queue) >= b.capacity {
		capacity := b.capacity
		b.mu.Unlock()
		capitan.Emit(ctx, BusEventDropped,
			KeyEnvelopeKind.Field(env.Kind.String()),
			KeyCapacity.Field(capacity),
		)
		if b.metrics != nil {
			b.metrics.OnEnvelopeDropped(env.Kind.String())
		}
		return &QueueFullError{Capacity: capacity}
	}

	b.queue = append(b.queue, env)
	b.mu.Unlock()
	return nil
}

// coalescable reports whether next adds nothing over the envelope
// already at the back of the queue.
func coalescable(back, next Envelope) bool {
	switch {
	case back.Kind == EnvelopeRedraw && next.Kind == EnvelopeRedraw:
		return true
	case back.Kind == EnvelopePopupToggle && next.Kind == EnvelopePopupToggle:
		return back.Popup == next.Popup
	default:
		return false
	}
}

// Drain removes and returns every queued envelope as one batch. It
// returns ErrBusClosed after Close. An empty queue yields an empty
// batch and no error.
func (b *Bus) Drain(ctx context.Context) ([]Envelope, error) {
	start := b.clock.Now()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	batch := b.queue
	b.queue = make([]Envelope, 0, b.capacity)
	b.mu.Unlock()

	if len(batch) > 0 {
		capitan.Emit(ctx, BusDrained, KeyBatch.Field(len(batch)))
		if b.metrics != nil {
			b.metrics.OnDrain(len(batch), b.clock.Since(start))
		}
	}
	return batch, nil
}

// Len reports the number of queued envelopes.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close marks the bus failed. Subsequent publishes and drains return
// ErrBusClosed; queued envelopes are discarded.
func (b *Bus) Close(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	b.mu.Unlock()
	capitan.Emit(ctx, BusClosed)
}
