package bosun

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// ModuleContext is the registration handle threaded into every module
// at startup. It carries the shared event bus and the runtime lifetime
// under which background listeners are spawned.
//
// Each module owns at most one listener: Register aborts the previous
// listener for the same module before spawning the replacement. Abort
// is context cancellation plus a wait for the listener to return, so
// listeners must select on their context at every suspension point.
type ModuleContext struct {
	runtime context.Context
	bus     *Bus

	mu        sync.Mutex
	listeners map[string]*ListenerHandle
}

// NewModuleContext creates a module context. The runtime context bounds
// the lifetime of every listener registered through it.
func NewModuleContext(runtime context.Context, bus *Bus) *ModuleContext {
	return &ModuleContext{
		runtime:   runtime,
		bus:       bus,
		listeners: make(map[string]*ListenerHandle),
	}
}

// Bus returns the shared event bus.
func (c *ModuleContext) Bus() *Bus {
	return c.bus
}

// RequestRedraw publishes a redraw hint. Best-effort: a full queue
// drops the hint.
func (c *ModuleContext) RequestRedraw(ctx context.Context) error {
	return c.bus.Publish(ctx, Redraw())
}

// TogglePopup publishes a popup-toggle hint for the given popup id.
func (c *ModuleContext) TogglePopup(ctx context.Context, id string) error {
	return c.bus.Publish(ctx, PopupToggle(id))
}

// ListenerHandle identifies one registered listener and allows
// aborting it.
type ListenerHandle struct {
	id     string
	module string
	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the unique identity of this registration.
func (h *ListenerHandle) ID() string {
	return h.id
}

// Module returns the module the listener belongs to.
func (h *ListenerHandle) Module() string {
	return h.module
}

// Done is closed when the listener has returned.
func (h *ListenerHandle) Done() <-chan struct{} {
	return h.done
}

// Abort cancels the listener and waits for it to return. Safe to call
// more than once.
func (h *ListenerHandle) Abort() {
	h.cancel()
	<-h.done
}

// Register spawns listen as the module's background listener and
// returns its handle. Any previous listener registered under the same
// module name is aborted first, unconditionally, so at most one
// listener per module is live at a time.
//
// Register returns ErrRuntimeUnavailable when the runtime context has
// already ended, since a listener spawned then would be stillborn.
func (c *ModuleContext) Register(module string, listen func(ctx context.Context)) (*ListenerHandle, error) {
	if c.runtime == nil || c.runtime.Err() != nil {
		return nil, ErrRuntimeUnavailable
	}

	c.mu.Lock()
	prev := c.listeners[module]
	delete(c.listeners, module)
	c.mu.Unlock()

	if prev != nil {
		prev.Abort()
		capitan.Emit(c.runtime, ModuleAborted,
			KeyModule.Field(module),
			KeyListenerID.Field(prev.id),
		)
	}

	ctx, cancel := context.WithCancel(c.runtime)
	handle := &ListenerHandle{
		id:     uuid.NewString(),
		module: module,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.listeners[module] = handle
	c.mu.Unlock()

	go func() {
		defer close(handle.done)
		listen(ctx)
	}()

	capitan.Emit(c.runtime, ModuleRegistered,
		KeyModule.Field(module),
		KeyListenerID.Field(handle.id),
	)
	return handle, nil
}

// AbortAll aborts every registered listener. Used on shutdown.
func (c *ModuleContext) AbortAll() {
	c.mu.Lock()
	handles := make([]*ListenerHandle, 0, len(c.listeners))
	for _, h := range c.listeners {
		handles = append(handles, h)
	}
	c.listeners = make(map[string]*ListenerHandle)
	c.mu.Unlock()

	for _, h := range handles {
		h.Abort()
	}
}

// Sender is a typed module event sender bound to one module identity.
// Send wraps the payload in a module envelope and publishes it
// best-effort.
type Sender[T any] struct {
	bus    *Bus
	module string
}

// NewSender creates a typed sender for the given module.
func NewSender[T any](c *ModuleContext, module string) *Sender[T] {
	return &Sender[T]{bus: c.bus, module: module}
}

// Send publishes one payload. It returns the bus publish error
// unchanged, so callers can distinguish a dropped envelope
// (QueueFullError) from a dead bus (ErrBusClosed).
func (s *Sender[T]) Send(ctx context.Context, payload T) error {
	return s.bus.Publish(ctx, ModuleEnvelope(s.module, payload))
}
