package bosun

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Listener is one long-running subsystem loop. It returns when its
// context is canceled or when the loop cannot continue.
type Listener func(ctx context.Context) error

// Harness runs a set of subsystem listeners as one unit: all started
// together, the first failure canceling the rest, and Run returning
// only once every listener has stopped.
//
// The harness fits the service layer of a shell process, where each
// listener is an engine loop that fails only when its publisher's
// receiver is gone, so one such failure means the whole set should
// wind down. Interactive modules belong on a ModuleContext instead,
// which supervises each listener individually.
type Harness struct {
	names     []string
	listeners []Listener
}

// NewHarness creates an empty harness.
func NewHarness() *Harness {
	return &Harness{}
}

// Add registers a named listener. Chainable before Run. The name
// prefixes any error the listener returns.
func (h *Harness) Add(name string, listener Listener) *Harness {
	h.names = append(h.names, name)
	h.listeners = append(h.listeners, listener)
	return h
}

// Run starts every registered listener and blocks until all have
// returned. The first listener error cancels the remaining listeners
// and is returned wrapped with the listener's name; after a shutdown
// through ctx that error is ctx's own. An empty harness returns nil.
func (h *Harness) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range h.listeners {
		name, listener := h.names[i], h.listeners[i]
		g.Go(func() error {
			if err := listener(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
