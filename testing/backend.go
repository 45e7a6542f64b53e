package testing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/bosun"
)

// Script is one canned connection attempt for a scripted backend.
// Either Err fails the spawn, or Service is handed out and Events
// replay on the notification stream before it closes. Hold keeps the
// stream open after the last event until the context ends, for tests
// that must observe a quiet, healthy connection.
type Script[S, U any] struct {
	Service S
	Err     error
	Events  []bosun.BackendEvent[U]
	Hold    bool
}

// ScriptedBackend replays connection attempts in order, one script
// per Spawn. The last script repeats for any further attempts, so a
// reconnect loop can run indefinitely against a finite script.
type ScriptedBackend[S, U any] struct {
	mu      sync.Mutex
	scripts []Script[S, U]
	spawns  int
}

// NewScriptedBackend creates a backend replaying the given scripts.
func NewScriptedBackend[S, U any](scripts ...Script[S, U]) *ScriptedBackend[S, U] {
	return &ScriptedBackend[S, U]{scripts: scripts}
}

// Spawn implements bosun.Backend.
func (b *ScriptedBackend[S, U]) Spawn(ctx context.Context) (S, <-chan bosun.BackendEvent[U], error) {
	b.mu.Lock()
	i := b.spawns
	b.spawns++
	if i >= len(b.scripts) {
		i = len(b.scripts) - 1
	}
	b.mu.Unlock()

	var zero S
	if i < 0 {
		return zero, nil, errors.New("scripted backend has no scripts")
	}
	script := b.scripts[i]
	if script.Err != nil {
		return zero, nil, script.Err
	}

	events := make(chan bosun.BackendEvent[U])
	go func() {
		defer close(events)
		for _, ev := range script.Events {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if script.Hold {
			<-ctx.Done()
		}
	}()
	return script.Service, events, nil
}

// Spawns returns how many connection attempts have been made.
func (b *ScriptedBackend[S, U]) Spawns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spawns
}

// Recorder buffers lifecycle events published by an engine so tests
// can assert on them in order.
type Recorder[S, U any] struct {
	events chan bosun.ServiceEvent[S, U]
}

// NewRecorder creates a recorder buffering up to capacity events.
func NewRecorder[S, U any](capacity int) *Recorder[S, U] {
	if capacity <= 0 {
		capacity = 16
	}
	return &Recorder[S, U]{events: make(chan bosun.ServiceEvent[S, U], capacity)}
}

// Publish implements bosun.Publisher. A full buffer returns an error,
// which stops the engine under test instead of blocking it.
func (r *Recorder[S, U]) Publish(event bosun.ServiceEvent[S, U]) error {
	select {
	case r.events <- event:
		return nil
	default:
		return errors.New("recorder buffer full")
	}
}

// Next returns the next recorded event, failing the test after
// timeout.
func (r *Recorder[S, U]) Next(t *testing.T, timeout time.Duration) bosun.ServiceEvent[S, U] {
	t.Helper()
	select {
	case event := <-r.events:
		return event
	case <-time.After(timeout):
		t.Fatal("timed out waiting for lifecycle event")
		return bosun.ServiceEvent[S, U]{}
	}
}
