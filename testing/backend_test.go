package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/bosun"
)

type fakeHandle struct {
	total int
}

func (h *fakeHandle) Update(delta int) {
	h.total += delta
}

func TestScriptedBackend_ReplaysScripts(t *testing.T) {
	backend := NewScriptedBackend(
		Script[*fakeHandle, int]{Err: errors.New("socket missing")},
		Script[*fakeHandle, int]{
			Service: &fakeHandle{},
			Events:  []bosun.BackendEvent[int]{{Update: 1}, {Update: 2}},
		},
	)
	recorder := NewRecorder[*fakeHandle, int](16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bosun.NewEngine[*fakeHandle, int]("fake", backend).
			Backoff(time.Millisecond).
			Listen(ctx, recorder)
	}()

	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventError {
		t.Fatalf("event = %+v, want the scripted spawn failure", ev)
	}
	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventInit {
		t.Fatalf("event = %+v, want init after reconnect", ev)
	}
	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventUpdate || ev.Update != 1 {
		t.Fatalf("event = %+v, want the first update", ev)
	}
	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventUpdate || ev.Update != 2 {
		t.Fatalf("event = %+v, want the second update", ev)
	}

	// The stream closes after the last event; the engine reports it
	// and reconnects onto the repeating last script.
	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventError {
		t.Fatalf("event = %+v, want the stream-end error", ev)
	}
	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventInit {
		t.Fatalf("event = %+v, want the repeated init", ev)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}

	if spawns := backend.Spawns(); spawns < 3 {
		t.Errorf("Spawns() = %d, want at least 3", spawns)
	}
}

func TestScriptedBackend_HoldKeepsStreamOpen(t *testing.T) {
	backend := NewScriptedBackend(
		Script[*fakeHandle, int]{
			Service: &fakeHandle{},
			Events:  []bosun.BackendEvent[int]{{Update: 7}},
			Hold:    true,
		},
	)
	recorder := NewRecorder[*fakeHandle, int](16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bosun.NewEngine[*fakeHandle, int]("fake", backend).
			Backoff(time.Millisecond).
			Listen(ctx, recorder)
	}()

	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventInit {
		t.Fatalf("event = %+v, want init", ev)
	}
	if ev := recorder.Next(t, 2*time.Second); ev.Kind != bosun.EventUpdate || ev.Update != 7 {
		t.Fatalf("event = %+v, want the update", ev)
	}

	// A held stream stays quiet instead of closing into a reconnect.
	time.Sleep(50 * time.Millisecond)
	select {
	case ev := <-recorder.events:
		t.Fatalf("event = %+v delivered while the stream was held", ev)
	default:
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}
	if spawns := backend.Spawns(); spawns != 1 {
		t.Errorf("Spawns() = %d, want 1", spawns)
	}
}

func TestScriptedBackend_NoScripts(t *testing.T) {
	_, _, err := NewScriptedBackend[*fakeHandle, int]().Spawn(context.Background())
	if err == nil {
		t.Fatal("Spawn() error = nil for an empty script list")
	}
}

func TestRecorder_PublishFull(t *testing.T) {
	recorder := NewRecorder[*fakeHandle, int](1)
	if err := recorder.Publish(bosun.NewUpdate[*fakeHandle, int](1)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := recorder.Publish(bosun.NewUpdate[*fakeHandle, int](2)); err == nil {
		t.Fatal("Publish() error = nil on a full buffer")
	}
}
