package privacy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/bosun"
)

func TestService_DataFollowsUpdates(t *testing.T) {
	svc := NewService(Data{Nodes: []Node{{ID: 42, Media: MediaAudio}}, WebcamUses: 1})

	svc.Update(NewRemoveNodeEvent(42))
	svc.Update(NewWebcamCloseEvent())

	if !svc.Data().NoAccess() {
		t.Errorf("Data = %+v, want everything released", svc.Data())
	}
}

// scriptedBackend replays one event script per spawn; the stream stays
// open after the script.
type scriptedBackend struct {
	mu      sync.Mutex
	scripts [][]bosun.BackendEvent[Event]
	spawns  atomic.Int32
}

func (b *scriptedBackend) Spawn(context.Context) (Handle, error) {
	b.spawns.Add(1)

	b.mu.Lock()
	var script []bosun.BackendEvent[Event]
	if len(b.scripts) > 0 {
		script = b.scripts[0]
		b.scripts = b.scripts[1:]
	}
	b.mu.Unlock()

	events := make(chan bosun.BackendEvent[Event], len(script)+1)
	for _, ev := range script {
		events <- ev
	}
	return Handle{
		Data:   Data{Nodes: []Node{{ID: 42, Media: MediaAudio}}},
		Events: events,
	}, nil
}

func nextLifecycle(t *testing.T, out <-chan LifecycleEvent) LifecycleEvent {
	t.Helper()
	select {
	case ev := <-out:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lifecycle event")
		return LifecycleEvent{}
	}
}

func TestService_LifecycleReconnectsAfterBackendError(t *testing.T) {
	backend := &scriptedBackend{scripts: [][]bosun.BackendEvent[Event]{
		{{Err: errors.New("pipewire gone")}},
		{{Update: NewWebcamOpenEvent()}},
	}}
	out := make(chan LifecycleEvent, 16)
	pub := bosun.PublisherFunc[*Service, Event](func(ev LifecycleEvent) error {
		out <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = NewEngine(backend).Backoff(time.Millisecond).Listen(ctx, pub)
	}()

	ev := nextLifecycle(t, out)
	if ev.Kind != bosun.EventInit || ev.Service == nil {
		t.Fatalf("expected init with handle, got %+v", ev)
	}
	if !ev.Service.Data().MicrophoneAccess() {
		t.Error("Data = no microphone, want the spawn snapshot")
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventError || !strings.Contains(ev.Err.Error(), "pipewire gone") {
		t.Fatalf("expected drop error, got %+v", ev)
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventInit {
		t.Fatalf("expected reconnect init, got %+v", ev)
	}
	ev = nextLifecycle(t, out)
	if ev.Kind != bosun.EventUpdate || ev.Update.Kind != EventWebcamOpen {
		t.Fatalf("expected webcam update, got %+v", ev)
	}
	if got := backend.spawns.Load(); got != 2 {
		t.Errorf("spawns = %d, want 2", got)
	}
}
