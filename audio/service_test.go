package audio

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

// seededService builds a handle with a default sink and source cached.
func seededService(commands chan BackendCommand) *Service {
	svc := NewService(commands)
	svc.Update(NewServerInfoEvent(ServerInfo{DefaultSink: "sink", DefaultSource: "source"}))
	svc.Update(NewSinksEvent([]Device{speaker("sink", 0.4, false, true)}))
	svc.Update(NewSourcesEvent([]Device{speaker("source", 0.6, false, true)}))
	return svc
}

func takeCommand(t *testing.T, commands <-chan BackendCommand) BackendCommand {
	t.Helper()
	select {
	case cmd := <-commands:
		return cmd
	default:
		t.Fatal("no backend command dispatched")
		return BackendCommand{}
	}
}

func TestService_ToggleSinkMute(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), ToggleSinkMute()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSinkMute || cmd.Device != "sink" || !cmd.Mute {
		t.Errorf("command = %+v, want sink mute on", cmd)
	}
}

func TestService_ToggleSourceMuteFlipsCachedState(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)
	svc.Update(NewSourcesEvent([]Device{speaker("source", 0.6, true, true)}))

	if err := svc.Command(context.Background(), ToggleSourceMute()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSourceMute || cmd.Device != "source" || cmd.Mute {
		t.Errorf("command = %+v, want source mute off", cmd)
	}
}

func TestService_SinkVolumeScalesAndCaches(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), SinkVolume(80)); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSinkVolume || cmd.Device != "sink" || cmd.Volume != 0.8 {
		t.Errorf("command = %+v, want sink volume 0.8", cmd)
	}
	if got := svc.Data().Sinks[0].Volume; got != 0.8 {
		t.Errorf("cached volume = %v, want 0.8", got)
	}
}

func TestService_VolumeClamps(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), SourceVolume(150)); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Volume != 1.0 {
		t.Errorf("Volume = %v, want clamp to 1.0", cmd.Volume)
	}
}

func TestService_CommandWithoutDefaultIsDropped(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := NewService(commands)

	if err := svc.Command(context.Background(), ToggleSinkMute()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if err := svc.Command(context.Background(), SinkVolume(50)); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	select {
	case cmd := <-commands:
		t.Fatalf("unexpected backend command %+v", cmd)
	default:
	}
}

func TestService_DefaultSinkPassesThrough(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := NewService(commands)

	if err := svc.Command(context.Background(), DefaultSink("hdmi", "hdmi-out")); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendDefaultSink || cmd.Device != "hdmi" || cmd.Port != "hdmi-out" {
		t.Errorf("command = %+v, want default sink hdmi/hdmi-out", cmd)
	}
}

func TestService_CommandHonorsContext(t *testing.T) {
	svc := seededService(make(chan BackendCommand))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Command(ctx, ToggleSinkMute()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Command() error = %v, want context.Canceled", err)
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
	return Handle{Events: events, Commands: make(chan BackendCommand, commandBuffer)}, nil
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
		{{Err: errors.New("boom")}},
		{{Update: NewServerInfoEvent(ServerInfo{DefaultSink: "sink"})}},
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

	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventInit || ev.Service == nil {
		t.Fatalf("expected init with handle, got %+v", ev)
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventError || !strings.Contains(ev.Err.Error(), "boom") {
		t.Fatalf("expected boom error, got %+v", ev)
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventInit {
		t.Fatalf("expected reconnect init, got %+v", ev)
	}
	ev := nextLifecycle(t, out)
	if ev.Kind != bosun.EventUpdate || ev.Update.Kind != EventServerInfo {
		t.Fatalf("expected server info update, got %+v", ev)
	}
	if ev.Update.ServerInfo.DefaultSink != "sink" {
		t.Errorf("DefaultSink = %q, want %q", ev.Update.ServerInfo.DefaultSink, "sink")
	}
	if got := backend.spawns.Load(); got != 2 {
		t.Errorf("spawns = %d, want 2", got)
	}
}
