package bluetooth

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

// seededService builds a handle with a powered adapter and two paired
// devices cached.
func seededService(commands chan BackendCommand) *Service {
	return NewService(Data{
		State: StateActive,
		Devices: []Device{
			{Name: "Buds", Battery: 80, HasBattery: true, Connected: true, Path: "/org/bluez/hci0/dev_buds"},
			{Name: "Keyboard", Path: "/org/bluez/hci0/dev_keys"},
		},
	}, commands)
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

func TestService_TogglePowerCarriesAbsoluteTarget(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), TogglePower()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSetPower || cmd.Enable {
		t.Errorf("command = %+v, want power off", cmd)
	}

	svc.Update(NewStateEvent(StateInactive))
	if err := svc.Command(context.Background(), TogglePower()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd = takeCommand(t, commands)
	if cmd.Kind != BackendSetPower || !cmd.Enable {
		t.Errorf("command = %+v, want power on after cached flip", cmd)
	}
}

func TestService_TogglePowerDroppedWithoutAdapter(t *testing.T) {
	commands := make(chan BackendCommand, 1)
	svc := NewService(Data{State: StateUnavailable}, commands)

	if err := svc.Command(context.Background(), TogglePower()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	select {
	case cmd := <-commands:
		t.Fatalf("command %+v dispatched without an adapter", cmd)
	default:
	}
}

func TestService_ConnectDeviceCarriesPath(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), ConnectDevice("/org/bluez/hci0/dev_keys")); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendConnect || cmd.Path != "/org/bluez/hci0/dev_keys" {
		t.Errorf("command = %+v, want connect to the keyboard", cmd)
	}
}

func TestService_DisconnectDeviceCarriesPath(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), DisconnectDevice("/org/bluez/hci0/dev_buds")); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendDisconnect || cmd.Path != "/org/bluez/hci0/dev_buds" {
		t.Errorf("command = %+v, want disconnect from the buds", cmd)
	}
}

func TestService_CommandHonorsContext(t *testing.T) {
	svc := seededService(make(chan BackendCommand))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Command(ctx, TogglePower()); !errors.Is(err, context.Canceled) {
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
	return Handle{
		Data:     Data{State: StateActive},
		Events:   events,
		Commands: make(chan BackendCommand, commandBuffer),
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
		{{Err: errors.New("bus dropped")}},
		{{Update: NewStateEvent(StateInactive)}},
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
	if ev.Service.Data().State != StateActive {
		t.Error("State = inactive, want the spawn snapshot")
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventError || !strings.Contains(ev.Err.Error(), "bus dropped") {
		t.Fatalf("expected drop error, got %+v", ev)
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventInit {
		t.Fatalf("expected reconnect init, got %+v", ev)
	}
	ev = nextLifecycle(t, out)
	if ev.Kind != bosun.EventUpdate || ev.Update.Kind != EventState || ev.Update.State != StateInactive {
		t.Fatalf("expected state update, got %+v", ev)
	}
	if got := backend.spawns.Load(); got != 2 {
		t.Errorf("spawns = %d, want 2", got)
	}
}
