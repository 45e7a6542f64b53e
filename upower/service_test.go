package upower

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

// seededService builds a handle with a discharging battery and the
// given cached profile.
func seededService(profile PowerProfile, commands chan BackendCommand) *Service {
	return NewService(Data{
		Battery:    Battery{Capacity: 55, State: StateDischarging, TimeToEmpty: time.Hour},
		HasBattery: true,
		Profile:    profile,
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

func TestService_SetProfileResolves(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(ProfileBalanced, commands)

	if err := svc.Command(context.Background(), SetPowerProfile(ProfilePerformance)); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSetProfile || cmd.Profile != ProfilePerformance {
		t.Errorf("command = %+v, want the performance write", cmd)
	}
}

func TestService_SetUnknownProfileDropped(t *testing.T) {
	commands := make(chan BackendCommand, 1)
	svc := seededService(ProfileBalanced, commands)

	if err := svc.Command(context.Background(), SetPowerProfile(ProfileUnknown)); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	select {
	case cmd := <-commands:
		t.Fatalf("command %+v dispatched for the unknown profile", cmd)
	default:
	}
}

func TestService_ToggleCycles(t *testing.T) {
	cases := []struct {
		cached PowerProfile
		want   PowerProfile
	}{
		{ProfileBalanced, ProfilePowerSaver},
		{ProfilePowerSaver, ProfilePerformance},
		{ProfilePerformance, ProfileBalanced},
		{ProfileUnknown, ProfileBalanced},
	}
	for _, tc := range cases {
		commands := make(chan BackendCommand, 8)
		svc := seededService(tc.cached, commands)

		if err := svc.Command(context.Background(), ToggleProfile()); err != nil {
			t.Fatalf("Command() error = %v", err)
		}
		cmd := takeCommand(t, commands)
		if cmd.Kind != BackendSetProfile || cmd.Profile != tc.want {
			t.Errorf("toggle from %v = %+v, want %v", tc.cached, cmd, tc.want)
		}
	}
}

func TestService_ToggleFollowsUpdates(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(ProfileBalanced, commands)

	svc.Update(NewProfileEvent(ProfilePowerSaver))
	if err := svc.Command(context.Background(), ToggleProfile()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if cmd := takeCommand(t, commands); cmd.Profile != ProfilePerformance {
		t.Errorf("command = %+v, want the cycle to continue from the update", cmd)
	}
}

func TestService_CommandHonorsContext(t *testing.T) {
	svc := seededService(ProfileBalanced, make(chan BackendCommand))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Command(ctx, ToggleProfile()); !errors.Is(err, context.Canceled) {
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
		Data: Data{
			Battery:    Battery{Capacity: 80, State: StateDischarging},
			HasBattery: true,
			Profile:    ProfileBalanced,
		},
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
		{{Err: errors.New("system bus gone")}},
		{{Update: NewProfileEvent(ProfilePerformance)}},
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
	if data := ev.Service.Data(); !data.HasBattery || data.Battery.Capacity != 80 {
		t.Errorf("Data = %+v, want the spawn snapshot", data)
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventError || !strings.Contains(ev.Err.Error(), "system bus gone") {
		t.Fatalf("expected drop error, got %+v", ev)
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventInit {
		t.Fatalf("expected reconnect init, got %+v", ev)
	}
	ev = nextLifecycle(t, out)
	if ev.Kind != bosun.EventUpdate || ev.Update.Kind != EventProfile || ev.Update.Profile != ProfilePerformance {
		t.Fatalf("expected profile update, got %+v", ev)
	}
	if got := backend.spawns.Load(); got != 2 {
		t.Errorf("spawns = %d, want 2", got)
	}
}
