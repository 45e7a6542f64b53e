package network

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

// seededService builds a handle with a typical wireless snapshot
// cached.
func seededService(commands chan BackendCommand) *Service {
	return NewService(BackendNetworkManager, Data{
		WiFiPresent:  true,
		WiFiEnabled:  true,
		AccessPoints: []AccessPoint{visible("home", 70)},
		ActiveConnections: []ActiveConnection{
			{Kind: ConnectionVPN, Name: "office", Path: "/active/office"},
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

func TestService_ToggleWiFiCarriesAbsoluteTarget(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), ToggleWiFi()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSetWiFi || cmd.Enable {
		t.Errorf("command = %+v, want wifi off", cmd)
	}

	svc.Update(NewWiFiEnabledEvent(false))
	if err := svc.Command(context.Background(), ToggleWiFi()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd = takeCommand(t, commands)
	if cmd.Kind != BackendSetWiFi || !cmd.Enable {
		t.Errorf("command = %+v, want wifi on after cached flip", cmd)
	}
}

func TestService_ToggleAirplaneMode(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), ToggleAirplaneMode()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSetAirplaneMode || !cmd.Enable {
		t.Errorf("command = %+v, want airplane mode on", cmd)
	}
}

func TestService_ScanNearbyWiFi(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), ScanNearbyWiFi()); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if cmd := takeCommand(t, commands); cmd.Kind != BackendScan {
		t.Errorf("command = %+v, want scan", cmd)
	}
}

func TestService_SelectAccessPointPassesCredentials(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	ap := visible("cafe", 40)
	if err := svc.Command(context.Background(), SelectAccessPoint(ap, "hunter2")); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendConnect || cmd.AccessPoint.SSID != "cafe" || cmd.Password != "hunter2" {
		t.Errorf("command = %+v, want connect to cafe with password", cmd)
	}
}

func TestService_ToggleVPNDeactivatesActiveProfile(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), ToggleVPN(VPN{Name: "office", Path: "/profile/office"})); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSetVPN || cmd.Enable || cmd.Path != "/active/office" {
		t.Errorf("command = %+v, want deactivate on the active path", cmd)
	}
}

func TestService_ToggleVPNActivatesStoredProfile(t *testing.T) {
	commands := make(chan BackendCommand, 8)
	svc := seededService(commands)

	if err := svc.Command(context.Background(), ToggleVPN(VPN{Name: "backup", Path: "/profile/backup"})); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	cmd := takeCommand(t, commands)
	if cmd.Kind != BackendSetVPN || !cmd.Enable || cmd.Path != "/profile/backup" {
		t.Errorf("command = %+v, want activate the stored path", cmd)
	}
}

func TestService_CommandHonorsContext(t *testing.T) {
	svc := seededService(make(chan BackendCommand))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Command(ctx, ToggleWiFi()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Command() error = %v, want context.Canceled", err)
	}
}

func TestService_FailRecordsUntilNextEvent(t *testing.T) {
	svc := seededService(make(chan BackendCommand, 1))

	svc.Fail(errors.New("bus gone"))
	if got := svc.Data().LastError; got != "bus gone" {
		t.Errorf("LastError = %q, want %q", got, "bus gone")
	}

	svc.Update(NewConnectivityEvent(ConnectivityFull))
	if got := svc.Data().LastError; got != "" {
		t.Errorf("LastError = %q, want cleared", got)
	}
}

func TestService_ChoiceReportsBackend(t *testing.T) {
	svc := NewService(BackendIwd, Data{}, make(chan BackendCommand))
	if got := svc.Choice(); got != BackendIwd {
		t.Errorf("Choice() = %v, want iwd", got)
	}
	if got := svc.Choice().String(); got != "iwd" {
		t.Errorf("Choice().String() = %q, want %q", got, "iwd")
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
		Choice:   BackendNetworkManager,
		Data:     Data{WiFiPresent: true},
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
		{{Update: NewConnectivityEvent(ConnectivityFull)}},
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
	if !ev.Service.Data().WiFiPresent {
		t.Error("WiFiPresent = false, want the spawn snapshot")
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventError || !strings.Contains(ev.Err.Error(), "bus dropped") {
		t.Fatalf("expected drop error, got %+v", ev)
	}
	if ev := nextLifecycle(t, out); ev.Kind != bosun.EventInit {
		t.Fatalf("expected reconnect init, got %+v", ev)
	}
	ev = nextLifecycle(t, out)
	if ev.Kind != bosun.EventUpdate || ev.Update.Kind != EventConnectivity {
		t.Fatalf("expected connectivity update, got %+v", ev)
	}
	if got := backend.spawns.Load(); got != 2 {
		t.Errorf("spawns = %d, want 2", got)
	}
}
