package network

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
	"github.com/zoobzio/bosun/dbusx"
)

// BackendCommandKind discriminates backend commands.
type BackendCommandKind int32

const (
	BackendSetWiFi BackendCommandKind = iota
	BackendSetAirplaneMode
	BackendScan
	BackendConnect
	BackendSetVPN
)

// BackendCommand is one fully resolved mutation for the network
// backend. Enable is the absolute target state of the toggles, Path
// the connection to activate or deactivate on VPN changes.
type BackendCommand struct {
	Kind        BackendCommandKind
	Enable      bool
	AccessPoint AccessPoint
	Password    string
	Path        dbus.ObjectPath
}

const (
	eventBuffer   = 16
	commandBuffer = 16
	signalBuffer  = 32
)

// Handle is one live backend connection: the snapshot taken at spawn,
// the event stream, and the command channel. The stream closes when
// the connection dies.
type Handle struct {
	Choice   BackendChoice
	Data     Data
	Events   <-chan bosun.BackendEvent[Event]
	Commands chan<- BackendCommand
}

// Backend produces connected handles. A connection never survives its
// own failure: after an error event the backend tears the connection
// down and the engine spawns a fresh one.
type Backend interface {
	Spawn(ctx context.Context) (Handle, error)
}

// BackendChoice names the backend implementation selected at spawn.
type BackendChoice int32

const (
	BackendNetworkManager BackendChoice = iota
	BackendIwd
)

func (c BackendChoice) String() string {
	switch c {
	case BackendNetworkManager:
		return "network-manager"
	case BackendIwd:
		return "iwd"
	default:
		return "unknown"
	}
}

// BackendSelected is emitted once per connection after probing the
// bus decided which implementation to drive.
var BackendSelected = capitan.NewSignal(
	"bosun.network.backend.selected",
	"Network backend chosen after probing the bus",
)

// KeyBackend is the selected backend implementation name.
var KeyBackend = capitan.NewStringKey("backend")

const (
	rfkillPath     = "/usr/sbin/rfkill"
	rfkillClassDir = "/sys/class/rfkill"
)

// bluetoothSoftBlocked reports whether any bluetooth radio under the
// rfkill class carries a soft block. Combined with the wireless switch
// it distinguishes airplane mode from a plain WiFi toggle.
func bluetoothSoftBlocked(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		base := filepath.Join(dir, entry.Name())
		kind, err := os.ReadFile(filepath.Join(base, "type"))
		if err != nil || strings.TrimSpace(string(kind)) != "bluetooth" {
			continue
		}
		soft, err := os.ReadFile(filepath.Join(base, "soft"))
		if err == nil && strings.TrimSpace(string(soft)) == "1" {
			return true
		}
	}
	return false
}

// bridge is one concrete backend implementation bound to a live bus
// connection.
type bridge interface {
	choice() BackendChoice
	snapshot(ctx context.Context) (Data, error)
	watch() (<-chan *dbus.Signal, error)
	translate(ctx context.Context, sig *dbus.Signal) ([]Event, error)
	apply(ctx context.Context, cmd BackendCommand) ([]Event, error)
}

// DBusBackend connects to the system bus and drives whichever bridge
// initializes first: NetworkManager, then iwd.
type DBusBackend struct {
	connect func() (dbusx.Conn, error)
}

var _ Backend = (*DBusBackend)(nil)

// NewDBusBackend returns a backend dialing the standard system bus.
func NewDBusBackend() *DBusBackend {
	return &DBusBackend{connect: dbusx.System}
}

// Spawn dials the bus, probes for a usable backend, and takes the
// initial snapshot. The returned handle stays live until a signal
// translation fails or the bus connection drops.
func (b *DBusBackend) Spawn(ctx context.Context) (Handle, error) {
	conn, err := b.connect()
	if err != nil {
		return Handle{}, fmt.Errorf("network: connect system bus: %w", err)
	}

	br, data, err := selectBridge(ctx, conn)
	if err != nil {
		conn.Close()
		return Handle{}, err
	}

	capitan.Emit(ctx, BackendSelected,
		bosun.KeyService.Field(ServiceName),
		KeyBackend.Field(br.choice().String()),
	)

	signals, err := br.watch()
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("network: %s: subscribe: %w", br.choice(), err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	events := make(chan bosun.BackendEvent[Event], eventBuffer)
	commands := make(chan BackendCommand, commandBuffer)

	var commandsDone sync.WaitGroup
	commandsDone.Add(1)
	go b.applyCommands(connCtx, br, commands, events, &commandsDone)
	go b.pump(connCtx, cancel, conn, br, signals, events, &commandsDone)

	return Handle{Choice: br.choice(), Data: data, Events: events, Commands: commands}, nil
}

// selectBridge probes NetworkManager and falls back to iwd. The
// snapshot doubles as the probe: whichever service answers is the
// backend for the lifetime of the connection.
func selectBridge(ctx context.Context, conn dbusx.Conn) (bridge, Data, error) {
	nm := newNetworkManagerBridge(conn)
	data, nmErr := nm.snapshot(ctx)
	if nmErr == nil {
		return nm, data, nil
	}

	iwd := newIwdBridge(conn)
	data, iwdErr := iwd.snapshot(ctx)
	if iwdErr == nil {
		return iwd, data, nil
	}

	return nil, Data{}, fmt.Errorf("network: no usable backend: network-manager: %w; iwd: %w", nmErr, iwdErr)
}

// pump translates bus signals into service events. A translation
// failure ends the connection after the error event; cancel stops the
// command goroutine, and the events channel closes only after it is
// done so command follow-ups never race the close.
func (b *DBusBackend) pump(ctx context.Context, cancel context.CancelFunc, conn dbusx.Conn, br bridge, signals <-chan *dbus.Signal, events chan<- bosun.BackendEvent[Event], commandsDone *sync.WaitGroup) {
	defer close(events)
	defer commandsDone.Wait()
	defer conn.Close()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			translated, err := br.translate(ctx, sig)
			if err != nil {
				b.emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("network: %s: %w", br.choice(), err)})
				return
			}
			for _, ev := range translated {
				if !b.emit(ctx, events, bosun.BackendEvent[Event]{Update: ev}) {
					return
				}
			}
		}
	}
}

// applyCommands executes resolved commands on the live connection.
// Each command reports its outcome through follow-up events so the
// snapshot tracks changes the bus itself never announces; failures
// additionally surface on the command-failed signal.
func (b *DBusBackend) applyCommands(ctx context.Context, br bridge, commands <-chan BackendCommand, events chan<- bosun.BackendEvent[Event], done *sync.WaitGroup) {
	defer done.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			followups, err := br.apply(ctx, cmd)
			if err != nil {
				capitan.Emit(ctx, bosun.ServiceCommandFailed,
					bosun.KeyService.Field(ServiceName),
					bosun.KeyError.Field(err.Error()),
				)
			}
			for _, ev := range followups {
				if !b.emit(ctx, events, bosun.BackendEvent[Event]{Update: ev}) {
					return
				}
			}
		}
	}
}

func (b *DBusBackend) emit(ctx context.Context, events chan<- bosun.BackendEvent[Event], ev bosun.BackendEvent[Event]) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
