package bluetooth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
	"github.com/zoobzio/bosun/dbusx"
)

const (
	bluezService      = "org.bluez"
	bluezAdapterIface = "org.bluez.Adapter1"
	bluezDeviceIface  = "org.bluez.Device1"
	bluezBatteryIface = "org.bluez.Battery1"
)

// BackendCommandKind discriminates backend commands.
type BackendCommandKind int32

const (
	BackendSetPower BackendCommandKind = iota
	BackendConnect
	BackendDisconnect
)

// BackendCommand is one fully resolved mutation for the daemon.
// Enable is the absolute power target; Path names the device on the
// connection commands.
type BackendCommand struct {
	Kind   BackendCommandKind
	Enable bool
	Path   dbus.ObjectPath
}

// Buffer sizes for the backend channels.
const (
	eventBuffer   = 16
	commandBuffer = 16
	signalBuffer  = 32
)

// Handle is one live backend connection. Data is the snapshot taken
// at spawn, Events carries notifications until the connection dies
// and the channel closes, Commands accepts mutations to apply on the
// connection.
type Handle struct {
	Data     Data
	Events   <-chan bosun.BackendEvent[Event]
	Commands chan<- BackendCommand
}

// Backend establishes daemon connections. Spawn builds a fresh
// connection per call; a connection never survives its own failure.
type Backend interface {
	Spawn(ctx context.Context) (Handle, error)
}

// DBusBackend drives BlueZ over the system bus.
type DBusBackend struct {
	connect func() (dbusx.Conn, error)
}

var _ Backend = (*DBusBackend)(nil)

// NewDBusBackend returns a backend dialing the standard system bus.
func NewDBusBackend() *DBusBackend {
	return &DBusBackend{connect: dbusx.System}
}

// Spawn dials the bus and takes the initial snapshot, which doubles
// as the liveness probe. The returned handle stays live until a
// signal translation fails or the bus connection drops.
func (b *DBusBackend) Spawn(ctx context.Context) (Handle, error) {
	conn, err := b.connect()
	if err != nil {
		return Handle{}, fmt.Errorf("bluetooth: connect system bus: %w", err)
	}

	bz := newBluez(conn)
	data, err := bz.snapshot(ctx)
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("bluetooth: %w", err)
	}

	signals, err := bz.watch()
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("bluetooth: subscribe: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	events := make(chan bosun.BackendEvent[Event], eventBuffer)
	commands := make(chan BackendCommand, commandBuffer)

	var commandsDone sync.WaitGroup
	commandsDone.Add(1)
	go b.applyCommands(connCtx, bz, commands, events, &commandsDone)
	go b.pump(connCtx, cancel, conn, bz, signals, events, &commandsDone)

	return Handle{Data: data, Events: events, Commands: commands}, nil
}

// pump translates bus signals into service events. A translation
// failure ends the connection after the error event; cancel stops the
// command goroutine, and the events channel closes only after it is
// done so command follow-ups never race the close.
func (b *DBusBackend) pump(ctx context.Context, cancel context.CancelFunc, conn dbusx.Conn, bz *bluez, signals <-chan *dbus.Signal, events chan<- bosun.BackendEvent[Event], commandsDone *sync.WaitGroup) {
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
			translated, err := bz.translate(ctx, sig)
			if err != nil {
				b.emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("bluetooth: %w", err)})
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
// Each command reports its outcome through follow-up events; failures
// additionally surface on the command-failed signal.
func (b *DBusBackend) applyCommands(ctx context.Context, bz *bluez, commands <-chan BackendCommand, events chan<- bosun.BackendEvent[Event], done *sync.WaitGroup) {
	defer done.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			followups, err := bz.apply(ctx, cmd)
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

func (b *DBusBackend) emit(ctx context.Context, events chan<- bosun.BackendEvent[Event], event bosun.BackendEvent[Event]) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// bluez reads and mutates the daemon state through its ObjectManager.
// Every requery walks the managed object tree again; the bridge keeps
// only the resolved adapter path.
type bluez struct {
	conn dbusx.Conn

	mu      sync.Mutex
	adapter dbus.ObjectPath
}

func newBluez(conn dbusx.Conn) *bluez {
	return &bluez{conn: conn}
}

// snapshot walks the managed object tree into a Data.
func (b *bluez) snapshot(ctx context.Context) (Data, error) {
	objects, err := dbusx.GetManagedObjects(ctx, b.conn, bluezService)
	if err != nil {
		return Data{}, fmt.Errorf("managed objects: %w", err)
	}
	return Data{
		State:   b.refreshAdapter(objects),
		Devices: devicesFromObjects(objects),
	}, nil
}

// refreshAdapter re-resolves the adapter and reports its state. With
// several adapters present the lowest path wins, keeping the choice
// stable across requeries.
func (b *bluez) refreshAdapter(objects dbusx.ManagedObjects) State {
	var adapters []dbus.ObjectPath
	for path, ifaces := range objects {
		if _, ok := ifaces[bluezAdapterIface]; ok {
			adapters = append(adapters, path)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(adapters) == 0 {
		b.adapter = ""
		return StateUnavailable
	}
	sort.Slice(adapters, func(i, j int) bool { return adapters[i] < adapters[j] })
	b.adapter = adapters[0]

	powered, _ := dbusx.Value[bool](objects[b.adapter][bluezAdapterIface], "Powered")
	return stateForPowered(powered)
}

func (b *bluez) adapterPath() dbus.ObjectPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adapter
}

// devicesFromObjects lists the paired devices in the tree. Battery
// charge is read only from connected devices exporting the battery
// interface.
func devicesFromObjects(objects dbusx.ManagedObjects) []Device {
	var devices []Device
	for path, ifaces := range objects {
		props, ok := ifaces[bluezDeviceIface]
		if !ok {
			continue
		}
		if paired, _ := dbusx.Value[bool](props, "Paired"); !paired {
			continue
		}

		name, _ := dbusx.Value[string](props, "Alias")
		connected, _ := dbusx.Value[bool](props, "Connected")
		device := Device{Name: name, Connected: connected, Path: path}

		if battery, ok := ifaces[bluezBatteryIface]; ok && connected {
			if percentage, ok := dbusx.Value[uint8](battery, "Percentage"); ok {
				device.Battery = percentage
				device.HasBattery = true
			}
		}
		devices = append(devices, device)
	}
	sortDevices(devices)
	return devices
}

func (b *bluez) devices(ctx context.Context) ([]Device, error) {
	objects, err := dbusx.GetManagedObjects(ctx, b.conn, bluezService)
	if err != nil {
		return nil, fmt.Errorf("managed objects: %w", err)
	}
	return devicesFromObjects(objects), nil
}

// watch subscribes to property changes and to object churn. Both feed
// the same signal channel.
func (b *bluez) watch() (<-chan *dbus.Signal, error) {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(bluezService),
		dbus.WithMatchInterface(dbusx.PropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, err
	}
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(bluezService),
		dbus.WithMatchInterface(dbusx.ObjectManagerIface),
	); err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	b.conn.Signal(signals)
	return signals, nil
}

func (b *bluez) translate(ctx context.Context, sig *dbus.Signal) ([]Event, error) {
	switch sig.Name {
	case dbusx.ObjectManagerIface + ".InterfacesAdded", dbusx.ObjectManagerIface + ".InterfacesRemoved":
		data, err := b.snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return []Event{NewStateEvent(data.State), NewDevicesEvent(data.Devices)}, nil
	}

	iface, changed, ok := dbusx.ChangedProperties(sig)
	if !ok {
		return nil, nil
	}

	switch iface {
	case bluezAdapterIface:
		if sig.Path != b.adapterPath() {
			return nil, nil
		}
		if v, ok := changed["Powered"]; ok {
			if powered, ok := v.Value().(bool); ok {
				return []Event{NewStateEvent(stateForPowered(powered))}, nil
			}
		}
		return nil, nil

	case bluezDeviceIface, bluezBatteryIface:
		devices, err := b.devices(ctx)
		if err != nil {
			return nil, err
		}
		return []Event{NewDevicesEvent(devices)}, nil
	}

	return nil, nil
}

func (b *bluez) apply(ctx context.Context, cmd BackendCommand) ([]Event, error) {
	switch cmd.Kind {
	case BackendSetPower:
		return b.applyPower(ctx, cmd.Enable)
	case BackendConnect:
		return b.applyDeviceCall(ctx, cmd.Path, "Connect")
	case BackendDisconnect:
		return b.applyDeviceCall(ctx, cmd.Path, "Disconnect")
	}
	return nil, nil
}

// applyPower flips the adapter radio with an optimistic follow-up,
// reverted when the daemon refuses the write. Without an adapter the
// command is a no-op.
func (b *bluez) applyPower(ctx context.Context, enable bool) ([]Event, error) {
	adapter := b.adapterPath()
	if adapter == "" {
		return nil, nil
	}
	if err := dbusx.SetProp(ctx, b.conn.Object(bluezService, adapter), bluezAdapterIface, "Powered", enable); err != nil {
		return []Event{NewStateEvent(stateForPowered(!enable))}, fmt.Errorf("set powered: %w", err)
	}
	return []Event{NewStateEvent(stateForPowered(enable))}, nil
}

// applyDeviceCall invokes one device method, then requeries the
// device list so the snapshot reflects the outcome.
func (b *bluez) applyDeviceCall(ctx context.Context, path dbus.ObjectPath, member string) ([]Event, error) {
	call := b.conn.Object(bluezService, path).CallWithContext(ctx, bluezDeviceIface+"."+member, 0)

	var err error
	if call.Err != nil {
		err = fmt.Errorf("%s %s: %w", strings.ToLower(member), path, call.Err)
	}
	return []Event{NewDevicesEvent(b.requeryDevices(ctx))}, err
}

func (b *bluez) requeryDevices(ctx context.Context) []Device {
	devices, err := b.devices(ctx)
	if err != nil {
		return nil
	}
	return devices
}
