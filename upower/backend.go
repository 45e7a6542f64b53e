package upower

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
	"github.com/zoobzio/bosun/dbusx"
)

const (
	upowerService = "org.freedesktop.UPower"
	upowerPath    = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerIface   = "org.freedesktop.UPower"
	deviceIface   = "org.freedesktop.UPower.Device"

	profilesService = "org.freedesktop.UPower.PowerProfiles"
	profilesPath    = dbus.ObjectPath("/org/freedesktop/UPower/PowerProfiles")
	profilesIface   = "org.freedesktop.UPower.PowerProfiles"
)

// Wire values of the UPower device properties.
const (
	deviceTypeBattery = uint32(2)

	deviceStateCharging    = uint32(1)
	deviceStateDischarging = uint32(2)
)

// BackendCommandKind discriminates backend commands.
type BackendCommandKind int32

const (
	BackendSetProfile BackendCommandKind = iota
)

// BackendCommand is one fully resolved mutation for the daemon.
type BackendCommand struct {
	Kind    BackendCommandKind
	Profile PowerProfile
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

// DBusBackend drives UPower and the power-profiles daemon over the
// system bus.
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
		return Handle{}, fmt.Errorf("upower: connect system bus: %w", err)
	}

	pw := newPower(conn)
	data, err := pw.snapshot(ctx)
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("upower: %w", err)
	}

	signals, err := pw.watch()
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("upower: subscribe: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	events := make(chan bosun.BackendEvent[Event], eventBuffer)
	commands := make(chan BackendCommand, commandBuffer)

	var commandsDone sync.WaitGroup
	commandsDone.Add(1)
	go b.applyCommands(connCtx, pw, commands, events, &commandsDone)
	go b.pump(connCtx, cancel, conn, pw, signals, events, &commandsDone)

	return Handle{Data: data, Events: events, Commands: commands}, nil
}

// pump translates bus signals into service events. A translation
// failure ends the connection after the error event; cancel stops the
// command goroutine, and the events channel closes only after it is
// done so command follow-ups never race the close.
func (b *DBusBackend) pump(ctx context.Context, cancel context.CancelFunc, conn dbusx.Conn, pw *power, signals <-chan *dbus.Signal, events chan<- bosun.BackendEvent[Event], commandsDone *sync.WaitGroup) {
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
			translated, err := pw.translate(ctx, sig)
			if err != nil {
				b.emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("upower: %w", err)})
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
func (b *DBusBackend) applyCommands(ctx context.Context, pw *power, commands <-chan BackendCommand, events chan<- bosun.BackendEvent[Event], done *sync.WaitGroup) {
	defer done.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			followups, err := pw.apply(ctx, cmd)
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

// power reads and mutates the daemons' state. Battery readings walk
// the device enumeration on every requery.
type power struct {
	conn dbusx.Conn
}

func newPower(conn dbusx.Conn) *power {
	return &power{conn: conn}
}

// snapshot aggregates the batteries and reads the active profile. A
// missing profiles daemon degrades the connection to battery-only
// data instead of failing it.
func (p *power) snapshot(ctx context.Context) (Data, error) {
	battery, has, err := p.batteries(ctx)
	if err != nil {
		return Data{}, err
	}

	data := Data{Battery: battery, HasBattery: has}
	profile, err := p.profile(ctx)
	if err != nil {
		data.Profile = ProfileUnknown
		capitan.Emit(ctx, bosun.ServiceDegraded,
			bosun.KeyService.Field(ServiceName),
			bosun.KeyError.Field(err.Error()),
		)
		return data, nil
	}
	data.Profile = profile
	return data, nil
}

func (p *power) profile(ctx context.Context) (PowerProfile, error) {
	raw, err := dbusx.GetProp[string](ctx, p.conn.Object(profilesService, profilesPath), profilesIface, "ActiveProfile")
	if err != nil {
		return ProfileUnknown, fmt.Errorf("active profile: %w", err)
	}
	return ParsePowerProfile(raw), nil
}

// batteries aggregates the power-supply batteries. Individual reading
// failures on a live device are skipped; the aggregate is best
// effort, as each reading is already stale by the time it lands.
func (p *power) batteries(ctx context.Context) (Battery, bool, error) {
	call := p.conn.Object(upowerService, upowerPath).CallWithContext(ctx, upowerIface+".EnumerateDevices", 0)
	var paths []dbus.ObjectPath
	if err := call.Store(&paths); err != nil {
		return Battery{}, false, fmt.Errorf("enumerate devices: %w", err)
	}

	var devices []dbusx.Object
	for _, path := range paths {
		obj := p.conn.Object(upowerService, path)
		kind, err := dbusx.GetProp[uint32](ctx, obj, deviceIface, "Type")
		if err != nil {
			return Battery{}, false, fmt.Errorf("device type %s: %w", path, err)
		}
		supply, err := dbusx.GetProp[bool](ctx, obj, deviceIface, "PowerSupply")
		if err != nil {
			return Battery{}, false, fmt.Errorf("power supply %s: %w", path, err)
		}
		if kind == deviceTypeBattery && supply {
			devices = append(devices, obj)
		}
	}
	if len(devices) == 0 {
		return Battery{}, false, nil
	}

	var battery Battery
	var sum float64
	var count int
	var charging, discharging bool
	for _, obj := range devices {
		if percentage, err := dbusx.GetProp[float64](ctx, obj, deviceIface, "Percentage"); err == nil {
			sum += percentage
			count++
		}
		if state, err := dbusx.GetProp[uint32](ctx, obj, deviceIface, "State"); err == nil {
			charging = charging || state == deviceStateCharging
			discharging = discharging || state == deviceStateDischarging
		}
		if seconds, err := dbusx.GetProp[int64](ctx, obj, deviceIface, "TimeToEmpty"); err == nil {
			battery.TimeToEmpty += time.Duration(seconds) * time.Second
		}
		if seconds, err := dbusx.GetProp[int64](ctx, obj, deviceIface, "TimeToFull"); err == nil {
			battery.TimeToFull += time.Duration(seconds) * time.Second
		}
	}
	if count > 0 {
		battery.Capacity = uint8(math.Round(sum / float64(count)))
	}
	switch {
	case charging:
		battery.State = StateCharging
	case discharging:
		battery.State = StateDischarging
	default:
		battery.State = StateFull
	}
	return battery, true, nil
}

// watch subscribes to device churn on UPower and to property changes
// from both daemons. All feed the same signal channel.
func (p *power) watch() (<-chan *dbus.Signal, error) {
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchSender(upowerService),
		dbus.WithMatchInterface(upowerIface),
	); err != nil {
		return nil, err
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchSender(upowerService),
		dbus.WithMatchInterface(dbusx.PropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, err
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchSender(profilesService),
		dbus.WithMatchInterface(dbusx.PropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	p.conn.Signal(signals)
	return signals, nil
}

// translate turns one bus signal into service events. Device churn
// and device property changes requery the aggregate; profile changes
// carry their value in the signal.
func (p *power) translate(ctx context.Context, sig *dbus.Signal) ([]Event, error) {
	switch sig.Name {
	case upowerIface + ".DeviceAdded", upowerIface + ".DeviceRemoved":
		return p.refreshBattery(ctx)
	}

	iface, changed, ok := dbusx.ChangedProperties(sig)
	if !ok {
		return nil, nil
	}

	switch iface {
	case deviceIface:
		return p.refreshBattery(ctx)

	case profilesIface:
		if v, ok := changed["ActiveProfile"]; ok {
			if raw, ok := v.Value().(string); ok {
				return []Event{NewProfileEvent(ParsePowerProfile(raw))}, nil
			}
		}
		return nil, nil
	}

	return nil, nil
}

func (p *power) refreshBattery(ctx context.Context) ([]Event, error) {
	battery, has, err := p.batteries(ctx)
	if err != nil {
		return nil, err
	}
	if !has {
		return []Event{NewNoBatteryEvent()}, nil
	}
	return []Event{NewBatteryEvent(battery)}, nil
}

// apply executes one resolved command. The profile write reports
// optimistically; the daemon's own change signal confirms it.
func (p *power) apply(ctx context.Context, cmd BackendCommand) ([]Event, error) {
	switch cmd.Kind {
	case BackendSetProfile:
		if err := dbusx.SetProp(ctx, p.conn.Object(profilesService, profilesPath), profilesIface, "ActiveProfile", cmd.Profile.String()); err != nil {
			return nil, fmt.Errorf("set profile: %w", err)
		}
		return []Event{NewProfileEvent(cmd.Profile)}, nil
	}
	return nil, nil
}
