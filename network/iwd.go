package network

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/zoobzio/bosun/dbusx"
)

const (
	iwdService = "net.connman.iwd"

	iwdDeviceIface  = "net.connman.iwd.Device"
	iwdStationIface = "net.connman.iwd.Station"
	iwdNetworkIface = "net.connman.iwd.Network"
)

// ErrVPNUnsupported reports a VPN command routed to iwd, which manages
// wireless only.
var ErrVPNUnsupported = errors.New("iwd does not support vpn management")

// orderedNetwork mirrors one entry of Station.GetOrderedNetworks.
// Signal is in centi-dBm.
type orderedNetwork struct {
	Path   dbus.ObjectPath
	Signal int16
}

// strengthFromDBM converts a centi-dBm signal level to the 0..100
// scale the rest of the service speaks.
func strengthFromDBM(signal int16) uint8 {
	dbm := int(signal) / 100
	return uint8(max(0, min(100, 2*(dbm+100))))
}

func deviceStateFromIwd(state string) DeviceState {
	switch state {
	case "connected", "roaming":
		return DeviceStateActivated
	case "connecting":
		return DeviceStateConfig
	case "disconnected":
		return DeviceStateDisconnected
	case "disconnecting":
		return DeviceStateDeactivating
	}
	return DeviceStateUnknown
}

// iwdBridge drives net.connman.iwd through its ObjectManager. Every
// requery walks the managed object tree again, so the bridge carries
// no state beyond the station dispatch table.
type iwdBridge struct {
	conn dbusx.Conn

	rfkill      string
	rfkillClass string

	mu       sync.Mutex
	stations map[dbus.ObjectPath]struct{}
	devices  map[dbus.ObjectPath]struct{}
}

func newIwdBridge(conn dbusx.Conn) *iwdBridge {
	return &iwdBridge{
		conn:        conn,
		rfkill:      rfkillPath,
		rfkillClass: rfkillClassDir,
		stations:    make(map[dbus.ObjectPath]struct{}),
		devices:     make(map[dbus.ObjectPath]struct{}),
	}
}

func (b *iwdBridge) choice() BackendChoice {
	return BackendIwd
}

// snapshot walks the managed object tree into a Data. The walk doubles
// as the liveness probe when NetworkManager lost the coin toss.
func (b *iwdBridge) snapshot(ctx context.Context) (Data, error) {
	objects, err := dbusx.GetManagedObjects(ctx, b.conn, iwdService)
	if err != nil {
		return Data{}, fmt.Errorf("managed objects: %w", err)
	}

	var (
		stations   []dbus.ObjectPath
		states     []ConnectivityState
		enabled    bool
		scanning   bool
		present    bool
		aps        []AccessPoint
		active     []ActiveConnection
		known      []KnownConnection
		knownSSIDs = map[string]struct{}{}
	)

	b.mu.Lock()
	b.stations = make(map[dbus.ObjectPath]struct{})
	b.devices = make(map[dbus.ObjectPath]struct{})
	for path, ifaces := range objects {
		if _, ok := ifaces[iwdDeviceIface]; ok {
			b.devices[path] = struct{}{}
		}
		if _, ok := ifaces[iwdStationIface]; ok {
			b.stations[path] = struct{}{}
		}
	}
	b.mu.Unlock()

	for path, ifaces := range objects {
		if device, ok := ifaces[iwdDeviceIface]; ok {
			present = true
			if powered, _ := dbusx.Value[bool](device, "Powered"); powered {
				enabled = true
			}
		}
		if station, ok := ifaces[iwdStationIface]; ok {
			stations = append(stations, path)
			if state, ok := dbusx.Value[string](station, "State"); ok {
				states = append(states, connectivityFromIwd(state))
			}
			if on, _ := dbusx.Value[bool](station, "Scanning"); on {
				scanning = true
			}
		}
		if network, ok := ifaces[iwdNetworkIface]; ok {
			if knownPath, ok := dbusx.Value[dbus.ObjectPath](network, "KnownNetwork"); ok && knownPath != "/" {
				if name, ok := dbusx.Value[string](network, "Name"); ok {
					knownSSIDs[name] = struct{}{}
				}
			}
		}
	}

	strongest := make(map[string]AccessPoint)
	for _, station := range stations {
		state := DeviceStateUnknown
		if props, ok := objects[station][iwdStationIface]; ok {
			if raw, ok := dbusx.Value[string](props, "State"); ok {
				state = deviceStateFromIwd(raw)
			}
		}

		ordered, err := b.orderedNetworks(ctx, station)
		if err != nil {
			continue
		}
		for _, entry := range ordered {
			network, ok := objects[entry.Path][iwdNetworkIface]
			if !ok {
				continue
			}
			name, ok := dbusx.Value[string](network, "Name")
			if !ok {
				continue
			}
			kind, _ := dbusx.Value[string](network, "Type")

			ap := AccessPoint{
				SSID:       name,
				Strength:   strengthFromDBM(entry.Signal),
				State:      state,
				Public:     kind == "open",
				Path:       entry.Path,
				DevicePath: station,
			}
			if cur, ok := strongest[ap.SSID]; ok && cur.Strength > ap.Strength {
				continue
			}
			strongest[ap.SSID] = ap
		}

		if props, ok := objects[station][iwdStationIface]; ok {
			if connectedPath, ok := dbusx.Value[dbus.ObjectPath](props, "ConnectedNetwork"); ok && connectedPath != "/" {
				if network, ok := objects[connectedPath][iwdNetworkIface]; ok {
					if name, ok := dbusx.Value[string](network, "Name"); ok {
						strength := uint8(0)
						for _, entry := range ordered {
							if entry.Path == connectedPath {
								strength = strengthFromDBM(entry.Signal)
								break
							}
						}
						active = append(active, ActiveConnection{
							Kind:     ConnectionWiFi,
							ID:       name,
							Name:     name,
							Strength: strength,
						})
					}
				}
			}
		}
	}

	for _, ap := range strongest {
		aps = append(aps, ap)
	}
	sortAccessPoints(aps)
	sortActiveConnections(active)

	for _, ap := range aps {
		if _, ok := knownSSIDs[ap.SSID]; ok {
			known = append(known, NewKnownWiFi(ap))
		}
	}

	return Data{
		WiFiPresent:       present,
		AccessPoints:      aps,
		ActiveConnections: active,
		KnownConnections:  known,
		WiFiEnabled:       enabled,
		AirplaneMode:      bluetoothSoftBlocked(b.rfkillClass) && !enabled,
		Connectivity:      maxConnectivity(states),
		Scanning:          scanning,
	}, nil
}

func (b *iwdBridge) orderedNetworks(ctx context.Context, station dbus.ObjectPath) ([]orderedNetwork, error) {
	call := b.conn.Object(iwdService, station).CallWithContext(ctx, iwdStationIface+".GetOrderedNetworks", 0)
	var ordered []orderedNetwork
	if err := call.Store(&ordered); err != nil {
		return nil, err
	}
	return ordered, nil
}

func (b *iwdBridge) isStation(path dbus.ObjectPath) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.stations[path]
	return ok
}

func (b *iwdBridge) devicePaths() []dbus.ObjectPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	paths := make([]dbus.ObjectPath, 0, len(b.devices))
	for path := range b.devices {
		paths = append(paths, path)
	}
	return paths
}

func (b *iwdBridge) stationPaths() []dbus.ObjectPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	paths := make([]dbus.ObjectPath, 0, len(b.stations))
	for path := range b.stations {
		paths = append(paths, path)
	}
	return paths
}

// watch subscribes to property changes and to object churn. Both feed
// the same signal channel.
func (b *iwdBridge) watch() (<-chan *dbus.Signal, error) {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(iwdService),
		dbus.WithMatchInterface(dbusx.PropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, err
	}
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(iwdService),
		dbus.WithMatchInterface(dbusx.ObjectManagerIface),
	); err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	b.conn.Signal(signals)
	return signals, nil
}

func (b *iwdBridge) translate(ctx context.Context, sig *dbus.Signal) ([]Event, error) {
	switch sig.Name {
	case dbusx.ObjectManagerIface + ".InterfacesAdded", dbusx.ObjectManagerIface + ".InterfacesRemoved":
		data, err := b.snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return []Event{
			NewWirelessDeviceEvent(data.WiFiPresent, data.AccessPoints),
			NewActiveConnectionsEvent(data.ActiveConnections),
			NewKnownConnectionsEvent(data.KnownConnections),
		}, nil
	}

	iface, changed, ok := dbusx.ChangedProperties(sig)
	if !ok {
		return nil, nil
	}

	switch iface {
	case iwdDeviceIface:
		if v, ok := changed["Powered"]; ok {
			if powered, ok := v.Value().(bool); ok {
				return []Event{NewWiFiEnabledEvent(powered)}, nil
			}
		}
		return nil, nil

	case iwdStationIface:
		return b.translateStation(ctx, sig.Path, changed)

	case iwdNetworkIface:
		if _, ok := changed["Connected"]; !ok {
			return nil, nil
		}
		data, err := b.snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return []Event{
			NewActiveConnectionsEvent(data.ActiveConnections),
			NewKnownConnectionsEvent(data.KnownConnections),
		}, nil
	}

	return nil, nil
}

// translateStation reacts to one station's property changes. A scan
// that just finished reports as a wireless device event so the
// scanning flag downstream clears together with the fresh list.
func (b *iwdBridge) translateStation(ctx context.Context, path dbus.ObjectPath, changed map[string]dbus.Variant) ([]Event, error) {
	if !b.isStation(path) {
		return nil, nil
	}

	var events []Event

	if v, ok := changed["Scanning"]; ok {
		if on, ok := v.Value().(bool); ok {
			if on {
				events = append(events, NewScanningEvent())
			} else {
				data, err := b.snapshot(ctx)
				if err != nil {
					return nil, err
				}
				events = append(events, NewWirelessDeviceEvent(data.WiFiPresent, data.AccessPoints))
			}
		}
	}

	_, stateChanged := changed["State"]
	_, connectedChanged := changed["ConnectedNetwork"]
	if stateChanged || connectedChanged {
		data, err := b.snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if stateChanged {
			events = append(events, NewConnectivityEvent(data.Connectivity))
		}
		events = append(events, NewActiveConnectionsEvent(data.ActiveConnections))
	}

	return events, nil
}

func (b *iwdBridge) apply(ctx context.Context, cmd BackendCommand) ([]Event, error) {
	switch cmd.Kind {
	case BackendSetWiFi:
		return b.applyPowered(ctx, cmd.Enable, NewWiFiEnabledEvent)
	case BackendSetAirplaneMode:
		return b.applyAirplaneMode(ctx, cmd.Enable)
	case BackendScan:
		return b.applyScan(ctx)
	case BackendConnect:
		return b.applyConnect(ctx, cmd.AccessPoint)
	case BackendSetVPN:
		return []Event{NewKnownConnectionsEvent(b.requeryKnown(ctx))}, ErrVPNUnsupported
	}
	return nil, nil
}

// applyPowered flips every device radio, reporting through wrap so the
// wifi and airplane paths share the revert-on-failure shape.
func (b *iwdBridge) applyPowered(ctx context.Context, enable bool, wrap func(bool) Event) ([]Event, error) {
	var firstErr error
	for _, device := range b.devicePaths() {
		if err := dbusx.SetProp(ctx, b.conn.Object(iwdService, device), iwdDeviceIface, "Powered", enable); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("set powered: %w", err)
		}
	}
	if firstErr != nil {
		return []Event{wrap(!enable)}, firstErr
	}
	return []Event{wrap(enable)}, nil
}

func (b *iwdBridge) applyAirplaneMode(ctx context.Context, enable bool) ([]Event, error) {
	arg := "unblock"
	if enable {
		arg = "block"
	}
	// The bluetooth block is best effort.
	_ = exec.CommandContext(ctx, b.rfkill, arg, "bluetooth").Run()

	events, err := b.applyPowered(ctx, !enable, func(powered bool) Event {
		return NewAirplaneModeEvent(!powered)
	})
	return events, err
}

func (b *iwdBridge) applyScan(ctx context.Context) ([]Event, error) {
	var firstErr error
	for _, station := range b.stationPaths() {
		call := b.conn.Object(iwdService, station).CallWithContext(ctx, iwdStationIface+".Scan", 0)
		if call.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("scan: %w", call.Err)
		}
	}
	return []Event{NewScanningEvent()}, firstErr
}

// applyConnect asks the network to connect. Credentials are handled by
// the iwd agent, so a password supplied upstream is not forwarded.
func (b *iwdBridge) applyConnect(ctx context.Context, ap AccessPoint) ([]Event, error) {
	call := b.conn.Object(iwdService, ap.Path).CallWithContext(ctx, iwdNetworkIface+".Connect", 0)

	var err error
	if call.Err != nil {
		err = fmt.Errorf("connect: %w", call.Err)
	}
	return []Event{NewKnownConnectionsEvent(b.requeryKnown(ctx))}, err
}

func (b *iwdBridge) requeryKnown(ctx context.Context) []KnownConnection {
	data, err := b.snapshot(ctx)
	if err != nil {
		return nil
	}
	return data.KnownConnections
}
