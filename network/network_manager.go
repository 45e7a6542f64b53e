package network

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/zoobzio/bosun/dbusx"
)

const (
	nmService      = "org.freedesktop.NetworkManager"
	nmPath         = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmSettingsPath = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")

	nmIface            = "org.freedesktop.NetworkManager"
	nmDeviceIface      = "org.freedesktop.NetworkManager.Device"
	nmWirelessIface    = "org.freedesktop.NetworkManager.Device.Wireless"
	nmWiredIface       = "org.freedesktop.NetworkManager.Device.Wired"
	nmAccessPointIface = "org.freedesktop.NetworkManager.AccessPoint"
	nmActiveIface      = "org.freedesktop.NetworkManager.Connection.Active"
	nmSettingsIface    = "org.freedesktop.NetworkManager.Settings"
	nmConnectionIface  = "org.freedesktop.NetworkManager.Settings.Connection"
)

const (
	nmDeviceTypeEthernet  uint32 = 1
	nmDeviceTypeWiFi      uint32 = 2
	nmDeviceTypeWireGuard uint32 = 29
)

// networkManagerBridge drives org.freedesktop.NetworkManager. Signal
// dispatch is keyed by object path, so device and access point churn
// only needs the lookup tables refreshed, never a new bus match.
type networkManagerBridge struct {
	conn dbusx.Conn

	rfkill      string
	rfkillClass string

	mu       sync.Mutex
	apSSIDs  map[dbus.ObjectPath]string
	wireless map[dbus.ObjectPath]struct{}
}

func newNetworkManagerBridge(conn dbusx.Conn) *networkManagerBridge {
	return &networkManagerBridge{
		conn:        conn,
		rfkill:      rfkillPath,
		rfkillClass: rfkillClassDir,
		apSSIDs:     make(map[dbus.ObjectPath]string),
		wireless:    make(map[dbus.ObjectPath]struct{}),
	}
}

func (b *networkManagerBridge) choice() BackendChoice {
	return BackendNetworkManager
}

// snapshot doubles as the liveness probe: the first property fetch
// fails when NetworkManager is not on the bus.
func (b *networkManagerBridge) snapshot(ctx context.Context) (Data, error) {
	wireless, err := b.wirelessDevices(ctx)
	if err != nil {
		return Data{}, fmt.Errorf("list devices: %w", err)
	}

	enabled, err := b.wirelessEnabled(ctx)
	if err != nil {
		enabled = false
	}

	aps := b.accessPoints(ctx, wireless)

	active, err := b.activeConnections(ctx)
	if err != nil {
		return Data{}, fmt.Errorf("active connections: %w", err)
	}

	known, err := b.knownConnections(ctx, aps)
	if err != nil {
		return Data{}, fmt.Errorf("known connections: %w", err)
	}

	connectivity, err := b.connectivity(ctx)
	if err != nil {
		return Data{}, fmt.Errorf("connectivity: %w", err)
	}

	return Data{
		WiFiPresent:       len(wireless) > 0,
		AccessPoints:      aps,
		ActiveConnections: active,
		KnownConnections:  known,
		WiFiEnabled:       enabled,
		AirplaneMode:      bluetoothSoftBlocked(b.rfkillClass) && !enabled,
		Connectivity:      connectivity,
	}, nil
}

func (b *networkManagerBridge) wirelessEnabled(ctx context.Context) (bool, error) {
	return dbusx.GetProp[bool](ctx, b.conn.Object(nmService, nmPath), nmIface, "WirelessEnabled")
}

func (b *networkManagerBridge) connectivity(ctx context.Context) (ConnectivityState, error) {
	raw, err := dbusx.GetProp[uint32](ctx, b.conn.Object(nmService, nmPath), nmIface, "Connectivity")
	if err != nil {
		return ConnectivityUnknown, err
	}
	return connectivityFromNM(raw), nil
}

// wirelessDevices lists the wifi-capable device paths and refreshes
// the dispatch table used for device signals.
func (b *networkManagerBridge) wirelessDevices(ctx context.Context) ([]dbus.ObjectPath, error) {
	devices, err := dbusx.GetProp[[]dbus.ObjectPath](ctx, b.conn.Object(nmService, nmPath), nmIface, "Devices")
	if err != nil {
		return nil, err
	}

	var wireless []dbus.ObjectPath
	for _, device := range devices {
		kind, err := dbusx.GetProp[uint32](ctx, b.conn.Object(nmService, device), nmDeviceIface, "DeviceType")
		if err != nil || kind != nmDeviceTypeWiFi {
			continue
		}
		wireless = append(wireless, device)
	}

	b.mu.Lock()
	b.wireless = make(map[dbus.ObjectPath]struct{}, len(wireless))
	for _, device := range wireless {
		b.wireless[device] = struct{}{}
	}
	b.mu.Unlock()

	return wireless, nil
}

func (b *networkManagerBridge) wirelessPaths() []dbus.ObjectPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	paths := make([]dbus.ObjectPath, 0, len(b.wireless))
	for path := range b.wireless {
		paths = append(paths, path)
	}
	return paths
}

func (b *networkManagerBridge) isWireless(path dbus.ObjectPath) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.wireless[path]
	return ok
}

func (b *networkManagerBridge) ssidFor(path dbus.ObjectPath) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ssid, ok := b.apSSIDs[path]
	return ssid, ok
}

// accessPoints collects the visible access points across devices. A
// failing device contributes nothing; the dispatch table for strength
// signals is rebuilt from whatever survived.
func (b *networkManagerBridge) accessPoints(ctx context.Context, devices []dbus.ObjectPath) []AccessPoint {
	var aps []AccessPoint
	for _, device := range devices {
		list, err := b.deviceAccessPoints(ctx, device)
		if err != nil {
			continue
		}
		aps = append(aps, list...)
	}
	sortAccessPoints(aps)

	b.mu.Lock()
	b.apSSIDs = make(map[dbus.ObjectPath]string, len(aps))
	for _, ap := range aps {
		b.apSSIDs[ap.Path] = ap.SSID
	}
	b.mu.Unlock()

	return aps
}

// deviceAccessPoints lists one device's access points, deduplicated by
// SSID keeping the strongest. The scan request keeps the list fresh;
// its results arrive later through AccessPoints property changes.
func (b *networkManagerBridge) deviceAccessPoints(ctx context.Context, device dbus.ObjectPath) ([]AccessPoint, error) {
	obj := b.conn.Object(nmService, device)
	obj.CallWithContext(ctx, nmWirelessIface+".RequestScan", 0, map[string]dbus.Variant{})

	call := obj.CallWithContext(ctx, nmWirelessIface+".GetAccessPoints", 0)
	var paths []dbus.ObjectPath
	if err := call.Store(&paths); err != nil {
		return nil, err
	}

	state := DeviceStateUnknown
	if raw, err := dbusx.GetProp[uint32](ctx, obj, nmDeviceIface, "State"); err == nil {
		state = deviceStateFromNM(raw)
	}

	strongest := make(map[string]AccessPoint, len(paths))
	for _, path := range paths {
		ap, err := b.accessPoint(ctx, path, device, state)
		if err != nil {
			continue
		}
		if cur, ok := strongest[ap.SSID]; ok && cur.Strength > ap.Strength {
			continue
		}
		strongest[ap.SSID] = ap
	}

	aps := make([]AccessPoint, 0, len(strongest))
	for _, ap := range strongest {
		aps = append(aps, ap)
	}
	sortAccessPoints(aps)
	return aps, nil
}

func (b *networkManagerBridge) accessPoint(ctx context.Context, path, device dbus.ObjectPath, state DeviceState) (AccessPoint, error) {
	obj := b.conn.Object(nmService, path)

	ssid, err := dbusx.GetProp[[]byte](ctx, obj, nmAccessPointIface, "Ssid")
	if err != nil {
		return AccessPoint{}, err
	}
	strength, err := dbusx.GetProp[uint8](ctx, obj, nmAccessPointIface, "Strength")
	if err != nil {
		return AccessPoint{}, err
	}
	flags, _ := dbusx.GetProp[uint32](ctx, obj, nmAccessPointIface, "Flags")

	return AccessPoint{
		SSID:       string(ssid),
		Strength:   strength,
		State:      state,
		Public:     flags == 0,
		Path:       path,
		DevicePath: device,
	}, nil
}

// activeConnections summarizes the established connections, sorted
// VPN, wired, wireless.
func (b *networkManagerBridge) activeConnections(ctx context.Context) ([]ActiveConnection, error) {
	paths, err := dbusx.GetProp[[]dbus.ObjectPath](ctx, b.conn.Object(nmService, nmPath), nmIface, "ActiveConnections")
	if err != nil {
		return nil, err
	}

	conns := make([]ActiveConnection, 0, len(paths))
	for _, path := range paths {
		obj := b.conn.Object(nmService, path)

		if vpn, _ := dbusx.GetProp[bool](ctx, obj, nmActiveIface, "Vpn"); vpn {
			id, err := dbusx.GetProp[string](ctx, obj, nmActiveIface, "Id")
			if err != nil {
				return nil, err
			}
			conns = append(conns, ActiveConnection{Kind: ConnectionVPN, Name: id, Path: path})
			continue
		}

		devices, _ := dbusx.GetProp[[]dbus.ObjectPath](ctx, obj, nmActiveIface, "Devices")
		for _, device := range devices {
			entry, ok, err := b.deviceConnection(ctx, obj, path, device)
			if err != nil {
				return nil, err
			}
			if ok {
				conns = append(conns, entry)
			}
		}
	}

	sortActiveConnections(conns)
	return conns, nil
}

// deviceConnection classifies one device of an active connection.
// Devices of uninteresting types report ok=false.
func (b *networkManagerBridge) deviceConnection(ctx context.Context, active dbusx.Object, path, device dbus.ObjectPath) (ActiveConnection, bool, error) {
	dev := b.conn.Object(nmService, device)
	kind, err := dbusx.GetProp[uint32](ctx, dev, nmDeviceIface, "DeviceType")
	if err != nil {
		return ActiveConnection{}, false, nil
	}

	switch kind {
	case nmDeviceTypeEthernet:
		id, err := dbusx.GetProp[string](ctx, active, nmActiveIface, "Id")
		if err != nil {
			return ActiveConnection{}, false, err
		}
		speed, err := dbusx.GetProp[uint32](ctx, dev, nmWiredIface, "Speed")
		if err != nil {
			return ActiveConnection{}, false, err
		}
		return ActiveConnection{Kind: ConnectionWired, Name: id, Speed: speed}, true, nil

	case nmDeviceTypeWiFi:
		ap, err := dbusx.GetProp[dbus.ObjectPath](ctx, dev, nmWirelessIface, "ActiveAccessPoint")
		if err != nil || ap == "/" {
			return ActiveConnection{}, false, nil
		}
		apObj := b.conn.Object(nmService, ap)
		ssid, err := dbusx.GetProp[[]byte](ctx, apObj, nmAccessPointIface, "Ssid")
		if err != nil {
			return ActiveConnection{}, false, nil
		}
		id, err := dbusx.GetProp[string](ctx, active, nmActiveIface, "Id")
		if err != nil {
			return ActiveConnection{}, false, err
		}
		strength, _ := dbusx.GetProp[uint8](ctx, apObj, nmAccessPointIface, "Strength")
		return ActiveConnection{Kind: ConnectionWiFi, ID: id, Name: string(ssid), Strength: strength}, true, nil

	case nmDeviceTypeWireGuard:
		id, err := dbusx.GetProp[string](ctx, active, nmActiveIface, "Id")
		if err != nil {
			return ActiveConnection{}, false, err
		}
		return ActiveConnection{Kind: ConnectionVPN, Name: id, Path: path}, true, nil
	}

	return ActiveConnection{}, false, nil
}

// knownConnections merges the stored profiles with the visible access
// points: an access point is known when a wireless profile carries its
// SSID, and every stored VPN profile is known.
func (b *networkManagerBridge) knownConnections(ctx context.Context, aps []AccessPoint) ([]KnownConnection, error) {
	settings := b.conn.Object(nmService, nmSettingsPath)
	call := settings.CallWithContext(ctx, nmSettingsIface+".ListConnections", 0)
	var paths []dbus.ObjectPath
	if err := call.Store(&paths); err != nil {
		return nil, err
	}

	var ssids []string
	var vpns []VPN
	for _, path := range paths {
		profile, err := b.profileSettings(ctx, path)
		if err != nil {
			continue
		}

		name := profileID(profile)
		if name == "" {
			continue
		}
		switch {
		case profile["802-11-wireless"] != nil:
			ssids = append(ssids, name)
		case profile["vpn"] != nil:
			vpns = append(vpns, VPN{Name: name, Path: path})
		}
	}

	known := make([]KnownConnection, 0, len(aps)+len(vpns))
	for _, ap := range aps {
		for _, ssid := range ssids {
			if ap.SSID == ssid {
				known = append(known, NewKnownWiFi(ap))
				break
			}
		}
	}
	for _, vpn := range vpns {
		known = append(known, NewKnownVPN(vpn))
	}
	return known, nil
}

func (b *networkManagerBridge) profileSettings(ctx context.Context, path dbus.ObjectPath) (map[string]map[string]dbus.Variant, error) {
	call := b.conn.Object(nmService, path).CallWithContext(ctx, nmConnectionIface+".GetSettings", 0)
	var profile map[string]map[string]dbus.Variant
	if err := call.Store(&profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// profileID extracts connection.id from a settings profile.
func profileID(profile map[string]map[string]dbus.Variant) string {
	conn, ok := profile["connection"]
	if !ok {
		return ""
	}
	id, _ := conn["id"].Value().(string)
	return id
}

// watch subscribes to every PropertiesChanged the NetworkManager
// service emits. Dispatch happens per object path in translate, so one
// broad match outlives device and access point churn.
func (b *networkManagerBridge) watch() (<-chan *dbus.Signal, error) {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(nmService),
		dbus.WithMatchInterface(dbusx.PropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	b.conn.Signal(signals)
	return signals, nil
}

func (b *networkManagerBridge) translate(ctx context.Context, sig *dbus.Signal) ([]Event, error) {
	iface, changed, ok := dbusx.ChangedProperties(sig)
	if !ok {
		return nil, nil
	}

	switch iface {
	case nmIface:
		return b.translateManager(ctx, changed)
	case nmDeviceIface:
		return b.translateDevice(ctx, sig.Path, changed)
	case nmWirelessIface:
		return b.translateWireless(ctx, changed)
	case nmAccessPointIface:
		return b.translateAccessPoint(sig.Path, changed), nil
	case nmSettingsIface:
		return b.translateSettings(ctx, changed)
	}
	return nil, nil
}

func (b *networkManagerBridge) translateManager(ctx context.Context, changed map[string]dbus.Variant) ([]Event, error) {
	var events []Event

	if v, ok := changed["WirelessEnabled"]; ok {
		if enabled, ok := v.Value().(bool); ok {
			events = append(events, NewWiFiEnabledEvent(enabled))
		}
	}
	if v, ok := changed["Connectivity"]; ok {
		if raw, ok := v.Value().(uint32); ok {
			events = append(events, NewConnectivityEvent(connectivityFromNM(raw)))
		}
	}
	if _, ok := changed["ActiveConnections"]; ok {
		active, err := b.activeConnections(ctx)
		if err != nil {
			return nil, err
		}
		events = append(events, NewActiveConnectionsEvent(active))
	}
	if _, ok := changed["Devices"]; ok {
		refreshed, err := b.refreshDevices(ctx)
		if err != nil {
			return nil, err
		}
		events = append(events, refreshed...)
	}

	return events, nil
}

// refreshDevices requeries the wireless device set and reports it only
// when it actually changed.
func (b *networkManagerBridge) refreshDevices(ctx context.Context) ([]Event, error) {
	previous := b.wirelessPaths()
	devices, err := b.wirelessDevices(ctx)
	if err != nil {
		return nil, err
	}
	if sameDeviceSet(previous, devices) {
		return nil, nil
	}
	aps := b.accessPoints(ctx, devices)
	return []Event{NewWirelessDeviceEvent(len(devices) > 0, aps)}, nil
}

func sameDeviceSet(previous, current []dbus.ObjectPath) bool {
	if len(previous) != len(current) {
		return false
	}
	seen := make(map[dbus.ObjectPath]struct{}, len(previous))
	for _, path := range previous {
		seen[path] = struct{}{}
	}
	for _, path := range current {
		if _, ok := seen[path]; !ok {
			return false
		}
	}
	return true
}

// translateDevice watches wireless devices entering NeedAuth. The
// activation still exists while the device waits for credentials, so
// its Id names the SSID to prompt for.
func (b *networkManagerBridge) translateDevice(ctx context.Context, path dbus.ObjectPath, changed map[string]dbus.Variant) ([]Event, error) {
	v, ok := changed["State"]
	if !ok || !b.isWireless(path) {
		return nil, nil
	}
	raw, ok := v.Value().(uint32)
	if !ok || deviceStateFromNM(raw) != DeviceStateNeedAuth {
		return nil, nil
	}

	active, err := dbusx.GetProp[dbus.ObjectPath](ctx, b.conn.Object(nmService, path), nmDeviceIface, "ActiveConnection")
	if err != nil || active == "/" {
		return nil, nil
	}
	id, err := dbusx.GetProp[string](ctx, b.conn.Object(nmService, active), nmActiveIface, "Id")
	if err != nil || id == "" {
		return nil, nil
	}
	return []Event{NewPasswordRequestedEvent(id)}, nil
}

func (b *networkManagerBridge) translateWireless(ctx context.Context, changed map[string]dbus.Variant) ([]Event, error) {
	_, apsChanged := changed["AccessPoints"]
	_, scanFinished := changed["LastScan"]
	if !apsChanged && !scanFinished {
		return nil, nil
	}
	aps := b.accessPoints(ctx, b.wirelessPaths())
	return []Event{NewAccessPointsEvent(aps)}, nil
}

func (b *networkManagerBridge) translateAccessPoint(path dbus.ObjectPath, changed map[string]dbus.Variant) []Event {
	v, ok := changed["Strength"]
	if !ok {
		return nil
	}
	strength, ok := v.Value().(uint8)
	if !ok {
		return nil
	}
	ssid, ok := b.ssidFor(path)
	if !ok {
		return nil
	}
	return []Event{NewStrengthEvent(ssid, strength)}
}

func (b *networkManagerBridge) translateSettings(ctx context.Context, changed map[string]dbus.Variant) ([]Event, error) {
	if _, ok := changed["Connections"]; !ok {
		return nil, nil
	}
	aps := b.accessPoints(ctx, b.wirelessPaths())
	known, err := b.knownConnections(ctx, aps)
	if err != nil {
		return nil, err
	}
	return []Event{NewKnownConnectionsEvent(known)}, nil
}

func (b *networkManagerBridge) apply(ctx context.Context, cmd BackendCommand) ([]Event, error) {
	switch cmd.Kind {
	case BackendSetWiFi:
		return b.applyWiFi(ctx, cmd.Enable)
	case BackendSetAirplaneMode:
		return b.applyAirplaneMode(ctx, cmd.Enable)
	case BackendScan:
		return b.applyScan(ctx)
	case BackendConnect:
		return b.applyConnect(ctx, cmd.AccessPoint, cmd.Password)
	case BackendSetVPN:
		return b.applyVPN(ctx, cmd.Path, cmd.Enable)
	}
	return nil, nil
}

// applyWiFi flips the radio. The follow-up event reports the state the
// radio actually has, so a failed flip snaps the snapshot back.
func (b *networkManagerBridge) applyWiFi(ctx context.Context, enable bool) ([]Event, error) {
	if err := dbusx.SetProp(ctx, b.conn.Object(nmService, nmPath), nmIface, "WirelessEnabled", enable); err != nil {
		return []Event{NewWiFiEnabledEvent(!enable)}, fmt.Errorf("set wireless enabled: %w", err)
	}
	return []Event{NewWiFiEnabledEvent(enable)}, nil
}

func (b *networkManagerBridge) applyAirplaneMode(ctx context.Context, enable bool) ([]Event, error) {
	arg := "unblock"
	if enable {
		arg = "block"
	}
	// The bluetooth block is best effort.
	_ = exec.CommandContext(ctx, b.rfkill, arg, "bluetooth").Run()

	if err := dbusx.SetProp(ctx, b.conn.Object(nmService, nmPath), nmIface, "WirelessEnabled", !enable); err != nil {
		return []Event{NewAirplaneModeEvent(!enable)}, fmt.Errorf("set wireless enabled: %w", err)
	}
	return []Event{NewAirplaneModeEvent(enable)}, nil
}

func (b *networkManagerBridge) applyScan(ctx context.Context) ([]Event, error) {
	var firstErr error
	for _, device := range b.wirelessPaths() {
		call := b.conn.Object(nmService, device).CallWithContext(ctx, nmWirelessIface+".RequestScan", 0, map[string]dbus.Variant{})
		if call.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("request scan: %w", call.Err)
		}
	}
	return []Event{NewScanningEvent()}, firstErr
}

func (b *networkManagerBridge) applyConnect(ctx context.Context, ap AccessPoint, password string) ([]Event, error) {
	err := b.connectAccessPoint(ctx, ap, password)
	return []Event{NewKnownConnectionsEvent(b.requeryKnown(ctx))}, err
}

func (b *networkManagerBridge) applyVPN(ctx context.Context, path dbus.ObjectPath, enable bool) ([]Event, error) {
	root := b.conn.Object(nmService, nmPath)

	var err error
	if enable {
		call := root.CallWithContext(ctx, nmIface+".ActivateConnection", 0, path, dbus.ObjectPath("/"), dbus.ObjectPath("/"))
		if call.Err != nil {
			err = fmt.Errorf("activate vpn: %w", call.Err)
		}
	} else {
		call := root.CallWithContext(ctx, nmIface+".DeactivateConnection", 0, path)
		if call.Err != nil {
			err = fmt.Errorf("deactivate vpn: %w", call.Err)
		}
	}

	return []Event{NewKnownConnectionsEvent(b.requeryKnown(ctx))}, err
}

// requeryKnown refreshes the known connection list after a connect or
// VPN change, falling back to an empty list on failure.
func (b *networkManagerBridge) requeryKnown(ctx context.Context) []KnownConnection {
	aps := b.accessPoints(ctx, b.wirelessPaths())
	known, err := b.knownConnections(ctx, aps)
	if err != nil {
		return nil
	}
	return known
}

// connectAccessPoint activates the stored profile matching the SSID or
// creates one on the fly.
func (b *networkManagerBridge) connectAccessPoint(ctx context.Context, ap AccessPoint, password string) error {
	profile, err := b.findProfile(ctx, ap.SSID)
	if err != nil {
		return err
	}

	root := b.conn.Object(nmService, nmPath)

	if profile != "" {
		if password != "" {
			if err := b.storePassword(ctx, profile, password); err != nil {
				return err
			}
		}
		call := root.CallWithContext(ctx, nmIface+".ActivateConnection", 0, profile, ap.DevicePath, dbus.ObjectPath("/"))
		if call.Err != nil {
			return fmt.Errorf("activate connection: %w", call.Err)
		}
		return nil
	}

	settings := map[string]map[string]dbus.Variant{
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ap.SSID)),
		},
		"connection": {
			"id":   dbus.MakeVariant(ap.SSID),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
	}
	if password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"psk":      dbus.MakeVariant(password),
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
		}
	}

	call := root.CallWithContext(ctx, nmIface+".AddAndActivateConnection", 0, settings, ap.DevicePath, ap.Path)
	if call.Err != nil {
		return fmt.Errorf("add and activate connection: %w", call.Err)
	}
	return nil
}

// findProfile returns the stored profile whose id matches name, or ""
// when none exists.
func (b *networkManagerBridge) findProfile(ctx context.Context, name string) (dbus.ObjectPath, error) {
	call := b.conn.Object(nmService, nmSettingsPath).CallWithContext(ctx, nmSettingsIface+".ListConnections", 0)
	var paths []dbus.ObjectPath
	if err := call.Store(&paths); err != nil {
		return "", fmt.Errorf("list connections: %w", err)
	}

	for _, path := range paths {
		profile, err := b.profileSettings(ctx, path)
		if err != nil {
			continue
		}
		if profileID(profile) == name {
			return path, nil
		}
	}
	return "", nil
}

// storePassword rewrites the wireless security psk on an existing
// profile. Profiles without a security section stay untouched.
func (b *networkManagerBridge) storePassword(ctx context.Context, profile dbus.ObjectPath, password string) error {
	obj := b.conn.Object(nmService, profile)

	settings, err := b.profileSettings(ctx, profile)
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	security, ok := settings["802-11-wireless-security"]
	if !ok {
		return nil
	}
	security["psk"] = dbus.MakeVariant(password)

	if call := obj.CallWithContext(ctx, nmConnectionIface+".Update", 0, settings); call.Err != nil {
		return fmt.Errorf("update settings: %w", call.Err)
	}
	return nil
}
