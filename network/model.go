// Package network tracks connectivity through the system bus.
// NetworkManager is the primary backend; iwd takes over when
// NetworkManager is not on the bus.
package network

import (
	"sort"

	"github.com/godbus/dbus/v5"
)

// ConnectivityState ranks overall network reachability. Values follow
// NetworkManager's connectivity ordering, so a higher value means a
// more useful link.
type ConnectivityState int32

const (
	ConnectivityUnknown ConnectivityState = iota
	ConnectivityNone
	ConnectivityPortal
	ConnectivityLoss
	ConnectivityFull
)

func (s ConnectivityState) String() string {
	switch s {
	case ConnectivityNone:
		return "none"
	case ConnectivityPortal:
		return "portal"
	case ConnectivityLoss:
		return "loss"
	case ConnectivityFull:
		return "full"
	default:
		return "unknown"
	}
}

// connectivityFromNM maps the org.freedesktop.NetworkManager
// Connectivity property.
func connectivityFromNM(v uint32) ConnectivityState {
	if v >= 1 && v <= 4 {
		return ConnectivityState(v)
	}
	return ConnectivityUnknown
}

// connectivityFromIwd maps a net.connman.iwd station state string.
func connectivityFromIwd(state string) ConnectivityState {
	switch state {
	case "inactive", "disconnected":
		return ConnectivityNone
	case "portal":
		return ConnectivityPortal
	case "failed":
		return ConnectivityLoss
	case "connected":
		return ConnectivityFull
	default:
		return ConnectivityUnknown
	}
}

// maxConnectivity collapses per-adapter states into the most useful
// one.
func maxConnectivity(states []ConnectivityState) ConnectivityState {
	state := ConnectivityUnknown
	for _, s := range states {
		if s > state {
			state = s
		}
	}
	return state
}

// DeviceState mirrors the NetworkManager device state machine.
type DeviceState int32

const (
	DeviceStateUnknown DeviceState = iota
	DeviceStateUnmanaged
	DeviceStateUnavailable
	DeviceStateDisconnected
	DeviceStatePrepare
	DeviceStateConfig
	DeviceStateNeedAuth
	DeviceStateIPConfig
	DeviceStateIPCheck
	DeviceStateSecondaries
	DeviceStateActivated
	DeviceStateDeactivating
	DeviceStateFailed
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateUnmanaged:
		return "unmanaged"
	case DeviceStateUnavailable:
		return "unavailable"
	case DeviceStateDisconnected:
		return "disconnected"
	case DeviceStatePrepare:
		return "prepare"
	case DeviceStateConfig:
		return "config"
	case DeviceStateNeedAuth:
		return "need_auth"
	case DeviceStateIPConfig:
		return "ip_config"
	case DeviceStateIPCheck:
		return "ip_check"
	case DeviceStateSecondaries:
		return "secondaries"
	case DeviceStateActivated:
		return "activated"
	case DeviceStateDeactivating:
		return "deactivating"
	case DeviceStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// deviceStateFromNM maps the org.freedesktop.NetworkManager.Device
// State property, which steps in tens.
func deviceStateFromNM(v uint32) DeviceState {
	if v >= 10 && v <= 120 && v%10 == 0 {
		return DeviceState(v / 10)
	}
	return DeviceStateUnknown
}

// AccessPoint is one visible wireless network, deduplicated by SSID.
type AccessPoint struct {
	SSID       string
	Strength   uint8
	State      DeviceState
	Public     bool
	Working    bool
	Path       dbus.ObjectPath
	DevicePath dbus.ObjectPath
}

// sortAccessPoints orders by descending signal strength.
func sortAccessPoints(aps []AccessPoint) {
	sort.SliceStable(aps, func(i, j int) bool {
		return aps[i].Strength > aps[j].Strength
	})
}

// accessPointIndex returns the position of the access point named
// ssid, or -1.
func accessPointIndex(aps []AccessPoint, ssid string) int {
	for i, ap := range aps {
		if ap.SSID == ssid {
			return i
		}
	}
	return -1
}

// VPN is a stored VPN profile.
type VPN struct {
	Name string
	Path dbus.ObjectPath
}

// KnownConnectionKind discriminates KnownConnection variants.
type KnownConnectionKind int32

const (
	KnownWiFi KnownConnectionKind = iota
	KnownVPN
)

// KnownConnection is a profile remembered by the backend: a visible
// access point with stored credentials, or a VPN.
type KnownConnection struct {
	Kind        KnownConnectionKind
	AccessPoint AccessPoint
	VPN         VPN
}

// NewKnownWiFi wraps an access point with a stored profile.
func NewKnownWiFi(ap AccessPoint) KnownConnection {
	return KnownConnection{Kind: KnownWiFi, AccessPoint: ap}
}

// NewKnownVPN wraps a stored VPN profile.
func NewKnownVPN(vpn VPN) KnownConnection {
	return KnownConnection{Kind: KnownVPN, VPN: vpn}
}

// ActiveConnectionKind discriminates ActiveConnection variants.
type ActiveConnectionKind int32

const (
	ConnectionWired ActiveConnectionKind = iota
	ConnectionWiFi
	ConnectionVPN
)

// ActiveConnection summarizes one established connection. Name carries
// the SSID for wireless entries and the profile name otherwise; ID is
// the profile identifier of wireless entries.
type ActiveConnection struct {
	Kind     ActiveConnectionKind
	ID       string
	Name     string
	Strength uint8
	Speed    uint32
	Path     dbus.ObjectPath
}

// sortActiveConnections orders VPNs first, then wired links, then
// wireless, alphabetically within each group.
func sortActiveConnections(conns []ActiveConnection) {
	rank := func(c ActiveConnection) int {
		switch c.Kind {
		case ConnectionVPN:
			return 0
		case ConnectionWired:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(conns, func(i, j int) bool {
		ri, rj := rank(conns[i]), rank(conns[j])
		if ri != rj {
			return ri < rj
		}
		return conns[i].Name < conns[j].Name
	})
}

// EventKind discriminates backend events.
type EventKind int32

const (
	EventWiFiEnabled EventKind = iota
	EventAirplaneMode
	EventConnectivity
	EventWirelessDevice
	EventAccessPoints
	EventActiveConnections
	EventKnownConnections
	EventStrength
	EventPasswordRequested
	EventScanning
)

func (k EventKind) String() string {
	switch k {
	case EventWiFiEnabled:
		return "wifi_enabled"
	case EventAirplaneMode:
		return "airplane_mode"
	case EventConnectivity:
		return "connectivity"
	case EventWirelessDevice:
		return "wireless_device"
	case EventAccessPoints:
		return "access_points"
	case EventActiveConnections:
		return "active_connections"
	case EventKnownConnections:
		return "known_connections"
	case EventStrength:
		return "strength"
	case EventPasswordRequested:
		return "password_requested"
	case EventScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// Event is one backend notification. Kind selects which fields carry
// meaning.
type Event struct {
	Kind              EventKind
	Enabled           bool
	Connectivity      ConnectivityState
	WiFiPresent       bool
	AccessPoints      []AccessPoint
	ActiveConnections []ActiveConnection
	KnownConnections  []KnownConnection
	SSID              string
	Strength          uint8
}

// NewWiFiEnabledEvent reports the radio switch state.
func NewWiFiEnabledEvent(enabled bool) Event {
	return Event{Kind: EventWiFiEnabled, Enabled: enabled}
}

// NewAirplaneModeEvent reports the airplane mode state.
func NewAirplaneModeEvent(enabled bool) Event {
	return Event{Kind: EventAirplaneMode, Enabled: enabled}
}

// NewConnectivityEvent reports overall reachability.
func NewConnectivityEvent(state ConnectivityState) Event {
	return Event{Kind: EventConnectivity, Connectivity: state}
}

// NewWirelessDeviceEvent reports adapter presence together with the
// visible access points. It also marks any running scan as finished.
func NewWirelessDeviceEvent(present bool, aps []AccessPoint) Event {
	return Event{Kind: EventWirelessDevice, WiFiPresent: present, AccessPoints: aps}
}

// NewAccessPointsEvent replaces the visible access point list.
func NewAccessPointsEvent(aps []AccessPoint) Event {
	return Event{Kind: EventAccessPoints, AccessPoints: aps}
}

// NewActiveConnectionsEvent replaces the active connection list.
func NewActiveConnectionsEvent(conns []ActiveConnection) Event {
	return Event{Kind: EventActiveConnections, ActiveConnections: conns}
}

// NewKnownConnectionsEvent replaces the known connection list.
func NewKnownConnectionsEvent(conns []KnownConnection) Event {
	return Event{Kind: EventKnownConnections, KnownConnections: conns}
}

// NewStrengthEvent reports a signal strength change for one SSID.
func NewStrengthEvent(ssid string, strength uint8) Event {
	return Event{Kind: EventStrength, SSID: ssid, Strength: strength}
}

// NewPasswordRequestedEvent asks the consumer to collect credentials
// for an SSID. It carries no state change.
func NewPasswordRequestedEvent(ssid string) Event {
	return Event{Kind: EventPasswordRequested, SSID: ssid}
}

// NewScanningEvent reports that a wireless scan is underway.
func NewScanningEvent() Event {
	return Event{Kind: EventScanning}
}

// Data is the cached network snapshot owned by the service.
type Data struct {
	WiFiPresent       bool
	AccessPoints      []AccessPoint
	ActiveConnections []ActiveConnection
	KnownConnections  []KnownConnection
	WiFiEnabled       bool
	AirplaneMode      bool
	Connectivity      ConnectivityState
	Scanning          bool
	LastError         string
}

// Update folds one backend event into the snapshot. Every event clears
// the recorded error, since the backend is evidently responsive again.
func (d *Data) Update(event Event) {
	d.LastError = ""
	switch event.Kind {
	case EventWiFiEnabled:
		d.WiFiEnabled = event.Enabled
	case EventAirplaneMode:
		d.AirplaneMode = event.Enabled
	case EventConnectivity:
		d.Connectivity = event.Connectivity
	case EventWirelessDevice:
		d.WiFiPresent = event.WiFiPresent
		d.Scanning = false
		d.AccessPoints = event.AccessPoints
	case EventAccessPoints:
		d.AccessPoints = event.AccessPoints
	case EventActiveConnections:
		d.ActiveConnections = event.ActiveConnections
	case EventKnownConnections:
		d.KnownConnections = event.KnownConnections
	case EventStrength:
		d.updateStrength(event.SSID, event.Strength)
	case EventScanning:
		d.Scanning = true
	case EventPasswordRequested:
	}
}

// updateStrength tracks a strength change on the access point and, if
// that SSID is the established wireless connection, on the connection
// entry as well.
func (d *Data) updateStrength(ssid string, strength uint8) {
	i := accessPointIndex(d.AccessPoints, ssid)
	if i < 0 {
		return
	}
	d.AccessPoints[i].Strength = strength

	for j := range d.ActiveConnections {
		if d.ActiveConnections[j].Name != ssid {
			continue
		}
		if d.ActiveConnections[j].Kind == ConnectionWiFi {
			d.ActiveConnections[j].Strength = strength
		}
		return
	}
}
