// Package bluetooth tracks the BlueZ adapter and its paired devices
// and dispatches power and connection commands.
//
// The package follows the standard service shape: a Data snapshot
// updated by backend events, a Service handle resolving commands
// against that snapshot, and a Backend bridging the daemon over the
// system bus.
package bluetooth

import (
	"sort"

	"github.com/godbus/dbus/v5"
)

// State is the adapter state.
type State int32

const (
	// StateUnavailable means no adapter is present.
	StateUnavailable State = iota

	// StateActive means the adapter is powered.
	StateActive

	// StateInactive means the adapter is present but powered off.
	StateInactive
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnavailable:
		return "unavailable"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// stateForPowered maps the adapter power flag to a State. Adapter
// absence is decided elsewhere.
func stateForPowered(powered bool) State {
	if powered {
		return StateActive
	}
	return StateInactive
}

// Device is one paired device. Battery is meaningful only while
// HasBattery is set; BlueZ exports the battery interface only for
// connected devices that report charge.
type Device struct {
	Name       string
	Battery    uint8
	HasBattery bool
	Connected  bool
	Path       dbus.ObjectPath
}

// sortDevices orders by name, then path for stable duplicates.
func sortDevices(devices []Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].Path < devices[j].Path
	})
}

// EventKind discriminates backend events.
type EventKind int32

const (
	// EventState replaces the adapter state.
	EventState EventKind = iota

	// EventDevices replaces the paired device list.
	EventDevices
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventDevices:
		return "devices"
	default:
		return "unknown"
	}
}

// Event is one backend notification.
type Event struct {
	Kind    EventKind
	State   State
	Devices []Device
}

// NewStateEvent replaces the adapter state.
func NewStateEvent(state State) Event {
	return Event{Kind: EventState, State: state}
}

// NewDevicesEvent replaces the paired device list.
func NewDevicesEvent(devices []Device) Event {
	return Event{Kind: EventDevices, Devices: devices}
}

// Data is the cached bluetooth state.
type Data struct {
	State   State
	Devices []Device
}

// Update applies one backend event.
func (d *Data) Update(event Event) {
	switch event.Kind {
	case EventState:
		d.State = event.State
	case EventDevices:
		d.Devices = event.Devices
	}
}
