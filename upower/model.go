// Package upower tracks battery charge and the active power profile
// and dispatches profile changes through the power-profiles daemon.
//
// The package follows the standard service shape: a Data snapshot
// updated by backend events, a Service handle resolving commands
// against that snapshot, and a Backend bridging the daemons over the
// system bus.
package upower

import "time"

// State is the aggregate battery state.
type State int32

const (
	// StateFull means no battery is charging or discharging.
	StateFull State = iota

	// StateCharging means at least one battery is charging.
	StateCharging

	// StateDischarging means a battery is discharging and none
	// charge.
	StateDischarging
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateFull:
		return "full"
	case StateCharging:
		return "charging"
	case StateDischarging:
		return "discharging"
	default:
		return "unknown"
	}
}

// Battery is the aggregate over the power-supply batteries: capacity
// averaged, times summed, charging winning over discharging.
type Battery struct {
	Capacity    uint8
	State       State
	TimeToEmpty time.Duration
	TimeToFull  time.Duration
}

// PowerProfile is the platform power profile.
type PowerProfile int32

const (
	// ProfileBalanced is the default daemon profile.
	ProfileBalanced PowerProfile = iota

	// ProfilePowerSaver favors battery life.
	ProfilePowerSaver

	// ProfilePerformance favors throughput.
	ProfilePerformance

	// ProfileUnknown means the daemon reported an unrecognized
	// profile or none at all.
	ProfileUnknown
)

// String returns the daemon's wire name for the profile.
func (p PowerProfile) String() string {
	switch p {
	case ProfileBalanced:
		return "balanced"
	case ProfilePowerSaver:
		return "power-saver"
	case ProfilePerformance:
		return "performance"
	default:
		return "unknown"
	}
}

// ParsePowerProfile maps the daemon's wire names.
func ParsePowerProfile(s string) PowerProfile {
	switch s {
	case "balanced":
		return ProfileBalanced
	case "power-saver":
		return ProfilePowerSaver
	case "performance":
		return ProfilePerformance
	}
	return ProfileUnknown
}

// EventKind discriminates backend events.
type EventKind int32

const (
	// EventBattery replaces the aggregate battery reading.
	EventBattery EventKind = iota

	// EventNoBattery clears the battery reading.
	EventNoBattery

	// EventProfile replaces the active power profile.
	EventProfile
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventBattery:
		return "battery"
	case EventNoBattery:
		return "no_battery"
	case EventProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Event is one backend notification.
type Event struct {
	Kind    EventKind
	Battery Battery
	Profile PowerProfile
}

// NewBatteryEvent replaces the aggregate battery reading.
func NewBatteryEvent(battery Battery) Event {
	return Event{Kind: EventBattery, Battery: battery}
}

// NewNoBatteryEvent clears the battery reading.
func NewNoBatteryEvent() Event {
	return Event{Kind: EventNoBattery}
}

// NewProfileEvent replaces the active power profile.
func NewProfileEvent(profile PowerProfile) Event {
	return Event{Kind: EventProfile, Profile: profile}
}

// Data is the cached power state. Battery is meaningful only while
// HasBattery is set; desktop machines commonly report none.
type Data struct {
	Battery    Battery
	HasBattery bool
	Profile    PowerProfile
}

// Update applies one backend event.
func (d *Data) Update(event Event) {
	switch event.Kind {
	case EventBattery:
		d.Battery = event.Battery
		d.HasBattery = true
	case EventNoBattery:
		d.Battery = Battery{}
		d.HasBattery = false
	case EventProfile:
		d.Profile = event.Profile
	}
}
