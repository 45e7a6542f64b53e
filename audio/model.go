// Package audio tracks PulseAudio sinks, sources, and server defaults
// and dispatches volume, mute, and default-device commands.
//
// The package follows the standard service shape: a Data snapshot
// updated by backend events, a Service handle resolving commands
// against that snapshot, and a Backend bridging the audio server. The
// default backend shells out to pactl.
package audio

// DeviceType enumerates known device port categories.
type DeviceType int32

const (
	DeviceSpeaker DeviceType = iota
	DeviceHeadphones
	DeviceHeadset
	DeviceHDMI
)

// String returns a human-readable category name.
func (t DeviceType) String() string {
	switch t {
	case DeviceSpeaker:
		return "speaker"
	case DeviceHeadphones:
		return "headphones"
	case DeviceHeadset:
		return "headset"
	case DeviceHDMI:
		return "hdmi"
	default:
		return "unknown"
	}
}

// DevicePort is a selectable port on a device.
type DevicePort struct {
	Name        string
	Description string
	Type        DeviceType
	Active      bool
}

// Device describes a single sink or source. Volume is normalized, 1.0
// meaning 100%.
type Device struct {
	Name        string
	Description string
	Volume      float64
	Muted       bool
	InUse       bool
	Ports       []DevicePort
}

// ServerInfo is the server-level metadata the service tracks.
type ServerInfo struct {
	DefaultSink   string
	DefaultSource string
}

// EventKind discriminates backend events.
type EventKind int32

const (
	// EventSinks replaces the sink list.
	EventSinks EventKind = iota

	// EventSources replaces the source list.
	EventSources

	// EventServerInfo replaces the server metadata.
	EventServerInfo
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventSinks:
		return "sinks"
	case EventSources:
		return "sources"
	case EventServerInfo:
		return "server_info"
	default:
		return "unknown"
	}
}

// Event is one incremental state change reported by a backend.
type Event struct {
	Kind       EventKind
	Sinks      []Device
	Sources    []Device
	ServerInfo ServerInfo
}

// NewSinksEvent builds a sink list replacement event.
func NewSinksEvent(sinks []Device) Event {
	return Event{Kind: EventSinks, Sinks: sinks}
}

// NewSourcesEvent builds a source list replacement event.
func NewSourcesEvent(sources []Device) Event {
	return Event{Kind: EventSources, Sources: sources}
}

// NewServerInfoEvent builds a server metadata event.
func NewServerInfoEvent(info ServerInfo) Event {
	return Event{Kind: EventServerInfo, ServerInfo: info}
}

// Data is the cached audio state. SinkVolume and SourceVolume are the
// volume percent of the default sink and source, zero when the device
// is muted or absent.
type Data struct {
	ServerInfo   ServerInfo
	Sinks        []Device
	Sources      []Device
	SinkVolume   int
	SourceVolume int
}

// Update applies one backend event. Replacing either device list or
// the server metadata recomputes the affected default-device volumes.
func (d *Data) Update(event Event) {
	switch event.Kind {
	case EventSinks:
		d.Sinks = event.Sinks
		d.SinkVolume = activeDeviceVolume(d.Sinks, d.ServerInfo.DefaultSink)
	case EventSources:
		d.Sources = event.Sources
		d.SourceVolume = activeDeviceVolume(d.Sources, d.ServerInfo.DefaultSource)
	case EventServerInfo:
		d.ServerInfo = event.ServerInfo
		d.SinkVolume = activeDeviceVolume(d.Sinks, d.ServerInfo.DefaultSink)
		d.SourceVolume = activeDeviceVolume(d.Sources, d.ServerInfo.DefaultSource)
	}
}

// activeDeviceVolume is the volume percent of the named device,
// requiring an active port. Muted and missing devices report zero.
func activeDeviceVolume(devices []Device, name string) int {
	for _, device := range devices {
		if device.Name != name {
			continue
		}
		for _, port := range device.Ports {
			if !port.Active {
				continue
			}
			if device.Muted {
				return 0
			}
			return int(device.Volume * 100)
		}
	}
	return 0
}

func deviceIndex(devices []Device, name string) int {
	for i := range devices {
		if devices[i].Name == name {
			return i
		}
	}
	return -1
}
