// Package privacy tracks applications holding privacy-sensitive
// resources: PipeWire capture streams and the webcam device.
//
// The package follows the standard service shape minus commands.
// Privacy is observation only, so the Service handle carries no
// command channel and the backend exposes no mutations.
package privacy

// Media classifies a capture node.
type Media int32

const (
	// MediaVideo is a video capture stream, typically screen sharing.
	MediaVideo Media = iota

	// MediaAudio is an audio capture stream, typically the microphone.
	MediaAudio
)

// String returns a human-readable media name.
func (m Media) String() string {
	switch m {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Node is one application node holding a capture stream.
type Node struct {
	ID    uint32
	Media Media
}

// EventKind discriminates backend events.
type EventKind int32

const (
	EventAddNode EventKind = iota
	EventRemoveNode
	EventWebcamOpen
	EventWebcamClose
)

// String returns a human-readable event name.
func (k EventKind) String() string {
	switch k {
	case EventAddNode:
		return "add_node"
	case EventRemoveNode:
		return "remove_node"
	case EventWebcamOpen:
		return "webcam_open"
	case EventWebcamClose:
		return "webcam_close"
	default:
		return "unknown"
	}
}

// Event is one backend notification. Node is set on add events, ID on
// remove events; the webcam events carry no payload.
type Event struct {
	Kind EventKind
	Node Node
	ID   uint32
}

// NewAddNodeEvent reports a new capture node.
func NewAddNodeEvent(node Node) Event {
	return Event{Kind: EventAddNode, Node: node}
}

// NewRemoveNodeEvent reports a capture node gone.
func NewRemoveNodeEvent(id uint32) Event {
	return Event{Kind: EventRemoveNode, ID: id}
}

// NewWebcamOpenEvent reports one more open handle on the webcam.
func NewWebcamOpenEvent() Event {
	return Event{Kind: EventWebcamOpen}
}

// NewWebcamCloseEvent reports one open handle on the webcam gone.
func NewWebcamCloseEvent() Event {
	return Event{Kind: EventWebcamClose}
}

// Data is the privacy snapshot: the capture nodes currently live and
// the number of open handles on the webcam device.
type Data struct {
	Nodes      []Node
	WebcamUses int
}

// NoAccess reports whether nothing privacy-sensitive is in use.
func (d Data) NoAccess() bool {
	return len(d.Nodes) == 0 && d.WebcamUses == 0
}

// MicrophoneAccess reports whether an audio capture node is live.
func (d Data) MicrophoneAccess() bool {
	for _, n := range d.Nodes {
		if n.Media == MediaAudio {
			return true
		}
	}
	return false
}

// ScreenshareAccess reports whether a video capture node is live.
func (d Data) ScreenshareAccess() bool {
	for _, n := range d.Nodes {
		if n.Media == MediaVideo {
			return true
		}
	}
	return false
}

// WebcamAccess reports whether the webcam device is held open.
func (d Data) WebcamAccess() bool {
	return d.WebcamUses > 0
}

// Update applies one backend event to the snapshot. The webcam count
// never drops below zero; a close without a matching open is the poll
// and the event feed disagreeing, not a real release.
func (d *Data) Update(event Event) {
	switch event.Kind {
	case EventAddNode:
		d.Nodes = append(d.Nodes, event.Node)
	case EventRemoveNode:
		kept := d.Nodes[:0]
		for _, n := range d.Nodes {
			if n.ID != event.ID {
				kept = append(kept, n)
			}
		}
		d.Nodes = kept
	case EventWebcamOpen:
		d.WebcamUses++
	case EventWebcamClose:
		d.WebcamUses = max(d.WebcamUses-1, 0)
	}
}
