// Package mpris tracks the MPRIS media players on the session bus
// and dispatches playback and volume commands to them.
//
// The package follows the standard service shape: a Data snapshot
// updated by backend events, a Service handle resolving commands
// against that snapshot, and a Backend bridging the players over the
// session bus.
package mpris

import (
	"sort"
	"strings"
)

// PlaybackStatus is the playback state a player reports.
type PlaybackStatus int32

const (
	// StatusPlaying means the player is actively playing media.
	StatusPlaying PlaybackStatus = iota

	// StatusPaused means playback is paused.
	StatusPaused

	// StatusStopped means playback is stopped.
	StatusStopped
)

// String returns a human-readable status name.
func (s PlaybackStatus) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ParsePlaybackStatus maps the wire strings. Unrecognized values read
// as playing.
func ParsePlaybackStatus(s string) PlaybackStatus {
	switch s {
	case "Paused":
		return StatusPaused
	case "Stopped":
		return StatusStopped
	}
	return StatusPlaying
}

// Metadata is the track information a player exposes. Zero fields
// mean the player did not report them.
type Metadata struct {
	Artists []string
	Title   string
}

// String renders the track label: artists and title joined when both
// are present, whichever exists otherwise.
func (m Metadata) String() string {
	artists := strings.Join(m.Artists, ", ")
	switch {
	case artists == "":
		return m.Title
	case m.Title == "":
		return artists
	}
	return artists + " - " + m.Title
}

// Equal reports whether two metadata values match.
func (m Metadata) Equal(o Metadata) bool {
	if m.Title != o.Title || len(m.Artists) != len(o.Artists) {
		return false
	}
	for i := range m.Artists {
		if m.Artists[i] != o.Artists[i] {
			return false
		}
	}
	return true
}

// Player is one MPRIS player on the bus. Volume is a percentage and
// meaningful only while HasVolume is set; players without volume
// control report none.
type Player struct {
	Name      string
	Metadata  Metadata
	Volume    float64
	HasVolume bool
	State     PlaybackStatus
}

// sortPlayers orders by bus name for stable refreshes.
func sortPlayers(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Name < players[j].Name
	})
}

// EventKind discriminates backend events.
type EventKind int32

const (
	// EventPlayers replaces the whole player set.
	EventPlayers EventKind = iota

	// EventMetadata replaces one player's track information.
	EventMetadata

	// EventVolume replaces one player's volume.
	EventVolume

	// EventState replaces one player's playback state.
	EventState
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventPlayers:
		return "players"
	case EventMetadata:
		return "metadata"
	case EventVolume:
		return "volume"
	case EventState:
		return "state"
	default:
		return "unknown"
	}
}

// Event is one backend notification. Player names the target on the
// single-player kinds.
type Event struct {
	Kind      EventKind
	Players   []Player
	Player    string
	Metadata  Metadata
	Volume    float64
	HasVolume bool
	State     PlaybackStatus
}

// NewPlayersEvent replaces the whole player set.
func NewPlayersEvent(players []Player) Event {
	return Event{Kind: EventPlayers, Players: players}
}

// NewMetadataEvent replaces name's track information.
func NewMetadataEvent(name string, metadata Metadata) Event {
	return Event{Kind: EventMetadata, Player: name, Metadata: metadata}
}

// NewVolumeEvent replaces name's volume. A player that stopped
// reporting volume sends has false.
func NewVolumeEvent(name string, volume float64, has bool) Event {
	return Event{Kind: EventVolume, Player: name, Volume: volume, HasVolume: has}
}

// NewStateEvent replaces name's playback state.
func NewStateEvent(name string, state PlaybackStatus) Event {
	return Event{Kind: EventState, Player: name, State: state}
}

// Data is the cached player set.
type Data struct {
	Players []Player
}

// Update applies one backend event. Single-player events for names
// not in the set are dropped; the refresh that removed the player
// already carried the authoritative list.
func (d *Data) Update(event Event) {
	switch event.Kind {
	case EventPlayers:
		d.Players = event.Players
	case EventMetadata:
		if p := d.find(event.Player); p != nil {
			p.Metadata = event.Metadata
		}
	case EventVolume:
		if p := d.find(event.Player); p != nil {
			p.Volume = event.Volume
			p.HasVolume = event.HasVolume
		}
	case EventState:
		if p := d.find(event.Player); p != nil {
			p.State = event.State
		}
	}
}

func (d *Data) find(name string) *Player {
	for i := range d.Players {
		if d.Players[i].Name == name {
			return &d.Players[i]
		}
	}
	return nil
}
