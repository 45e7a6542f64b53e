package mpris

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
	"github.com/zoobzio/bosun/dbusx"
)

const (
	dbusService = "org.freedesktop.DBus"
	dbusPath    = dbus.ObjectPath("/org/freedesktop/DBus")

	playerPrefix = "org.mpris.MediaPlayer2."
	playerPath   = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	playerIface  = "org.mpris.MediaPlayer2.Player"
)

// isPlayerName reports whether name is an MPRIS player bus name.
func isPlayerName(name string) bool {
	return strings.HasPrefix(name, playerPrefix)
}

// BackendCommandKind discriminates backend commands.
type BackendCommandKind int32

const (
	BackendPrevious BackendCommandKind = iota
	BackendPlayPause
	BackendNext
	BackendSetVolume
)

// BackendCommand is one fully resolved mutation for a player. Volume
// is the raw 0..1 value on the volume write.
type BackendCommand struct {
	Kind   BackendCommandKind
	Player string
	Volume float64
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

// Backend establishes player connections. Spawn builds a fresh
// connection per call; a connection never survives its own failure.
type Backend interface {
	Spawn(ctx context.Context) (Handle, error)
}

// DBusBackend drives the players over the session bus.
type DBusBackend struct {
	connect func() (dbusx.Conn, error)
}

var _ Backend = (*DBusBackend)(nil)

// NewDBusBackend returns a backend dialing the standard session bus.
func NewDBusBackend() *DBusBackend {
	return &DBusBackend{connect: dbusx.Session}
}

// Spawn dials the bus and takes the initial snapshot, which doubles
// as the liveness probe. The returned handle stays live until a
// signal translation fails or the bus connection drops.
func (b *DBusBackend) Spawn(ctx context.Context) (Handle, error) {
	conn, err := b.connect()
	if err != nil {
		return Handle{}, fmt.Errorf("mpris: connect session bus: %w", err)
	}

	pl := newPlayers(conn)
	data, err := pl.snapshot(ctx)
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("mpris: %w", err)
	}

	signals, err := pl.watch()
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("mpris: subscribe: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	events := make(chan bosun.BackendEvent[Event], eventBuffer)
	commands := make(chan BackendCommand, commandBuffer)

	var commandsDone sync.WaitGroup
	commandsDone.Add(1)
	go b.applyCommands(connCtx, pl, commands, events, &commandsDone)
	go b.pump(connCtx, cancel, conn, pl, signals, events, &commandsDone)

	return Handle{Data: data, Events: events, Commands: commands}, nil
}

// pump translates bus signals into service events. A translation
// failure ends the connection after the error event; cancel stops the
// command goroutine, and the events channel closes only after it is
// done so command follow-ups never race the close.
func (b *DBusBackend) pump(ctx context.Context, cancel context.CancelFunc, conn dbusx.Conn, pl *players, signals <-chan *dbus.Signal, events chan<- bosun.BackendEvent[Event], commandsDone *sync.WaitGroup) {
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
			translated, err := pl.translate(ctx, sig)
			if err != nil {
				b.emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("mpris: %w", err)})
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
func (b *DBusBackend) applyCommands(ctx context.Context, pl *players, commands <-chan BackendCommand, events chan<- bosun.BackendEvent[Event], done *sync.WaitGroup) {
	defer done.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			followups, err := pl.apply(ctx, cmd)
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

// players reads and mutates the player set through the session bus.
// The bridge keeps the last collected set so property churn can be
// diffed into per-player events.
type players struct {
	conn dbusx.Conn

	mu    sync.Mutex
	known []Player
}

func newPlayers(conn dbusx.Conn) *players {
	return &players{conn: conn}
}

// snapshot collects the player set into a Data.
func (p *players) snapshot(ctx context.Context) (Data, error) {
	list, err := p.collect(ctx)
	if err != nil {
		return Data{}, err
	}
	p.mu.Lock()
	p.known = list
	p.mu.Unlock()
	return Data{Players: list}, nil
}

// collect lists the MPRIS names on the bus and reads each player's
// properties.
func (p *players) collect(ctx context.Context) ([]Player, error) {
	names, err := p.names(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]Player, 0, len(names))
	for _, name := range names {
		list = append(list, p.fetch(ctx, name))
	}
	sortPlayers(list)
	return list, nil
}

func (p *players) names(ctx context.Context) ([]string, error) {
	call := p.conn.Object(dbusService, dbusPath).CallWithContext(ctx, dbusService+".ListNames", 0)
	var names []string
	if err := call.Store(&names); err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	var matched []string
	for _, name := range names {
		if isPlayerName(name) {
			matched = append(matched, name)
		}
	}
	return matched, nil
}

// fetch reads one player's properties. Each read fails independently;
// a property the player refuses keeps its zero value.
func (p *players) fetch(ctx context.Context, name string) Player {
	obj := p.conn.Object(name, playerPath)
	player := Player{Name: name}

	if metadata, err := dbusx.GetProp[map[string]dbus.Variant](ctx, obj, playerIface, "Metadata"); err == nil {
		player.Metadata = metadataFromProps(metadata)
	}
	if volume, err := dbusx.GetProp[float64](ctx, obj, playerIface, "Volume"); err == nil {
		player.Volume = volume * 100
		player.HasVolume = true
	}
	if status, err := dbusx.GetProp[string](ctx, obj, playerIface, "PlaybackStatus"); err == nil {
		player.State = ParsePlaybackStatus(status)
	}
	return player
}

// metadataFromProps extracts the track fields from an MPRIS metadata
// map.
func metadataFromProps(props map[string]dbus.Variant) Metadata {
	var m Metadata
	m.Artists, _ = dbusx.Value[[]string](props, "xesam:artist")
	m.Title, _ = dbusx.Value[string](props, "xesam:title")
	return m
}

// watch subscribes to name ownership churn and to player property
// changes. Both feed the same signal channel.
func (p *players) watch() (<-chan *dbus.Signal, error) {
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchSender(dbusService),
		dbus.WithMatchInterface(dbusService),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		return nil, err
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(playerPath),
		dbus.WithMatchInterface(dbusx.PropertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	p.conn.Signal(signals)
	return signals, nil
}

// translate turns one bus signal into service events. Ownership churn
// of a player name refreshes the whole set; player property changes
// requery the set and diff against the cache, which spares tracking
// the unique-name owner behind each signal.
func (p *players) translate(ctx context.Context, sig *dbus.Signal) ([]Event, error) {
	if sig.Name == dbusService+".NameOwnerChanged" {
		if len(sig.Body) < 1 {
			return nil, nil
		}
		name, ok := sig.Body[0].(string)
		if !ok || !isPlayerName(name) {
			return nil, nil
		}
		next, err := p.collect(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.known = next
		p.mu.Unlock()
		return []Event{NewPlayersEvent(next)}, nil
	}

	iface, _, ok := dbusx.ChangedProperties(sig)
	if !ok || iface != playerIface {
		return nil, nil
	}

	next, err := p.collect(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	events := diffPlayers(p.known, next)
	p.known = next
	p.mu.Unlock()
	return events, nil
}

// diffPlayers emits the field-level changes between two snapshots.
// Appearing and vanishing players are ownership churn and ride the
// full refresh, not the diff.
func diffPlayers(prev, next []Player) []Event {
	cached := make(map[string]Player, len(prev))
	for _, pl := range prev {
		cached[pl.Name] = pl
	}

	var events []Event
	for _, pl := range next {
		old, ok := cached[pl.Name]
		if !ok {
			continue
		}
		if !pl.Metadata.Equal(old.Metadata) {
			events = append(events, NewMetadataEvent(pl.Name, pl.Metadata))
		}
		if pl.Volume != old.Volume || pl.HasVolume != old.HasVolume {
			events = append(events, NewVolumeEvent(pl.Name, pl.Volume, pl.HasVolume))
		}
		if pl.State != old.State {
			events = append(events, NewStateEvent(pl.Name, pl.State))
		}
	}
	return events
}

// apply executes one command against its player, then requeries the
// set so the snapshot reflects the outcome.
func (p *players) apply(ctx context.Context, cmd BackendCommand) ([]Event, error) {
	var err error
	switch cmd.Kind {
	case BackendPrevious:
		err = p.call(ctx, cmd.Player, "Previous")
	case BackendPlayPause:
		err = p.call(ctx, cmd.Player, "PlayPause")
	case BackendNext:
		err = p.call(ctx, cmd.Player, "Next")
	case BackendSetVolume:
		err = p.setVolume(ctx, cmd.Player, cmd.Volume)
	default:
		return nil, nil
	}
	return []Event{NewPlayersEvent(p.requery(ctx))}, err
}

// call invokes one parameterless player method.
func (p *players) call(ctx context.Context, name, member string) error {
	call := p.conn.Object(name, playerPath).CallWithContext(ctx, playerIface+"."+member, 0)
	if call.Err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(member), name, call.Err)
	}
	return nil
}

func (p *players) setVolume(ctx context.Context, name string, volume float64) error {
	if err := dbusx.SetProp(ctx, p.conn.Object(name, playerPath), playerIface, "Volume", volume); err != nil {
		return fmt.Errorf("set volume %s: %w", name, err)
	}
	return nil
}

// requery re-collects the player set, also refreshing the diff cache
// so the change feed stays aligned with what consumers hold.
func (p *players) requery(ctx context.Context) []Player {
	next, err := p.collect(ctx)
	if err != nil {
		return nil
	}
	p.mu.Lock()
	p.known = next
	p.mu.Unlock()
	return next
}
