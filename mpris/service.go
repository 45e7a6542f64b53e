package mpris

import (
	"context"

	"github.com/zoobzio/bosun"
)

// ServiceName identifies the mpris service in lifecycle signals.
const ServiceName = "mpris"

// LifecycleEvent is the engine envelope for this service.
type LifecycleEvent = bosun.ServiceEvent[*Service, Event]

// CommandKind discriminates service commands.
type CommandKind int32

const (
	CommandPrevious CommandKind = iota
	CommandPlayPause
	CommandNext
	CommandSetVolume
)

// Command is one service-level request targeting a player by bus
// name. Volume is a percentage on the volume command.
type Command struct {
	Kind   CommandKind
	Player string
	Volume float64
}

// Previous jumps to the previous track.
func Previous(player string) Command {
	return Command{Kind: CommandPrevious, Player: player}
}

// PlayPause toggles playback.
func PlayPause(player string) Command {
	return Command{Kind: CommandPlayPause, Player: player}
}

// Next jumps to the next track.
func Next(player string) Command {
	return Command{Kind: CommandNext, Player: player}
}

// SetVolume sets the playback volume to a percentage in [0, 100].
func SetVolume(player string, volume float64) Command {
	return Command{Kind: CommandSetVolume, Player: player, Volume: volume}
}

// Service is the consumer-held mpris handle: the cached player set
// plus the command channel of the live backend connection. The
// consumer owns the handle; Update and Command run on the consumer's
// goroutine.
type Service struct {
	data      Data
	commander chan<- BackendCommand
}

var _ bosun.Service[Event, Command] = (*Service)(nil)

// NewService builds a handle over an initial snapshot and the backend
// command channel that produced it. Backends call this from Spawn;
// tests build handles directly.
func NewService(data Data, commander chan<- BackendCommand) *Service {
	return &Service{data: data, commander: commander}
}

// Data returns the cached player set.
func (s *Service) Data() Data {
	return s.data
}

// Update applies one backend event to the cached state.
func (s *Service) Update(event Event) {
	s.data.Update(event)
}

// Command resolves cmd against the cached player set and submits the
// resulting backend command. Commands targeting unknown players are
// dropped; controls racing a player's exit lose to the refresh
// already on the way.
func (s *Service) Command(ctx context.Context, cmd Command) error {
	if s.data.find(cmd.Player) == nil {
		return nil
	}

	switch cmd.Kind {
	case CommandPrevious:
		return s.send(ctx, BackendCommand{Kind: BackendPrevious, Player: cmd.Player})

	case CommandPlayPause:
		return s.send(ctx, BackendCommand{Kind: BackendPlayPause, Player: cmd.Player})

	case CommandNext:
		return s.send(ctx, BackendCommand{Kind: BackendNext, Player: cmd.Player})

	case CommandSetVolume:
		return s.send(ctx, BackendCommand{
			Kind:   BackendSetVolume,
			Player: cmd.Player,
			Volume: min(max(cmd.Volume, 0), 100) / 100,
		})
	}
	return nil
}

func (s *Service) send(ctx context.Context, cmd BackendCommand) error {
	select {
	case s.commander <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewEngine builds the lifecycle engine driving backend. Configure
// backoff or clock before Listen.
func NewEngine(backend Backend) *bosun.Engine[*Service, Event] {
	return bosun.NewEngine[*Service, Event](ServiceName, engineBackend{backend})
}

// Listen runs the mpris lifecycle against the session bus until ctx
// ends or the publisher reports its receiver gone.
func Listen(ctx context.Context, pub bosun.Publisher[*Service, Event]) error {
	return NewEngine(NewDBusBackend()).Listen(ctx, pub)
}

type engineBackend struct {
	backend Backend
}

func (b engineBackend) Spawn(ctx context.Context) (*Service, <-chan bosun.BackendEvent[Event], error) {
	handle, err := b.backend.Spawn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return NewService(handle.Data, handle.Commands), handle.Events, nil
}
