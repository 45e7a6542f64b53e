package audio

import (
	"context"

	"github.com/zoobzio/bosun"
)

// ServiceName identifies the audio service in lifecycle signals.
const ServiceName = "audio"

// LifecycleEvent is the engine envelope for this service.
type LifecycleEvent = bosun.ServiceEvent[*Service, Event]

// CommandKind discriminates service commands.
type CommandKind int32

const (
	CommandToggleSinkMute CommandKind = iota
	CommandToggleSourceMute
	CommandSinkVolume
	CommandSourceVolume
	CommandDefaultSink
	CommandDefaultSource
)

// Command is one service-level request. Commands name no devices
// except the default-device selections; everything else resolves
// against the cached state.
type Command struct {
	Kind    CommandKind
	Percent int
	Device  string
	Port    string
}

// ToggleSinkMute flips the mute state of the default sink.
func ToggleSinkMute() Command {
	return Command{Kind: CommandToggleSinkMute}
}

// ToggleSourceMute flips the mute state of the default source.
func ToggleSourceMute() Command {
	return Command{Kind: CommandToggleSourceMute}
}

// SinkVolume sets the default sink volume to percent.
func SinkVolume(percent int) Command {
	return Command{Kind: CommandSinkVolume, Percent: percent}
}

// SourceVolume sets the default source volume to percent.
func SourceVolume(percent int) Command {
	return Command{Kind: CommandSourceVolume, Percent: percent}
}

// DefaultSink makes the named sink the default and activates port.
func DefaultSink(device, port string) Command {
	return Command{Kind: CommandDefaultSink, Device: device, Port: port}
}

// DefaultSource makes the named source the default and activates port.
func DefaultSource(device, port string) Command {
	return Command{Kind: CommandDefaultSource, Device: device, Port: port}
}

// Service is the consumer-held audio handle: the cached state plus the
// command channel of the live backend connection. The consumer owns
// the handle; Update and Command run on the consumer's goroutine.
type Service struct {
	data      Data
	commander chan<- BackendCommand
}

var _ bosun.Service[Event, Command] = (*Service)(nil)

// NewService builds a handle over a backend command channel. Backends
// call this from Spawn; tests build handles directly.
func NewService(commander chan<- BackendCommand) *Service {
	return &Service{commander: commander}
}

// Data returns the cached audio state.
func (s *Service) Data() Data {
	return s.data
}

// Update applies one backend event to the cached state.
func (s *Service) Update(event Event) {
	s.data.Update(event)
}

// Command resolves cmd against the cached state and submits the
// resulting backend command. Commands targeting an absent default
// device are dropped; the effect of an accepted command surfaces as a
// later Update from the backend's own change notification.
func (s *Service) Command(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandToggleSinkMute:
		i := deviceIndex(s.data.Sinks, s.data.ServerInfo.DefaultSink)
		if i < 0 {
			return nil
		}
		return s.send(ctx, BackendCommand{
			Kind:   BackendSinkMute,
			Device: s.data.Sinks[i].Name,
			Mute:   !s.data.Sinks[i].Muted,
		})

	case CommandToggleSourceMute:
		i := deviceIndex(s.data.Sources, s.data.ServerInfo.DefaultSource)
		if i < 0 {
			return nil
		}
		return s.send(ctx, BackendCommand{
			Kind:   BackendSourceMute,
			Device: s.data.Sources[i].Name,
			Mute:   !s.data.Sources[i].Muted,
		})

	case CommandSinkVolume:
		i := deviceIndex(s.data.Sinks, s.data.ServerInfo.DefaultSink)
		if i < 0 {
			return nil
		}
		volume := clampVolume(float64(cmd.Percent) / 100)
		s.data.Sinks[i].Volume = volume
		return s.send(ctx, BackendCommand{
			Kind:   BackendSinkVolume,
			Device: s.data.Sinks[i].Name,
			Volume: volume,
		})

	case CommandSourceVolume:
		i := deviceIndex(s.data.Sources, s.data.ServerInfo.DefaultSource)
		if i < 0 {
			return nil
		}
		volume := clampVolume(float64(cmd.Percent) / 100)
		s.data.Sources[i].Volume = volume
		return s.send(ctx, BackendCommand{
			Kind:   BackendSourceVolume,
			Device: s.data.Sources[i].Name,
			Volume: volume,
		})

	case CommandDefaultSink:
		return s.send(ctx, BackendCommand{
			Kind:   BackendDefaultSink,
			Device: cmd.Device,
			Port:   cmd.Port,
		})

	case CommandDefaultSource:
		return s.send(ctx, BackendCommand{
			Kind:   BackendDefaultSource,
			Device: cmd.Device,
			Port:   cmd.Port,
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

func clampVolume(v float64) float64 {
	return min(max(v, 0), 1)
}

// NewEngine builds the lifecycle engine driving backend. Configure
// backoff or clock before Listen.
func NewEngine(backend Backend) *bosun.Engine[*Service, Event] {
	return bosun.NewEngine[*Service, Event](ServiceName, engineBackend{backend})
}

// Listen runs the audio lifecycle with the default pactl backend until
// ctx ends or the publisher reports its receiver gone.
func Listen(ctx context.Context, pub bosun.Publisher[*Service, Event]) error {
	return NewEngine(NewCLIBackend()).Listen(ctx, pub)
}

type engineBackend struct {
	backend Backend
}

func (b engineBackend) Spawn(ctx context.Context) (*Service, <-chan bosun.BackendEvent[Event], error) {
	handle, err := b.backend.Spawn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return NewService(handle.Commands), handle.Events, nil
}
