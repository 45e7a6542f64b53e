package bluetooth

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/zoobzio/bosun"
)

// ServiceName identifies the bluetooth service in lifecycle signals.
const ServiceName = "bluetooth"

// LifecycleEvent is the engine envelope for this service.
type LifecycleEvent = bosun.ServiceEvent[*Service, Event]

// CommandKind discriminates service commands.
type CommandKind int32

const (
	CommandTogglePower CommandKind = iota
	CommandConnectDevice
	CommandDisconnectDevice
)

// Command is one service-level request. The power toggle carries no
// target; it inverts whatever the cached state reports.
type Command struct {
	Kind CommandKind
	Path dbus.ObjectPath
}

// TogglePower flips the adapter power state.
func TogglePower() Command {
	return Command{Kind: CommandTogglePower}
}

// ConnectDevice connects the device at path.
func ConnectDevice(path dbus.ObjectPath) Command {
	return Command{Kind: CommandConnectDevice, Path: path}
}

// DisconnectDevice disconnects the device at path.
func DisconnectDevice(path dbus.ObjectPath) Command {
	return Command{Kind: CommandDisconnectDevice, Path: path}
}

// Service is the consumer-held bluetooth handle: the cached state plus
// the command channel of the live backend connection. The consumer
// owns the handle; Update and Command run on the consumer's goroutine.
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

// Data returns the cached bluetooth state.
func (s *Service) Data() Data {
	return s.data
}

// Update applies one backend event to the cached state.
func (s *Service) Update(event Event) {
	s.data.Update(event)
}

// Command resolves cmd against the cached state and submits the
// resulting backend command. A power toggle without an adapter is
// dropped; the effect of an accepted command surfaces as a later
// Update from the daemon's own change notification.
func (s *Service) Command(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandTogglePower:
		if s.data.State == StateUnavailable {
			return nil
		}
		return s.send(ctx, BackendCommand{
			Kind:   BackendSetPower,
			Enable: s.data.State != StateActive,
		})

	case CommandConnectDevice:
		return s.send(ctx, BackendCommand{Kind: BackendConnect, Path: cmd.Path})

	case CommandDisconnectDevice:
		return s.send(ctx, BackendCommand{Kind: BackendDisconnect, Path: cmd.Path})
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

// Listen runs the bluetooth lifecycle against the system bus until ctx
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
