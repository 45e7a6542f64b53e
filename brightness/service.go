package brightness

import (
	"context"

	"github.com/zoobzio/bosun"
)

// ServiceName identifies the brightness service in lifecycle signals.
const ServiceName = "brightness"

// LifecycleEvent is the engine envelope for this service.
type LifecycleEvent = bosun.ServiceEvent[*Service, Event]

// CommandKind discriminates service commands.
type CommandKind int32

const (
	CommandSet CommandKind = iota
	CommandRefresh
)

// Command is one service-level request. Set carries a percentage; the
// raw value is resolved against the cached hardware ceiling.
type Command struct {
	Kind    CommandKind
	Percent int
}

// SetBrightness sets the backlight to percent of the hardware ceiling.
func SetBrightness(percent int) Command {
	return Command{Kind: CommandSet, Percent: percent}
}

// Refresh re-reads the current backlight value.
func Refresh() Command {
	return Command{Kind: CommandRefresh}
}

// Service is the consumer-held brightness handle: the cached state
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

// Data returns the cached backlight state.
func (s *Service) Data() Data {
	return s.data
}

// Update applies one backend event to the cached state.
func (s *Service) Update(event Event) {
	s.data.Update(event)
}

// Command resolves cmd against the cached state and submits the
// resulting backend command. A set without a known hardware ceiling is
// dropped; the effect of an accepted command surfaces as a later
// Update from the backend.
func (s *Service) Command(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSet:
		if s.data.Max == 0 {
			return nil
		}
		percent := min(max(cmd.Percent, 0), 100)
		return s.send(ctx, BackendCommand{
			Kind:  BackendSet,
			Value: uint32(percent) * s.data.Max / 100,
		})

	case CommandRefresh:
		return s.send(ctx, BackendCommand{Kind: BackendRefresh})
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

// Listen runs the brightness lifecycle against the default sysfs
// class until ctx ends or the publisher reports its receiver gone.
func Listen(ctx context.Context, pub bosun.Publisher[*Service, Event]) error {
	return NewEngine(NewSysfsBackend()).Listen(ctx, pub)
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
