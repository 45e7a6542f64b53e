package upower

import (
	"context"

	"github.com/zoobzio/bosun"
)

// ServiceName identifies the upower service in lifecycle signals.
const ServiceName = "upower"

// LifecycleEvent is the engine envelope for this service.
type LifecycleEvent = bosun.ServiceEvent[*Service, Event]

// CommandKind discriminates service commands.
type CommandKind int32

const (
	CommandSetProfile CommandKind = iota
	CommandToggleProfile
)

// Command is one service-level request.
type Command struct {
	Kind    CommandKind
	Profile PowerProfile
}

// SetPowerProfile activates the given profile.
func SetPowerProfile(profile PowerProfile) Command {
	return Command{Kind: CommandSetProfile, Profile: profile}
}

// ToggleProfile cycles to the next profile.
func ToggleProfile() Command {
	return Command{Kind: CommandToggleProfile}
}

// nextProfile is the toggle order: balanced, power saver,
// performance, around again. An unknown profile restarts at
// balanced.
func nextProfile(current PowerProfile) PowerProfile {
	switch current {
	case ProfileBalanced:
		return ProfilePowerSaver
	case ProfilePowerSaver:
		return ProfilePerformance
	case ProfilePerformance:
		return ProfileBalanced
	}
	return ProfileBalanced
}

// Service is the consumer-held upower handle: the cached state plus
// the command channel of the live backend connection. The consumer
// owns the handle; Update and Command run on the consumer's
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

// Data returns the cached power state.
func (s *Service) Data() Data {
	return s.data
}

// Update applies one backend event to the cached state.
func (s *Service) Update(event Event) {
	s.data.Update(event)
}

// Command resolves cmd against the cached state and submits the
// resulting backend command. Setting the unknown profile is dropped;
// it has no wire name.
func (s *Service) Command(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSetProfile:
		if cmd.Profile == ProfileUnknown {
			return nil
		}
		return s.send(ctx, BackendCommand{Kind: BackendSetProfile, Profile: cmd.Profile})

	case CommandToggleProfile:
		return s.send(ctx, BackendCommand{
			Kind:    BackendSetProfile,
			Profile: nextProfile(s.data.Profile),
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

// Listen runs the upower lifecycle against the system bus until ctx
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
