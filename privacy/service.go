package privacy

import (
	"context"

	"github.com/zoobzio/bosun"
)

// ServiceName identifies the privacy service in lifecycle signals.
const ServiceName = "privacy"

// LifecycleEvent is the engine envelope for this service.
type LifecycleEvent = bosun.ServiceEvent[*Service, Event]

// Service is the consumer-held privacy handle: the cached state of
// the live backend connection. The consumer owns the handle; Update
// runs on the consumer's goroutine.
type Service struct {
	data Data
}

var _ bosun.ReadOnlyService[Event] = (*Service)(nil)

// NewService builds a handle over an initial snapshot. Backends call
// this from Spawn; tests build handles directly.
func NewService(data Data) *Service {
	return &Service{data: data}
}

// Data returns the cached privacy state.
func (s *Service) Data() Data {
	return s.data
}

// Update applies one backend event to the cached state.
func (s *Service) Update(event Event) {
	s.data.Update(event)
}

// NewEngine builds the lifecycle engine driving backend. Configure
// backoff or clock before Listen.
func NewEngine(backend Backend) *bosun.Engine[*Service, Event] {
	return bosun.NewEngine[*Service, Event](ServiceName, engineBackend{backend})
}

// Listen runs the privacy lifecycle with the default pw-dump/pw-mon
// backend until ctx ends or the publisher reports its receiver gone.
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
	return NewService(handle.Data), handle.Events, nil
}
