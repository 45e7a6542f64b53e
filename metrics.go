package bosun

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on bus and service events.
type MetricsProvider interface {
	// OnServiceInit is called when a service publishes an Init event.
	OnServiceInit(service string)

	// OnServiceError is called when a service publishes an Error event.
	OnServiceError(service string)

	// OnServiceUpdate is called when a service publishes an Update event.
	OnServiceUpdate(service string)

	// OnEnvelopeDropped is called when a publish is rejected on a full
	// queue. Kind is the envelope kind that was dropped.
	OnEnvelopeDropped(kind string)

	// OnDrain is called after each non-empty drain with the batch size
	// and the time the drain held the queue lock.
	OnDrain(batch int, duration time.Duration)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnServiceInit(_ string)         {}
func (NoOpMetricsProvider) OnServiceError(_ string)        {}
func (NoOpMetricsProvider) OnServiceUpdate(_ string)       {}
func (NoOpMetricsProvider) OnEnvelopeDropped(_ string)     {}
func (NoOpMetricsProvider) OnDrain(_ int, _ time.Duration) {}
