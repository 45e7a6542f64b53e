package config

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key manager events.
type MetricsProvider interface {
	// OnStateChange is called when the manager transitions between states.
	OnStateChange(from, to State)

	// OnProcessSuccess is called when a configuration update is applied.
	// Duration is the time taken to process (decode, validate, apply).
	OnProcessSuccess(duration time.Duration)

	// OnProcessFailure is called when an update fails at any stage and a
	// degraded event is delivered instead. Stage indicates where the
	// failure occurred: "read", "decode", "validate", or "apply".
	OnProcessFailure(stage string, duration time.Duration)

	// OnChangeReceived is called when an update is received from the watcher.
	OnChangeReceived()
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)                   {}
func (NoOpMetricsProvider) OnProcessSuccess(_ time.Duration)           {}
func (NoOpMetricsProvider) OnProcessFailure(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnChangeReceived()                          {}
