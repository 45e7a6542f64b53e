// Package config provides reactive shell configuration management.
//
// The core type is Manager, which watches a configuration source for
// changes, decodes and validates the data, and delivers it to
// application code with automatic rollback on failure.
//
// # Manager
//
// A Manager monitors a source for changes and processes them through a
// pipeline:
//
//	Source → Decode → Validate → Pipeline → Store
//
// If any step fails, the previous valid configuration is retained and
// the Manager enters a degraded state while continuing to watch for
// valid updates. Every outcome reaches the handler as an Event: an
// applied configuration together with the Impact of the change, or a
// degraded notice carrying the reason the update was rejected.
//
// # State Machine
//
// Manager maintains one of four states:
//
//   - Loading: Initial state, no config yet
//   - Healthy: Valid config applied
//   - Degraded: Last change failed, previous config still active
//   - Empty: Initial load failed, no valid config ever obtained
//
// # Watchers
//
// The Watcher interface abstracts change sources. The package provides
// FileWatcher for configuration files and ChannelWatcher for testing
// and custom sources.
//
// # Example
//
//	mgr := config.New(
//	    config.NewFileWatcher(path),
//	    func(ctx context.Context, ev config.Event) error {
//	        switch ev.Kind {
//	        case config.EventApplied:
//	            return shell.Reconfigure(ev.Config, ev.Impact)
//	        case config.EventDegraded:
//	            log.Printf("config rejected: %v", ev.Err)
//	        }
//	        return nil
//	    },
//	)
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Printf("initial config failed: %v", err)
//	}
package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// DefaultDebounce is the default debounce duration for update
// processing. It is zero because FileWatcher already settles bursts of
// filesystem events before emitting an update. Set a debounce when the
// watcher is a raw channel source.
const DefaultDebounce = 0 * time.Millisecond

// handlerID names the terminal pipeline stage that invokes the handler.
const handlerID pipz.Name = "handler"

// ErrHandlerStopped reports that the handler refused an event. The
// receiving side is treated as gone and the Manager stops watching.
var ErrHandlerStopped = errors.New("config handler stopped accepting events")

// EventKind discriminates Manager events.
type EventKind int32

const (
	// EventApplied reports a successfully applied configuration.
	EventApplied EventKind = iota

	// EventDegraded reports a rejected update. The previous valid
	// configuration stays live.
	EventDegraded
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventApplied:
		return "applied"
	case EventDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Event is one configuration outcome delivered to the handler.
type Event struct {
	// Kind discriminates the payload.
	Kind EventKind

	// Config is the newly applied configuration for EventApplied. For
	// EventDegraded it holds the last valid configuration, or the zero
	// Config if none has ever been applied.
	Config Config

	// Impact describes the change relative to the previous
	// configuration. Populated for EventApplied only.
	Impact Impact

	// Err is the reason the update was rejected. Populated for
	// EventDegraded only.
	Err *UpdateError
}

// Handler receives configuration events from a Manager. Returning an
// error signals that the receiver can no longer accept events, which
// stops the watch loop.
type Handler func(ctx context.Context, event Event) error

// Manager watches a source for configuration changes, decodes and
// validates the data, and delivers events to application code with
// automatic rollback on failure.
type Manager struct {
	watcher        Watcher
	handler        Handler
	pipeline       pipz.Chainable[*Request]
	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool
	clock          clockz.Clock
	codec          Codec
	metrics        MetricsProvider
	onStop         func(State)
	base           Config

	state        atomic.Int32
	current      atomic.Pointer[Config]
	lastError    atomic.Pointer[error]
	errorHistory *errorLog

	mu      sync.Mutex
	started bool

	// For sync mode: channel to receive updates
	updates <-chan Update
}

// New creates a Manager that watches a source for configuration
// changes.
//
// The watcher emits logical updates when the source changes. Raw bytes
// are decoded over the base configuration using the configured codec,
// so fields omitted from the file keep their defaults. The result is
// validated, run through the pipeline, and delivered to the handler as
// an EventApplied together with the Impact of the change. Rejected
// updates reach the handler as EventDegraded.
//
// Pipeline options (With*) configure the processing pipeline. Instance
// configuration uses chainable methods before calling Start().
//
// Example:
//
//	mgr := config.New(
//	    config.NewFileWatcher(path),
//	    handler,
//	    config.WithRetry(3),
//	).StartupTimeout(5 * time.Second)
func New(watcher Watcher, handler Handler, opts ...Option) *Manager {
	terminal := pipz.Effect(handlerID, func(ctx context.Context, req *Request) error {
		ev := Event{Kind: EventApplied, Config: req.Current, Impact: req.Impact}
		if err := handler(ctx, ev); err != nil {
			return fmt.Errorf("%w: %w", ErrHandlerStopped, err)
		}
		return nil
	})
	pipeline := buildPipeline(terminal, opts)

	m := &Manager{
		watcher:      watcher,
		handler:      handler,
		pipeline:     pipeline,
		debounce:     DefaultDebounce,
		clock:        clockz.RealClock,
		codec:        TOMLCodec{},
		base:         Default(),
		errorHistory: newErrorLog(0),
	}
	m.state.Store(int32(StateLoading))

	return m
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Debounce sets the debounce duration for update processing.
// Updates arriving within this duration are coalesced into a single
// apply. Default: 0 (process immediately). Must be called before
// Start().
func (m *Manager) Debounce(d time.Duration) *Manager {
	m.debounce = d
	return m
}

// SyncMode enables synchronous processing for testing.
// In sync mode, updates are processed immediately without debouncing
// or async goroutines, making tests deterministic. Must be called
// before Start().
func (m *Manager) SyncMode() *Manager {
	m.syncMode = true
	return m
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic debounce testing.
// Must be called before Start().
func (m *Manager) Clock(clock clockz.Clock) *Manager {
	m.clock = clock
	return m
}

// Codec sets the codec for decoding configuration data.
// Default: TOMLCodec. Must be called before Start().
func (m *Manager) Codec(codec Codec) *Manager {
	m.codec = codec
	return m
}

// Base sets the configuration that raw bytes are decoded over. Fields
// the file omits keep the base's values. Default: Default(). Must be
// called before Start().
func (m *Manager) Base(base Config) *Manager {
	m.base = base
	return m
}

// StartupTimeout sets the maximum duration to wait for the initial
// configuration value from the watcher. If the watcher fails to emit
// within this duration, Start() returns an error.
// Default: no timeout (wait indefinitely). Must be called before Start().
func (m *Manager) StartupTimeout(d time.Duration) *Manager {
	m.startupTimeout = d
	return m
}

// Metrics sets a metrics provider for observability integration.
// The provider receives callbacks on state changes, processing
// success/failure, and update events. Must be called before Start().
func (m *Manager) Metrics(provider MetricsProvider) *Manager {
	m.metrics = provider
	return m
}

// OnStop sets a callback that is invoked when the manager stops
// watching. The callback receives the final state of the manager. This
// is useful for graceful shutdown scenarios where cleanup is needed.
// Must be called before Start().
func (m *Manager) OnStop(fn func(State)) *Manager {
	m.onStop = fn
	return m
}

// ErrorHistorySize sets the number of recent errors to retain.
// When set, ErrorHistory() returns up to this many recent errors.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before Start().
func (m *Manager) ErrorHistorySize(n int) *Manager {
	m.errorHistory = newErrorLog(n)
	return m
}

// State returns the current state of the Manager.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Current returns the current valid configuration and true, or the
// zero value and false if no valid configuration has been applied.
func (m *Manager) Current() (Config, bool) {
	ptr := m.current.Load()
	if ptr == nil {
		return Config{}, false
	}
	return *ptr, true
}

// LastError returns the last error encountered, or nil if no error occurred.
func (m *Manager) LastError() error {
	ptr := m.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent error history, oldest first.
// Returns nil if error history is not enabled (see ErrorHistorySize).
func (m *Manager) ErrorHistory() []error {
	return m.errorHistory.snapshot()
}

// Start begins watching for changes. It blocks until the first
// configuration is processed (success or failure), then continues
// watching asynchronously.
//
// If the initial configuration fails, Start returns the error but
// continues watching in the background for valid updates.
//
// In sync mode, Start only processes the initial value. Use Process()
// to manually trigger processing of subsequent values.
//
// Start can only be called once. Subsequent calls return an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	capitan.Emit(ctx, ManagerStarted,
		KeyDebounce.Field(m.debounce),
		KeyWatcherType.Field(fmt.Sprintf("%T", m.watcher)),
	)

	updates, err := m.watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	// Wait for first value and process synchronously
	var initialErr error

	// Wrap context with startup timeout if configured
	startupCtx := ctx
	if m.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = m.clock.WithTimeout(ctx, m.startupTimeout)
		defer cancel()
	}

	select {
	case <-startupCtx.Done():
		if m.startupTimeout > 0 && startupCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("startup timeout: watcher did not emit initial value within %v", m.startupTimeout)
		}
		return startupCtx.Err()
	case upd, ok := <-updates:
		if !ok {
			return fmt.Errorf("watcher closed before emitting initial value")
		}
		capitan.Emit(ctx, ChangeReceived)
		if m.metrics != nil {
			m.metrics.OnChangeReceived()
		}
		initialErr = m.process(ctx, upd)
	}

	// A handler rejection means the receiver is already gone.
	if errors.Is(initialErr, ErrHandlerStopped) {
		return initialErr
	}

	if m.syncMode {
		// In sync mode, store channel for manual processing
		m.updates = updates
		return initialErr
	}

	// Continue watching asynchronously
	go m.watch(ctx, updates)

	return initialErr
}

// Process reads and processes the next value from the watcher.
// This is only available in sync mode and is used for deterministic
// testing. Returns false if no value is available or the channel is
// closed.
func (m *Manager) Process(ctx context.Context) bool {
	if !m.syncMode {
		return false
	}

	select {
	case upd, ok := <-m.updates:
		if !ok {
			return false
		}
		capitan.Emit(ctx, ChangeReceived)
		if m.metrics != nil {
			m.metrics.OnChangeReceived()
		}
		_ = m.process(ctx, upd) //nolint:errcheck // Errors stored via setError
		return true
	default:
		return false
	}
}

// process decodes, validates, and delivers a single update.
func (m *Manager) process(ctx context.Context, upd Update) error {
	start := m.clock.Now()
	oldState := m.State()

	// Removed source: report degraded but keep the live configuration.
	if upd.Removed {
		ue := RemovedError(upd.Path)
		m.setError(ue)
		m.transitionState(ctx, oldState, m.failureState())
		capitan.Emit(ctx, FileRemoved,
			KeyPath.Field(upd.Path),
		)
		if m.metrics != nil {
			m.metrics.OnProcessFailure("read", m.clock.Since(start))
		}
		if err := m.notifyDegraded(ctx, ue); err != nil {
			return err
		}
		return ue
	}

	// Read failure reported by the watcher.
	if upd.Err != nil {
		ue := asUpdateError(upd.Path, upd.Err)
		m.setError(ue)
		m.transitionState(ctx, oldState, m.failureState())
		capitan.Emit(ctx, ReadFailed,
			KeyPath.Field(upd.Path),
			KeyError.Field(ue.Error()),
		)
		if m.metrics != nil {
			m.metrics.OnProcessFailure("read", m.clock.Since(start))
		}
		if err := m.notifyDegraded(ctx, ue); err != nil {
			return err
		}
		return ue
	}

	// Decode over the base so omitted fields keep their defaults.
	result := m.base
	if err := m.codec.Unmarshal(upd.Data, &result); err != nil {
		ue := ParseError(upd.Path, err)
		m.setError(ue)
		m.transitionState(ctx, oldState, m.failureState())
		capitan.Emit(ctx, DecodeFailed,
			KeyError.Field(err.Error()),
		)
		if m.metrics != nil {
			m.metrics.OnProcessFailure("decode", m.clock.Since(start))
		}
		if derr := m.notifyDegraded(ctx, ue); derr != nil {
			return derr
		}
		return ue
	}

	// Validate
	if err := result.Validate(); err != nil {
		ue := ValidationError(err)
		m.setError(ue)
		m.transitionState(ctx, oldState, m.failureState())
		capitan.Emit(ctx, ValidationFailed,
			KeyError.Field(err.Error()),
		)
		if m.metrics != nil {
			m.metrics.OnProcessFailure("validate", m.clock.Since(start))
		}
		if derr := m.notifyDegraded(ctx, ue); derr != nil {
			return derr
		}
		return ue
	}

	// Previous value for impact computation (base if none applied yet)
	prev := m.base
	if ptr := m.current.Load(); ptr != nil {
		prev = *ptr
	}

	// Build request and process through pipeline
	req := &Request{Previous: prev, Current: result, Impact: Diff(prev, result), Raw: upd.Data}
	processed, err := m.pipeline.Process(ctx, req)
	if err != nil {
		if errors.Is(err, ErrHandlerStopped) {
			m.setError(err)
			return err
		}
		ue := StateError(err)
		m.setError(ue)
		m.transitionState(ctx, oldState, m.failureState())
		capitan.Emit(ctx, ApplyFailed,
			KeyError.Field(err.Error()),
		)
		if m.metrics != nil {
			m.metrics.OnProcessFailure("apply", m.clock.Since(start))
		}
		if derr := m.notifyDegraded(ctx, ue); derr != nil {
			return derr
		}
		return ue
	}

	// Success - store result and clear error history
	m.current.Store(&processed.Current)
	m.lastError.Store(nil)
	m.errorHistory.reset()
	m.transitionState(ctx, oldState, StateHealthy)
	capitan.Emit(ctx, Applied,
		KeyAffected.Field(len(processed.Impact.AffectedModules)),
	)
	if m.metrics != nil {
		m.metrics.OnProcessSuccess(m.clock.Since(start))
	}

	return nil
}

// notifyDegraded delivers a degraded event carrying the last valid
// configuration. A handler error here means the receiver is gone and
// the watch loop terminates.
func (m *Manager) notifyDegraded(ctx context.Context, ue *UpdateError) error {
	ev := Event{Kind: EventDegraded, Err: ue}
	if ptr := m.current.Load(); ptr != nil {
		ev.Config = *ptr
	}
	if err := m.handler(ctx, ev); err != nil {
		return fmt.Errorf("%w: %w", ErrHandlerStopped, err)
	}
	return nil
}

// asUpdateError passes through watcher-built errors and wraps anything
// else as a read failure.
func asUpdateError(path string, err error) *UpdateError {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue
	}
	return ReadError(path, err)
}

// failureState returns the appropriate failure state based on whether
// a valid configuration has ever been applied.
func (m *Manager) failureState() State {
	if m.current.Load() == nil {
		return StateEmpty
	}
	return StateDegraded
}

// transitionState updates the state and emits a state change event if changed.
func (m *Manager) transitionState(ctx context.Context, oldState, newState State) {
	if oldState == newState {
		return
	}
	m.state.Store(int32(newState))
	capitan.Emit(ctx, ManagerStateChanged,
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
	if m.metrics != nil {
		m.metrics.OnStateChange(oldState, newState)
	}
}

// setError stores an error atomically and adds it to the error history.
func (m *Manager) setError(err error) {
	e := err
	m.lastError.Store(&e)
	m.errorHistory.record(err)
}

// watch processes updates from the watcher channel with debouncing.
func (m *Manager) watch(ctx context.Context, updates <-chan Update) {
	defer func() {
		finalState := m.State()
		capitan.Emit(ctx, ManagerStopped,
			KeyState.Field(finalState.String()),
		)
		if m.onStop != nil {
			m.onStop(finalState)
		}
	}()

	var (
		timer      clockz.Timer
		pending    Update
		hasPending bool
	)

	for {
		// Get timer channel or nil if no timer
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case upd, ok := <-updates:
			if !ok {
				// Channel closed, process any pending update
				if hasPending {
					_ = m.process(ctx, pending) //nolint:errcheck // Errors stored via setError
				}
				return
			}

			capitan.Emit(ctx, ChangeReceived)
			if m.metrics != nil {
				m.metrics.OnChangeReceived()
			}

			if m.debounce <= 0 {
				if errors.Is(m.process(ctx, upd), ErrHandlerStopped) {
					return
				}
				continue
			}

			pending = upd
			hasPending = true

			// Reset or start debounce timer
			if timer == nil {
				timer = m.clock.NewTimer(m.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(m.debounce)
			}

		case <-timerC:
			if hasPending {
				if errors.Is(m.process(ctx, pending), ErrHandlerStopped) {
					return
				}
				hasPending = false
			}
		}
	}
}
