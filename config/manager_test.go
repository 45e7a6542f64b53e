package config

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// collectEvents returns a buffered event channel and a handler that
// feeds it.
func collectEvents() (chan Event, Handler) {
	ch := make(chan Event, 16)
	return ch, func(_ context.Context, ev Event) error {
		ch <- ev
		return nil
	}
}

// nextEvent waits for one event or fails the test.
func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for config event")
		return Event{}
	}
}

func TestManager_InitialApply(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var applied Event
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			applied = ev
			return nil
		},
	).SyncMode()

	// Empty file decodes to pure defaults.
	ch <- Update{Data: []byte("")}

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if applied.Kind != EventApplied {
		t.Errorf("expected applied event, got %s", applied.Kind)
	}
	if applied.Config.LogLevel != "warn" {
		t.Errorf("expected default log level warn, got %s", applied.Config.LogLevel)
	}
	if applied.Config.Position != PositionTop {
		t.Errorf("expected default position top, got %s", applied.Config.Position)
	}
	if mgr.State() != StateHealthy {
		t.Errorf("expected healthy, got %s", mgr.State())
	}
}

func TestManager_FileOverridesDefaults(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var applied Config
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			applied = ev.Config
			return nil
		},
	).SyncMode()

	ch <- Update{Data: []byte("log_level = \"debug\"\n\n[clock]\nformat = \"%H:%M\"\n")}

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if applied.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", applied.LogLevel)
	}
	if applied.Clock.Format != "%H:%M" {
		t.Errorf("expected clock format %%H:%%M, got %s", applied.Clock.Format)
	}

	// Fields the file omits keep their defaults.
	if applied.Position != PositionTop {
		t.Errorf("expected default position top, got %s", applied.Position)
	}
	if len(applied.Modules.Right) == 0 {
		t.Error("expected default right modules retained")
	}
}

func TestManager_ParseFailureBeforeAnyConfig(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var degraded Event
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			degraded = ev
			return nil
		},
	).SyncMode()

	ch <- Update{Path: "/etc/bosun.toml", Data: []byte("not valid toml")}

	err := mgr.Start(ctx)
	if err == nil {
		t.Fatal("expected parse error")
	}

	var ue *UpdateError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpdateError, got %T", err)
	}
	if ue.Reason != ReasonParse {
		t.Errorf("expected parse reason, got %s", ue.Reason)
	}
	if mgr.State() != StateEmpty {
		t.Errorf("expected empty state, got %s", mgr.State())
	}

	if degraded.Kind != EventDegraded {
		t.Errorf("expected degraded event, got %s", degraded.Kind)
	}
	if degraded.Err == nil || degraded.Err.Reason != ReasonParse {
		t.Errorf("expected parse reason on event, got %v", degraded.Err)
	}
}

func TestManager_ValidationFailure(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, _ Event) error { return nil },
	).SyncMode()

	// scale_factor above the allowed bound
	ch <- Update{Data: []byte("[appearance]\nscale_factor = 3.0\n")}

	err := mgr.Start(ctx)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ue *UpdateError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpdateError, got %T", err)
	}
	if ue.Reason != ReasonValidation {
		t.Errorf("expected validation reason, got %s", ue.Reason)
	}
	if mgr.State() != StateEmpty {
		t.Errorf("expected empty state, got %s", mgr.State())
	}
}

func TestManager_RollbackOnParseFailure(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var last Event
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			last = ev
			return nil
		},
	).SyncMode()

	// Valid initial config
	ch <- Update{Data: []byte("log_level = \"info\"\n")}
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Broken update
	ch <- Update{Data: []byte("log_level = ")}
	mgr.Process(ctx)

	// Should be degraded, not empty
	if mgr.State() != StateDegraded {
		t.Errorf("expected degraded, got %s", mgr.State())
	}

	// Previous config should still be current
	current, ok := mgr.Current()
	if !ok {
		t.Fatal("expected current config")
	}
	if current.LogLevel != "info" {
		t.Errorf("expected log level info retained, got %s", current.LogLevel)
	}

	// Degraded event carries the last valid config
	if last.Kind != EventDegraded {
		t.Fatalf("expected degraded event, got %s", last.Kind)
	}
	if last.Config.LogLevel != "info" {
		t.Errorf("expected last valid config on event, got %s", last.Config.LogLevel)
	}
}

func TestManager_RecoverFromDegraded(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var applied Config
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			if ev.Kind == EventApplied {
				applied = ev.Config
			}
			return nil
		},
	).SyncMode()

	// Valid → Invalid → Valid
	ch <- Update{Data: []byte("log_level = \"info\"\n")}
	mgr.Start(ctx)

	ch <- Update{Data: []byte("log_level = \"loud\"\n")} // not a known level
	mgr.Process(ctx)

	if mgr.State() != StateDegraded {
		t.Fatalf("expected degraded, got %s", mgr.State())
	}

	ch <- Update{Data: []byte("log_level = \"error\"\n")}
	mgr.Process(ctx)

	if mgr.State() != StateHealthy {
		t.Errorf("expected healthy, got %s", mgr.State())
	}
	if applied.LogLevel != "error" {
		t.Errorf("expected log level error, got %s", applied.LogLevel)
	}
}

func TestManager_RemovedKeepsConfig(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var last Event
	applies := 0
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			last = ev
			if ev.Kind == EventApplied {
				applies++
			}
			return nil
		},
	).SyncMode()

	ch <- Update{Data: []byte("log_level = \"info\"\n")}
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ch <- Update{Path: "/home/u/.config/bosun/config.toml", Removed: true}
	mgr.Process(ctx)

	if last.Kind != EventDegraded {
		t.Fatalf("expected degraded event, got %s", last.Kind)
	}
	if last.Err == nil || last.Err.Reason != ReasonRemoved {
		t.Errorf("expected removed reason, got %v", last.Err)
	}
	if applies != 1 {
		t.Errorf("expected no apply for removal, got %d applies", applies)
	}

	// The in-memory configuration survives the removal.
	current, ok := mgr.Current()
	if !ok {
		t.Fatal("expected current config after removal")
	}
	if current.LogLevel != "info" {
		t.Errorf("expected log level info retained, got %s", current.LogLevel)
	}
	if mgr.State() != StateDegraded {
		t.Errorf("expected degraded, got %s", mgr.State())
	}
}

func TestManager_ReadErrorDegrades(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var last Event
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			last = ev
			return nil
		},
	).SyncMode()

	cause := errors.New("permission denied")
	ch <- Update{Path: "/etc/bosun.toml", Err: cause}

	err := mgr.Start(ctx)
	if err == nil {
		t.Fatal("expected read error")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause preserved, got %v", err)
	}

	if last.Err == nil || last.Err.Reason != ReasonRead {
		t.Errorf("expected read reason, got %v", last.Err)
	}
	if last.Err.Path != "/etc/bosun.toml" {
		t.Errorf("expected path on error, got %q", last.Err.Path)
	}
}

func TestManager_FieldRemovalRevertsToDefault(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var applied Config
	var impact Impact
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			if ev.Kind == EventApplied {
				applied = ev.Config
				impact = ev.Impact
			}
			return nil
		},
	).SyncMode()

	ch <- Update{Data: []byte("[clock]\nformat = \"%H\"\n")}
	mgr.Start(ctx)

	if applied.Clock.Format != "%H" {
		t.Fatalf("expected clock format %%H, got %s", applied.Clock.Format)
	}

	// The file is the whole truth: dropping the section reverts it.
	ch <- Update{Data: []byte("")}
	mgr.Process(ctx)

	def := Default()
	if applied.Clock.Format != def.Clock.Format {
		t.Errorf("expected clock format reverted to %s, got %s", def.Clock.Format, applied.Clock.Format)
	}
	if !impact.Affects(ModuleClock) {
		t.Errorf("expected clock in affected modules, got %v", impact.AffectedModules)
	}
}

func TestManager_ImpactOnUpdate(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	var impact Impact
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			if ev.Kind == EventApplied {
				impact = ev.Impact
			}
			return nil
		},
	).SyncMode()

	ch <- Update{Data: []byte("")}
	mgr.Start(ctx)

	ch <- Update{Data: []byte("[clock]\nformat = \"%H:%M\"\n")}
	mgr.Process(ctx)

	if !impact.Affects(ModuleClock) {
		t.Errorf("expected clock affected, got %v", impact.AffectedModules)
	}
	if impact.Affects(ModuleBattery) {
		t.Errorf("unexpected battery in affected modules: %v", impact.AffectedModules)
	}
	if impact.LayoutChanged {
		t.Error("layout should not be marked changed")
	}

	ch <- Update{Data: []byte("[modules]\nleft = [\"Clock\"]\n")}
	mgr.Process(ctx)

	if !impact.LayoutChanged {
		t.Error("expected layout marked changed")
	}
}

func TestManager_HandlerErrorStopsStart(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, _ Event) error {
			return errors.New("receiver gone")
		},
	).SyncMode()

	ch <- Update{Data: []byte("")}

	err := mgr.Start(ctx)
	if err == nil {
		t.Fatal("expected handler error")
	}
	if !errors.Is(err, ErrHandlerStopped) {
		t.Errorf("expected ErrHandlerStopped, got %v", err)
	}
}

func TestManager_HandlerErrorTerminatesWatchLoop(t *testing.T) {
	ch := make(chan Update, 4)
	ch <- Update{Data: []byte("")}

	var calls atomic.Int32
	stopped := make(chan State, 1)

	mgr := New(
		NewChannelWatcher(ch),
		func(_ context.Context, _ Event) error {
			if calls.Add(1) > 1 {
				return errors.New("receiver gone")
			}
			return nil
		},
	).OnStop(func(s State) { stopped <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ch <- Update{Data: []byte("log_level = \"debug\"\n")}

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch loop to stop")
	}

	if calls.Load() != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls.Load())
	}
}

func TestManager_AsyncAppliesUpdates(t *testing.T) {
	ch := make(chan Update, 4)
	ch <- Update{Data: []byte("")}

	events, handler := collectEvents()
	mgr := New(NewChannelWatcher(ch), handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if ev := nextEvent(t, events); ev.Kind != EventApplied {
		t.Fatalf("expected initial applied event, got %s", ev.Kind)
	}

	ch <- Update{Data: []byte("log_level = \"debug\"\n")}

	ev := nextEvent(t, events)
	if ev.Kind != EventApplied {
		t.Fatalf("expected applied event, got %s", ev.Kind)
	}
	if ev.Config.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", ev.Config.LogLevel)
	}
}

func TestManager_DebounceCoalescesRapidChanges(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan Update, 10)
	ch <- Update{Data: []byte("")} // Initial value

	var applyCount atomic.Int32
	var lastLevel atomic.Pointer[string]

	mgr := New(
		NewChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			applyCount.Add(1)
			lvl := ev.Config.LogLevel
			lastLevel.Store(&lvl)
			return nil
		},
	).Debounce(100 * time.Millisecond).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Initial value applied immediately (no debounce on first)
	if applyCount.Load() != 1 {
		t.Errorf("expected 1 apply after start, got %d", applyCount.Load())
	}

	// Send rapid changes
	ch <- Update{Data: []byte("log_level = \"trace\"\n")}
	ch <- Update{Data: []byte("log_level = \"info\"\n")}
	ch <- Update{Data: []byte("log_level = \"debug\"\n")}

	// Allow goroutine to receive changes
	time.Sleep(10 * time.Millisecond)

	// No additional applies yet - debounce timer hasn't fired
	if applyCount.Load() != 1 {
		t.Errorf("expected still 1 apply (debouncing), got %d", applyCount.Load())
	}

	// Advance clock past debounce duration
	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()

	// Allow goroutine to process timer
	time.Sleep(10 * time.Millisecond)

	// Should have applied only the latest value
	if applyCount.Load() != 2 {
		t.Errorf("expected 2 applies after debounce, got %d", applyCount.Load())
	}
	if lvl := lastLevel.Load(); lvl == nil || *lvl != "debug" {
		t.Errorf("expected last log level debug, got %v", lvl)
	}
}

func TestManager_ErrorHistory(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, _ Event) error { return nil },
	).SyncMode().ErrorHistorySize(5)

	ch <- Update{Data: []byte("not toml")}
	mgr.Start(ctx)

	ch <- Update{Data: []byte("also not toml")}
	mgr.Process(ctx)

	history := mgr.ErrorHistory()
	if len(history) != 2 {
		t.Fatalf("expected 2 errors in history, got %d", len(history))
	}

	// Success clears the history.
	ch <- Update{Data: []byte("")}
	mgr.Process(ctx)

	if history := mgr.ErrorHistory(); history != nil {
		t.Errorf("expected cleared history, got %d entries", len(history))
	}
	if mgr.LastError() != nil {
		t.Errorf("expected no last error, got %v", mgr.LastError())
	}
}

// managerMetrics captures metrics callbacks for assertions.
type managerMetrics struct {
	successes   atomic.Int32
	changes     atomic.Int32
	transitions atomic.Int32
	failures    []string
}

func (m *managerMetrics) OnStateChange(_, _ State)                       { m.transitions.Add(1) }
func (m *managerMetrics) OnProcessSuccess(_ time.Duration)               { m.successes.Add(1) }
func (m *managerMetrics) OnProcessFailure(stage string, _ time.Duration) { m.failures = append(m.failures, stage) }
func (m *managerMetrics) OnChangeReceived()                              { m.changes.Add(1) }

func TestManager_Metrics(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	metrics := &managerMetrics{}
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, _ Event) error { return nil },
	).SyncMode().Metrics(metrics)

	ch <- Update{Data: []byte("")}
	mgr.Start(ctx)

	ch <- Update{Data: []byte("not toml")}
	mgr.Process(ctx)

	if metrics.successes.Load() != 1 {
		t.Errorf("expected 1 success, got %d", metrics.successes.Load())
	}
	if metrics.changes.Load() != 2 {
		t.Errorf("expected 2 changes received, got %d", metrics.changes.Load())
	}
	if len(metrics.failures) != 1 || metrics.failures[0] != "decode" {
		t.Errorf("expected one decode failure, got %v", metrics.failures)
	}
	// loading→healthy and healthy→degraded
	if metrics.transitions.Load() != 2 {
		t.Errorf("expected 2 state transitions, got %d", metrics.transitions.Load())
	}
}

func TestManager_StartupTimeout(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan Update) // never emits

	mgr := New(
		NewChannelWatcher(ch),
		func(_ context.Context, _ Event) error { return nil },
	).StartupTimeout(5 * time.Second).Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Start(ctx) }()

	time.Sleep(10 * time.Millisecond)
	clock.Advance(6 * time.Second)
	clock.BlockUntilReady()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected startup timeout error")
		}
		if !strings.Contains(err.Error(), "startup timeout") {
			t.Errorf("expected startup timeout error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Start to return")
	}
}

func TestManager_CannotStartTwice(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 2)

	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, _ Event) error { return nil },
	).SyncMode()

	ch <- Update{Data: []byte("")}
	mgr.Start(ctx)

	ch <- Update{Data: []byte("")}
	if err := mgr.Start(ctx); err == nil {
		t.Error("expected error on second start")
	}
}

func TestManager_ProcessNotAvailableWithoutSyncMode(t *testing.T) {
	ch := make(chan Update, 1)
	ch <- Update{Data: []byte("")}

	mgr := New(
		NewChannelWatcher(ch),
		func(_ context.Context, _ Event) error { return nil },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if mgr.Process(ctx) {
		t.Error("expected Process to return false when not in sync mode")
	}
}

func TestManager_BaseOverlay(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Update, 1)

	base := Default()
	base.LogLevel = "debug"
	base.Clock.Format = "%H"

	var applied Config
	mgr := New(
		NewSyncChannelWatcher(ch),
		func(_ context.Context, ev Event) error {
			applied = ev.Config
			return nil
		},
	).SyncMode().Base(base)

	// The file overrides one base field and leaves the other alone.
	ch <- Update{Data: []byte("log_level = \"error\"\n")}

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if applied.LogLevel != "error" {
		t.Errorf("expected log level error, got %s", applied.LogLevel)
	}
	if applied.Clock.Format != "%H" {
		t.Errorf("expected base clock format retained, got %s", applied.Clock.Format)
	}
}
