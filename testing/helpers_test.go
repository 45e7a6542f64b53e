package testing

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/bosun/config"
)

func TestWaitFor(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		if !WaitFor(t, 100*time.Millisecond, func() bool { return true }) {
			t.Error("expected WaitFor to return true")
		}
	})

	t.Run("condition never met", func(t *testing.T) {
		if WaitFor(t, 50*time.Millisecond, func() bool { return false }) {
			t.Error("expected WaitFor to return false on timeout")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		start := time.Now()
		met := false
		go func() {
			time.Sleep(30 * time.Millisecond)
			met = true
		}()
		if !WaitFor(t, 100*time.Millisecond, func() bool { return met }) {
			t.Error("expected WaitFor to return true")
		}
		if time.Since(start) < 30*time.Millisecond {
			t.Error("condition should have taken at least 30ms")
		}
	})
}

func TestWaitForState(t *testing.T) {
	m, ch := NewTestManager(t, func(context.Context, config.Event) error { return nil })

	ch <- RawUpdate(`log_level = "debug"`)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !WaitForState(t, m, config.StateHealthy, 100*time.Millisecond) {
		t.Error("expected manager to reach healthy state")
	}
}

func TestRequireState(t *testing.T) {
	m, ch := NewTestManager(t, func(context.Context, config.Event) error { return nil })

	ch <- RawUpdate(`log_level = "debug"`)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	RequireState(t, m, config.StateHealthy)
}

func TestRequireConfig(t *testing.T) {
	m, ch := NewTestManager(t, func(context.Context, config.Event) error { return nil })

	ch <- RawUpdate(`log_level = "debug"`)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	RequireConfig(t, m, func(cfg config.Config) bool {
		return cfg.LogLevel == "debug"
	})
}

func TestRequireConfig_AfterRejectedUpdate(t *testing.T) {
	m, ch := NewTestManager(t, func(context.Context, config.Event) error { return nil })

	ch <- RawUpdate(`log_level = "debug"`)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch <- RawUpdate(`log_level = "verbose"`)
	m.Process(context.Background())

	RequireState(t, m, config.StateDegraded)
	RequireConfig(t, m, func(cfg config.Config) bool {
		return cfg.LogLevel == "debug"
	})
}

func TestNewTestManager(t *testing.T) {
	var received config.Event
	m, ch := NewTestManager(t, func(_ context.Context, event config.Event) error {
		received = event
		return nil
	})

	ch <- RawUpdate(`log_level = "trace"`)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if received.Kind != config.EventApplied {
		t.Errorf("event kind = %s, want applied", received.Kind)
	}
	if received.Config.LogLevel != "trace" {
		t.Errorf("log level = %q, want trace", received.Config.LogLevel)
	}

	ch <- RawUpdate(`log_level = "warn"`)
	if !m.Process(context.Background()) {
		t.Fatal("Process() found no pending update")
	}
	if received.Config.LogLevel != "warn" {
		t.Errorf("log level = %q after second update, want warn", received.Config.LogLevel)
	}
}
