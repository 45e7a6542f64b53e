// Package testing provides test utilities for exercising the config
// manager and the service engines.
package testing

import (
	"testing"
	"time"

	"github.com/zoobzio/bosun/config"
)

// WaitFor polls a condition until it returns true or the timeout is
// reached. Returns true if the condition was met, false on timeout.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the manager reaches the expected state or
// timeout occurs.
func WaitForState(t *testing.T, m *config.Manager, expected config.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return m.State() == expected
	})
}

// RequireState fails the test immediately if the manager is not in the
// expected state.
func RequireState(t *testing.T, m *config.Manager, expected config.State) {
	t.Helper()
	if got := m.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// RequireConfig fails the test if no configuration is live or the live
// one fails the check.
func RequireConfig(t *testing.T, m *config.Manager, check func(config.Config) bool) {
	t.Helper()
	cfg, ok := m.Current()
	if !ok {
		t.Fatal("expected a live configuration, got none")
	}
	if !check(cfg) {
		t.Fatalf("config check failed: %+v", cfg)
	}
}

// RawUpdate wraps raw configuration bytes as a watcher update.
func RawUpdate(raw string) config.Update {
	return config.Update{Data: []byte(raw)}
}

// NewTestManager creates a manager with a sync channel watcher for
// deterministic testing. Returns the manager and the channel feeding
// it; queue updates, then drive them with Process one at a time.
func NewTestManager(t *testing.T, handler config.Handler) (*config.Manager, chan<- config.Update) {
	t.Helper()
	ch := make(chan config.Update, 10)
	m := config.New(config.NewSyncChannelWatcher(ch), handler).SyncMode()
	return m, ch
}
