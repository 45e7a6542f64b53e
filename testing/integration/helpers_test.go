package integration

import (
	"testing"
	"time"
)

// waitFor polls a condition until it returns true or timeout is
// reached. Short polling intervals keep the tests fast without racing
// the watcher's settle window.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
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
