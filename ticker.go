package bosun

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
)

// Adaptive tick cadence defaults.
const (
	DefaultFastInterval  = 16 * time.Millisecond
	DefaultSlowInterval  = 33 * time.Millisecond
	DefaultIdleThreshold = 3
)

// Ticker drives the presentation poll cadence. It runs at the fast
// interval while events are observed and backs off to the slow
// interval after a few consecutive idle ticks, reverting to fast on
// the next activity. This bounds both event latency under load and
// idle CPU usage.
type Ticker struct {
	fast          time.Duration
	slow          time.Duration
	idleThreshold int
	idleTicks     int
	interval      time.Duration
	clock         clockz.Clock
}

// NewTicker creates a ticker with the default cadence (16ms fast, 33ms
// slow, three idle ticks before slowing down).
func NewTicker() *Ticker {
	return &Ticker{
		fast:          DefaultFastInterval,
		slow:          DefaultSlowInterval,
		idleThreshold: DefaultIdleThreshold,
		interval:      DefaultFastInterval,
		clock:         clockz.RealClock,
	}
}

// Fast sets the interval used while events flow. Must be called before
// Run.
func (t *Ticker) Fast(d time.Duration) *Ticker {
	t.fast = d
	t.interval = d
	return t
}

// Slow sets the interval used after the idle threshold is reached.
// Must be called before Run.
func (t *Ticker) Slow(d time.Duration) *Ticker {
	t.slow = d
	return t
}

// IdleThreshold sets how many consecutive idle ticks switch the
// cadence to slow. Must be called before Run.
func (t *Ticker) IdleThreshold(n int) *Ticker {
	if n > 0 {
		t.idleThreshold = n
	}
	return t
}

// Clock sets a custom clock. Use this with clockz.FakeClock for
// deterministic cadence testing. Must be called before Run.
func (t *Ticker) Clock(clock clockz.Clock) *Ticker {
	t.clock = clock
	return t
}

// Interval returns the current tick interval.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// RecordActivity resets the cadence to fast.
func (t *Ticker) RecordActivity() {
	t.idleTicks = 0
	t.interval = t.fast
}

// RecordIdle counts one empty tick, switching to the slow cadence once
// the idle threshold is reached.
func (t *Ticker) RecordIdle() {
	if t.idleTicks < t.idleThreshold {
		t.idleTicks++
	}
	if t.idleTicks >= t.idleThreshold {
		t.interval = t.slow
	}
}

// Run invokes tick once per interval until ctx is canceled. The tick
// callback reports whether it observed activity; a drain failure
// should be reported as activity so the cadence stays fast while the
// failure is surfaced.
func (t *Ticker) Run(ctx context.Context, tick func(context.Context) bool) error {
	for {
		timer := t.clock.NewTimer(t.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}

		if tick(ctx) {
			t.RecordActivity()
		} else {
			t.RecordIdle()
		}
	}
}
