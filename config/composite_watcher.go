package config

import (
	"context"
	"fmt"
	"sync"
)

// CompositeWatcher layers several sources and always forwards the
// highest-priority one that currently holds a readable value. Sources
// are listed most-preferred first, a user config file over a system
// default, for example. When the preferred source is removed or fails
// to read, the watcher fails over to the next layer; when it comes
// back, the watcher switches back to it.
//
// Each forwarded Update is one source's update verbatim, so Path
// still names the file the effective configuration came from. When no
// layer is readable the primary source's failure is forwarded, which
// keeps the manager's degraded reporting pointed at the file the user
// should fix.
type CompositeWatcher struct {
	sources []Watcher
}

// NewCompositeWatcher creates a CompositeWatcher over the given
// sources, most-preferred first.
func NewCompositeWatcher(sources ...Watcher) *CompositeWatcher {
	return &CompositeWatcher{sources: sources}
}

// usable reports whether an update can serve as the effective
// configuration. An empty file is usable; it decodes to defaults.
func usable(u Update) bool {
	return u.Err == nil && !u.Removed
}

// Watch subscribes to every source and returns the merged stream. It
// blocks until each source has emitted its initial value so the first
// forwarded update reflects the full layering.
func (w *CompositeWatcher) Watch(ctx context.Context) (<-chan Update, error) {
	if len(w.sources) == 0 {
		return nil, fmt.Errorf("composite watcher requires at least one source")
	}

	chans := make([]<-chan Update, len(w.sources))
	for i, src := range w.sources {
		ch, err := src.Watch(ctx)
		if err != nil {
			return nil, fmt.Errorf("start source %d: %w", i, err)
		}
		chans[i] = ch
	}

	latest := make([]Update, len(chans))
	for i, ch := range chans {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case upd, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("source %d closed before emitting initial value", i)
			}
			latest[i] = upd
		}
	}

	out := make(chan Update)
	go w.run(ctx, chans, latest, out)
	return out, nil
}

// run fans the source streams into out. Per-source goroutines record
// the newest update and signal the selector with their index; the
// selector alone decides what the effective layer is and what gets
// forwarded.
func (w *CompositeWatcher) run(ctx context.Context, chans []<-chan Update, latest []Update, out chan<- Update) {
	defer close(out)

	var mu sync.Mutex

	changed := make(chan int, len(chans))

	var wg sync.WaitGroup
	wg.Add(len(chans))
	for i, ch := range chans {
		go func(idx int, ch <-chan Update) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case upd, ok := <-ch:
					if !ok {
						return
					}
					mu.Lock()
					latest[idx] = upd
					mu.Unlock()
					select {
					case changed <- idx:
					case <-ctx.Done():
						return
					}
				}
			}
		}(i, ch)
	}

	// Closes changed once every source is gone so the selector drains
	// and exits instead of blocking forever.
	go func() {
		wg.Wait()
		close(changed)
	}()

	activeIndex := func() int {
		for i, upd := range latest {
			if usable(upd) {
				return i
			}
		}
		return -1
	}

	emit := func(upd Update) bool {
		select {
		case out <- upd:
			return true
		case <-ctx.Done():
			return false
		}
	}

	mu.Lock()
	active := activeIndex()
	initial := latest[0]
	if active >= 0 {
		initial = latest[active]
	}
	mu.Unlock()
	if !emit(initial) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case idx, ok := <-changed:
			if !ok {
				return
			}

			mu.Lock()
			next := activeIndex()
			var upd Update
			switch {
			case next >= 0 && (idx == next || next != active):
				// The effective layer changed content, or the
				// layering itself shifted.
				upd = latest[next]
			case next < 0 && (idx == 0 || active >= 0):
				// Nothing readable: surface the primary's failure,
				// once on the transition and again on each primary
				// update.
				upd = latest[0]
			default:
				// An inactive layer changed; the effective
				// configuration did not.
				active = next
				mu.Unlock()
				continue
			}
			active = next
			mu.Unlock()

			if !emit(upd) {
				return
			}
		}
	}
}
