package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultSettleInterval is the default time the watcher waits for a
// burst of filesystem events to settle before emitting one update.
const DefaultSettleInterval = 100 * time.Millisecond

// reinitDelay is the pause before rebuilding a failed filesystem watch.
const reinitDelay = time.Second

// FileWatcher watches a configuration file and emits logical updates.
//
// The parent directory is watched rather than the file itself because
// editors routinely replace files via rename on save. Raw events are
// filtered by exact name, collected until the burst settles, and
// collapsed to one logical update: a bare delete or move-away is a
// removal, anything involving a create or write is a change. On a
// change the file is re-read and the bytes or the read failure become
// the update. If the underlying watch fails, the watcher rebuilds it
// and re-emits the current contents instead of propagating the
// failure.
type FileWatcher struct {
	path   string
	settle time.Duration
	clock  clockz.Clock
}

// NewFileWatcher creates a FileWatcher for the given file path.
func NewFileWatcher(path string) *FileWatcher {
	return &FileWatcher{
		path:   filepath.Clean(path),
		settle: DefaultSettleInterval,
		clock:  clockz.RealClock,
	}
}

// Settle sets how long a burst of filesystem events may keep extending
// before one logical update is emitted. Must be called before Watch().
func (w *FileWatcher) Settle(d time.Duration) *FileWatcher {
	w.settle = d
	return w
}

// Clock sets a custom clock for settle timing.
// Use this with clockz.FakeClock for deterministic tests.
// Must be called before Watch().
func (w *FileWatcher) Clock(clock clockz.Clock) *FileWatcher {
	w.clock = clock
	return w
}

// Watch begins watching the file and returns a channel that emits
// logical updates. The current contents are emitted immediately to
// support initial configuration loading.
func (w *FileWatcher) Watch(ctx context.Context) (<-chan Update, error) {
	fsw, err := w.newWatch()
	if err != nil {
		return nil, err
	}

	out := make(chan Update)

	go func() {
		defer close(out)

		// Emit initial contents
		if !w.send(ctx, out, w.read()) {
			fsw.Close()
			return
		}

		for {
			reinit := w.consume(ctx, fsw, out)
			fsw.Close()
			if !reinit {
				return
			}

			next, err := w.rebuild(ctx)
			if err != nil {
				return
			}
			fsw = next

			// Changes may have been missed during the gap, so the
			// current contents are emitted again.
			if !w.send(ctx, out, w.read()) {
				fsw.Close()
				return
			}
		}
	}()

	return out, nil
}

// newWatch builds a filesystem watch over the parent directory.
func (w *FileWatcher) newWatch() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	return fsw, nil
}

// consume processes raw filesystem events until the stream ends or the
// context is canceled. It returns true when the stream ended and the
// watch should be rebuilt, false when the watcher should stop.
func (w *FileWatcher) consume(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Update) bool {
	var (
		timer clockz.Timer
		batch []fsnotify.Op
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		// Get timer channel or nil if no timer
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			return false

		case ev, ok := <-fsw.Events:
			if !ok {
				return true
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			batch = append(batch, ev.Op)

			// Reset or start settle timer
			if timer == nil {
				timer = w.clock.NewTimer(w.settle)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(w.settle)
			}

		case _, ok := <-fsw.Errors:
			if !ok {
				return true
			}
			// Continue watching despite errors

		case <-timerC:
			timer = nil
			if len(batch) == 0 {
				continue
			}
			upd := w.collapse(batch)
			batch = nil
			if !w.send(ctx, out, upd) {
				return false
			}
		}
	}
}

// collapse reduces a settled batch of raw operations to one logical
// update.
func (w *FileWatcher) collapse(ops []fsnotify.Op) Update {
	if removedBatch(ops) {
		return Update{Path: w.path, Removed: true}
	}
	return w.read()
}

// removedBatch reports whether a settled batch amounts to the file
// disappearing: at least one delete or move-away and no create or
// write that would indicate a replacement.
func removedBatch(ops []fsnotify.Op) bool {
	removed := false
	for _, op := range ops {
		if op.Has(fsnotify.Create) || op.Has(fsnotify.Write) {
			return false
		}
		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			removed = true
		}
	}
	return removed
}

// read produces an update from the file's current contents.
func (w *FileWatcher) read() Update {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return Update{Path: w.path, Err: ReadError(w.path, err)}
	}
	return Update{Path: w.path, Data: data}
}

// send delivers an update, honoring cancellation.
func (w *FileWatcher) send(ctx context.Context, out chan<- Update, upd Update) bool {
	select {
	case out <- upd:
		return true
	case <-ctx.Done():
		return false
	}
}

// rebuild recreates the filesystem watch after a stream failure,
// pausing between attempts until one succeeds or the context ends.
func (w *FileWatcher) rebuild(ctx context.Context) (*fsnotify.Watcher, error) {
	for {
		timer := w.clock.NewTimer(reinitDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}

		fsw, err := w.newWatch()
		if err != nil {
			capitan.Emit(ctx, WatchReset,
				KeyPath.Field(w.path),
				KeyError.Field(err.Error()),
			)
			continue
		}

		capitan.Emit(ctx, WatchReset,
			KeyPath.Field(w.path),
		)
		return fsw, nil
	}
}
