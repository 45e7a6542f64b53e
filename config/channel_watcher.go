package config

import "context"

// ChannelWatcher wraps an existing update channel as a Watcher.
// Useful for testing and custom sources that already produce updates.
type ChannelWatcher struct {
	ch   <-chan Update
	sync bool
}

// NewChannelWatcher creates a ChannelWatcher that forwards updates from
// the given channel through an internal goroutine.
func NewChannelWatcher(ch <-chan Update) *ChannelWatcher {
	return &ChannelWatcher{ch: ch, sync: false}
}

// NewSyncChannelWatcher creates a ChannelWatcher that returns the
// source channel directly without an intermediate goroutine. Use with
// SyncMode for deterministic testing.
func NewSyncChannelWatcher(ch <-chan Update) *ChannelWatcher {
	return &ChannelWatcher{ch: ch, sync: true}
}

// Watch returns a channel that emits updates from the wrapped channel.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan Update, error) {
	if w.sync {
		return w.ch, nil
	}

	out := make(chan Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-w.ch:
				if !ok {
					return
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
