package config

import "context"

// Update is one logical configuration change from a Watcher. Exactly
// one of the three shapes is populated: raw Data for a changed source,
// Removed for a source that disappeared, or Err for a source that
// could not be read.
type Update struct {
	// Path is the source path when known, empty for non-file sources.
	// It is carried into errors reported for this update.
	Path string

	// Data holds the raw configuration bytes after a change.
	Data []byte

	// Removed reports that the source was deleted or moved away
	// without a replacement.
	Removed bool

	// Err holds the read failure that prevented Data from being
	// produced.
	Err error
}

// Watcher observes a configuration source and emits logical updates on
// a channel. Implementations must emit the current value immediately
// upon Watch being called to support initial configuration loading.
type Watcher interface {
	// Watch begins observing the source and returns a channel that
	// emits updates as they occur. The channel is closed when the
	// context is canceled or an unrecoverable error occurs.
	Watch(ctx context.Context) (<-chan Update, error)
}
