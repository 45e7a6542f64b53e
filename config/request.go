package config

import "github.com/zoobzio/pipz"

// Request carries a configuration update through the apply pipeline.
// It provides access to both the previous and candidate values,
// allowing pipeline stages to make decisions based on what changed.
type Request struct {
	// Previous is the last successfully applied configuration. On
	// initial load this is the decode base (usually Default()).
	Previous Config

	// Current is the newly decoded and validated configuration.
	// Pipeline stages may modify this value before it is applied.
	Current Config

	// Impact describes the change between Previous and Current. It is
	// computed by the delivery stage, so middleware running before it
	// sees the zero value.
	Impact Impact

	// Raw contains the original bytes received from the watcher.
	Raw []byte
}

// Terminal is the final processing stage in a Manager pipeline. It
// receives the Request after all middleware has processed it.
type Terminal = pipz.Chainable[*Request]
