// Package custom runs user-scripted bar modules: each definition
// names a click command and, optionally, a long-running listen
// command whose stdout lines carry the module's content as JSON.
//
// The Manager reconciles running listeners against the configured
// definitions and publishes every decoded line as a module envelope
// on the shared bus. Listener output rides a buffered, paced line
// stream so a chatty script cannot flood the consumer.
package custom

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/zoobzio/bosun/config"
)

// ListenData is one decoded listener line. Alt is the state label
// icon and alert rules match against; Text is the optional visible
// text, empty when the script sends none.
type ListenData struct {
	Alt  string `json:"alt"`
	Text string `json:"text"`
}

// EventKind discriminates listener events.
type EventKind int32

const (
	// EventUpdate replaces the module's listen data.
	EventUpdate EventKind = iota

	// EventError reports listener trouble: unparsable output, a read
	// failure, or the process exiting unsuccessfully.
	EventError
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventUpdate:
		return "update"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one listener notification. Events travel as module
// envelope payloads on the bus.
type Event struct {
	Kind EventKind
	Data ListenData
	Err  error
}

// NewUpdateEvent replaces the module's listen data.
func NewUpdateEvent(data ListenData) Event {
	return Event{Kind: EventUpdate, Data: data}
}

// NewErrorEvent reports listener trouble.
func NewErrorEvent(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// State is the folded module state: the last decoded data and the
// last error since that data arrived. A fresh update clears the
// error, so a script that recovers clears its own alert.
type State struct {
	Data ListenData
	Err  error
}

// Update applies one listener event.
func (s *State) Update(event Event) {
	switch event.Kind {
	case EventUpdate:
		s.Data = event.Data
		s.Err = nil
	case EventError:
		s.Err = event.Err
	}
}

type iconRule struct {
	pattern *regexp.Regexp
	icon    string
}

// Module is one compiled definition. The icon and alert patterns are
// compiled once at registration so lookups on the render path never
// touch the regexp cache.
type Module struct {
	Name    string
	Command string
	Listen  string
	Icon    string

	icons []iconRule
	alert *regexp.Regexp
}

// NewModule compiles a configured definition.
func NewModule(def config.CustomModule) (Module, error) {
	mod := Module{
		Name:    def.Name,
		Command: def.Command,
		Listen:  def.ListenCmd,
		Icon:    def.Icon,
	}

	// Sorted patterns keep first-match icon resolution stable across
	// reloads.
	patterns := make([]string, 0, len(def.Icons))
	for pattern := range def.Icons {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Module{}, fmt.Errorf("icon pattern %q: %w", pattern, err)
		}
		mod.icons = append(mod.icons, iconRule{pattern: re, icon: def.Icons[pattern]})
	}

	if def.Alert != "" {
		re, err := regexp.Compile(def.Alert)
		if err != nil {
			return Module{}, fmt.Errorf("alert pattern %q: %w", def.Alert, err)
		}
		mod.alert = re
	}
	return mod, nil
}

// IconFor resolves the icon for the given alt label: the first icon
// rule that matches wins, the static icon is the fallback.
func (m Module) IconFor(alt string) string {
	for _, rule := range m.icons {
		if rule.pattern.MatchString(alt) {
			return rule.icon
		}
	}
	return m.Icon
}

// Alerts reports whether the module should show its alert marker:
// the alert pattern matches the current alt label, or the listener
// reported an error that no later update has cleared.
func (m Module) Alerts(state State) bool {
	if state.Err != nil {
		return true
	}
	return m.alert != nil && m.alert.MatchString(state.Data.Alt)
}
