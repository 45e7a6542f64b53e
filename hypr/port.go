// Package hypr implements the compositor port against Hyprland's IPC
// sockets: typed queries and dispatch commands wrapped in retry and
// timeout budgets, plus coarse event subscriptions that survive
// listener hangs and compositor restarts.
//
// Synchronous requests run on a worker goroutine bounded by a request
// timeout and are retried with linear backoff. Subscriptions deliver
// coarse events only: several raw notifications collapse onto one
// domain event, and consumers re-query a full snapshot instead of
// relying on event payloads.
//
// Example:
//
//	transport, err := hypr.NewSocketTransport()
//	if err != nil {
//	    return err // no compositor instance advertised
//	}
//	client := hypr.NewClient(transport)
//
//	events, _ := client.WorkspaceEvents(ctx)
//	for item := range events {
//	    if item.Err != nil {
//	        continue // the listener rebuilds itself
//	    }
//	    snapshot, err := client.WorkspaceSnapshot(ctx)
//	    ...
//	}
package hypr

import (
	"context"
	"fmt"
)

// Operation descriptors carried in Error.Operation. Every Port
// implementation reports failures under these names.
const (
	OpActiveWindow      = "active_window"
	OpWorkspaceSnapshot = "workspace_snapshot"
	OpChangeWorkspace   = "change_workspace"
	OpToggleSpecial     = "toggle_special_workspace"
	OpKeyboardState     = "keyboard_state"
	OpSwitchLayout      = "switch_keyboard_layout"
	OpWindowEvents      = "window_events"
	OpWorkspaceEvents   = "workspace_events"
	OpKeyboardEvents    = "keyboard_events"
	OpConnect           = "connect"
)

// Window describes the focused compositor window.
type Window struct {
	Title string
	Class string
}

// Monitor describes one output known to the compositor.
type Monitor struct {
	ID   int
	Name string

	// SpecialWorkspaceID is the special workspace shown on this
	// monitor, nil when none is active.
	SpecialWorkspaceID *int
}

// Workspace describes one workspace known to the compositor.
type Workspace struct {
	ID          int
	Name        string
	MonitorID   *int
	MonitorName string
	WindowCount int
}

// Snapshot is an immutable view of monitors and workspaces taken at
// one point in time.
type Snapshot struct {
	Monitors   []Monitor
	Workspaces []Workspace

	// ActiveWorkspaceID is nil when the compositor reported no
	// focused workspace.
	ActiveWorkspaceID *int
}

// KeyboardState is the keyboard configuration known to the compositor.
type KeyboardState struct {
	// ActiveLayout is the active keymap of the main keyboard.
	ActiveLayout string

	// HasMultipleLayouts reports whether more than one layout is
	// configured.
	HasMultipleLayouts bool

	// ActiveSubmap is the bound submap, empty when the default submap
	// is active. Queries leave it empty; submap changes arrive through
	// KeyboardEvents.
	ActiveSubmap string
}

// MonitorSelector identifies a monitor for dispatch calls.
type MonitorSelector struct {
	id   int
	name string
	byID bool
}

// MonitorID selects a monitor by its numeric identifier.
func MonitorID(id int) MonitorSelector {
	return MonitorSelector{id: id, byID: true}
}

// MonitorName selects a monitor by name.
func MonitorName(name string) MonitorSelector {
	return MonitorSelector{name: name}
}

// String returns the diagnostic form of the selector.
func (s MonitorSelector) String() string {
	if s.byID {
		return fmt.Sprintf("monitor-id:%d", s.id)
	}
	return "monitor-name:" + s.name
}

// WorkspaceSelector identifies a workspace for dispatch calls.
type WorkspaceSelector struct {
	id   int
	name string
	byID bool
}

// WorkspaceID selects a workspace by its numeric identifier.
func WorkspaceID(id int) WorkspaceSelector {
	return WorkspaceSelector{id: id, byID: true}
}

// WorkspaceName selects a workspace by name.
func WorkspaceName(name string) WorkspaceSelector {
	return WorkspaceSelector{name: name}
}

// String returns the diagnostic form of the selector.
func (s WorkspaceSelector) String() string {
	if s.byID {
		return fmt.Sprintf("workspace-id:%d", s.id)
	}
	return "workspace-name:" + s.name
}

// WindowEvent is a coarse window notification. Payloads are
// intentionally absent: consumers re-query ActiveWindow.
type WindowEvent int32

const (
	// WindowActiveChanged reports that focus moved to another window.
	WindowActiveChanged WindowEvent = iota

	// WindowFocusMoved reports that workspace focus moved.
	WindowFocusMoved

	// WindowClosed reports that a window was closed.
	WindowClosed
)

// String returns a human-readable event name.
func (e WindowEvent) String() string {
	switch e {
	case WindowActiveChanged:
		return "active_changed"
	case WindowFocusMoved:
		return "focus_moved"
	case WindowClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WorkspaceEvent is a coarse workspace notification. Payloads are
// intentionally absent: consumers re-query WorkspaceSnapshot.
type WorkspaceEvent int32

const (
	// WorkspaceAdded reports that a workspace was created.
	WorkspaceAdded WorkspaceEvent = iota

	// WorkspaceChanged reports that workspace focus or metadata
	// changed.
	WorkspaceChanged

	// WorkspaceRemoved reports that a workspace was destroyed.
	WorkspaceRemoved

	// WorkspaceMoved reports that a workspace moved to another
	// monitor.
	WorkspaceMoved

	// WorkspaceSpecialChanged reports that the active special
	// workspace changed.
	WorkspaceSpecialChanged

	// WorkspaceSpecialRemoved reports that a special workspace was
	// destroyed.
	WorkspaceSpecialRemoved

	// WorkspaceWindowOpened reports that a window opened within a
	// workspace.
	WorkspaceWindowOpened

	// WorkspaceWindowClosed reports that a window closed within a
	// workspace.
	WorkspaceWindowClosed

	// WorkspaceWindowMoved reports that a window moved between
	// workspaces.
	WorkspaceWindowMoved

	// WorkspaceMonitorChanged reports that the active monitor
	// changed.
	WorkspaceMonitorChanged
)

// String returns a human-readable event name.
func (e WorkspaceEvent) String() string {
	switch e {
	case WorkspaceAdded:
		return "added"
	case WorkspaceChanged:
		return "changed"
	case WorkspaceRemoved:
		return "removed"
	case WorkspaceMoved:
		return "moved"
	case WorkspaceSpecialChanged:
		return "special_changed"
	case WorkspaceSpecialRemoved:
		return "special_removed"
	case WorkspaceWindowOpened:
		return "window_opened"
	case WorkspaceWindowClosed:
		return "window_closed"
	case WorkspaceWindowMoved:
		return "window_moved"
	case WorkspaceMonitorChanged:
		return "monitor_changed"
	default:
		return "unknown"
	}
}

// KeyboardEventKind discriminates KeyboardEvent values.
type KeyboardEventKind int32

const (
	// KeyboardLayoutChanged reports that the active layout changed.
	KeyboardLayoutChanged KeyboardEventKind = iota

	// KeyboardConfigChanged reports that the layout configuration
	// changed, usually after a compositor config reload.
	KeyboardConfigChanged

	// KeyboardSubmapChanged reports that the active submap changed.
	KeyboardSubmapChanged
)

// String returns a human-readable kind name.
func (k KeyboardEventKind) String() string {
	switch k {
	case KeyboardLayoutChanged:
		return "layout_changed"
	case KeyboardConfigChanged:
		return "config_changed"
	case KeyboardSubmapChanged:
		return "submap_changed"
	default:
		return "unknown"
	}
}

// KeyboardEvent is a coarse keyboard notification. Only the field
// matching Kind carries a value.
type KeyboardEvent struct {
	Kind KeyboardEventKind

	// Layout is the active layout after a KeyboardLayoutChanged
	// event.
	Layout string

	// MultipleLayouts reports whether more than one layout is
	// configured after a KeyboardConfigChanged event.
	MultipleLayouts bool

	// Submap is the active submap after a KeyboardSubmapChanged
	// event, empty when the default submap became active.
	Submap string
}

// Notification is one item on a subscription stream. A non-nil Err
// reports a listener failure; the stream stays open while the
// listener rebuilds, so consumers should keep receiving.
type Notification[E any] struct {
	Event E
	Err   error
}

// Port is the capability interface compositor-aware modules depend
// on. Exactly one backend implements it at a time.
//
// Synchronous methods return *Error values distinguishing timeouts,
// backend failures, an absent compositor instance, unsupported
// operations, and ad hoc messages. Subscription channels close only
// when ctx is canceled.
type Port interface {
	// WindowEvents subscribes to coarse window events.
	WindowEvents(ctx context.Context) (<-chan Notification[WindowEvent], error)

	// WorkspaceEvents subscribes to coarse workspace events.
	WorkspaceEvents(ctx context.Context) (<-chan Notification[WorkspaceEvent], error)

	// KeyboardEvents subscribes to coarse keyboard events.
	KeyboardEvents(ctx context.Context) (<-chan Notification[KeyboardEvent], error)

	// ActiveWindow returns the focused window, or nil when none.
	ActiveWindow(ctx context.Context) (*Window, error)

	// WorkspaceSnapshot returns the current monitors and workspaces.
	WorkspaceSnapshot(ctx context.Context) (Snapshot, error)

	// ChangeWorkspace focuses the selected workspace.
	ChangeWorkspace(ctx context.Context, workspace WorkspaceSelector) error

	// FocusAndToggleSpecialWorkspace focuses the selected monitor and
	// toggles the named special workspace on it.
	FocusAndToggleSpecialWorkspace(ctx context.Context, monitor MonitorSelector, workspaceName string) error

	// KeyboardState returns the current keyboard layout metadata.
	KeyboardState(ctx context.Context) (KeyboardState, error)

	// SwitchKeyboardLayout cycles every keyboard to its next layout.
	SwitchKeyboardLayout(ctx context.Context) error
}
