package hypr

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// eventChannelCapacity bounds each subscription stream. Producers
// block when the consumer falls this far behind.
const eventChannelCapacity = 64

// translator maps one raw notification onto at most one coarse event.
// A false second return drops the notification as foreign to this
// subscription. A non-nil error is published on the stream in place
// of an event.
type translator[E any] func(ctx context.Context, raw RawEvent) (E, bool, error)

// WindowEvents subscribes to coarse window events. The channel closes
// when ctx is canceled; until then the native listener is rebuilt
// after every stop, failure, or hang.
func (c *Client) WindowEvents(ctx context.Context) (<-chan Notification[WindowEvent], error) {
	events := make(chan Notification[WindowEvent], eventChannelCapacity)
	go runListener(ctx, c, OpWindowEvents, events, translateWindowEvent)
	return events, nil
}

// WorkspaceEvents subscribes to coarse workspace events. The channel
// closes when ctx is canceled.
func (c *Client) WorkspaceEvents(ctx context.Context) (<-chan Notification[WorkspaceEvent], error) {
	events := make(chan Notification[WorkspaceEvent], eventChannelCapacity)
	go runListener(ctx, c, OpWorkspaceEvents, events, translateWorkspaceEvent)
	return events, nil
}

// KeyboardEvents subscribes to coarse keyboard events. Layout and
// configuration notifications re-query KeyboardState, so each event
// carries verified state rather than the raw notification payload.
func (c *Client) KeyboardEvents(ctx context.Context) (<-chan Notification[KeyboardEvent], error) {
	events := make(chan Notification[KeyboardEvent], eventChannelCapacity)
	go runListener(ctx, c, OpKeyboardEvents, events, c.translateKeyboardEvent)
	return events, nil
}

// runListener owns one subscription stream: it opens the event
// connection, pumps raw notifications through the translator, and
// rebuilds the connection after every stop, failure, or hang. The
// loop exits only when ctx is canceled.
func runListener[E any](ctx context.Context, c *Client, operation string, events chan<- Notification[E], translate translator[E]) {
	defer close(events)

	for {
		if ctx.Err() != nil {
			return
		}
		if !listenCycle(ctx, c, operation, events, translate) {
			return
		}
		if !sleepBackoff(ctx, c.clock, c.cfg.RetryBackoff) {
			return
		}
	}
}

// listenCycle runs the native event loop once, bounded by the
// listener timeout. Returns false when the subscription should end.
func listenCycle[E any](ctx context.Context, c *Client, operation string, events chan<- Notification[E], translate translator[E]) bool {
	conn, err := c.transport.Listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		capitan.Emit(ctx, ListenerFailed,
			KeyOperation.Field(operation),
			KeyError.Field(err.Error()),
		)
		return send(ctx, events, Notification[E]{Err: BackendError(operation, err)})
	}

	lines := make(chan RawEvent)
	readErr := make(chan error, 1)
	pumpDone := make(chan struct{})
	defer func() {
		close(pumpDone)
		conn.Close()
	}()
	go func() {
		for {
			raw, err := conn.Next()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- raw:
			case <-pumpDone:
				return
			}
		}
	}()

	timer := c.clock.NewTimer(c.cfg.ListenerTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case raw := <-lines:
			event, ok, terr := translate(ctx, raw)
			if terr != nil {
				if !send(ctx, events, Notification[E]{Err: terr}) {
					return false
				}
				continue
			}
			if !ok {
				continue
			}
			if !send(ctx, events, Notification[E]{Event: event}) {
				return false
			}

		case err := <-readErr:
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				capitan.Emit(ctx, ListenerStopped, KeyOperation.Field(operation))
				return true
			}
			capitan.Emit(ctx, ListenerFailed,
				KeyOperation.Field(operation),
				KeyError.Field(err.Error()),
			)
			return send(ctx, events, Notification[E]{Err: BackendError(operation, err)})

		case <-timer.C():
			capitan.Emit(ctx, ListenerTimedOut,
				KeyOperation.Field(operation),
				KeyTimeout.Field(c.cfg.ListenerTimeout),
			)
			return send(ctx, events, Notification[E]{Err: TimeoutError(operation, c.cfg.ListenerTimeout)})
		}
	}
}

// send delivers one stream item, blocking until the consumer accepts
// it or ctx ends. A false return means the receiver is gone.
func send[E any](ctx context.Context, events chan<- Notification[E], item Notification[E]) bool {
	select {
	case events <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleepBackoff pauses between listener rebuilds. Returns false when
// ctx ended during the pause.
func sleepBackoff(ctx context.Context, clock clockz.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}

// translateWindowEvent collapses raw window notifications onto the
// coarse window event set.
func translateWindowEvent(_ context.Context, raw RawEvent) (WindowEvent, bool, error) {
	switch raw.Name {
	case "activewindow":
		return WindowActiveChanged, true, nil
	case "closewindow":
		return WindowClosed, true, nil
	case "workspace":
		return WindowFocusMoved, true, nil
	default:
		return 0, false, nil
	}
}

// translateWorkspaceEvent collapses raw workspace notifications onto
// the coarse workspace event set. Payloads are dropped except for the
// special prefix: consumers re-query WorkspaceSnapshot.
func translateWorkspaceEvent(_ context.Context, raw RawEvent) (WorkspaceEvent, bool, error) {
	switch raw.Name {
	case "createworkspace":
		return WorkspaceAdded, true, nil
	case "workspace":
		return WorkspaceChanged, true, nil
	case "destroyworkspace":
		if strings.HasPrefix(raw.Data, "special:") {
			return WorkspaceSpecialRemoved, true, nil
		}
		return WorkspaceRemoved, true, nil
	case "moveworkspace":
		return WorkspaceMoved, true, nil
	case "activespecial":
		return WorkspaceSpecialChanged, true, nil
	case "openwindow":
		return WorkspaceWindowOpened, true, nil
	case "closewindow":
		return WorkspaceWindowClosed, true, nil
	case "movewindow":
		return WorkspaceWindowMoved, true, nil
	case "focusedmon":
		return WorkspaceMonitorChanged, true, nil
	default:
		return 0, false, nil
	}
}

// translateKeyboardEvent collapses raw keyboard notifications onto
// the coarse keyboard event set.
func (c *Client) translateKeyboardEvent(ctx context.Context, raw RawEvent) (KeyboardEvent, bool, error) {
	switch raw.Name {
	case "activelayout":
		state, err := c.KeyboardState(ctx)
		if err != nil {
			return KeyboardEvent{}, false, err
		}
		return KeyboardEvent{Kind: KeyboardLayoutChanged, Layout: state.ActiveLayout}, true, nil
	case "configreloaded":
		state, err := c.KeyboardState(ctx)
		if err != nil {
			return KeyboardEvent{}, false, err
		}
		return KeyboardEvent{Kind: KeyboardConfigChanged, MultipleLayouts: state.HasMultipleLayouts}, true, nil
	case "submap":
		return KeyboardEvent{Kind: KeyboardSubmapChanged, Submap: strings.TrimSpace(raw.Data)}, true, nil
	default:
		return KeyboardEvent{}, false, nil
	}
}
