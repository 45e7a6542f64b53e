package hypr

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Client implements Port over a Transport, adding the resilience
// envelope: synchronous requests run on a worker goroutine bounded by
// the request timeout and are retried with linear backoff, and
// subscriptions rebuild their native listener whenever it stops,
// fails, or hangs.
//
// Configure before first use:
//
//	client := hypr.NewClient(transport).
//	    Config(cfg)
type Client struct {
	transport Transport
	cfg       ClientConfig
	clock     clockz.Clock
}

var _ Port = (*Client)(nil)

// NewClient creates a client with DefaultClientConfig.
func NewClient(transport Transport) *Client {
	return &Client{
		transport: transport,
		cfg:       DefaultClientConfig(),
		clock:     clockz.RealClock,
	}
}

// Config replaces the resilience tunables. Must be called before any
// request or subscription.
func (c *Client) Config(cfg ClientConfig) *Client {
	c.cfg = cfg
	return c
}

// Clock sets a custom clock for timeouts and backoff pauses. Use this
// with clockz.FakeClock for deterministic tests. Must be called
// before any request or subscription.
func (c *Client) Clock(clock clockz.Clock) *Client {
	c.clock = clock
	return c
}

// ActiveWindow returns the focused window, or nil when no window has
// focus.
func (c *Client) ActiveWindow(ctx context.Context) (*Window, error) {
	return executeWithRetry(ctx, c, OpActiveWindow, func() (*Window, error) {
		reply, err := c.transport.Request("j/activewindow")
		if err != nil {
			return nil, BackendError(OpActiveWindow, err)
		}
		if strings.TrimSpace(string(reply)) == "" {
			return nil, nil
		}
		var window windowReply
		if err := json.Unmarshal(reply, &window); err != nil {
			return nil, BackendError(OpActiveWindow, err)
		}
		if window.Address == "" {
			return nil, nil
		}
		return &Window{Title: window.Title, Class: window.Class}, nil
	})
}

// WorkspaceSnapshot returns the current monitors and workspaces. The
// three underlying queries run inside one retry budget: a failure in
// any of them retries the whole snapshot.
func (c *Client) WorkspaceSnapshot(ctx context.Context) (Snapshot, error) {
	return executeWithRetry(ctx, c, OpWorkspaceSnapshot, func() (Snapshot, error) {
		var monitors []monitorReply
		if err := c.requestJSON(OpWorkspaceSnapshot, "j/monitors", &monitors); err != nil {
			return Snapshot{}, err
		}
		var workspaces []workspaceReply
		if err := c.requestJSON(OpWorkspaceSnapshot, "j/workspaces", &workspaces); err != nil {
			return Snapshot{}, err
		}
		var active workspaceReply
		if err := c.requestJSON(OpWorkspaceSnapshot, "j/activeworkspace", &active); err != nil {
			return Snapshot{}, err
		}

		snapshot := Snapshot{
			Monitors:   make([]Monitor, 0, len(monitors)),
			Workspaces: make([]Workspace, 0, len(workspaces)),
		}
		for _, m := range monitors {
			monitor := Monitor{ID: m.ID, Name: m.Name}
			if m.SpecialWorkspace.ID != 0 {
				id := m.SpecialWorkspace.ID
				monitor.SpecialWorkspaceID = &id
			}
			snapshot.Monitors = append(snapshot.Monitors, monitor)
		}
		for _, w := range workspaces {
			snapshot.Workspaces = append(snapshot.Workspaces, Workspace{
				ID:          w.ID,
				Name:        w.Name,
				MonitorID:   w.MonitorID,
				MonitorName: w.Monitor,
				WindowCount: w.Windows,
			})
		}
		if active.ID != 0 {
			id := active.ID
			snapshot.ActiveWorkspaceID = &id
		}
		return snapshot, nil
	})
}

// ChangeWorkspace focuses the selected workspace.
func (c *Client) ChangeWorkspace(ctx context.Context, workspace WorkspaceSelector) error {
	_, err := executeWithRetry(ctx, c, OpChangeWorkspace, func() (struct{}, error) {
		return struct{}{}, c.dispatch(OpChangeWorkspace, "workspace "+workspaceDispatchArg(workspace))
	})
	return err
}

// FocusAndToggleSpecialWorkspace focuses the selected monitor and
// toggles the named special workspace on it. The two dispatches run
// inside one retry budget.
func (c *Client) FocusAndToggleSpecialWorkspace(ctx context.Context, monitor MonitorSelector, workspaceName string) error {
	_, err := executeWithRetry(ctx, c, OpToggleSpecial, func() (struct{}, error) {
		if err := c.dispatch(OpToggleSpecial, "focusmonitor "+monitorDispatchArg(monitor)); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.dispatch(OpToggleSpecial, "togglespecialworkspace "+workspaceName)
	})
	return err
}

// KeyboardState returns the current keyboard layout metadata. The
// active submap is not queryable; it is tracked through
// KeyboardEvents instead.
func (c *Client) KeyboardState(ctx context.Context) (KeyboardState, error) {
	return executeWithRetry(ctx, c, OpKeyboardState, func() (KeyboardState, error) {
		var layouts optionReply
		if err := c.requestJSON(OpKeyboardState, "j/getoption input:kb_layout", &layouts); err != nil {
			return KeyboardState{}, err
		}
		configured := 0
		for _, layout := range strings.Split(layouts.Str, ",") {
			if strings.TrimSpace(layout) != "" {
				configured++
			}
		}

		var devices devicesReply
		if err := c.requestJSON(OpKeyboardState, "j/devices", &devices); err != nil {
			return KeyboardState{}, err
		}
		active := "unknown"
		for _, keyboard := range devices.Keyboards {
			if keyboard.Main {
				active = keyboard.ActiveKeymap
				break
			}
		}

		return KeyboardState{
			ActiveLayout:       active,
			HasMultipleLayouts: configured > 1,
		}, nil
	})
}

// SwitchKeyboardLayout cycles every keyboard to its next layout.
func (c *Client) SwitchKeyboardLayout(ctx context.Context) error {
	_, err := executeWithRetry(ctx, c, OpSwitchLayout, func() (struct{}, error) {
		reply, err := c.transport.Request("switchxkblayout all next")
		if err != nil {
			return struct{}{}, BackendError(OpSwitchLayout, err)
		}
		if text := strings.TrimSpace(string(reply)); text != "ok" {
			return struct{}{}, MessageError(OpSwitchLayout, text)
		}
		return struct{}{}, nil
	})
	return err
}

// requestJSON performs one command round trip and decodes the JSON
// reply.
func (c *Client) requestJSON(operation, cmd string, v any) error {
	reply, err := c.transport.Request(cmd)
	if err != nil {
		return BackendError(operation, err)
	}
	if err := json.Unmarshal(reply, v); err != nil {
		return BackendError(operation, err)
	}
	return nil
}

// dispatch sends one dispatcher command and checks for the ok reply.
// A rejected dispatch surfaces the compositor's reply text.
func (c *Client) dispatch(operation, args string) error {
	reply, err := c.transport.Request("dispatch " + args)
	if err != nil {
		return BackendError(operation, err)
	}
	if text := strings.TrimSpace(string(reply)); text != "ok" {
		return MessageError(operation, text)
	}
	return nil
}

// workspaceDispatchArg renders the native dispatcher argument for a
// workspace selector.
func workspaceDispatchArg(s WorkspaceSelector) string {
	if s.byID {
		return strconv.Itoa(s.id)
	}
	return "name:" + s.name
}

// monitorDispatchArg renders the native dispatcher argument for a
// monitor selector.
func monitorDispatchArg(s MonitorSelector) string {
	if s.byID {
		return strconv.Itoa(s.id)
	}
	return s.name
}

type result[R any] struct {
	value R
	err   error
}

// executeOnce runs call on a worker goroutine and bounds the wait for
// its result. A timed-out worker is abandoned; the buffered result
// channel lets it finish without leaking.
func executeOnce[R any](ctx context.Context, c *Client, operation string, call func() (R, error)) (R, error) {
	results := make(chan result[R], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero R
				results <- result[R]{value: zero, err: MessageError(operation, "worker terminated before sending result")}
			}
		}()
		value, err := call()
		results <- result[R]{value: value, err: err}
	}()

	timer := c.clock.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	var zero R
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-results:
		return res.value, res.err
	case <-timer.C():
		return zero, TimeoutError(operation, c.cfg.RequestTimeout)
	}
}

// executeWithRetry drives executeOnce through the configured attempt
// budget with linear backoff between attempts. The caller gets the
// last failure once every attempt is spent.
func executeWithRetry[R any](ctx context.Context, c *Client, operation string, call func() (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		value, err := executeOnce(ctx, c, operation, call)
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		capitan.Emit(ctx, RequestAttemptFailed,
			KeyOperation.Field(operation),
			KeyAttempt.Field(attempt),
			KeyError.Field(err.Error()),
		)
		lastErr = err

		if attempt < c.cfg.RetryAttempts {
			if delay := retryDelay(c.cfg.RetryBackoff, attempt); delay > 0 {
				timer := c.clock.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return zero, ctx.Err()
				case <-timer.C():
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = MessageError(operation, "operation failed without error detail")
	}
	return zero, lastErr
}

// retryDelay grows the pause linearly with the attempt number.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return base * time.Duration(attempt)
}

// Raw reply shapes from the compositor JSON socket.
type windowReply struct {
	Address string `json:"address"`
	Title   string `json:"title"`
	Class   string `json:"class"`
}

type monitorReply struct {
	ID               int          `json:"id"`
	Name             string       `json:"name"`
	SpecialWorkspace specialReply `json:"specialWorkspace"`
}

type specialReply struct {
	ID int `json:"id"`
}

type workspaceReply struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Monitor   string `json:"monitor"`
	MonitorID *int   `json:"monitorID"`
	Windows   int    `json:"windows"`
}

type optionReply struct {
	Str string `json:"str"`
}

type devicesReply struct {
	Keyboards []keyboardReply `json:"keyboards"`
}

type keyboardReply struct {
	Main         bool   `json:"main"`
	ActiveKeymap string `json:"active_keymap"`
}
