package brightness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
	"github.com/zoobzio/bosun/dbusx"
)

const (
	loginService      = "org.freedesktop.login1"
	loginSessionPath  = "/org/freedesktop/login1/session/auto"
	loginSessionIface = "org.freedesktop.login1.Session"
)

// defaultClassDir is the sysfs class exposing backlight devices.
const defaultClassDir = "/sys/class/backlight"

// BackendCommandKind discriminates backend commands.
type BackendCommandKind int32

const (
	BackendSet BackendCommandKind = iota
	BackendRefresh
)

// BackendCommand is one fully resolved mutation for the backlight.
// Value is the absolute raw target on Set.
type BackendCommand struct {
	Kind  BackendCommandKind
	Value uint32
}

// Buffer sizes for the backend channels.
const (
	eventBuffer   = 16
	commandBuffer = 16
)

// Handle is one live backend connection. Data is the snapshot taken
// at spawn, Events carries readings until the connection dies and the
// channel closes, Commands accepts mutations to apply on the
// connection.
type Handle struct {
	Data     Data
	Events   <-chan bosun.BackendEvent[Event]
	Commands chan<- BackendCommand
}

// Backend establishes backlight connections. Spawn builds a fresh
// connection per call; a connection never survives its own failure.
type Backend interface {
	Spawn(ctx context.Context) (Handle, error)
}

// SysfsBackend reads the first device of a backlight class directory,
// follows it through filesystem notifications, and writes it through
// logind on the system bus. Spawning without a device fails, so hosts
// with late-appearing backlights converge through the ordinary
// reconnect loop.
type SysfsBackend struct {
	classDir string
	connect  func() (dbusx.Conn, error)
}

var _ Backend = (*SysfsBackend)(nil)

// NewSysfsBackend returns a backend over the standard sysfs class and
// the standard system bus.
func NewSysfsBackend() *SysfsBackend {
	return &SysfsBackend{classDir: defaultClassDir, connect: dbusx.System}
}

// Spawn resolves the device, takes the initial reading, and starts
// the filesystem watch. The returned handle stays live until a read
// or the watch fails.
func (b *SysfsBackend) Spawn(ctx context.Context) (Handle, error) {
	dir, err := firstBacklight(b.classDir)
	if err != nil {
		return Handle{}, fmt.Errorf("brightness: %w", err)
	}

	conn, err := b.connect()
	if err != nil {
		return Handle{}, fmt.Errorf("brightness: connect system bus: %w", err)
	}

	bl := &backlight{conn: conn, dir: dir}
	data, err := bl.read()
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("brightness: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		conn.Close()
		return Handle{}, fmt.Errorf("brightness: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		conn.Close()
		return Handle{}, fmt.Errorf("brightness: watch %s: %w", dir, err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	events := make(chan bosun.BackendEvent[Event], eventBuffer)
	commands := make(chan BackendCommand, commandBuffer)

	var commandsDone sync.WaitGroup
	commandsDone.Add(1)
	go b.applyCommands(connCtx, bl, commands, events, &commandsDone)
	go b.pump(connCtx, cancel, watcher, bl, data.Current, events, &commandsDone)

	return Handle{Data: data, Events: events, Commands: commands}, nil
}

// pump re-reads the backlight on filesystem activity and emits the
// reading when it moved. A read failure ends the connection after the
// error event, which also covers the device disappearing; cancel
// stops the command goroutine, and the events channel closes only
// after it is done so command follow-ups never race the close.
func (b *SysfsBackend) pump(ctx context.Context, cancel context.CancelFunc, watcher *fsnotify.Watcher, bl *backlight, current uint32, events chan<- bosun.BackendEvent[Event], commandsDone *sync.WaitGroup) {
	defer close(events)
	defer commandsDone.Wait()
	defer bl.conn.Close()
	defer watcher.Close()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case fe, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !brightnessFile(fe.Name) {
				continue
			}
			if !fe.Op.Has(fsnotify.Write) && !fe.Op.Has(fsnotify.Create) {
				continue
			}
			value, err := bl.current()
			if err != nil {
				b.emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("brightness: %w", err)})
				return
			}
			if value == current {
				continue
			}
			current = value
			if !b.emit(ctx, events, bosun.BackendEvent[Event]{Update: Event{Current: value}}) {
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			b.emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("brightness: watch: %w", err)})
			return
		}
	}
}

// applyCommands executes resolved commands on the live connection.
// Each command reports its outcome through follow-up events; failures
// additionally surface on the command-failed signal.
func (b *SysfsBackend) applyCommands(ctx context.Context, bl *backlight, commands <-chan BackendCommand, events chan<- bosun.BackendEvent[Event], done *sync.WaitGroup) {
	defer done.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			followups, err := bl.apply(ctx, cmd)
			if err != nil {
				capitan.Emit(ctx, bosun.ServiceCommandFailed,
					bosun.KeyService.Field(ServiceName),
					bosun.KeyError.Field(err.Error()),
				)
			}
			for _, ev := range followups {
				if !b.emit(ctx, events, bosun.BackendEvent[Event]{Update: ev}) {
					return
				}
			}
		}
	}
}

func (b *SysfsBackend) emit(ctx context.Context, events chan<- bosun.BackendEvent[Event], event bosun.BackendEvent[Event]) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// firstBacklight resolves the first device directory under classDir.
// ReadDir sorts by name, so the pick is stable across reconnects.
func firstBacklight(classDir string) (string, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no backlight device in %s", classDir)
	}
	return filepath.Join(classDir, entries[0].Name()), nil
}

// brightnessFile reports whether a filesystem event concerns a
// brightness attribute. Writes land on brightness; the kernel
// surfaces the applied value in actual_brightness.
func brightnessFile(name string) bool {
	switch filepath.Base(name) {
	case "brightness", "actual_brightness":
		return true
	}
	return false
}

// readValue parses one numeric sysfs attribute.
func readValue(path string) (uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return uint32(value), nil
}

// backlight reads one sysfs backlight device and writes it through
// the session's logind object.
type backlight struct {
	conn dbusx.Conn
	dir  string
}

// device is the class entry name logind expects.
func (l *backlight) device() string {
	return filepath.Base(l.dir)
}

func (l *backlight) read() (Data, error) {
	max, err := readValue(filepath.Join(l.dir, "max_brightness"))
	if err != nil {
		return Data{}, err
	}
	current, err := l.current()
	if err != nil {
		return Data{}, err
	}
	return Data{Current: current, Max: max}, nil
}

func (l *backlight) current() (uint32, error) {
	return readValue(filepath.Join(l.dir, "actual_brightness"))
}

// apply executes one resolved command. A successful set reports the
// written value without waiting for the kernel to surface it; a
// failed set re-reads the device so consumers snap back to truth.
func (l *backlight) apply(ctx context.Context, cmd BackendCommand) ([]Event, error) {
	switch cmd.Kind {
	case BackendSet:
		call := l.conn.Object(loginService, loginSessionPath).CallWithContext(
			ctx, loginSessionIface+".SetBrightness", 0,
			"backlight", l.device(), cmd.Value,
		)
		if call.Err != nil {
			return l.requery(), fmt.Errorf("set brightness: %w", call.Err)
		}
		return []Event{{Current: cmd.Value}}, nil

	case BackendRefresh:
		value, err := l.current()
		if err != nil {
			return nil, fmt.Errorf("read brightness: %w", err)
		}
		return []Event{{Current: value}}, nil
	}
	return nil, nil
}

// requery reads the current value for a corrective follow-up, nil
// when the read fails too.
func (l *backlight) requery() []Event {
	value, err := l.current()
	if err != nil {
		return nil
	}
	return []Event{{Current: value}}
}
