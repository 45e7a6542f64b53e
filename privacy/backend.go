package privacy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/bosun"
)

// webcamDevice is the capture device whose open handles are tracked.
const webcamDevice = "/dev/video0"

// nodeInterface is the pw-dump type string of registry nodes.
const nodeInterface = "PipeWire:Interface:Node"

// DefaultRecountInterval is the pause between webcam handle recounts.
const DefaultRecountInterval = 2 * time.Second

// Buffer size for the backend event channel.
const eventBuffer = 16

// Handle is one live backend connection. Data is the snapshot taken
// at spawn; Events carries notifications until the connection dies
// and the channel closes.
type Handle struct {
	Data   Data
	Events <-chan bosun.BackendEvent[Event]
}

// Backend establishes media-session connections. Spawn builds a fresh
// connection per call; a connection never survives its own failure.
type Backend interface {
	Spawn(ctx context.Context) (Handle, error)
}

// CLIBackend observes PipeWire through its command-line tools: one
// pw-dump per registry change announced by a long-lived pw-mon
// process, diffed against the previous dump. The webcam side counts
// open handles through the proc filesystem, re-counting on device
// churn and on a timer; open and close leave no portable filesystem
// event, so the count converges by polling.
type CLIBackend struct {
	dumpPath string
	monPath  string
	procDir  string
	webcam   string
	interval time.Duration
	clock    clockz.Clock
}

var _ Backend = (*CLIBackend)(nil)

// NewCLIBackend targets the pw-* binaries on PATH and the standard
// proc and dev trees.
func NewCLIBackend() *CLIBackend {
	return &CLIBackend{
		dumpPath: "pw-dump",
		monPath:  "pw-mon",
		procDir:  "/proc",
		webcam:   webcamDevice,
		interval: DefaultRecountInterval,
		clock:    clockz.RealClock,
	}
}

// Spawn starts the pw-mon process, takes the initial dump, and builds
// the webcam watch. A webcam watch failure degrades the connection to
// pipewire-only data instead of failing it.
func (b *CLIBackend) Spawn(ctx context.Context) (Handle, error) {
	connCtx, cancel := context.WithCancel(ctx)

	mon := exec.CommandContext(connCtx, b.monPath)
	stdout, err := mon.StdoutPipe()
	if err != nil {
		cancel()
		return Handle{}, err
	}
	if err := mon.Start(); err != nil {
		cancel()
		return Handle{}, fmt.Errorf("start pw-mon: %w", err)
	}

	nodes, err := b.nodes(connCtx)
	if err != nil {
		cancel()
		mon.Wait()
		return Handle{}, err
	}

	data := Data{
		Nodes:      nodes,
		WebcamUses: countDeviceUsers(b.procDir, b.webcam),
	}

	watcher := b.webcamWatch(ctx)
	events := make(chan bosun.BackendEvent[Event], eventBuffer)
	go b.pump(connCtx, cancel, mon, stdout, watcher, data, events)

	return Handle{Data: data, Events: events}, nil
}

// webcamWatch builds the device-directory watch feeding webcam
// recounts. Failure degrades to pipewire-only data.
func (b *CLIBackend) webcamWatch(ctx context.Context) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(filepath.Dir(b.webcam))
	}
	if err != nil {
		if watcher != nil {
			watcher.Close()
		}
		capitan.Emit(ctx, bosun.ServiceDegraded,
			bosun.KeyService.Field(ServiceName),
			bosun.KeyError.Field(err.Error()),
		)
		return nil
	}
	return watcher
}

// pump merges the privacy feeds: pw-mon triggered node re-dumps,
// webcam device churn, and the periodic handle recount. Either feed
// failing ends the connection after the error event.
func (b *CLIBackend) pump(ctx context.Context, cancel context.CancelFunc, mon *exec.Cmd, stdout io.Reader, watcher *fsnotify.Watcher, data Data, events chan<- bosun.BackendEvent[Event]) {
	defer close(events)
	defer mon.Wait()
	if watcher != nil {
		defer watcher.Close()
	}
	defer cancel()

	triggers := make(chan struct{}, 1)
	go func() {
		defer close(triggers)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if !monTrigger(scanner.Text()) {
				continue
			}
			select {
			case triggers <- struct{}{}:
			default:
			}
		}
	}()

	known := data.Nodes
	webcamUses := data.WebcamUses

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	var timer clockz.Timer
	var tickC <-chan time.Time
	if watcher != nil {
		fsEvents = watcher.Events
		fsErrors = watcher.Errors
		timer = b.clock.NewTimer(b.interval)
		tickC = timer.C()
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	recount := func() bool {
		count := countDeviceUsers(b.procDir, b.webcam)
		for webcamUses < count {
			if !b.emit(ctx, events, bosun.BackendEvent[Event]{Update: NewWebcamOpenEvent()}) {
				return false
			}
			webcamUses++
		}
		for webcamUses > count {
			if !b.emit(ctx, events, bosun.BackendEvent[Event]{Update: NewWebcamCloseEvent()}) {
				return false
			}
			webcamUses--
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-triggers:
			if !ok {
				if ctx.Err() == nil {
					b.emit(ctx, events, bosun.BackendEvent[Event]{Err: errors.New("pw-mon exited unexpectedly")})
				}
				return
			}
			next, err := b.nodes(ctx)
			if err != nil {
				b.emit(ctx, events, bosun.BackendEvent[Event]{Err: err})
				return
			}
			for _, ev := range diffNodes(known, next) {
				if !b.emit(ctx, events, bosun.BackendEvent[Event]{Update: ev}) {
					return
				}
			}
			known = next

		case fe, ok := <-fsEvents:
			if !ok {
				return
			}
			if fe.Name != b.webcam {
				continue
			}
			if !recount() {
				return
			}

		case err, ok := <-fsErrors:
			if !ok {
				return
			}
			b.emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("webcam watch: %w", err)})
			return

		case <-tickC:
			if !recount() {
				return
			}
			timer = b.clock.NewTimer(b.interval)
			tickC = timer.C()
		}
	}
}

func (b *CLIBackend) emit(ctx context.Context, events chan<- bosun.BackendEvent[Event], event bosun.BackendEvent[Event]) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *CLIBackend) nodes(ctx context.Context) ([]Node, error) {
	out, err := exec.CommandContext(ctx, b.dumpPath).Output()
	if err != nil {
		return nil, fmt.Errorf("pw-dump: %w", err)
	}
	return parseNodes(out)
}

// monTrigger reports whether a pw-mon line announces registry churn.
// Property-level changes are irrelevant; presence is all the privacy
// data tracks.
func monTrigger(line string) bool {
	return strings.HasPrefix(line, "added:") || strings.HasPrefix(line, "removed:")
}

type dumpGlobal struct {
	ID   uint32   `json:"id"`
	Type string   `json:"type"`
	Info dumpInfo `json:"info"`
}

type dumpInfo struct {
	Props map[string]any `json:"props"`
}

// parseNodes keeps capture-stream nodes from a pw-dump document.
func parseNodes(data []byte) ([]Node, error) {
	var globals []dumpGlobal
	if err := json.Unmarshal(data, &globals); err != nil {
		return nil, fmt.Errorf("decode pw-dump: %w", err)
	}
	var nodes []Node
	for _, g := range globals {
		if g.Type != nodeInterface {
			continue
		}
		class, _ := g.Info.Props["media.class"].(string)
		switch class {
		case "Stream/Input/Video":
			nodes = append(nodes, Node{ID: g.ID, Media: MediaVideo})
		case "Stream/Input/Audio":
			nodes = append(nodes, Node{ID: g.ID, Media: MediaAudio})
		}
	}
	return nodes, nil
}

// diffNodes turns two dumps into the events between them, adds before
// removes.
func diffNodes(prev, next []Node) []Event {
	var events []Event
	had := make(map[uint32]bool, len(prev))
	for _, n := range prev {
		had[n.ID] = true
	}
	has := make(map[uint32]bool, len(next))
	for _, n := range next {
		has[n.ID] = true
	}
	for _, n := range next {
		if !had[n.ID] {
			events = append(events, NewAddNodeEvent(n))
		}
	}
	for _, n := range prev {
		if !has[n.ID] {
			events = append(events, NewRemoveNodeEvent(n.ID))
		}
	}
	return events
}

// countDeviceUsers counts open handles on device across every process
// the proc tree exposes. Unreadable entries are skipped; the count is
// best effort.
func countDeviceUsers(procDir, device string) int {
	pids, err := os.ReadDir(procDir)
	if err != nil {
		return 0
	}
	users := 0
	for _, pid := range pids {
		fdDir := filepath.Join(procDir, pid.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err == nil && target == device {
				users++
			}
		}
	}
	return users
}
