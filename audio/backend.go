package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
)

// BackendCommandKind discriminates backend commands.
type BackendCommandKind int32

const (
	BackendSinkMute BackendCommandKind = iota
	BackendSourceMute
	BackendSinkVolume
	BackendSourceVolume
	BackendDefaultSink
	BackendDefaultSource
)

// BackendCommand is one fully resolved mutation for the audio server.
// Volume is normalized, Port names the port to activate on the
// default-device commands.
type BackendCommand struct {
	Kind   BackendCommandKind
	Device string
	Mute   bool
	Volume float64
	Port   string
}

// Handle is one live backend connection. Events carries notifications
// until the connection dies and the channel closes; Commands accepts
// mutations to apply on the connection.
type Handle struct {
	Events   <-chan bosun.BackendEvent[Event]
	Commands chan<- BackendCommand
}

// Backend establishes audio server connections. Spawn builds a fresh
// connection per call; a connection never survives its own failure.
type Backend interface {
	Spawn(ctx context.Context) (Handle, error)
}

// Buffer sizes for the backend channel pair.
const (
	eventBuffer   = 16
	commandBuffer = 16
)

// pulseVolumeNorm is the raw channel value PulseAudio reports for
// 100% volume.
const pulseVolumeNorm = 65536

// CLIBackend drives PulseAudio through pactl: JSON dumps for state, a
// long-lived subscribe process for change notification, one-shot
// invocations for mutations.
type CLIBackend struct {
	path string
}

var _ Backend = (*CLIBackend)(nil)

// NewCLIBackend targets the pactl binary on PATH.
func NewCLIBackend() *CLIBackend {
	return &CLIBackend{path: "pactl"}
}

// Path overrides the pactl binary location. Must be called before
// Spawn.
func (b *CLIBackend) Path(path string) *CLIBackend {
	b.path = path
	return b
}

// Spawn starts the subscribe process and the goroutine pair bridging
// it to the channel handle. The initial state dump is emitted as the
// first events of the connection.
func (b *CLIBackend) Spawn(ctx context.Context) (Handle, error) {
	connCtx, cancel := context.WithCancel(ctx)

	sub := exec.CommandContext(connCtx, b.path, "subscribe")
	stdout, err := sub.StdoutPipe()
	if err != nil {
		cancel()
		return Handle{}, err
	}
	if err := sub.Start(); err != nil {
		cancel()
		return Handle{}, fmt.Errorf("start pactl subscribe: %w", err)
	}

	events := make(chan bosun.BackendEvent[Event], eventBuffer)
	commands := make(chan BackendCommand, commandBuffer)

	go b.pump(connCtx, cancel, sub, stdout, events)
	go b.applyCommands(connCtx, commands)

	return Handle{Events: events, Commands: commands}, nil
}

// pump emits the initial dumps, then one refresh per relevant
// subscribe line. Any dump failure ends the connection after the
// error event; cancel tears down the subscribe process and the
// command goroutine with it.
func (b *CLIBackend) pump(ctx context.Context, cancel context.CancelFunc, sub *exec.Cmd, stdout io.Reader, events chan<- bosun.BackendEvent[Event]) {
	defer close(events)
	defer sub.Wait()
	defer cancel()

	if err := b.refresh(ctx, events); err != nil {
		emit(ctx, events, bosun.BackendEvent[Event]{Err: err})
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if !subscribedFacility(scanner.Text()) {
			continue
		}
		if err := b.refresh(ctx, events); err != nil {
			emit(ctx, events, bosun.BackendEvent[Event]{Err: err})
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		emit(ctx, events, bosun.BackendEvent[Event]{Err: fmt.Errorf("pactl subscribe: %w", err)})
	}
}

// refresh dumps the full server state and emits one update per
// section, the same three queries a change notification invalidates.
func (b *CLIBackend) refresh(ctx context.Context, events chan<- bosun.BackendEvent[Event]) error {
	info, err := b.serverInfo(ctx)
	if err != nil {
		return err
	}
	emit(ctx, events, bosun.BackendEvent[Event]{Update: NewServerInfoEvent(info)})

	sinks, err := b.sinks(ctx)
	if err != nil {
		return err
	}
	emit(ctx, events, bosun.BackendEvent[Event]{Update: NewSinksEvent(sinks)})

	sources, err := b.sources(ctx)
	if err != nil {
		return err
	}
	emit(ctx, events, bosun.BackendEvent[Event]{Update: NewSourcesEvent(sources)})
	return nil
}

func emit(ctx context.Context, events chan<- bosun.BackendEvent[Event], ev bosun.BackendEvent[Event]) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func (b *CLIBackend) applyCommands(ctx context.Context, commands <-chan BackendCommand) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			if err := b.apply(ctx, cmd); err != nil {
				capitan.Emit(ctx, bosun.ServiceCommandFailed,
					bosun.KeyService.Field(ServiceName),
					bosun.KeyError.Field(err.Error()),
				)
			}
		}
	}
}

func (b *CLIBackend) apply(ctx context.Context, cmd BackendCommand) error {
	switch cmd.Kind {
	case BackendSinkMute:
		return b.run(ctx, "set-sink-mute", cmd.Device, muteArg(cmd.Mute))
	case BackendSourceMute:
		return b.run(ctx, "set-source-mute", cmd.Device, muteArg(cmd.Mute))
	case BackendSinkVolume:
		return b.run(ctx, "set-sink-volume", cmd.Device, volumeArg(cmd.Volume))
	case BackendSourceVolume:
		return b.run(ctx, "set-source-volume", cmd.Device, volumeArg(cmd.Volume))
	case BackendDefaultSink:
		if err := b.run(ctx, "set-default-sink", cmd.Device); err != nil {
			return err
		}
		return b.run(ctx, "set-sink-port", cmd.Device, cmd.Port)
	case BackendDefaultSource:
		if err := b.run(ctx, "set-default-source", cmd.Device); err != nil {
			return err
		}
		return b.run(ctx, "set-source-port", cmd.Device, cmd.Port)
	}
	return nil
}

func muteArg(mute bool) string {
	if mute {
		return "1"
	}
	return "0"
}

func volumeArg(volume float64) string {
	return strconv.Itoa(int(math.Round(volume*100))) + "%"
}

func (b *CLIBackend) run(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, b.path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pactl %s: %w: %s", args[0], err, bytes.TrimSpace(out))
	}
	return nil
}

func (b *CLIBackend) output(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, b.path, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

func (b *CLIBackend) serverInfo(ctx context.Context) (ServerInfo, error) {
	out, err := b.output(ctx, "-f", "json", "info")
	if err != nil {
		return ServerInfo{}, err
	}
	return parseServerInfo(out)
}

func (b *CLIBackend) sinks(ctx context.Context) ([]Device, error) {
	out, err := b.output(ctx, "-f", "json", "list", "sinks")
	if err != nil {
		return nil, err
	}
	return parseSinks(out)
}

func (b *CLIBackend) sources(ctx context.Context) ([]Device, error) {
	out, err := b.output(ctx, "-f", "json", "list", "sources")
	if err != nil {
		return nil, err
	}
	return parseSources(out)
}

// subscribedFacility reports whether a pactl subscribe line concerns
// the server, a sink, or a source. Sink inputs and source outputs
// stay excluded.
func subscribedFacility(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 4 || fields[0] != "Event" {
		return false
	}
	switch fields[3] {
	case "server", "sink", "source":
		return true
	}
	return false
}

type infoDump struct {
	DefaultSinkName   string `json:"default_sink_name"`
	DefaultSourceName string `json:"default_source_name"`
}

type deviceDump struct {
	Name       string                `json:"name"`
	State      string                `json:"state"`
	Mute       bool                  `json:"mute"`
	Volume     map[string]volumeDump `json:"volume"`
	Ports      []portDump            `json:"ports"`
	ActivePort string                `json:"active_port"`
	Properties map[string]any        `json:"properties"`
}

type volumeDump struct {
	Value uint32 `json:"value"`
}

type portDump struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Type         string `json:"type"`
	Availability string `json:"availability"`
}

func parseServerInfo(data []byte) (ServerInfo, error) {
	var dump infoDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return ServerInfo{}, fmt.Errorf("decode pactl info: %w", err)
	}
	return ServerInfo{
		DefaultSink:   dump.DefaultSinkName,
		DefaultSource: dump.DefaultSourceName,
	}, nil
}

// parseSinks keeps sinks with at least one available port.
func parseSinks(data []byte) ([]Device, error) {
	var dumps []deviceDump
	if err := json.Unmarshal(data, &dumps); err != nil {
		return nil, fmt.Errorf("decode pactl sinks: %w", err)
	}
	sinks := make([]Device, 0, len(dumps))
	for _, dump := range dumps {
		device := deviceFromDump(dump)
		if len(device.Ports) == 0 {
			continue
		}
		sinks = append(sinks, device)
	}
	return sinks, nil
}

// parseSources drops monitor sources.
func parseSources(data []byte) ([]Device, error) {
	var dumps []deviceDump
	if err := json.Unmarshal(data, &dumps); err != nil {
		return nil, fmt.Errorf("decode pactl sources: %w", err)
	}
	sources := make([]Device, 0, len(dumps))
	for _, dump := range dumps {
		if strings.Contains(dump.Name, "monitor") {
			continue
		}
		sources = append(sources, deviceFromDump(dump))
	}
	return sources, nil
}

func deviceFromDump(dump deviceDump) Device {
	ports := make([]DevicePort, 0, len(dump.Ports))
	for _, port := range dump.Ports {
		if port.Availability == "not available" {
			continue
		}
		ports = append(ports, DevicePort{
			Name:        port.Name,
			Description: port.Description,
			Type:        deviceTypeFromPort(port.Type),
			Active:      dump.ActivePort != "" && port.Name == dump.ActivePort,
		})
	}
	description, _ := dump.Properties["device.description"].(string)
	return Device{
		Name:        dump.Name,
		Description: description,
		Volume:      averageVolume(dump.Volume),
		Muted:       dump.Mute,
		InUse:       dump.State == "RUNNING",
		Ports:       ports,
	}
}

func averageVolume(channels map[string]volumeDump) float64 {
	if len(channels) == 0 {
		return 0
	}
	var total float64
	for _, ch := range channels {
		total += float64(ch.Value)
	}
	return total / float64(len(channels)) / pulseVolumeNorm
}

func deviceTypeFromPort(portType string) DeviceType {
	switch portType {
	case "Headphones":
		return DeviceHeadphones
	case "Headset":
		return DeviceHeadset
	case "HDMI":
		return DeviceHDMI
	default:
		return DeviceSpeaker
	}
}
