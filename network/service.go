package network

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/zoobzio/bosun"
)

// ServiceName identifies the network service in lifecycle signals.
const ServiceName = "network"

// LifecycleEvent is the engine envelope for this service.
type LifecycleEvent = bosun.ServiceEvent[*Service, Event]

// CommandKind discriminates service commands.
type CommandKind int32

const (
	CommandToggleWiFi CommandKind = iota
	CommandToggleAirplaneMode
	CommandScanNearbyWiFi
	CommandSelectAccessPoint
	CommandToggleVPN
)

// Command is one service-level request. Toggles carry no target;
// they invert whatever the cached state reports.
type Command struct {
	Kind        CommandKind
	AccessPoint AccessPoint
	Password    string
	VPN         VPN
}

// ToggleWiFi flips the wireless radio.
func ToggleWiFi() Command {
	return Command{Kind: CommandToggleWiFi}
}

// ToggleAirplaneMode flips airplane mode, which blocks the bluetooth
// radio alongside the wireless one.
func ToggleAirplaneMode() Command {
	return Command{Kind: CommandToggleAirplaneMode}
}

// ScanNearbyWiFi requests a fresh wireless scan.
func ScanNearbyWiFi() Command {
	return Command{Kind: CommandScanNearbyWiFi}
}

// SelectAccessPoint connects to ap, storing password on its profile
// when one is given. An empty password leaves stored credentials
// untouched.
func SelectAccessPoint(ap AccessPoint, password string) Command {
	return Command{Kind: CommandSelectAccessPoint, AccessPoint: ap, Password: password}
}

// ToggleVPN activates vpn, or deactivates it when it is currently
// connected.
func ToggleVPN(vpn VPN) Command {
	return Command{Kind: CommandToggleVPN, VPN: vpn}
}

// Service is the consumer-held network handle: the cached state plus
// the command channel of the live backend connection. The consumer
// owns the handle; Update and Command run on the consumer's goroutine.
type Service struct {
	choice    BackendChoice
	data      Data
	commander chan<- BackendCommand
}

var _ bosun.Service[Event, Command] = (*Service)(nil)

// NewService builds a handle over an initial snapshot and the backend
// command channel that produced it. Backends call this from Spawn;
// tests build handles directly.
func NewService(choice BackendChoice, data Data, commander chan<- BackendCommand) *Service {
	return &Service{choice: choice, data: data, commander: commander}
}

// Choice names the backend implementation behind this connection.
func (s *Service) Choice() BackendChoice {
	return s.choice
}

// Data returns the cached network state.
func (s *Service) Data() Data {
	return s.data
}

// Update applies one backend event to the cached state.
func (s *Service) Update(event Event) {
	s.data.Update(event)
}

// Fail records a connection error on the snapshot. The next successful
// event clears it.
func (s *Service) Fail(err error) {
	s.data.LastError = err.Error()
}

// Command resolves cmd against the cached state and submits the
// resulting backend command. Toggles carry the absolute target state
// so a stale flip cannot double-apply; the effect surfaces as a later
// Update from the backend.
func (s *Service) Command(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandToggleWiFi:
		return s.send(ctx, BackendCommand{
			Kind:   BackendSetWiFi,
			Enable: !s.data.WiFiEnabled,
		})

	case CommandToggleAirplaneMode:
		return s.send(ctx, BackendCommand{
			Kind:   BackendSetAirplaneMode,
			Enable: !s.data.AirplaneMode,
		})

	case CommandScanNearbyWiFi:
		return s.send(ctx, BackendCommand{Kind: BackendScan})

	case CommandSelectAccessPoint:
		return s.send(ctx, BackendCommand{
			Kind:        BackendConnect,
			AccessPoint: cmd.AccessPoint,
			Password:    cmd.Password,
		})

	case CommandToggleVPN:
		path, enable := s.vpnTarget(cmd.VPN)
		return s.send(ctx, BackendCommand{
			Kind:   BackendSetVPN,
			Path:   path,
			Enable: enable,
		})
	}
	return nil
}

// vpnTarget deactivates the live connection when vpn is currently
// active and activates the stored profile otherwise.
func (s *Service) vpnTarget(vpn VPN) (dbus.ObjectPath, bool) {
	for _, ac := range s.data.ActiveConnections {
		if ac.Kind == ConnectionVPN && ac.Name == vpn.Name {
			return ac.Path, false
		}
	}
	return vpn.Path, true
}

func (s *Service) send(ctx context.Context, cmd BackendCommand) error {
	select {
	case s.commander <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewEngine builds the lifecycle engine driving backend. Configure
// backoff or clock before Listen.
func NewEngine(backend Backend) *bosun.Engine[*Service, Event] {
	return bosun.NewEngine[*Service, Event](ServiceName, engineBackend{backend})
}

// Listen runs the network lifecycle with the default system bus
// backend until ctx ends or the publisher reports its receiver gone.
func Listen(ctx context.Context, pub bosun.Publisher[*Service, Event]) error {
	return NewEngine(NewDBusBackend()).Listen(ctx, pub)
}

type engineBackend struct {
	backend Backend
}

func (b engineBackend) Spawn(ctx context.Context) (*Service, <-chan bosun.BackendEvent[Event], error) {
	handle, err := b.backend.Spawn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return NewService(handle.Choice, handle.Data, handle.Commands), handle.Events, nil
}
