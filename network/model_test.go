package network

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

// visible builds an access point for update tests.
func visible(ssid string, strength uint8) AccessPoint {
	return AccessPoint{
		SSID:       ssid,
		Strength:   strength,
		State:      DeviceStateActivated,
		Path:       dbus.ObjectPath("/ap/" + ssid),
		DevicePath: "/dev/wlan0",
	}
}

func TestConnectivityFromNM(t *testing.T) {
	tests := []struct {
		raw  uint32
		want ConnectivityState
	}{
		{0, ConnectivityUnknown},
		{1, ConnectivityNone},
		{2, ConnectivityPortal},
		{3, ConnectivityLoss},
		{4, ConnectivityFull},
		{5, ConnectivityUnknown},
	}
	for _, tt := range tests {
		if got := connectivityFromNM(tt.raw); got != tt.want {
			t.Errorf("connectivityFromNM(%d) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestConnectivityFromIwd(t *testing.T) {
	tests := []struct {
		state string
		want  ConnectivityState
	}{
		{"inactive", ConnectivityNone},
		{"disconnected", ConnectivityNone},
		{"portal", ConnectivityPortal},
		{"failed", ConnectivityLoss},
		{"connected", ConnectivityFull},
		{"roaming", ConnectivityUnknown},
	}
	for _, tt := range tests {
		if got := connectivityFromIwd(tt.state); got != tt.want {
			t.Errorf("connectivityFromIwd(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestMaxConnectivity(t *testing.T) {
	states := []ConnectivityState{ConnectivityNone, ConnectivityFull, ConnectivityPortal}
	if got := maxConnectivity(states); got != ConnectivityFull {
		t.Errorf("maxConnectivity() = %v, want full", got)
	}
	if got := maxConnectivity(nil); got != ConnectivityUnknown {
		t.Errorf("maxConnectivity(nil) = %v, want unknown", got)
	}
}

func TestDeviceStateFromNM(t *testing.T) {
	tests := []struct {
		raw  uint32
		want DeviceState
	}{
		{0, DeviceStateUnknown},
		{10, DeviceStateUnmanaged},
		{30, DeviceStateDisconnected},
		{60, DeviceStateNeedAuth},
		{100, DeviceStateActivated},
		{120, DeviceStateFailed},
		{95, DeviceStateUnknown},
		{130, DeviceStateUnknown},
	}
	for _, tt := range tests {
		if got := deviceStateFromNM(tt.raw); got != tt.want {
			t.Errorf("deviceStateFromNM(%d) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestSortAccessPoints(t *testing.T) {
	aps := []AccessPoint{visible("weak", 20), visible("strong", 90), visible("mid", 50)}
	sortAccessPoints(aps)
	want := []string{"strong", "mid", "weak"}
	for i, ssid := range want {
		if aps[i].SSID != ssid {
			t.Errorf("aps[%d].SSID = %q, want %q", i, aps[i].SSID, ssid)
		}
	}
}

func TestSortActiveConnections(t *testing.T) {
	conns := []ActiveConnection{
		{Kind: ConnectionWiFi, Name: "attic"},
		{Kind: ConnectionWired, Name: "dock"},
		{Kind: ConnectionVPN, Name: "office"},
	}
	sortActiveConnections(conns)
	want := []ActiveConnectionKind{ConnectionVPN, ConnectionWired, ConnectionWiFi}
	for i, kind := range want {
		if conns[i].Kind != kind {
			t.Errorf("conns[%d].Kind = %v, want %v", i, conns[i].Kind, kind)
		}
	}
}

func TestData_UpdateClearsLastError(t *testing.T) {
	d := Data{LastError: "bus gone"}
	d.Update(NewConnectivityEvent(ConnectivityFull))
	if d.LastError != "" {
		t.Errorf("LastError = %q, want cleared", d.LastError)
	}
	if d.Connectivity != ConnectivityFull {
		t.Errorf("Connectivity = %v, want full", d.Connectivity)
	}
}

func TestData_UpdateWirelessDeviceFinishesScan(t *testing.T) {
	var d Data
	d.Update(NewScanningEvent())
	if !d.Scanning {
		t.Fatal("Scanning = false after scan event")
	}

	d.Update(NewWirelessDeviceEvent(true, []AccessPoint{visible("home", 70)}))
	if d.Scanning {
		t.Error("Scanning = true, want cleared by device event")
	}
	if !d.WiFiPresent || len(d.AccessPoints) != 1 {
		t.Errorf("data = %+v, want present with one access point", d)
	}
}

func TestData_UpdateAccessPointsKeepsScanFlag(t *testing.T) {
	var d Data
	d.Update(NewScanningEvent())
	d.Update(NewAccessPointsEvent([]AccessPoint{visible("home", 70)}))
	if !d.Scanning {
		t.Error("Scanning = false, want access point refresh to leave it running")
	}
}

func TestData_UpdateStrengthTracksActiveConnection(t *testing.T) {
	d := Data{
		AccessPoints: []AccessPoint{visible("home", 70), visible("cafe", 40)},
		ActiveConnections: []ActiveConnection{
			{Kind: ConnectionVPN, Name: "home"},
			{Kind: ConnectionWiFi, ID: "profile", Name: "home", Strength: 70},
		},
	}

	d.Update(NewStrengthEvent("home", 55))
	if d.AccessPoints[0].Strength != 55 {
		t.Errorf("access point strength = %d, want 55", d.AccessPoints[0].Strength)
	}
	// The VPN entry shadows the wireless one by name; only the first
	// match is inspected and it is not wireless, so the connection
	// strength stays put.
	if d.ActiveConnections[1].Strength != 70 {
		t.Errorf("connection strength = %d, want untouched 70", d.ActiveConnections[1].Strength)
	}
}

func TestData_UpdateStrengthUpdatesWirelessConnection(t *testing.T) {
	d := Data{
		AccessPoints: []AccessPoint{visible("home", 70)},
		ActiveConnections: []ActiveConnection{
			{Kind: ConnectionWiFi, ID: "profile", Name: "home", Strength: 70},
		},
	}

	d.Update(NewStrengthEvent("home", 30))
	if d.ActiveConnections[0].Strength != 30 {
		t.Errorf("connection strength = %d, want 30", d.ActiveConnections[0].Strength)
	}
}

func TestData_UpdateStrengthUnknownSSID(t *testing.T) {
	d := Data{AccessPoints: []AccessPoint{visible("home", 70)}}
	d.Update(NewStrengthEvent("elsewhere", 10))
	if d.AccessPoints[0].Strength != 70 {
		t.Errorf("access point strength = %d, want untouched 70", d.AccessPoints[0].Strength)
	}
}

func TestData_UpdatePasswordRequestChangesNothing(t *testing.T) {
	d := Data{WiFiEnabled: true, LastError: "stale"}
	d.Update(NewPasswordRequestedEvent("home"))
	if !d.WiFiEnabled {
		t.Error("WiFiEnabled flipped by password request")
	}
	if d.LastError != "" {
		t.Errorf("LastError = %q, want cleared", d.LastError)
	}
}

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventWiFiEnabled, "wifi_enabled"},
		{EventWirelessDevice, "wireless_device"},
		{EventPasswordRequested, "password_requested"},
		{EventScanning, "scanning"},
		{EventKind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestConnectivityState_String(t *testing.T) {
	tests := []struct {
		state ConnectivityState
		want  string
	}{
		{ConnectivityNone, "none"},
		{ConnectivityPortal, "portal"},
		{ConnectivityLoss, "loss"},
		{ConnectivityFull, "full"},
		{ConnectivityUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
