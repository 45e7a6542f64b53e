package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultPath is the conventional location of the shell configuration
// file, relative to the user's home directory.
const DefaultPath = ".config/bosun/config.toml"

// Position places the bar on an output edge.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// OutputsMode selects which outputs the bar renders on.
type OutputsMode string

const (
	// OutputsAll renders on every output.
	OutputsAll OutputsMode = "all"

	// OutputsActive renders on the currently focused output.
	OutputsActive OutputsMode = "active"

	// OutputsTargets renders on the explicitly listed outputs.
	OutputsTargets OutputsMode = "targets"
)

// Outputs is the output targeting configuration.
type Outputs struct {
	Mode    OutputsMode `toml:"mode" json:"mode" yaml:"mode" validate:"oneof=all active targets"`
	Targets []string    `toml:"targets" json:"targets" yaml:"targets" validate:"dive,required"`
}

// Built-in module names usable in the layout. Any other name must
// match a custom module definition.
const (
	ModuleAppLauncher    = "AppLauncher"
	ModuleUpdates        = "Updates"
	ModuleClipboard      = "Clipboard"
	ModuleWorkspaces     = "Workspaces"
	ModuleWindowTitle    = "WindowTitle"
	ModuleSystemInfo     = "SystemInfo"
	ModuleKeyboardLayout = "KeyboardLayout"
	ModuleKeyboardSubmap = "KeyboardSubmap"
	ModuleTray           = "Tray"
	ModuleClock          = "Clock"
	ModuleBattery        = "Battery"
	ModulePrivacy        = "Privacy"
	ModuleSettings       = "Settings"
	ModuleMediaPlayer    = "MediaPlayer"
)

var builtinModules = map[string]bool{
	ModuleAppLauncher:    true,
	ModuleUpdates:        true,
	ModuleClipboard:      true,
	ModuleWorkspaces:     true,
	ModuleWindowTitle:    true,
	ModuleSystemInfo:     true,
	ModuleKeyboardLayout: true,
	ModuleKeyboardSubmap: true,
	ModuleTray:           true,
	ModuleClock:          true,
	ModuleBattery:        true,
	ModulePrivacy:        true,
	ModuleSettings:       true,
	ModuleMediaPlayer:    true,
}

// Modules is the bar layout, one module name list per region.
type Modules struct {
	Left   []string `toml:"left" json:"left" yaml:"left"`
	Center []string `toml:"center" json:"center" yaml:"center"`
	Right  []string `toml:"right" json:"right" yaml:"right"`
}

// VisibilityMode selects which workspaces each output shows.
type VisibilityMode string

const (
	VisibilityAll             VisibilityMode = "all"
	VisibilityMonitorSpecific VisibilityMode = "monitor_specific"
)

// WorkspacesConfig configures the workspaces module.
type WorkspacesConfig struct {
	VisibilityMode         VisibilityMode `toml:"visibility_mode" json:"visibility_mode" yaml:"visibility_mode" validate:"oneof=all monitor_specific"`
	EnableWorkspaceFilling bool           `toml:"enable_workspace_filling" json:"enable_workspace_filling" yaml:"enable_workspace_filling"`
	MaxWorkspaces          *int           `toml:"max_workspaces" json:"max_workspaces" yaml:"max_workspaces" validate:"omitempty,gt=0"`
}

// TitleMode selects what the window title module displays.
type TitleMode string

const (
	TitleModeTitle TitleMode = "title"
	TitleModeClass TitleMode = "class"
)

// WindowTitleConfig configures the window title module.
type WindowTitleConfig struct {
	Mode                     TitleMode `toml:"mode" json:"mode" yaml:"mode" validate:"oneof=title class"`
	TruncateTitleAfterLength int       `toml:"truncate_title_after_length" json:"truncate_title_after_length" yaml:"truncate_title_after_length" validate:"gte=0"`
}

// KeyboardLayoutConfig configures the keyboard layout module.
type KeyboardLayoutConfig struct {
	// Labels maps full layout names to short display labels.
	Labels map[string]string `toml:"labels" json:"labels" yaml:"labels"`
}

// MediaPlayerConfig configures the media player module.
type MediaPlayerConfig struct {
	MaxTitleLength int `toml:"max_title_length" json:"max_title_length" yaml:"max_title_length" validate:"gt=0"`
}

// Threshold is a warn/alert threshold pair.
type Threshold struct {
	Warn  int `toml:"warn_threshold" json:"warn_threshold" yaml:"warn_threshold"`
	Alert int `toml:"alert_threshold" json:"alert_threshold" yaml:"alert_threshold" validate:"gtefield=Warn"`
}

// SystemConfig configures the system info module.
type SystemConfig struct {
	// Indicators lists the system metrics to render, in order. Known
	// names: cpu, memory, memory_swap, temperature, ip_address,
	// download_speed, upload_speed, and disk:<mount>.
	Indicators  []string  `toml:"indicators" json:"indicators" yaml:"indicators"`
	CPU         Threshold `toml:"cpu" json:"cpu" yaml:"cpu"`
	Memory      Threshold `toml:"memory" json:"memory" yaml:"memory"`
	Temperature Threshold `toml:"temperature" json:"temperature" yaml:"temperature"`
	Disk        Threshold `toml:"disk" json:"disk" yaml:"disk"`
}

// BatteryConfig configures the battery module.
type BatteryConfig struct {
	ShowPercentage      bool `toml:"show_percentage" json:"show_percentage" yaml:"show_percentage"`
	ShowPowerProfile    bool `toml:"show_power_profile" json:"show_power_profile" yaml:"show_power_profile"`
	OpenSettingsOnClick bool `toml:"open_settings_on_click" json:"open_settings_on_click" yaml:"open_settings_on_click"`
	ShowWhenUnavailable bool `toml:"show_when_unavailable" json:"show_when_unavailable" yaml:"show_when_unavailable"`
}

// ClockConfig configures the clock module.
type ClockConfig struct {
	Format string `toml:"format" json:"format" yaml:"format" validate:"required"`
}

// UpdatesConfig configures the updates module. The module is disabled
// when the section is absent.
type UpdatesConfig struct {
	CheckCmd  string `toml:"check_cmd" json:"check_cmd" yaml:"check_cmd" validate:"required"`
	UpdateCmd string `toml:"update_cmd" json:"update_cmd" yaml:"update_cmd" validate:"required"`
}

// SettingsConfig configures the settings menu commands.
type SettingsConfig struct {
	LockCmd             string `toml:"lock_cmd" json:"lock_cmd" yaml:"lock_cmd"`
	ShutdownCmd         string `toml:"shutdown_cmd" json:"shutdown_cmd" yaml:"shutdown_cmd"`
	SuspendCmd          string `toml:"suspend_cmd" json:"suspend_cmd" yaml:"suspend_cmd"`
	RebootCmd           string `toml:"reboot_cmd" json:"reboot_cmd" yaml:"reboot_cmd"`
	LogoutCmd           string `toml:"logout_cmd" json:"logout_cmd" yaml:"logout_cmd"`
	AudioSinksMoreCmd   string `toml:"audio_sinks_more_cmd" json:"audio_sinks_more_cmd" yaml:"audio_sinks_more_cmd"`
	AudioSourcesMoreCmd string `toml:"audio_sources_more_cmd" json:"audio_sources_more_cmd" yaml:"audio_sources_more_cmd"`
	WifiMoreCmd         string `toml:"wifi_more_cmd" json:"wifi_more_cmd" yaml:"wifi_more_cmd"`
	VpnMoreCmd          string `toml:"vpn_more_cmd" json:"vpn_more_cmd" yaml:"vpn_more_cmd"`
	BluetoothMoreCmd    string `toml:"bluetooth_more_cmd" json:"bluetooth_more_cmd" yaml:"bluetooth_more_cmd"`
	RemoveAirplaneBtn   bool   `toml:"remove_airplane_btn" json:"remove_airplane_btn" yaml:"remove_airplane_btn"`
	RemoveIdleBtn       bool   `toml:"remove_idle_btn" json:"remove_idle_btn" yaml:"remove_idle_btn"`
}

// AppearanceStyle selects the bar chrome rendering style.
type AppearanceStyle string

const (
	StyleIslands  AppearanceStyle = "islands"
	StyleSolid    AppearanceStyle = "solid"
	StyleGradient AppearanceStyle = "gradient"
)

// Appearance configures bar chrome.
type Appearance struct {
	ScaleFactor float64         `toml:"scale_factor" json:"scale_factor" yaml:"scale_factor" validate:"gt=0,lte=2"`
	Style       AppearanceStyle `toml:"style" json:"style" yaml:"style" validate:"oneof=islands solid gradient"`
	Opacity     float64         `toml:"opacity" json:"opacity" yaml:"opacity" validate:"gte=0,lte=1"`
}

// CustomModule defines a user-scripted module: a click command, an
// optional long-running listener whose stdout lines feed the module,
// icon rules keyed by regex, and an optional alert regex.
type CustomModule struct {
	Name      string            `toml:"name" json:"name" yaml:"name" validate:"required"`
	Command   string            `toml:"command" json:"command" yaml:"command" validate:"required"`
	Icon      string            `toml:"icon" json:"icon" yaml:"icon"`
	ListenCmd string            `toml:"listen_cmd" json:"listen_cmd" yaml:"listen_cmd"`
	Icons     map[string]string `toml:"icons" json:"icons" yaml:"icons"`
	Alert     string            `toml:"alert" json:"alert" yaml:"alert"`
}

// Config is the complete shell configuration.
type Config struct {
	LogLevel          string               `toml:"log_level" json:"log_level" yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Position          Position             `toml:"position" json:"position" yaml:"position" validate:"oneof=top bottom"`
	Outputs           Outputs              `toml:"outputs" json:"outputs" yaml:"outputs"`
	Modules           Modules              `toml:"modules" json:"modules" yaml:"modules"`
	AppLauncherCmd    string               `toml:"app_launcher_cmd" json:"app_launcher_cmd" yaml:"app_launcher_cmd"`
	ClipboardCmd      string               `toml:"clipboard_cmd" json:"clipboard_cmd" yaml:"clipboard_cmd"`
	CustomModules     []CustomModule       `toml:"custom_modules" json:"custom_modules" yaml:"custom_modules" validate:"dive"`
	Updates           *UpdatesConfig       `toml:"updates" json:"updates" yaml:"updates"`
	Workspaces        WorkspacesConfig     `toml:"workspaces" json:"workspaces" yaml:"workspaces"`
	WindowTitle       WindowTitleConfig    `toml:"window_title" json:"window_title" yaml:"window_title"`
	System            SystemConfig         `toml:"system" json:"system" yaml:"system"`
	Battery           BatteryConfig        `toml:"battery" json:"battery" yaml:"battery"`
	Clock             ClockConfig          `toml:"clock" json:"clock" yaml:"clock"`
	Settings          SettingsConfig       `toml:"settings" json:"settings" yaml:"settings"`
	Appearance        Appearance           `toml:"appearance" json:"appearance" yaml:"appearance"`
	MediaPlayer       MediaPlayerConfig    `toml:"media_player" json:"media_player" yaml:"media_player"`
	KeyboardLayout    KeyboardLayoutConfig `toml:"keyboard_layout" json:"keyboard_layout" yaml:"keyboard_layout"`
	MenuKeyboardFocus bool                 `toml:"menu_keyboard_focus" json:"menu_keyboard_focus" yaml:"menu_keyboard_focus"`
}

// Default returns the configuration used when no file is present.
// Decoding merges file contents over these values, so absent keys keep
// their defaults.
func Default() Config {
	return Config{
		LogLevel: "warn",
		Position: PositionTop,
		Outputs:  Outputs{Mode: OutputsAll},
		Modules: Modules{
			Left:   []string{ModuleWorkspaces},
			Center: []string{ModuleWindowTitle},
			Right:  []string{ModuleClock, ModulePrivacy, ModuleBattery, ModuleSettings},
		},
		Workspaces: WorkspacesConfig{
			VisibilityMode: VisibilityAll,
		},
		WindowTitle: WindowTitleConfig{
			Mode:                     TitleModeTitle,
			TruncateTitleAfterLength: 150,
		},
		System: SystemConfig{
			Indicators:  []string{"cpu", "memory", "temperature"},
			CPU:         Threshold{Warn: 60, Alert: 80},
			Memory:      Threshold{Warn: 70, Alert: 85},
			Temperature: Threshold{Warn: 60, Alert: 80},
			Disk:        Threshold{Warn: 80, Alert: 90},
		},
		Battery: BatteryConfig{
			ShowPercentage:      true,
			ShowPowerProfile:    true,
			OpenSettingsOnClick: true,
		},
		Clock: ClockConfig{Format: "%a %d %b %R"},
		Settings: SettingsConfig{
			ShutdownCmd: "shutdown now",
			SuspendCmd:  "systemctl suspend",
			RebootCmd:   "systemctl reboot",
			LogoutCmd:   "loginctl kill-user $(whoami)",
		},
		Appearance: Appearance{
			ScaleFactor: 1.0,
			Style:       StyleIslands,
			Opacity:     1.0,
		},
		MediaPlayer:       MediaPlayerConfig{MaxTitleLength: 100},
		MenuKeyboardFocus: true,
	}
}

var validate = validator.New()

// knownIndicator reports whether name is a recognized system
// indicator, allowing the disk:<mount> form.
func knownIndicator(name string) bool {
	switch name {
	case "cpu", "memory", "memory_swap", "temperature", "ip_address",
		"download_speed", "upload_speed":
		return true
	}
	return strings.HasPrefix(name, "disk:")
}

// Validate checks the configuration against the schema plus the
// cross-field rules tags cannot express: output targets present in
// targets mode, unique custom module names, layout entries resolving
// to a built-in or defined custom module, and compilable icon and
// alert regexes.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Outputs.Mode == OutputsTargets && len(c.Outputs.Targets) == 0 {
		return fmt.Errorf("outputs mode %q requires a non-empty target list", OutputsTargets)
	}

	for _, name := range c.System.Indicators {
		if !knownIndicator(name) {
			return fmt.Errorf("unknown system indicator %q", name)
		}
	}

	custom := make(map[string]bool, len(c.CustomModules))
	for _, m := range c.CustomModules {
		if custom[m.Name] {
			return fmt.Errorf("duplicate custom module definition for %q", m.Name)
		}
		custom[m.Name] = true

		for pattern := range m.Icons {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("custom module %q icon pattern %q: %w", m.Name, pattern, err)
			}
		}
		if m.Alert != "" {
			if _, err := regexp.Compile(m.Alert); err != nil {
				return fmt.Errorf("custom module %q alert pattern %q: %w", m.Name, m.Alert, err)
			}
		}
	}

	for _, region := range [][]string{c.Modules.Left, c.Modules.Center, c.Modules.Right} {
		for _, name := range region {
			if !builtinModules[name] && !custom[name] {
				return fmt.Errorf("module %q referenced in layout but not defined", name)
			}
		}
	}

	return nil
}
