package config

import (
	"reflect"
	"sort"
)

// Impact describes the effect a configuration update has on the
// running system: which facets changed and which modules need to react.
type Impact struct {
	// AffectedModules lists modules whose configuration changed, sorted
	// by name.
	AffectedModules []string

	LayoutChanged        bool
	AppearanceChanged    bool
	OutputsChanged       bool
	PositionChanged      bool
	LogLevelChanged      bool
	MenuFocusChanged     bool
	CustomModulesChanged bool
}

// Affects reports whether the given module is listed as affected.
func (i Impact) Affects(module string) bool {
	for _, name := range i.AffectedModules {
		if name == module {
			return true
		}
	}
	return false
}

// Diff computes the impact of replacing previous with next.
func Diff(previous, next Config) Impact {
	var impact Impact
	affected := make(map[string]bool)

	if !reflect.DeepEqual(previous.Modules, next.Modules) {
		impact.LayoutChanged = true
	}
	if previous.Appearance != next.Appearance {
		impact.AppearanceChanged = true
	}
	if !reflect.DeepEqual(previous.Outputs, next.Outputs) {
		impact.OutputsChanged = true
	}
	if previous.Position != next.Position {
		impact.PositionChanged = true
	}
	if previous.LogLevel != next.LogLevel {
		impact.LogLevelChanged = true
	}
	if previous.MenuKeyboardFocus != next.MenuKeyboardFocus {
		impact.MenuFocusChanged = true
	}

	markChanged(affected, ModuleAppLauncher, previous.AppLauncherCmd, next.AppLauncherCmd)
	markChanged(affected, ModuleClipboard, previous.ClipboardCmd, next.ClipboardCmd)
	markChanged(affected, ModuleUpdates, previous.Updates, next.Updates)
	markChanged(affected, ModuleWorkspaces, previous.Workspaces, next.Workspaces)
	markChanged(affected, ModuleWindowTitle, previous.WindowTitle, next.WindowTitle)
	markChanged(affected, ModuleSystemInfo, previous.System, next.System)
	markChanged(affected, ModuleBattery, previous.Battery, next.Battery)
	markChanged(affected, ModuleClock, previous.Clock, next.Clock)
	markChanged(affected, ModuleSettings, previous.Settings, next.Settings)
	markChanged(affected, ModuleMediaPlayer, previous.MediaPlayer, next.MediaPlayer)
	markChanged(affected, ModuleKeyboardLayout, previous.KeyboardLayout, next.KeyboardLayout)

	if !reflect.DeepEqual(previous.CustomModules, next.CustomModules) {
		impact.CustomModulesChanged = true
		markCustomModules(affected, previous.CustomModules, next.CustomModules)
	}

	if len(affected) > 0 {
		impact.AffectedModules = make([]string, 0, len(affected))
		for name := range affected {
			impact.AffectedModules = append(impact.AffectedModules, name)
		}
		sort.Strings(impact.AffectedModules)
	}

	return impact
}

func markChanged(affected map[string]bool, module string, previous, next any) {
	if !reflect.DeepEqual(previous, next) {
		affected[module] = true
	}
}

// markCustomModules marks every custom module that was added, removed,
// or redefined between the two configurations.
func markCustomModules(affected map[string]bool, previous, next []CustomModule) {
	prev := make(map[string]CustomModule, len(previous))
	for _, m := range previous {
		prev[m.Name] = m
	}

	seen := make(map[string]bool, len(next))
	for _, m := range next {
		seen[m.Name] = true
		old, ok := prev[m.Name]
		if !ok || !reflect.DeepEqual(old, m) {
			affected[m.Name] = true
		}
	}
	for name := range prev {
		if !seen[name] {
			affected[name] = true
		}
	}
}
