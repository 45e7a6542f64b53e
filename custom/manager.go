package custom

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
	"github.com/zoobzio/bosun/config"
)

// Manager reconciles running module listeners against the configured
// definitions and folds their events.
//
// Listeners register on the module context under the module's name,
// so applying a changed listen command aborts the previous listener,
// killing its process through context cancellation, before the
// replacement spawns. A listener that ends on its own stays down
// until its definition changes; one-shot listen commands are valid
// and keep their last output on display.
type Manager struct {
	mc       *bosun.ModuleContext
	listener *Listener

	mu      sync.Mutex
	modules map[string]Module
	states  map[string]State
	handles map[string]*bosun.ListenerHandle
}

// NewManager creates a manager publishing through the given module
// context.
func NewManager(mc *bosun.ModuleContext) *Manager {
	return &Manager{
		mc:       mc,
		listener: NewListener(),
		modules:  make(map[string]Module),
		states:   make(map[string]State),
		handles:  make(map[string]*bosun.ListenerHandle),
	}
}

// Listener replaces the exec bridge. Must be called before Apply.
func (m *Manager) Listener(l *Listener) *Manager {
	m.listener = l
	return m
}

// Apply reconciles the running modules against defs: new definitions
// start their listeners, removed ones stop, and a changed listen
// command restarts its module's listener. Applying nil stops
// everything.
func (m *Manager) Apply(defs []config.CustomModule) error {
	compiled := make(map[string]Module, len(defs))
	for _, def := range defs {
		mod, err := NewModule(def)
		if err != nil {
			return fmt.Errorf("custom module %q: %w", def.Name, err)
		}
		compiled[def.Name] = mod
	}

	m.mu.Lock()
	previous := m.modules
	m.modules = compiled

	// Listeners whose module is gone or no longer listens stop here.
	// Changed listen commands restart through Register, which aborts
	// the previous listener itself.
	var stop []*bosun.ListenerHandle
	for name, handle := range m.handles {
		if next, ok := compiled[name]; ok && next.Listen != "" {
			continue
		}
		delete(m.handles, name)
		stop = append(stop, handle)
	}

	var start []Module
	for name, mod := range compiled {
		if mod.Listen == "" {
			continue
		}
		if _, running := m.handles[name]; running && previous[name].Listen == mod.Listen {
			continue
		}
		start = append(start, mod)
	}

	for name := range m.states {
		if _, ok := compiled[name]; !ok {
			delete(m.states, name)
		}
	}
	m.mu.Unlock()

	for _, handle := range stop {
		handle.Abort()
	}
	for _, mod := range start {
		handle, err := m.mc.Register(mod.Name, m.listen(mod))
		if err != nil {
			return fmt.Errorf("custom module %q: %w", mod.Name, err)
		}
		m.mu.Lock()
		m.handles[mod.Name] = handle
		m.mu.Unlock()
	}
	return nil
}

// listen builds the background listener for one module.
func (m *Manager) listen(mod Module) func(context.Context) {
	sender := bosun.NewSender[Event](m.mc, mod.Name)
	return func(ctx context.Context) {
		events, err := m.listener.Stream(ctx, mod.Listen)
		if err != nil {
			capitan.Emit(ctx, ListenerFailed,
				bosun.KeyModule.Field(mod.Name),
				bosun.KeyError.Field(err.Error()),
			)
			m.publish(ctx, sender, mod.Name, NewErrorEvent(err))
			return
		}
		for event := range events {
			if event.Kind == EventError {
				capitan.Emit(ctx, ListenerFailed,
					bosun.KeyModule.Field(mod.Name),
					bosun.KeyError.Field(event.Err.Error()),
				)
			}
			m.publish(ctx, sender, mod.Name, event)
		}
	}
}

// publish folds the event and forwards it on the bus, best effort:
// the bus reports its own drops.
func (m *Manager) publish(ctx context.Context, sender *bosun.Sender[Event], name string, event Event) {
	m.mu.Lock()
	state := m.states[name]
	state.Update(event)
	m.states[name] = state
	m.mu.Unlock()

	_ = sender.Send(ctx, event)
}

// Snapshot returns the folded state of one module.
func (m *Manager) Snapshot(name string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modules[name]; !ok {
		return State{}, false
	}
	return m.states[name], true
}

// Module returns the compiled definition of one module.
func (m *Manager) Module(name string) (Module, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[name]
	return mod, ok
}

// Modules returns the compiled definitions, name-sorted.
func (m *Manager) Modules() []Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	mods := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		mods = append(mods, mod)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods
}

// Run launches the module's click command in the background. The
// command outlives ctx; a failure after launch surfaces on the
// command-failed signal with the command's stderr.
func (m *Manager) Run(ctx context.Context, name string) error {
	mod, ok := m.Module(name)
	if !ok {
		return fmt.Errorf("unknown custom module %q", name)
	}

	cmd := exec.Command(m.listener.shell, "-c", mod.Command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", mod.Command, err)
	}

	go func() {
		err := cmd.Wait()
		if err == nil {
			return
		}
		msg := err.Error()
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			msg = msg + ": " + tail
		}
		capitan.Emit(ctx, CommandFailed,
			bosun.KeyModule.Field(name),
			bosun.KeyError.Field(msg),
		)
	}()
	return nil
}
