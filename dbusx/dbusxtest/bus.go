// Package dbusxtest provides a scripted bus for backend tests.
package dbusxtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/zoobzio/bosun/dbusx"
)

// propKey addresses one scripted property.
type propKey struct {
	path  dbus.ObjectPath
	iface string
	name  string
}

// methodKey addresses one scripted method.
type methodKey struct {
	path   dbus.ObjectPath
	method string
}

// Bus implements dbusx.Conn over scripted property and method replies
// and feeds pushed signals to the registered channel the way a live
// connection would. Every mutation is recorded for Logged.
type Bus struct {
	mu       sync.Mutex
	props    map[propKey]any
	replies  map[methodKey][]any
	log      []string
	failSet  bool
	failCall bool

	signals chan<- *dbus.Signal
	closed  bool
}

var _ dbusx.Conn = (*Bus)(nil)

// New returns an empty scripted bus.
func New() *Bus {
	return &Bus{
		props:   make(map[propKey]any),
		replies: make(map[methodKey][]any),
	}
}

// Prop scripts one property value.
func (b *Bus) Prop(path dbus.ObjectPath, iface, name string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[propKey{path, iface, name}] = value
}

// DropProp removes a scripted property, making reads of it fail.
func (b *Bus) DropProp(path dbus.ObjectPath, iface, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.props, propKey{path, iface, name})
}

// Reply scripts one method reply body.
func (b *Bus) Reply(path dbus.ObjectPath, method string, body ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[methodKey{path, method}] = body
}

// FailSets makes every subsequent property write fail.
func (b *Bus) FailSets() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSet = true
}

// FailCalls makes every subsequent method call fail.
func (b *Bus) FailCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCall = true
}

// Logged reports whether any recorded operation contains substr.
func (b *Bus) Logged(substr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range b.log {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// Push delivers one signal to the registered channel.
func (b *Bus) Push(sig *dbus.Signal) {
	b.mu.Lock()
	ch := b.signals
	b.mu.Unlock()
	ch <- sig
}

func (b *Bus) Object(dest string, path dbus.ObjectPath) dbusx.Object {
	return busObject{bus: b, path: path}
}

func (b *Bus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = ch
}

func (b *Bus) AddMatchSignal(options ...dbus.MatchOption) error {
	return nil
}

// Close closes the registered signal channel, ending any pump reading
// from it.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.signals != nil {
		close(b.signals)
	}
	return nil
}

type busObject struct {
	bus  *Bus
	path dbus.ObjectPath
}

func (o busObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...any) *dbus.Call {
	b := o.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	switch method {
	case dbusx.PropertiesIface + ".Get":
		iface, _ := args[0].(string)
		name, _ := args[1].(string)
		value, ok := b.props[propKey{o.path, iface, name}]
		if !ok {
			return &dbus.Call{Err: fmt.Errorf("no property %s.%s on %s", iface, name, o.path)}
		}
		return &dbus.Call{Body: []any{dbus.MakeVariant(value)}}

	case dbusx.PropertiesIface + ".Set":
		iface, _ := args[0].(string)
		name, _ := args[1].(string)
		variant, _ := args[2].(dbus.Variant)
		b.log = append(b.log, fmt.Sprintf("set %s %s.%s=%v", o.path, iface, name, variant.Value()))
		if b.failSet {
			return &dbus.Call{Err: errors.New("set rejected")}
		}
		b.props[propKey{o.path, iface, name}] = variant.Value()
		return &dbus.Call{}
	}

	line := fmt.Sprintf("call %s %s", o.path, method)
	if len(args) > 0 {
		line = fmt.Sprintf("%s %v", line, args)
	}
	b.log = append(b.log, line)
	if b.failCall {
		return &dbus.Call{Err: errors.New("call rejected")}
	}
	if body, ok := b.replies[methodKey{o.path, method}]; ok {
		return &dbus.Call{Body: body}
	}
	return &dbus.Call{}
}
