// Package dbusx carries the bus plumbing shared by the D-Bus backed
// services: connection and object seams small enough to script in
// tests, property access that honors contexts, and ObjectManager
// decoding.
package dbusx

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// Conn is the slice of *dbus.Conn the service backends need. Tests
// install scripted implementations.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) Object
	Signal(ch chan<- *dbus.Signal)
	AddMatchSignal(options ...dbus.MatchOption) error
	Close() error
}

// Object is the slice of dbus.BusObject the backends need. All
// property traffic goes through Properties calls so every bus
// operation takes a context.
type Object interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

type conn struct {
	c *dbus.Conn
}

func (c conn) Object(dest string, path dbus.ObjectPath) Object {
	return c.c.Object(dest, path)
}

func (c conn) Signal(ch chan<- *dbus.Signal) {
	c.c.Signal(ch)
}

func (c conn) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.c.AddMatchSignal(options...)
}

func (c conn) Close() error {
	return c.c.Close()
}

// System dials the system bus.
func System() (Conn, error) {
	c, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return conn{c: c}, nil
}

// Session dials the session bus.
func Session() (Conn, error) {
	c, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return conn{c: c}, nil
}
