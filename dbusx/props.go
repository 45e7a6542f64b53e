package dbusx

import (
	"context"

	"github.com/godbus/dbus/v5"
)

const (
	// PropertiesIface is the standard property access interface.
	PropertiesIface = "org.freedesktop.DBus.Properties"

	// ObjectManagerIface is the standard object tree interface.
	ObjectManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// GetProp fetches one property through the Properties interface.
func GetProp[T any](ctx context.Context, obj Object, iface, name string) (T, error) {
	var out T
	var v dbus.Variant
	call := obj.CallWithContext(ctx, PropertiesIface+".Get", 0, iface, name)
	if err := call.Store(&v); err != nil {
		return out, err
	}
	if err := dbus.Store([]any{v.Value()}, &out); err != nil {
		return out, err
	}
	return out, nil
}

// SetProp writes one property through the Properties interface.
func SetProp(ctx context.Context, obj Object, iface, name string, value any) error {
	return obj.CallWithContext(ctx, PropertiesIface+".Set", 0, iface, name, dbus.MakeVariant(value)).Err
}

// ChangedProperties unpacks a PropertiesChanged signal body into the
// owning interface and the changed values.
func ChangedProperties(sig *dbus.Signal) (string, map[string]dbus.Variant, bool) {
	if sig.Name != PropertiesIface+".PropertiesChanged" || len(sig.Body) < 2 {
		return "", nil, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return "", nil, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}
	return iface, changed, true
}

// ManagedObjects mirrors the ObjectManager GetManagedObjects reply:
// object path to interface name to property map.
type ManagedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// GetManagedObjects walks dest's object tree from the root path.
func GetManagedObjects(ctx context.Context, c Conn, dest string) (ManagedObjects, error) {
	call := c.Object(dest, "/").CallWithContext(ctx, ObjectManagerIface+".GetManagedObjects", 0)
	var objects ManagedObjects
	if err := call.Store(&objects); err != nil {
		return nil, err
	}
	return objects, nil
}

// Value extracts one typed entry from a variant property map.
func Value[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var out T
	v, ok := props[key]
	if !ok {
		return out, false
	}
	out, ok = v.Value().(T)
	return out, ok
}
