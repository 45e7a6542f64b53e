// Package brightness tracks the primary backlight device and
// dispatches absolute brightness writes through logind.
//
// The package follows the standard service shape: a Data snapshot
// updated by backend events, a Service handle resolving commands
// against that snapshot, and a Backend reading the sysfs backlight
// class and writing through the session's logind object.
package brightness

// Data is the backlight snapshot. Max is the hardware ceiling read
// once per connection; Current moves with every reading.
type Data struct {
	Current uint32
	Max     uint32
}

// Event carries one backlight reading.
type Event struct {
	Current uint32
}

// Update applies one backend event to the snapshot. The hardware
// ceiling never changes on a live connection, so events carry only
// the reading.
func (d *Data) Update(event Event) {
	d.Current = event.Current
}
