package device

import (
	"fmt"
	"time"
)

// Device is a transport-level peer identified by its address.
// Name is empty when the transport did not report one.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// HasName reports whether the transport supplied a name
func (d Device) HasName() bool {
	return d.Name != ""
}

// IsDiagnostic classifies the device by its advertised name
func (d Device) IsDiagnostic() bool {
	return IsDiagnosticDevice(d.Name)
}

func (d Device) String() string {
	if d.Name == "" {
		return d.Address
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

// ConnectionEvent is pushed by a transport when a device connects or goes away.
type ConnectionEvent struct {
	Device    Device
	Connected bool
	Time      time.Time
}
