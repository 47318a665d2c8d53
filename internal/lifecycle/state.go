package lifecycle

import (
	"fmt"
	"time"

	"github.com/srg/dpfwatch/internal/device"
)

// State is the monitoring state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateMonitoring
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateMonitoring:
		return "monitoring"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventKind tags a lifecycle Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventAlertRaised
	EventAlertCleared
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventAlertRaised:
		return "alert_raised"
	case EventAlertCleared:
		return "alert_cleared"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	for _, candidate := range []EventKind{EventConnected, EventDisconnected, EventAlertRaised, EventAlertCleared} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Event is emitted on every observable transition. Device is set only for
// EventConnected.
type Event struct {
	Kind   EventKind      `json:"kind"`
	Device *device.Device `json:"device,omitempty"`
	Time   time.Time      `json:"time"`
}

// Snapshot is a consistent view of the manager state.
type Snapshot struct {
	State       State          `json:"state"`
	Device      *device.Device `json:"device,omitempty"`
	AlertActive bool           `json:"alertActive"`
}
