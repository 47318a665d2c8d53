package lifecycle

import (
	"strings"
	"time"

	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/host"
)

// DeviceLabelPlaceholder is replaced by the device name in MonitoringBody
const DeviceLabelPlaceholder = "{device}"

// Notifications holds the texts shown by the execution context.
type Notifications struct {
	MonitoringTitle    string
	MonitoringBody     string // may contain DeviceLabelPlaceholder
	DefaultDeviceLabel string // used when the device or its name is unknown
	AlertTitle         string
	AlertBody          string
}

// Options tunes a Manager.
type Options struct {
	// AcquireTimeout bounds execution-context acquisition during Start
	AcquireTimeout time.Duration
	// EventBuffer is the default per-subscriber queue length
	EventBuffer   int
	Notifications Notifications
}

// DefaultNotifications returns the stock indicator texts
func DefaultNotifications() Notifications {
	return Notifications{
		MonitoringTitle:    "DPF Alarm",
		MonitoringBody:     "Monitoring DPF: " + DeviceLabelPlaceholder,
		DefaultDeviceLabel: "OBD",
		AlertTitle:         "DPF REGENERATION ACTIVE!",
		AlertBody:          "Do not turn off the engine!",
	}
}

// DefaultOptions returns the options used by NewManager for zero fields
func DefaultOptions() Options {
	return Options{
		AcquireTimeout: 10 * time.Second,
		EventBuffer:    64,
		Notifications:  DefaultNotifications(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = d.AcquireTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = d.EventBuffer
	}

	n := &o.Notifications
	if n.MonitoringTitle == "" {
		n.MonitoringTitle = d.Notifications.MonitoringTitle
	}
	if n.MonitoringBody == "" {
		n.MonitoringBody = d.Notifications.MonitoringBody
	}
	if n.DefaultDeviceLabel == "" {
		n.DefaultDeviceLabel = d.Notifications.DefaultDeviceLabel
	}
	if n.AlertTitle == "" {
		n.AlertTitle = d.Notifications.AlertTitle
	}
	if n.AlertBody == "" {
		n.AlertBody = d.Notifications.AlertBody
	}
	return o
}

// MonitoringMetadata is the low-priority indicator shown while monitoring dev.
func (n Notifications) MonitoringMetadata(dev *device.Device) host.Metadata {
	label := n.DefaultDeviceLabel
	if dev != nil && dev.HasName() {
		label = dev.Name
	}
	return host.Metadata{
		Title:    n.MonitoringTitle,
		Body:     strings.ReplaceAll(n.MonitoringBody, DeviceLabelPlaceholder, label),
		Priority: host.PriorityLow,
	}
}

// AlertMetadata is the high-priority regeneration indicator
func (n Notifications) AlertMetadata() host.Metadata {
	return host.Metadata{
		Title:    n.AlertTitle,
		Body:     n.AlertBody,
		Priority: host.PriorityHigh,
	}
}
