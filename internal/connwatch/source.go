// Package connwatch turns transport connection notifications into lifecycle
// starts for diagnostic adapters.
package connwatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/srg/dpfwatch/internal/device"
)

// Starter begins monitoring a device. *lifecycle.Manager implements it.
type Starter interface {
	Start(ctx context.Context, dev *device.Device, autoConnect bool) error
}

// Source reacts to device connection changes reported by a transport.
type Source struct {
	starter Starter
	logger  *logrus.Logger
}

func NewSource(starter Starter, logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.New()
	}
	return &Source{starter: starter, logger: logger}
}

// OnDeviceEvent starts monitoring when a diagnostic device connects.
// Disconnections are only logged; monitoring keeps running until stopped
// explicitly. Devices that are not diagnostic adapters are ignored.
func (s *Source) OnDeviceEvent(ctx context.Context, dev device.Device, connected bool) error {
	fragment, ok := device.MatchFragment(dev.Name)
	if !ok {
		s.logger.WithField("device", dev.String()).Debug("Ignoring non-diagnostic device")
		return nil
	}

	fields := logrus.Fields{
		"device":   dev.String(),
		"fragment": fragment,
	}
	if !connected {
		s.logger.WithFields(fields).Info("Diagnostic device disconnected")
		return nil
	}

	s.logger.WithFields(fields).Info("Diagnostic device connected")
	return s.starter.Start(ctx, &dev, false)
}

// Run feeds events into OnDeviceEvent until the channel closes or ctx ends.
// Start failures are logged and do not stop the loop.
func (s *Source) Run(ctx context.Context, events <-chan device.ConnectionEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.logger.Debug("Connection event stream closed")
				return nil
			}
			if err := s.OnDeviceEvent(ctx, ev.Device, ev.Connected); err != nil {
				s.logger.WithError(err).WithField("device", ev.Device.String()).Warn("Failed to start monitoring on connect")
			}
		}
	}
}
