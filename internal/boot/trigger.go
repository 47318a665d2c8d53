// Package boot starts monitoring once when the system finishes booting.
package boot

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/prefs"
)

// ErrAlreadyFired is returned when OnSystemBoot is called more than once
var ErrAlreadyFired = errors.New("startup trigger already fired")

// PreferencesLoader reads the persisted preferences. *prefs.Store implements it.
type PreferencesLoader interface {
	Load(ctx context.Context) (prefs.Preferences, error)
}

// Starter begins monitoring. *lifecycle.Manager implements it.
type Starter interface {
	Start(ctx context.Context, dev *device.Device, autoConnect bool) error
}

// Trigger performs the boot-time auto-start.
type Trigger struct {
	prefs   PreferencesLoader
	starter Starter
	logger  *logrus.Logger
	fired   atomic.Bool
}

func NewTrigger(loader PreferencesLoader, starter Starter, logger *logrus.Logger) *Trigger {
	if logger == nil {
		logger = logrus.New()
	}
	return &Trigger{prefs: loader, starter: starter, logger: logger}
}

// OnSystemBoot starts monitoring when auto-start is enabled, targeting the
// last monitored device if one was recorded. Unreadable preferences fall back
// to the defaults. There is a single attempt and no retry.
func (t *Trigger) OnSystemBoot(ctx context.Context) error {
	if !t.fired.CompareAndSwap(false, true) {
		return ErrAlreadyFired
	}

	p, err := t.prefs.Load(ctx)
	if err != nil {
		t.logger.WithError(err).Warn("Failed to read preferences on boot, using defaults")
		p = prefs.Defaults()
	}

	if !p.AutoStartEnabled {
		t.logger.Info("Auto-start disabled, not starting monitoring on boot")
		return nil
	}

	var dev *device.Device
	if p.HasLastDevice() {
		dev = &device.Device{Address: p.LastDeviceAddress}
	}

	t.logger.WithField("last_device", p.LastDeviceAddress).Info("Auto-starting monitoring on boot")
	if err := t.starter.Start(ctx, dev, true); err != nil {
		t.logger.WithError(err).Error("Boot auto-start failed")
		return err
	}
	return nil
}
