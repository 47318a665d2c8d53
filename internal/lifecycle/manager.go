package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/eventbus"
	"github.com/srg/dpfwatch/internal/host"
)

// DeviceRecorder persists the address of the device being monitored.
// *prefs.Store implements it.
type DeviceRecorder interface {
	SetLastDeviceAddress(ctx context.Context, address string) error
}

// Manager owns the monitoring state machine. It is safe for concurrent use.
type Manager struct {
	recorder DeviceRecorder
	host     host.Host
	opts     Options
	logger   *logrus.Logger
	bus      *eventbus.Bus[Event]
	now      func() time.Time

	mu          sync.Mutex // serializes transitions
	state       atomic.Int32
	current     *device.Device
	alertActive bool
	handle      host.Handle
	closed      bool
}

// NewManager creates an idle manager.
func NewManager(recorder DeviceRecorder, h host.Host, opts Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		recorder: recorder,
		host:     h,
		opts:     opts.withDefaults(),
		logger:   logger,
		bus:      eventbus.New[Event](),
		now:      time.Now,
	}
}

// Start begins monitoring dev. A nil dev is accepted only with autoConnect,
// in which case monitoring runs without a known device and no EventConnected
// is emitted. Starting while already monitoring another device switches to
// it; starting for the device already monitored is a no-op.
func (m *Manager) Start(ctx context.Context, dev *device.Device, autoConnect bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "start"
	if m.closed {
		return m.fail(op, KindInvalidTransition, ErrClosed)
	}
	if dev == nil && !autoConnect {
		return m.fail(op, KindInvalidArgument, ErrNoDevice)
	}
	if dev != nil && dev.Address == "" {
		return m.fail(op, KindInvalidArgument, ErrNoDevice)
	}

	if m.State() == StateMonitoring && sameDevice(m.current, dev) {
		m.logger.WithField("device", describe(dev)).Debug("Already monitoring device, start ignored")
		return nil
	}

	var target *device.Device
	if dev != nil {
		d := *dev
		target = &d
	}

	switching := m.State() == StateMonitoring
	if switching {
		m.logger.WithFields(logrus.Fields{
			"from": describe(m.current),
			"to":   describe(target),
		}).Info("Switching monitored device")
		m.teardownLocked()
		if target == nil {
			// No Connected follows a deviceless start, so announce the loss now
			m.emitLocked(Event{Kind: EventDisconnected})
			switching = false
		}
	}

	m.setState(StateStarting)

	if target != nil {
		if err := m.recorder.SetLastDeviceAddress(ctx, target.Address); err != nil {
			return m.abortStartLocked(switching, m.fail(op, KindPersistence, err))
		}
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.opts.AcquireTimeout)
	defer cancel()

	handle, err := m.host.Acquire(acquireCtx, m.opts.Notifications.MonitoringMetadata(target))
	if err != nil {
		return m.abortStartLocked(switching, m.fail(op, KindExecutionContext, err))
	}

	m.handle = handle
	m.current = target
	m.setState(StateMonitoring)

	if target != nil {
		d := *target
		m.emitLocked(Event{Kind: EventConnected, Device: &d})
	}

	m.logger.WithFields(logrus.Fields{
		"device":       describe(target),
		"auto_connect": autoConnect,
	}).Info("Monitoring started")
	return nil
}

// Stop ends monitoring. It is a no-op while Idle. The manager always ends
// Idle; a failed release is reported after the transition completes.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopLocked()
}

// RaiseAlert surfaces the regeneration alert. Only valid while monitoring;
// raising an active alert is a no-op.
func (m *Manager) RaiseAlert() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	const op = "raise_alert"
	if m.State() != StateMonitoring {
		return m.fail(op, KindInvalidTransition, ErrNotMonitoring)
	}
	if m.alertActive {
		return nil
	}

	if err := m.host.UpdateStatus(m.handle, m.opts.Notifications.AlertMetadata()); err != nil {
		return m.fail(op, KindExecutionContext, err)
	}

	m.alertActive = true
	m.emitLocked(Event{Kind: EventAlertRaised})
	m.logger.WithField("device", describe(m.current)).Warn("Regeneration alert raised")
	return nil
}

// ClearAlert withdraws the regeneration alert; a no-op when none is active.
// The alert is cleared even when restoring the monitoring indicator fails.
func (m *Manager) ClearAlert() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.alertActive {
		return nil
	}
	m.alertActive = false

	var err error
	if m.handle.Valid() {
		if uerr := m.host.UpdateStatus(m.handle, m.opts.Notifications.MonitoringMetadata(m.current)); uerr != nil {
			err = m.fail("clear_alert", KindExecutionContext, uerr)
			m.logger.WithError(uerr).Warn("Failed to restore monitoring indicator")
		}
	}

	m.emitLocked(Event{Kind: EventAlertCleared})
	m.logger.Info("Regeneration alert cleared")
	return err
}

// State returns the current state without waiting for a transition in progress
func (m *Manager) State() State {
	return State(m.state.Load())
}

// AlertActive reports whether the regeneration alert is outstanding
func (m *Manager) AlertActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alertActive
}

// CurrentDevice returns a copy of the monitored device, or nil
func (m *Manager) CurrentDevice() *device.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyDevice(m.current)
}

// Snapshot returns state, device and alert flag observed atomically
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:       m.State(),
		Device:      copyDevice(m.current),
		AlertActive: m.alertActive,
	}
}

// Subscribe registers for lifecycle events; buffer <= 0 uses Options.EventBuffer.
func (m *Manager) Subscribe(buffer int) *eventbus.Subscription[Event] {
	if buffer <= 0 {
		buffer = m.opts.EventBuffer
	}
	return m.bus.Subscribe(buffer)
}

// Unsubscribe removes a subscription; repeated calls are no-ops
func (m *Manager) Unsubscribe(sub *eventbus.Subscription[Event]) {
	m.bus.Unsubscribe(sub)
}

// Close stops monitoring if needed and closes every subscription.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	err := m.stopLocked()
	m.closed = true
	m.bus.Close()
	return err
}

func (m *Manager) stopLocked() error {
	if m.State() == StateIdle {
		return nil
	}

	m.setState(StateStopping)
	stopped := m.current

	var err error
	if m.alertActive {
		m.alertActive = false
		m.emitLocked(Event{Kind: EventAlertCleared})
	}
	if m.handle.Valid() {
		if rerr := m.host.Release(m.handle); rerr != nil {
			err = m.fail("stop", KindExecutionContext, rerr)
			m.logger.WithError(rerr).Warn("Failed to release execution context, stopping anyway")
		}
	}

	m.handle = host.Handle{}
	m.current = nil
	m.setState(StateIdle)
	m.emitLocked(Event{Kind: EventDisconnected})

	m.logger.WithField("device", describe(stopped)).Info("Monitoring stopped")
	return err
}

// teardownLocked ends the current session ahead of a device switch without
// announcing a disconnection.
func (m *Manager) teardownLocked() {
	if m.alertActive {
		m.alertActive = false
		m.emitLocked(Event{Kind: EventAlertCleared})
	}
	if m.handle.Valid() {
		if err := m.host.Release(m.handle); err != nil {
			m.logger.WithError(err).Warn("Failed to release execution context before device switch")
		}
	}
	m.handle = host.Handle{}
	m.current = nil
}

func (m *Manager) abortStartLocked(switching bool, err error) error {
	m.handle = host.Handle{}
	m.current = nil
	m.setState(StateIdle)
	if switching {
		// The previous session is gone; subscribers saw it connected
		m.emitLocked(Event{Kind: EventDisconnected})
	}
	m.logger.WithError(err).Error("Failed to start monitoring")
	return err
}

func (m *Manager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		m.logger.WithFields(logrus.Fields{"from": prev, "to": s}).Debug("State transition")
	}
}

func (m *Manager) emitLocked(ev Event) {
	ev.Time = m.now()
	if overflowed := m.bus.Publish(ev); overflowed > 0 {
		m.logger.WithFields(logrus.Fields{
			"event":       ev.Kind,
			"subscribers": overflowed,
		}).Warn("Subscriber queue full, oldest event dropped")
	}
	m.logger.WithField("event", ev.Kind).Debug("Lifecycle event emitted")
}

func (m *Manager) fail(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, State: m.State(), Err: err}
}

func sameDevice(a, b *device.Device) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Address == b.Address
}

func copyDevice(d *device.Device) *device.Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func describe(d *device.Device) string {
	if d == nil {
		return "<none>"
	}
	return d.String()
}
