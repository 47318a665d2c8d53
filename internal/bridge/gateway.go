// Package bridge exposes the lifecycle manager and preferences to an external
// caller as request/response operations with stable failure reasons, and
// relays lifecycle events to any number of subscribers.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/eventbus"
	"github.com/srg/dpfwatch/internal/groutine"
	"github.com/srg/dpfwatch/internal/lifecycle"
)

// Monitor is the lifecycle surface the gateway drives. *lifecycle.Manager implements it.
type Monitor interface {
	Start(ctx context.Context, dev *device.Device, autoConnect bool) error
	Stop() error
	RaiseAlert() error
	ClearAlert() error
	Snapshot() lifecycle.Snapshot
	Subscribe(buffer int) *eventbus.Subscription[lifecycle.Event]
	Unsubscribe(sub *eventbus.Subscription[lifecycle.Event])
}

// Preferences is the preference surface the gateway drives. *prefs.Store implements it.
type Preferences interface {
	AutoStartEnabled(ctx context.Context) (bool, error)
	SetAutoStart(ctx context.Context, enabled bool) error
}

// Options configures a Gateway.
type Options struct {
	// CallTimeout bounds every operation; zero uses DefaultCallTimeout
	CallTimeout time.Duration
	// UpstreamBuffer is the queue length of the gateway's own manager subscription
	UpstreamBuffer int
	// SubscriberBuffer is the default queue length for gateway subscribers
	SubscriberBuffer int
}

const DefaultCallTimeout = 15 * time.Second

// Status is the result of the status operation.
type Status struct {
	lifecycle.Snapshot
	AutoStart   bool `json:"autoStart"`
	Subscribers int  `json:"subscribers"`
}

// Gateway is safe for concurrent use.
type Gateway struct {
	monitor Monitor
	prefs   Preferences
	opts    Options
	logger  *logrus.Logger

	bus      *eventbus.Bus[lifecycle.Event]
	upstream *eventbus.Subscription[lifecycle.Event]
	pumpDone chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New creates a gateway and starts relaying the monitor's events.
func New(monitor Monitor, preferences Preferences, opts Options, logger *logrus.Logger) *Gateway {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.UpstreamBuffer <= 0 {
		opts.UpstreamBuffer = 4 * eventbus.DefaultBuffer
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = eventbus.DefaultBuffer
	}
	if logger == nil {
		logger = logrus.New()
	}

	g := &Gateway{
		monitor:  monitor,
		prefs:    preferences,
		opts:     opts,
		logger:   logger,
		bus:      eventbus.New[lifecycle.Event](),
		upstream: monitor.Subscribe(opts.UpstreamBuffer),
		pumpDone: make(chan struct{}),
	}
	groutine.Go(context.Background(), "bridge-event-pump", g.pump)
	return g
}

// StartMonitoring starts monitoring the device at address.
func (g *Gateway) StartMonitoring(ctx context.Context, address, name string) error {
	const op = "start monitoring"
	if address == "" {
		return newFailure(ReasonInvalidArgument, op, lifecycle.ErrNoDevice)
	}
	return g.call(ctx, op, func(ctx context.Context) error {
		return g.monitor.Start(ctx, &device.Device{Address: address, Name: name}, false)
	})
}

// StopMonitoring stops monitoring; stopping while idle succeeds.
func (g *Gateway) StopMonitoring(ctx context.Context) error {
	return g.call(ctx, "stop monitoring", func(context.Context) error {
		return g.monitor.Stop()
	})
}

// SetAutoStart persists the boot auto-start flag.
func (g *Gateway) SetAutoStart(ctx context.Context, enabled bool) error {
	return g.call(ctx, "set auto-start", func(ctx context.Context) error {
		return g.prefs.SetAutoStart(ctx, enabled)
	})
}

// GetAutoStart reads the boot auto-start flag.
func (g *Gateway) GetAutoStart(ctx context.Context) (bool, error) {
	var enabled bool
	err := g.call(ctx, "get auto-start", func(ctx context.Context) error {
		var err error
		enabled, err = g.prefs.AutoStartEnabled(ctx)
		return err
	})
	return enabled, err
}

// RaiseAlert raises the regeneration alert.
func (g *Gateway) RaiseAlert(ctx context.Context) error {
	return g.call(ctx, "raise alert", func(context.Context) error {
		return g.monitor.RaiseAlert()
	})
}

// ClearAlert clears the regeneration alert.
func (g *Gateway) ClearAlert(ctx context.Context) error {
	return g.call(ctx, "clear alert", func(context.Context) error {
		return g.monitor.ClearAlert()
	})
}

// Status reports the lifecycle snapshot with the auto-start flag.
func (g *Gateway) Status(ctx context.Context) (Status, error) {
	status := Status{Snapshot: g.monitor.Snapshot(), Subscribers: g.bus.Len()}
	enabled, err := g.GetAutoStart(ctx)
	if err != nil {
		return status, err
	}
	status.AutoStart = enabled
	return status, nil
}

// Subscribe registers for lifecycle events. Events emitted before the call
// are not replayed. buffer <= 0 uses Options.SubscriberBuffer. On a closed
// gateway the subscription's channel is already closed.
func (g *Gateway) Subscribe(buffer int) *eventbus.Subscription[lifecycle.Event] {
	if buffer <= 0 {
		buffer = g.opts.SubscriberBuffer
	}
	sub := g.bus.Subscribe(buffer)
	g.logger.WithField("subscription", sub.ID()).Debug("Bridge subscriber registered")
	return sub
}

// Unsubscribe removes sub and closes its channel; repeated calls are no-ops.
func (g *Gateway) Unsubscribe(sub *eventbus.Subscription[lifecycle.Event]) {
	g.bus.Unsubscribe(sub)
}

// Close detaches from the manager and closes every subscription. Operations
// on a closed gateway fail with ReasonUnavailable.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.monitor.Unsubscribe(g.upstream)
	<-g.pumpDone
	g.bus.Close()
	g.logger.Debug("Bridge gateway closed")
}

func (g *Gateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return newFailure(ReasonUnavailable, op, ErrGatewayClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		f := classify(op, err)
		g.logger.WithError(err).WithFields(logrus.Fields{
			"op":     op,
			"reason": f.Reason,
		}).Warn("Bridge call failed")
		return f
	}
	return nil
}

// pump forwards manager events to gateway subscribers until the upstream
// subscription is closed.
func (g *Gateway) pump(ctx context.Context) {
	defer close(g.pumpDone)

	for ev := range g.upstream.C() {
		if overflowed := g.bus.Publish(ev); overflowed > 0 {
			g.logger.WithFields(logrus.Fields{
				"event":       ev.Kind,
				"subscribers": overflowed,
				"goroutine":   groutine.Name(ctx),
			}).Warn("Bridge subscriber queue full, oldest event dropped")
		}
	}
}
