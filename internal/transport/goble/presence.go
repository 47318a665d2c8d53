package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/eventbus"
	"github.com/srg/dpfwatch/internal/groutine"
)

// Options configures a PresenceScanner.
type Options struct {
	// LostAfter is how long an address may stay silent before it is reported gone
	LostAfter time.Duration
	// SweepInterval is how often silent addresses are checked
	SweepInterval time.Duration
	// Buffer is the event queue length; the oldest event is dropped when full
	Buffer int
	// DiagnosticOnly suppresses events for devices the classifier rejects
	DiagnosticOnly bool
}

// DefaultOptions returns the scanner defaults
func DefaultOptions() Options {
	return Options{
		LostAfter:      30 * time.Second,
		SweepInterval:  5 * time.Second,
		Buffer:         64,
		DiagnosticOnly: true,
	}
}

type sighting struct {
	dev      device.Device
	lastSeen atomic.Int64 // unix nanos
}

// PresenceScanner turns advertisements into connection events: the first
// named advertisement from an address reports it connected, and an address
// silent for LostAfter reports it disconnected.
type PresenceScanner struct {
	opts   Options
	logger *logrus.Logger
	now    func() time.Time

	seen *hashmap.Map[string, *sighting]

	sendMu sync.Mutex // RingChannel needs a single producer
	closed bool
	events *eventbus.RingChannel[device.ConnectionEvent]
}

// NewPresenceScanner creates a scanner; zero durations and buffer use DefaultOptions.
func NewPresenceScanner(opts Options, logger *logrus.Logger) *PresenceScanner {
	d := DefaultOptions()
	if opts.LostAfter <= 0 {
		opts.LostAfter = d.LostAfter
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = d.SweepInterval
	}
	if opts.Buffer <= 0 {
		opts.Buffer = d.Buffer
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &PresenceScanner{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		seen:   hashmap.New[string, *sighting](),
		events: eventbus.NewRingChannel[device.ConnectionEvent](opts.Buffer),
	}
}

// Events returns the connection event stream. It is closed when Run returns.
func (s *PresenceScanner) Events() <-chan device.ConnectionEvent {
	return s.events.C()
}

// Run scans until ctx ends or the adapter fails. Cancellation is not an error.
func (s *PresenceScanner) Run(ctx context.Context) error {
	defer s.close()

	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	groutine.GoTracked(scanCtx, &wg, "ble-presence-sweep", s.sweepLoop)

	s.logger.WithFields(logrus.Fields{
		"lost_after":      s.opts.LostAfter,
		"diagnostic_only": s.opts.DiagnosticOnly,
	}).Info("Starting BLE presence scan...")

	// Duplicates are needed to keep addresses alive
	err = dev.Scan(scanCtx, true, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.seen.Len()).Info("BLE presence scan stopped")
	return nil
}

// present returns the devices currently considered in range
func (s *PresenceScanner) present() []device.Device {
	out := make([]device.Device, 0, s.seen.Len())
	s.seen.Range(func(_ string, v *sighting) bool {
		out = append(out, v.dev)
		return true
	})
	return out
}

func (s *PresenceScanner) handleAdvertisement(adv ble.Advertisement) {
	address := adv.Addr().String()
	now := s.now().UnixNano()

	if existing, ok := s.seen.Get(address); ok {
		existing.lastSeen.Store(now)
		return
	}

	// Unnamed advertisements cannot be classified; wait for a scan response
	name := adv.LocalName()
	if name == "" {
		return
	}

	dev := device.Device{Address: address, Name: name}
	if s.opts.DiagnosticOnly && !dev.IsDiagnostic() {
		return
	}

	entry := &sighting{dev: dev}
	entry.lastSeen.Store(now)
	if _, loaded := s.seen.GetOrInsert(address, entry); loaded {
		return
	}

	s.logger.WithFields(logrus.Fields{
		"device":  dev.Name,
		"address": dev.Address,
		"rssi":    adv.RSSI(),
	}).Info("Device came into range")
	s.send(device.ConnectionEvent{Device: dev, Connected: true, Time: s.now()})
}

func (s *PresenceScanner) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep reports and forgets every address silent for longer than LostAfter
func (s *PresenceScanner) sweep() {
	cutoff := s.now().Add(-s.opts.LostAfter).UnixNano()

	var lost []*sighting
	s.seen.Range(func(_ string, v *sighting) bool {
		if v.lastSeen.Load() < cutoff {
			lost = append(lost, v)
		}
		return true
	})

	for _, v := range lost {
		if v.lastSeen.Load() >= cutoff {
			continue // refreshed meanwhile
		}
		if !s.seen.Del(v.dev.Address) {
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"device":  v.dev.Name,
			"address": v.dev.Address,
		}).Info("Device went out of range")
		s.send(device.ConnectionEvent{Device: v.dev, Connected: false, Time: s.now()})
	}
}

func (s *PresenceScanner) send(ev device.ConnectionEvent) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}
	if s.events.ForceSend(ev) {
		s.logger.WithField("address", ev.Device.Address).Warn("Connection event queue full, oldest event dropped")
	}
}

func (s *PresenceScanner) close() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.closed {
		s.closed = true
		s.events.Close()
	}
}
