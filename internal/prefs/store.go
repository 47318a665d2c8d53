package prefs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Preference keys, shared by every backend.
const (
	KeyAutoStart  = "auto_start_enabled"
	KeyLastDevice = "last_obd_device"
)

// DefaultAutoStart applies when the auto-start flag was never written.
const DefaultAutoStart = true

// Backend is a durable string key/value store.
type Backend interface {
	// Get returns ok=false when the key was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Preferences is a snapshot of every persisted preference.
type Preferences struct {
	AutoStartEnabled  bool   `json:"autoStartEnabled" yaml:"auto_start_enabled"`
	LastDeviceAddress string `json:"lastDeviceAddress,omitempty" yaml:"last_device_address,omitempty"`
}

// HasLastDevice reports whether a device address was ever recorded
func (p Preferences) HasLastDevice() bool {
	return p.LastDeviceAddress != ""
}

// Defaults returns the preferences used before anything was persisted.
func Defaults() Preferences {
	return Preferences{AutoStartEnabled: DefaultAutoStart}
}

// Store gives typed access to the preferences kept in a Backend.
type Store struct {
	backend Backend
	logger  *logrus.Logger
}

// NewStore creates a preference store on top of backend
func NewStore(backend Backend, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{backend: backend, logger: logger}
}

// Load reads every preference, applying defaults for unset keys.
func (s *Store) Load(ctx context.Context) (Preferences, error) {
	p := Defaults()

	enabled, err := s.AutoStartEnabled(ctx)
	if err != nil {
		return Defaults(), err
	}
	p.AutoStartEnabled = enabled

	addr, _, err := s.LastDeviceAddress(ctx)
	if err != nil {
		return Defaults(), err
	}
	p.LastDeviceAddress = addr

	return p, nil
}

// AutoStartEnabled returns the persisted flag, or DefaultAutoStart when unset.
func (s *Store) AutoStartEnabled(ctx context.Context) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, KeyAutoStart)
	if err != nil {
		return DefaultAutoStart, wrap("get", KeyAutoStart, err)
	}
	if !ok {
		return DefaultAutoStart, nil
	}

	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return DefaultAutoStart, &PersistenceError{
			Op:  "get",
			Key: KeyAutoStart,
			Err: fmt.Errorf("malformed value %q: %w", raw, err),
		}
	}
	return enabled, nil
}

// SetAutoStart persists the auto-start flag
func (s *Store) SetAutoStart(ctx context.Context, enabled bool) error {
	if err := s.backend.Set(ctx, KeyAutoStart, strconv.FormatBool(enabled)); err != nil {
		return wrap("set", KeyAutoStart, err)
	}
	s.logger.WithField("enabled", enabled).Debug("Auto-start preference saved")
	return nil
}

// LastDeviceAddress returns the address of the device monitored last.
func (s *Store) LastDeviceAddress(ctx context.Context) (string, bool, error) {
	addr, ok, err := s.backend.Get(ctx, KeyLastDevice)
	if err != nil {
		return "", false, wrap("get", KeyLastDevice, err)
	}
	if !ok || addr == "" {
		return "", false, nil
	}
	return addr, true, nil
}

// SetLastDeviceAddress persists the address of the device being monitored
func (s *Store) SetLastDeviceAddress(ctx context.Context, address string) error {
	if err := s.backend.Set(ctx, KeyLastDevice, address); err != nil {
		return wrap("set", KeyLastDevice, err)
	}
	s.logger.WithField("address", address).Debug("Last device saved")
	return nil
}

// Close releases the backend
func (s *Store) Close() error {
	return wrap("close", "", s.backend.Close())
}
