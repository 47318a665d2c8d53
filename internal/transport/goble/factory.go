// Package goble reports BLE diagnostic adapters coming into and out of radio
// range as connection events, using the go-ble stack.
package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
)

// ErrUnsupportedPlatform is returned by the default DeviceFactory on platforms
// without a go-ble backend.
var ErrUnsupportedPlatform = errors.New("BLE scanning is not supported on this platform")

// Scanner is the part of ble.Device the presence scanner needs.
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// DeviceFactory opens the host BLE adapter (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice
