package main

import (
	"errors"
	"strings"

	"github.com/srg/dpfwatch/internal/bridge"
	"github.com/srg/dpfwatch/internal/host"
	"github.com/srg/dpfwatch/internal/prefs"
	"github.com/srg/dpfwatch/pkg/config"
)

// Command-level errors
var (
	// ErrInvalidArgument is returned for malformed positional arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

// FormatUserError turns an error chain into a single line for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var failure *bridge.Failure
	switch {
	case errors.As(err, &failure):
		return strings.ToLower(string(failure.Reason)) + ": " + failure.Message
	case errors.Is(err, config.ErrInvalidConfig):
		return "configuration is invalid: " + err.Error()
	case errors.Is(err, host.ErrServiceRunning):
		return "another dpfwatch service is already running (" + err.Error() + ")"
	case errors.Is(err, host.ErrLocked):
		return "another dpfwatch instance is already monitoring (" + err.Error() + ")"
	case errors.Is(err, prefs.ErrPersistence):
		return "preferences could not be read or saved: " + err.Error()
	}
	return err.Error()
}
