package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/dpfwatch/internal/lifecycle"
	"github.com/srg/dpfwatch/internal/prefs"
)

// Reason is the stable, machine-readable code reported to bridge callers.
type Reason string

const (
	ReasonServiceError    Reason = "SERVICE_ERROR"
	ReasonPrefsError      Reason = "PREFS_ERROR"
	ReasonInvalidState    Reason = "INVALID_STATE"
	ReasonInvalidArgument Reason = "INVALID_ARGUMENT"
	ReasonTimeout         Reason = "TIMEOUT"
	ReasonUnavailable     Reason = "UNAVAILABLE"
	ReasonInternal        Reason = "INTERNAL"
)

// Failure is the only error type returned by Gateway operations.
type Failure struct {
	Reason  Reason
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Reason, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Reason, f.Message, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ReasonOf returns the reason code carried by err, or ReasonInternal.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonInternal
}

// ErrGatewayClosed is wrapped by failures of operations on a closed gateway
var ErrGatewayClosed = errors.New("bridge gateway closed")

func newFailure(reason Reason, message string, err error) *Failure {
	return &Failure{Reason: reason, Message: message, Err: err}
}

// classify maps an internal error onto a reason code. A deadline hit while
// acquiring the execution context reports TIMEOUT rather than SERVICE_ERROR.
func classify(message string, err error) *Failure {
	var reason Reason
	switch {
	case errors.Is(err, lifecycle.ErrPersistence), errors.Is(err, prefs.ErrPersistence):
		reason = ReasonPrefsError
	case errors.Is(err, lifecycle.ErrClosed), errors.Is(err, ErrGatewayClosed):
		reason = ReasonUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		reason = ReasonTimeout
	case errors.Is(err, lifecycle.ErrExecutionContext):
		reason = ReasonServiceError
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		reason = ReasonInvalidState
	case errors.Is(err, lifecycle.ErrInvalidArgument):
		reason = ReasonInvalidArgument
	default:
		reason = ReasonInternal
	}
	return newFailure(reason, message, err)
}
