package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies a lifecycle failure.
type Kind string

const (
	KindPersistence       Kind = "persistence"
	KindExecutionContext  Kind = "execution_context"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidArgument   Kind = "invalid_argument"
)

// Error is returned by every failing Manager operation.
type Error struct {
	Kind  Kind
	Op    string // "start", "stop", "raise_alert", "clear_alert"
	State State  // state in which the failure was detected
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s): %s", e.Op, e.State, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %s: %v", e.Op, e.State, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is compare lifecycle errors by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is
var (
	ErrPersistence       = &Error{Kind: KindPersistence}
	ErrExecutionContext  = &Error{Kind: KindExecutionContext}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
)

// Causes
var (
	ErrNoDevice      = errors.New("no device given and auto-connect disabled")
	ErrNotMonitoring = errors.New("not monitoring")
	ErrClosed        = errors.New("lifecycle manager closed")
)
