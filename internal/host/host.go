// Package host provides the execution context that keeps monitoring alive and
// visible while a device is monitored.
//
// The lifecycle manager acquires a context when monitoring starts, updates its
// visible status when an alert is raised or cleared, and releases it when
// monitoring stops. StatusFileHost implements the contract with an exclusive
// lock file (one monitoring process per machine) and a YAML status document
// that front-ends and the CLI read.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Priority orders status indicators; high priority is used for alerts.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority is the inverse of Priority.String
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	default:
		return PriorityLow, fmt.Errorf("invalid priority %q", s)
	}
}

// Metadata is what the execution context shows while it is held.
type Metadata struct {
	Title    string
	Body     string
	Priority Priority
}

// Handle identifies one acquisition. The zero Handle is never issued.
type Handle struct {
	id uint64
}

// NewHandle mints a handle for Host implementations outside this package.
// id must be non-zero and unique per acquisition.
func NewHandle(id uint64) Handle {
	return Handle{id: id}
}

// ID returns the acquisition sequence number
func (h Handle) ID() uint64 {
	return h.id
}

// Valid reports whether the handle was issued by a host
func (h Handle) Valid() bool {
	return h.id != 0
}

// Host hands out execution contexts.
type Host interface {
	Acquire(ctx context.Context, md Metadata) (Handle, error)
	UpdateStatus(h Handle, md Metadata) error
	Release(h Handle) error
}

// Operation sentinels; a *Error matches the sentinel of its Op.
var (
	ErrAcquire = errors.New("execution context acquire failed")
	ErrUpdate  = errors.New("execution context update failed")
	ErrRelease = errors.New("execution context release failed")
)

// Cause sentinels
var (
	ErrLocked        = errors.New("execution context held by another owner")
	ErrUnknownHandle = errors.New("unknown execution context handle")
)

// Error reports a failed host operation.
type Error struct {
	Op  string // "acquire", "update", "release"
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("execution context %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the failed operation
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrAcquire:
		return e.Op == opAcquire
	case ErrUpdate:
		return e.Op == opUpdate
	case ErrRelease:
		return e.Op == opRelease
	}
	return false
}

const (
	opAcquire = "acquire"
	opUpdate  = "update"
	opRelease = "release"
)
