package prefs

import (
	"errors"
	"fmt"
)

// ErrPersistence matches any *PersistenceError via errors.Is
var ErrPersistence = errors.New("preference persistence failed")

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown preference backend")

// PersistenceError reports a failed preference read or write.
type PersistenceError struct {
	Op  string // "get", "set", "open", "close"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Key == "" {
		return fmt.Sprintf("preferences %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("preferences %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is makes every PersistenceError match ErrPersistence
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, Key: key, Err: err}
}
