package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o644

	// lockPollInterval is how often Acquire retries a lock held by another process
	lockPollInterval = 50 * time.Millisecond
)

// Status is the document written while an execution context is held.
type Status struct {
	Title    string    `yaml:"title" json:"title"`
	Body     string    `yaml:"body" json:"body"`
	Priority string    `yaml:"priority" json:"priority"`
	PID      int       `yaml:"pid" json:"pid"`
	Handle   uint64    `yaml:"handle" json:"handle"`
	Since    time.Time `yaml:"since" json:"since"`
	Updated  time.Time `yaml:"updated" json:"updated"`
}

// StatusFileHost holds an exclusive lock file for as long as the context is
// acquired and mirrors the context metadata into a status document.
type StatusFileHost struct {
	lockPath   string
	statusPath string
	logger     *logrus.Logger

	mu       sync.Mutex
	lockFile *os.File
	current  Handle
	since    time.Time
	nextID   uint64
}

// NewStatusFileHost creates a host using lockPath and statusPath. Nothing is
// touched on disk until Acquire.
func NewStatusFileHost(lockPath, statusPath string, logger *logrus.Logger) *StatusFileHost {
	if logger == nil {
		logger = logrus.New()
	}
	return &StatusFileHost{
		lockPath:   lockPath,
		statusPath: statusPath,
		logger:     logger,
	}
}

// Acquire takes the lock file and publishes md. When another process holds
// the lock, Acquire keeps retrying until ctx is done.
func (h *StatusFileHost) Acquire(ctx context.Context, md Metadata) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current.Valid() {
		return Handle{}, &Error{Op: opAcquire, Err: fmt.Errorf("%w: handle %d still active", ErrLocked, h.current.id)}
	}

	f, err := h.lock(ctx)
	if err != nil {
		return Handle{}, &Error{Op: opAcquire, Err: err}
	}

	if err := writePID(f); err != nil {
		unlockAndClose(f)
		return Handle{}, &Error{Op: opAcquire, Err: err}
	}

	h.nextID++
	handle := Handle{id: h.nextID}
	now := time.Now()

	if err := h.writeStatus(handle, md, now, now); err != nil {
		unlockAndClose(f)
		return Handle{}, &Error{Op: opAcquire, Err: err}
	}

	h.lockFile = f
	h.current = handle
	h.since = now

	h.logger.WithFields(logrus.Fields{
		"handle":   handle.id,
		"title":    md.Title,
		"priority": md.Priority,
	}).Debug("Execution context acquired")

	return handle, nil
}

// UpdateStatus rewrites the status document for the active handle
func (h *StatusFileHost) UpdateStatus(handle Handle, md Metadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !handle.Valid() || handle != h.current {
		return &Error{Op: opUpdate, Err: ErrUnknownHandle}
	}
	if err := h.writeStatus(handle, md, h.since, time.Now()); err != nil {
		return &Error{Op: opUpdate, Err: err}
	}

	h.logger.WithFields(logrus.Fields{
		"handle":   handle.id,
		"title":    md.Title,
		"priority": md.Priority,
	}).Debug("Execution context status updated")
	return nil
}

// Release removes the status document and gives up the lock. The handle is
// invalidated even when cleanup fails.
func (h *StatusFileHost) Release(handle Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !handle.Valid() || handle != h.current {
		return &Error{Op: opRelease, Err: ErrUnknownHandle}
	}

	var errs []error
	if err := os.Remove(h.statusPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("removing status file: %w", err))
	}
	if err := os.Remove(h.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("removing lock file: %w", err))
	}
	if err := unlockFile(h.lockFile); err != nil {
		errs = append(errs, fmt.Errorf("unlocking: %w", err))
	}
	if err := h.lockFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing lock file: %w", err))
	}

	h.lockFile = nil
	h.current = Handle{}
	h.since = time.Time{}

	h.logger.WithField("handle", handle.id).Debug("Execution context released")

	if len(errs) > 0 {
		return &Error{Op: opRelease, Err: errors.Join(errs...)}
	}
	return nil
}

// held reports whether a context is currently acquired
func (h *StatusFileHost) held() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Valid()
}

func (h *StatusFileHost) lock(ctx context.Context) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(h.lockPath), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLocked, err)
		}

		f, err := os.OpenFile(h.lockPath, os.O_CREATE|os.O_RDWR, filePermissions)
		if err != nil {
			return nil, fmt.Errorf("opening lock file: %w", err)
		}

		err = tryLockFile(f)
		switch {
		case err == nil && sameFile(f, h.lockPath):
			return f, nil
		case err == nil:
			// The previous owner unlinked the file while we waited; lock the new one
			unlockAndClose(f)
			continue
		case !errors.Is(err, ErrLocked):
			f.Close() //nolint:errcheck // giving up
			return nil, err
		}
		f.Close() //nolint:errcheck // retried below

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// sameFile reports whether f is still the file linked at path
func sameFile(f *os.File, path string) bool {
	opened, err := f.Stat()
	if err != nil {
		return false
	}
	linked, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(opened, linked)
}

func (h *StatusFileHost) writeStatus(handle Handle, md Metadata, since, updated time.Time) error {
	doc := Status{
		Title:    md.Title,
		Body:     md.Body,
		Priority: md.Priority.String(),
		PID:      os.Getpid(),
		Handle:   handle.id,
		Since:    since,
		Updated:  updated,
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(h.statusPath), dirPermissions); err != nil {
		return fmt.Errorf("creating status directory: %w", err)
	}

	tmp := h.statusPath + ".tmp"
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	if err := os.Rename(tmp, h.statusPath); err != nil {
		os.Remove(tmp) //nolint:errcheck // best effort
		return fmt.Errorf("replacing status file: %w", err)
	}
	return nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

func unlockAndClose(f *os.File) {
	unlockFile(f) //nolint:errcheck // error path cleanup
	f.Close()     //nolint:errcheck // error path cleanup
}

// ReadStatus loads the status document written by a StatusFileHost.
func ReadStatus(path string) (Status, error) {
	var st Status
	data, err := os.ReadFile(path)
	if err != nil {
		return st, fmt.Errorf("reading status file: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parsing status file: %w", err)
	}
	return st, nil
}

// ReadHolderPID returns the PID recorded in a lock file.
func ReadHolderPID(lockPath string) (int, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing lock file: %w", err)
	}
	return pid, nil
}
