package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrServiceRunning is returned by ClaimPIDFile while another process holds the file
var ErrServiceRunning = errors.New("service already running")

// claimAttempts bounds retries when the file is unlinked under us
const claimAttempts = 3

// PIDFile marks a running service process. It is locked and records the
// holder's PID for as long as the service runs, independently of whether an
// execution context is acquired.
type PIDFile struct {
	path string
	f    *os.File
}

// ClaimPIDFile locks path and writes the current PID into it.
func ClaimPIDFile(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating pid file directory: %w", err)
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, filePermissions)
		if err != nil {
			return nil, fmt.Errorf("opening pid file: %w", err)
		}

		err = tryLockFile(f)
		switch {
		case errors.Is(err, ErrLocked):
			f.Close() //nolint:errcheck // not ours
			return nil, fmt.Errorf("%w: %s is locked", ErrServiceRunning, path)
		case err != nil:
			f.Close() //nolint:errcheck // giving up
			return nil, fmt.Errorf("locking pid file: %w", err)
		case !sameFile(f, path):
			// The previous holder removed the file while we opened it
			unlockAndClose(f)
			continue
		}

		if err := writePID(f); err != nil {
			unlockAndClose(f)
			return nil, err
		}
		return &PIDFile{path: path, f: f}, nil
	}
	return nil, fmt.Errorf("%w: %s keeps changing", ErrServiceRunning, path)
}

// Release removes and unlocks the pid file.
func (p *PIDFile) Release() error {
	var errs []error
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("removing pid file: %w", err))
	}
	if err := unlockFile(p.f); err != nil {
		errs = append(errs, fmt.Errorf("unlocking pid file: %w", err))
	}
	if err := p.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing pid file: %w", err))
	}
	return errors.Join(errs...)
}
