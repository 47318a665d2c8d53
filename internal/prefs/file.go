package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	fileDirPermissions  = 0o750
	fileFilePermissions = 0o600
)

// FileBackend keeps preferences in a YAML document shared by every process
// that opens the same path. Get reads through to disk; Set re-reads the
// document under an exclusive lock on a sidecar lock file, applies the change
// and rewrites the whole document through a temp file and a rename, so a
// crash never leaves a partially written file behind and concurrent writers
// never lose each other's keys.
type FileBackend struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

// OpenFileBackend prepares a backend for the document at path. The document
// is not read here: a missing file reads as empty and an unreadable one is
// reported by Get and Set.
func OpenFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, &PersistenceError{Op: "open", Err: errors.New("empty preferences path")}
	}
	return &FileBackend{path: path, lockPath: path + ".lock"}, nil
}

func (b *FileBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	values, err := b.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (b *FileBackend) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	unlock, err := b.lock()
	if err != nil {
		return err
	}
	defer unlock()

	// A corrupt document is left for the operator rather than overwritten
	values, err := b.read()
	if err != nil {
		return err
	}
	values[key] = value
	return b.write(values)
}

func (b *FileBackend) Close() error {
	return nil
}

// read loads the document; a missing file is an empty document.
func (b *FileBackend) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(b.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return values, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}

	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", b.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

// lock takes the cross-process writer lock and returns its release function.
func (b *FileBackend) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(b.lockPath), fileDirPermissions); err != nil {
		return nil, fmt.Errorf("creating preferences directory: %w", err)
	}
	f, err := os.OpenFile(b.lockPath, os.O_CREATE|os.O_RDWR, fileFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("locking %s: %w", b.lockPath, err)
	}
	return func() {
		unlockFile(f) //nolint:errcheck // closing the file drops the lock anyway
		f.Close()     //nolint:errcheck // nothing written
	}, nil
}

// write persists values atomically: temp file in the same directory, fsync, rename.
func (b *FileBackend) write(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, fileDirPermissions); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, fileFilePermissions); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}
	return nil
}
