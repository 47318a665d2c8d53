package prefs

import "fmt"

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the backend named kind, storing its data at path.
func Open(kind, path string) (Backend, error) {
	switch kind {
	case BackendFile, "":
		b, err := OpenFileBackend(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendSQLite:
		b, err := OpenSQLiteBackend(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q (must be %s, %s or %s)", ErrUnknownBackend, kind, BackendFile, BackendSQLite, BackendMemory)
	}
}
