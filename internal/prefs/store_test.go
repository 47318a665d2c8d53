package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockBackend) Set(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockBackend) Close() error {
	return m.Called().Error(0)
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func TestStore_Defaults(t *testing.T) {
	store := NewStore(NewMemoryBackend(), newTestLogger())
	ctx := context.Background()

	enabled, err := store.AutoStartEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled, "auto-start MUST default to enabled")

	addr, ok, err := store.LastDeviceAddress(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, addr)

	p, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
	assert.False(t, p.HasLastDevice())
}

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(NewMemoryBackend(), newTestLogger())
	ctx := context.Background()

	require.NoError(t, store.SetAutoStart(ctx, false))
	require.NoError(t, store.SetLastDeviceAddress(ctx, "AA:BB"))

	p, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Preferences{AutoStartEnabled: false, LastDeviceAddress: "AA:BB"}, p)
	assert.True(t, p.HasLastDevice())
}

func TestStore_MalformedAutoStart(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, KeyAutoStart, "maybe"))

	store := NewStore(backend, newTestLogger())
	enabled, err := store.AutoStartEnabled(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, DefaultAutoStart, enabled)
}

func TestStore_BackendFailures(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")

	t.Run("set failure is surfaced", func(t *testing.T) {
		backend := &mockBackend{}
		backend.On("Set", ctx, KeyAutoStart, "true").Return(diskFull)

		err := NewStore(backend, newTestLogger()).SetAutoStart(ctx, true)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPersistence)
		assert.ErrorIs(t, err, diskFull)

		var perr *PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "set", perr.Op)
		assert.Equal(t, KeyAutoStart, perr.Key)
		backend.AssertExpectations(t)
	})

	t.Run("read failure returns defaults with error", func(t *testing.T) {
		backend := &mockBackend{}
		backend.On("Get", ctx, KeyAutoStart).Return("", false, diskFull)

		p, err := NewStore(backend, newTestLogger()).Load(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Equal(t, Defaults(), p)
	})

	t.Run("last device write failure", func(t *testing.T) {
		backend := &mockBackend{}
		backend.On("Set", ctx, KeyLastDevice, "AA:BB").Return(diskFull)

		err := NewStore(backend, newTestLogger()).SetLastDeviceAddress(ctx, "AA:BB")
		assert.ErrorIs(t, err, ErrPersistence)
	})
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	ctx := context.Background()

	backend, err := OpenFileBackend(path)
	require.NoError(t, err)
	store := NewStore(backend, newTestLogger())
	require.NoError(t, store.SetAutoStart(ctx, false))
	require.NoError(t, store.SetLastDeviceAddress(ctx, "11:22"))
	require.NoError(t, store.Close())

	reopened, err := OpenFileBackend(path)
	require.NoError(t, err)
	p, err := NewStore(reopened, newTestLogger()).Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, Preferences{AutoStartEnabled: false, LastDeviceAddress: "11:22"}, p)
}

func TestFileBackend_GarbageIsAReadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	garbage := []byte("- not\n- a map\n")
	require.NoError(t, os.WriteFile(path, garbage, 0o600))
	ctx := context.Background()

	backend, err := OpenFileBackend(path)
	require.NoError(t, err, "open MUST NOT parse the document")
	store := NewStore(backend, newTestLogger())

	p, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, Defaults(), p, "a failed read MUST yield the defaults")

	err = store.SetAutoStart(ctx, false)
	assert.ErrorIs(t, err, ErrPersistence)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, data, "a corrupt document MUST NOT be overwritten")
}

func TestFileBackend_SharedBetweenWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	ctx := context.Background()

	serviceBackend, err := OpenFileBackend(path)
	require.NoError(t, err)
	service := NewStore(serviceBackend, newTestLogger())
	require.NoError(t, service.SetLastDeviceAddress(ctx, "11:22"))

	cliBackend, err := OpenFileBackend(path)
	require.NoError(t, err)
	cli := NewStore(cliBackend, newTestLogger())
	require.NoError(t, cli.SetAutoStart(ctx, false))

	enabled, err := service.AutoStartEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled, "reads MUST see another writer's change")

	require.NoError(t, service.SetLastDeviceAddress(ctx, "AA:BB"))

	reopened, err := OpenFileBackend(path)
	require.NoError(t, err)
	p, err := NewStore(reopened, newTestLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Preferences{AutoStartEnabled: false, LastDeviceAddress: "AA:BB"}, p,
		"a write MUST NOT revert keys written by another backend")
}

func TestFileBackend_ConcurrentWritersKeepEveryKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			backend, err := OpenFileBackend(path)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, backend.Set(ctx, fmt.Sprintf("key_%d", i), "v"))
		}(i)
	}
	wg.Wait()

	backend, err := OpenFileBackend(path)
	require.NoError(t, err)
	for i := 0; i < writers; i++ {
		_, ok, err := backend.Get(ctx, fmt.Sprintf("key_%d", i))
		require.NoError(t, err)
		assert.True(t, ok, "key_%d MUST survive concurrent writers", i)
	}
}

func TestFileBackend_CancelledContext(t *testing.T) {
	backend, err := OpenFileBackend(filepath.Join(t.TempDir(), "prefs.yaml"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = NewStore(backend, newTestLogger()).SetAutoStart(ctx, true)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteBackend_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	backend, err := OpenSQLiteBackend(path)
	require.NoError(t, err)
	store := NewStore(backend, newTestLogger())
	require.NoError(t, store.SetLastDeviceAddress(ctx, "AA:BB"))
	require.NoError(t, store.SetLastDeviceAddress(ctx, "CC:DD"))
	require.NoError(t, store.SetAutoStart(ctx, true))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteBackend(path)
	require.NoError(t, err)
	defer reopened.Close()

	p, err := NewStore(reopened, newTestLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Preferences{AutoStartEnabled: true, LastDeviceAddress: "CC:DD"}, p)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		kind    string
		path    string
		wantErr error
	}{
		{name: "file backend", kind: BackendFile, path: filepath.Join(dir, "p.yaml")},
		{name: "empty kind defaults to file", kind: "", path: filepath.Join(dir, "q.yaml")},
		{name: "sqlite backend", kind: BackendSQLite, path: filepath.Join(dir, "p.db")},
		{name: "memory backend", kind: BackendMemory},
		{name: "unknown backend", kind: "etcd", wantErr: ErrUnknownBackend},
		{name: "file backend without path", kind: BackendFile, wantErr: ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := Open(tt.kind, tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, backend)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, backend)
			assert.NoError(t, backend.Close())
		})
	}
}
