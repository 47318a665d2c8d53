package boot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/lifecycle"
	"github.com/srg/dpfwatch/internal/prefs"
	"github.com/srg/dpfwatch/internal/testutils"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context) (prefs.Preferences, error) {
	args := m.Called(ctx)
	return args.Get(0).(prefs.Preferences), args.Error(1)
}

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) Start(ctx context.Context, dev *device.Device, autoConnect bool) error {
	args := m.Called(ctx, dev, autoConnect)
	return args.Error(0)
}

func TestOnSystemBoot(t *testing.T) {
	last := &device.Device{Address: "AA:BB"}

	tests := []struct {
		name      string
		prefs     prefs.Preferences
		loadErr   error
		startWith *device.Device
		starts    bool
	}{
		{
			name:      "auto-start with last device",
			prefs:     prefs.Preferences{AutoStartEnabled: true, LastDeviceAddress: "AA:BB"},
			startWith: last,
			starts:    true,
		},
		{
			name:   "auto-start without last device",
			prefs:  prefs.Preferences{AutoStartEnabled: true},
			starts: true,
		},
		{
			name:  "auto-start disabled",
			prefs: prefs.Preferences{AutoStartEnabled: false, LastDeviceAddress: "AA:BB"},
		},
		{
			name:    "unreadable preferences fall back to defaults",
			prefs:   prefs.Preferences{},
			loadErr: errors.New("corrupt"),
			starts:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &mockLoader{}
			starter := &mockStarter{}
			loader.On("Load", mock.Anything).Return(tt.prefs, tt.loadErr)
			if tt.starts {
				starter.On("Start", mock.Anything, tt.startWith, true).Return(nil).Once()
			}

			trigger := NewTrigger(loader, starter, testutils.NewTestLogger(t))
			require.NoError(t, trigger.OnSystemBoot(context.Background()))

			loader.AssertExpectations(t)
			starter.AssertExpectations(t)
			if !tt.starts {
				starter.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOnSystemBootFiresOnce(t *testing.T) {
	loader := &mockLoader{}
	starter := &mockStarter{}
	loader.On("Load", mock.Anything).Return(prefs.Defaults(), nil).Once()
	starter.On("Start", mock.Anything, (*device.Device)(nil), true).Return(nil).Once()

	trigger := NewTrigger(loader, starter, testutils.NewTestLogger(t))
	require.NoError(t, trigger.OnSystemBoot(context.Background()))
	assert.ErrorIs(t, trigger.OnSystemBoot(context.Background()), ErrAlreadyFired)

	loader.AssertExpectations(t)
	starter.AssertExpectations(t)
}

func TestOnSystemBootReportsStartFailure(t *testing.T) {
	loader := &mockLoader{}
	starter := &mockStarter{}
	loader.On("Load", mock.Anything).Return(prefs.Defaults(), nil)
	starter.On("Start", mock.Anything, mock.Anything, true).Return(testutils.ErrInjected).Once()

	trigger := NewTrigger(loader, starter, testutils.NewTestLogger(t))
	err := trigger.OnSystemBoot(context.Background())

	assert.ErrorIs(t, err, testutils.ErrInjected)
	starter.AssertNumberOfCalls(t, "Start", 1)
}

func TestOnSystemBootWithManager(t *testing.T) {
	logger := testutils.NewTestLogger(t)
	store := prefs.NewStore(prefs.NewMemoryBackend(), logger)
	require.NoError(t, store.SetLastDeviceAddress(context.Background(), "11:22"))

	h := testutils.NewFakeHost()
	manager := lifecycle.NewManager(store, h, lifecycle.Options{}, logger)
	defer manager.Close()

	require.NoError(t, NewTrigger(store, manager, logger).OnSystemBoot(context.Background()))

	assert.Equal(t, lifecycle.StateMonitoring, manager.State())
	require.NotNil(t, manager.CurrentDevice())
	assert.Equal(t, "11:22", manager.CurrentDevice().Address)

	md, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, "Monitoring DPF: OBD", md.Body)
}
