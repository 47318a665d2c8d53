package lifecycle

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/host"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "monitoring", StateMonitoring.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestEventKindText(t *testing.T) {
	for _, k := range []EventKind{EventConnected, EventDisconnected, EventAlertRaised, EventAlertCleared} {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var back EventKind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	var k EventKind
	assert.Error(t, k.UnmarshalText([]byte("exploded")))
}

func TestEventJSON(t *testing.T) {
	ev := Event{
		Kind:   EventConnected,
		Device: &device.Device{Address: "11:22", Name: "ELM327"},
		Time:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"connected","device":{"address":"11:22","name":"ELM327"},"time":"2024-01-02T03:04:05Z"}`, string(data))

	data, err = json.Marshal(Snapshot{State: StateMonitoring})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"monitoring","alertActive":false}`, string(data))
}

func TestNotificationsMetadata(t *testing.T) {
	n := DefaultNotifications()

	assert.Equal(t, host.Metadata{Title: "DPF Alarm", Body: "Monitoring DPF: OBD", Priority: host.PriorityLow},
		n.MonitoringMetadata(nil))
	assert.Equal(t, "Monitoring DPF: OBD", n.MonitoringMetadata(&device.Device{Address: "AA"}).Body)
	assert.Equal(t, "Monitoring DPF: VLINK", n.MonitoringMetadata(&device.Device{Address: "AA", Name: "VLINK"}).Body)
	assert.Equal(t, host.PriorityHigh, n.AlertMetadata().Priority)
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{Notifications: Notifications{AlertTitle: "Regen"}}.withDefaults()

	assert.Equal(t, 10*time.Second, o.AcquireTimeout)
	assert.Equal(t, 64, o.EventBuffer)
	assert.Equal(t, "Regen", o.Notifications.AlertTitle)
	assert.Equal(t, "DPF Alarm", o.Notifications.MonitoringTitle)
}
