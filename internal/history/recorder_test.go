package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/dpfwatch/internal/device"
	"github.com/srg/dpfwatch/internal/lifecycle"
	"github.com/srg/dpfwatch/internal/prefs"
	"github.com/srg/dpfwatch/internal/testutils"
	"github.com/srg/dpfwatch/pkg/config"
)

type pointSink struct {
	mu     sync.Mutex
	points []*write.Point
}

func (s *pointSink) WritePoint(p *write.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
}

func (s *pointSink) snapshot() []*write.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*write.Point(nil), s.points...)
}

type row struct {
	kind      string
	address   string
	connected bool
	alert     bool
}

func toRow(t *testing.T, p *write.Point) row {
	t.Helper()
	require.Equal(t, Measurement, p.Name())

	var r row
	for _, tag := range p.TagList() {
		switch tag.Key {
		case "kind":
			r.kind = tag.Value
		case "address":
			r.address = tag.Value
		}
	}
	for _, f := range p.FieldList() {
		switch f.Key {
		case "connected":
			r.connected = f.Value.(bool)
		case "alert_active":
			r.alert = f.Value.(bool)
		}
	}
	return r
}

func TestRecordLifecycle(t *testing.T) {
	sink := &pointSink{}
	rec := NewRecorder(sink, testutils.NewTestLogger(t))
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	rec.Record(lifecycle.Event{Kind: lifecycle.EventConnected, Device: &device.Device{Address: "11:22"}, Time: at})
	rec.Record(lifecycle.Event{Kind: lifecycle.EventAlertRaised, Time: at.Add(time.Minute)})
	rec.Record(lifecycle.Event{Kind: lifecycle.EventAlertCleared, Time: at.Add(2 * time.Minute)})
	rec.Record(lifecycle.Event{Kind: lifecycle.EventDisconnected, Time: at.Add(3 * time.Minute)})
	rec.Record(lifecycle.Event{Kind: lifecycle.EventAlertCleared, Time: at.Add(4 * time.Minute)})

	points := sink.snapshot()
	require.Len(t, points, 5)

	expected := []row{
		{kind: "connected", address: "11:22", connected: true},
		{kind: "alert_raised", address: "11:22", connected: true, alert: true},
		{kind: "alert_cleared", address: "11:22", connected: true},
		{kind: "disconnected", address: "11:22"},
		{kind: "alert_cleared"},
	}
	for i, p := range points {
		assert.Equal(t, expected[i], toRow(t, p), "point %d", i)
	}
	assert.Equal(t, at, points[0].Time())
}

func TestRunRecordsManagerEvents(t *testing.T) {
	logger := testutils.NewTestLogger(t)
	manager := lifecycle.NewManager(prefs.NewStore(prefs.NewMemoryBackend(), logger), testutils.NewFakeHost(), lifecycle.Options{}, logger)
	sub := manager.Subscribe(16)

	sink := &pointSink{}
	done := make(chan error, 1)
	go func() {
		done <- NewRecorder(sink, logger).Run(context.Background(), sub.C())
	}()

	require.NoError(t, manager.Start(context.Background(), &device.Device{Address: "AA:BB", Name: "OBD"}, false))
	require.NoError(t, manager.RaiseAlert())
	require.NoError(t, manager.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testutils.DefaultEventTimeout):
		t.Fatal("recorder did not stop after the event stream closed")
	}

	var kinds []string
	for _, p := range sink.snapshot() {
		kinds = append(kinds, toRow(t, p).kind)
	}
	assert.Equal(t, []string{"connected", "alert_raised", "alert_cleared", "disconnected"}, kinds)
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(context.Background(), config.HistoryConfig{Enabled: false}, nil)
	assert.ErrorIs(t, err, ErrDisabled)
}
