package history

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/srg/dpfwatch/internal/lifecycle"
)

// Measurement is the InfluxDB measurement every lifecycle point is written to
const Measurement = "dpf_lifecycle"

// PointWriter queues points for writing. api.WriteAPI implements it.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder turns lifecycle events into points. Each point is tagged with the
// event kind and, once known, the monitored device address; its fields carry
// the connection and alert flags after the event.
type Recorder struct {
	writer PointWriter
	logger *logrus.Logger

	address     string
	connected   bool
	alertActive bool
}

func NewRecorder(writer PointWriter, logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{writer: writer, logger: logger}
}

// Run records events until the channel closes or ctx ends.
func (r *Recorder) Run(ctx context.Context, events <-chan lifecycle.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Record(ev)
		}
	}
}

// Record writes the point for a single event. Not safe for concurrent use.
func (r *Recorder) Record(ev lifecycle.Event) {
	switch ev.Kind {
	case lifecycle.EventConnected:
		r.connected = true
		if ev.Device != nil {
			r.address = ev.Device.Address
		}
	case lifecycle.EventDisconnected:
		r.connected = false
		r.alertActive = false
	case lifecycle.EventAlertRaised:
		r.alertActive = true
	case lifecycle.EventAlertCleared:
		r.alertActive = false
	}

	tags := map[string]string{"kind": ev.Kind.String()}
	if r.address != "" {
		tags["address"] = r.address
	}
	fields := map[string]interface{}{
		"connected":    r.connected,
		"alert_active": r.alertActive,
	}

	r.writer.WritePoint(write.NewPoint(Measurement, tags, fields, ev.Time))
	r.logger.WithField("event", ev.Kind).Debug("Lifecycle event recorded")

	if ev.Kind == lifecycle.EventDisconnected {
		r.address = ""
	}
}
