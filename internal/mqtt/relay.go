package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/dpfwatch/internal/bridge"
	"github.com/srg/dpfwatch/internal/eventbus"
	"github.com/srg/dpfwatch/internal/lifecycle"
)

// Broker is the part of Client the relay uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Gateway is the bridge surface the relay exposes. *bridge.Gateway implements it.
type Gateway interface {
	Handle(ctx context.Context, req bridge.Request) bridge.Response
	Subscribe(buffer int) *eventbus.Subscription[lifecycle.Event]
	Unsubscribe(sub *eventbus.Subscription[lifecycle.Event])
}

// Relay publishes gateway events and serves gateway requests over MQTT.
type Relay struct {
	broker  Broker
	gateway Gateway
	topics  Topics
	qos     byte
	logger  *logrus.Logger
}

func NewRelay(broker Broker, gateway Gateway, topics Topics, qos byte, logger *logrus.Logger) *Relay {
	if logger == nil {
		logger = logrus.New()
	}
	return &Relay{broker: broker, gateway: gateway, topics: topics, qos: qos, logger: logger}
}

// Run relays until ctx ends. The gateway subscription is taken before the
// command topic is subscribed so responses and their events stay ordered.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.gateway.Subscribe(0)
	defer r.gateway.Unsubscribe(sub)

	if err := r.broker.Subscribe(r.topics.Command(), r.qos, r.commandHandler(ctx)); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	defer func() {
		if err := r.broker.Unsubscribe(r.topics.Command()); err != nil {
			r.logger.WithError(err).Debug("Failed to unsubscribe from commands")
		}
	}()

	r.logger.WithField("prefix", r.topics.Prefix).Info("MQTT relay running")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			r.publishEvent(ev)
		}
	}
}

func (r *Relay) publishEvent(ev lifecycle.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.WithError(err).Error("Failed to encode lifecycle event")
		return
	}

	topic := r.topics.Event(ev.Kind.String())
	if err := r.broker.Publish(topic, payload, r.qos, false); err != nil {
		r.logger.WithError(err).WithField("topic", topic).Warn("Failed to publish lifecycle event")
		return
	}
	r.logger.WithField("topic", topic).Debug("Lifecycle event published")
}

func (r *Relay) commandHandler(ctx context.Context) MessageHandler {
	return func(_ string, payload []byte) error {
		var req bridge.Request
		var resp bridge.Response
		if err := json.Unmarshal(payload, &req); err != nil {
			resp = bridge.Response{Reason: bridge.ReasonInvalidArgument, Message: fmt.Sprintf("malformed request: %v", err)}
		} else {
			resp = r.gateway.Handle(ctx, req)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		return r.broker.Publish(r.topics.Response(), data, r.qos, false)
	}
}
