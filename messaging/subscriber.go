package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/internal/logging"
	"github.com/YouDoCom/rabbit-link/internal/supervisor"
	"github.com/YouDoCom/rabbit-link/internal/transport"
	"github.com/YouDoCom/rabbit-link/serialization"
)

// SubscriberConfig configures a Subscriber's underlying ConsumerCore.
type SubscriberConfig struct {
	Queue                    string
	PrefetchCount            int
	DisableRedeliveryOnError bool
	RecoveryInterval         time.Duration
	Configure                supervisor.ConsumeConfigureFunc
	Logger                   logging.Logger
}

// Subscriber consumes deliveries from a queue, reconstructs a
// contracts.Envelope from each delivery's properties and body, decodes
// it with a Serializer, and hands the result to a MessageHandler
// (typically a *MessageDispatcher).
type Subscriber struct {
	consumer *supervisor.ConsumerCore
}

// NewSubscriber wires a ConsumerCore whose DeliveryHandler deserializes
// each delivery and calls handler.Handle. A handler error becomes
// Nack(requeue=true) unless cfg.DisableRedeliveryOnError is set.
func NewSubscriber(conn *supervisor.ConnectionSupervisor, cfg SubscriberConfig, serializer serialization.Serializer, handler MessageHandler, channelCfg supervisor.ChannelConfig) *Subscriber {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Noop{}
	}

	consumerCfg := supervisor.ConsumerConfig{
		Queue:                    cfg.Queue,
		PrefetchCount:            cfg.PrefetchCount,
		DisableRedeliveryOnError: cfg.DisableRedeliveryOnError,
		RecoveryInterval:         cfg.RecoveryInterval,
		Configure:                cfg.Configure,
		Logger:                   logger,
		Handler: func(ctx context.Context, d transport.Delivery) (supervisor.HandlerOutcome, bool, error) {
			msg, err := decodeDelivery(serializer, d)
			if err != nil {
				logger.Error("failed to decode delivery", "queue", cfg.Queue, "error", err)
				return supervisor.Reject, false, err
			}

			if err := handler.Handle(ctx, msg); err != nil {
				logger.Error("handler failed", "queue", cfg.Queue, "messageId", msg.GetID(), "error", err)
				return supervisor.Nack, true, err
			}
			return supervisor.Ack, false, nil
		},
	}

	return &Subscriber{consumer: supervisor.NewConsumerCore(conn, consumerCfg, channelCfg)}
}

func decodeDelivery(serializer serialization.Serializer, d transport.Delivery) (contracts.Message, error) {
	env := &contracts.Envelope{
		ID:            d.Properties.MessageID,
		Type:          d.Properties.Type,
		CorrelationID: d.Properties.CorrelationID,
		Body:          d.Body,
	}
	msg, err := serializer.Deserialize(env)
	if err != nil {
		return nil, fmt.Errorf("messaging: decode delivery from queue %s: %w", d.Queue, err)
	}
	return msg, nil
}

func (s *Subscriber) Identity() supervisor.Identity { return s.consumer.Identity() }

func (s *Subscriber) Start() { s.consumer.Start() }

func (s *Subscriber) Close() error {
	s.consumer.Dispose()
	return nil
}
