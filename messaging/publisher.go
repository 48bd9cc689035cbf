package messaging

import (
	"context"
	"fmt"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/internal/logging"
	"github.com/YouDoCom/rabbit-link/internal/supervisor"
	"github.com/YouDoCom/rabbit-link/internal/transport"
	"github.com/YouDoCom/rabbit-link/serialization"
)

// PublishOption customizes routing for a single Publish call.
type PublishOption func(*contracts.PublishOptions)

func WithExchange(exchange string) PublishOption {
	return func(o *contracts.PublishOptions) { o.Exchange = exchange }
}

func WithRoutingKey(routingKey string) PublishOption {
	return func(o *contracts.PublishOptions) { o.RoutingKey = routingKey }
}

func WithMandatory(mandatory bool) PublishOption {
	return func(o *contracts.PublishOptions) { o.Mandatory = mandatory }
}

func WithPriority(priority uint8) PublishOption {
	return func(o *contracts.PublishOptions) { o.Priority = priority }
}

func WithExpiration(expiration string) PublishOption {
	return func(o *contracts.PublishOptions) { o.Expiration = expiration }
}

// WithPersistent sets the AMQP delivery mode: 2 (persistent) or 1
// (non-persistent).
func WithPersistent(persistent bool) PublishOption {
	return func(o *contracts.PublishOptions) {
		if persistent {
			o.DeliveryMode = 2
		} else {
			o.DeliveryMode = 1
		}
	}
}

// Publisher publishes contracts.Message values through a ProducerCore,
// serializing each into a contracts.Envelope and carrying its
// ID/Type/CorrelationID as AMQP message properties rather than folding
// them back into the body.
type Publisher struct {
	producer   *supervisor.ProducerCore
	serializer serialization.Serializer
	logger     logging.Logger
}

// NewPublisher wraps producer. Call producer.Start() separately;
// Publisher only ever calls Publish/Dispose on it.
func NewPublisher(producer *supervisor.ProducerCore, serializer serialization.Serializer, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Noop{}
	}
	return &Publisher{producer: producer, serializer: serializer, logger: logger}
}

// Publish serializes msg and blocks until the broker confirms (or
// rejects) the publish, or ctx is canceled.
func (p *Publisher) Publish(ctx context.Context, msg contracts.Message, options ...PublishOption) error {
	if msg == nil {
		return fmt.Errorf("messaging: message cannot be nil")
	}

	opts := contracts.PublishOptions{RoutingKey: defaultRoutingKey(msg), DeliveryMode: 2}
	for _, opt := range options {
		opt(&opts)
	}

	env, err := p.serializer.Serialize(msg)
	if err != nil {
		return fmt.Errorf("messaging: serialize message %s: %w", msg.GetID(), err)
	}

	outbound := transport.OutboundMessage{
		Properties: transport.MessageProperties{
			ContentType:   "application/json",
			DeliveryMode:  opts.DeliveryMode,
			MessageID:     env.ID,
			Type:          env.Type,
			CorrelationID: env.CorrelationID,
			Expiration:    opts.Expiration,
		},
		Body: env.Body,
	}

	item := p.producer.Publish(ctx, opts.Exchange, opts.RoutingKey, opts.Mandatory, outbound)
	if _, err := item.Wait(ctx); err != nil {
		p.logger.Error("publish failed", "messageId", msg.GetID(), "messageType", msg.GetType(), "error", err)
		return fmt.Errorf("messaging: publish message %s: %w", msg.GetID(), err)
	}

	p.logger.Debug("message published", "messageId", msg.GetID(), "messageType", msg.GetType(), "exchange", opts.Exchange, "routingKey", opts.RoutingKey)
	return nil
}

// PublishCommand publishes cmd, defaulting the routing key to
// cmd.<targetService>.<type> unless overridden.
func (p *Publisher) PublishCommand(ctx context.Context, cmd contracts.Command, options ...PublishOption) error {
	defaults := []PublishOption{WithRoutingKey(fmt.Sprintf("cmd.%s.%s", cmd.GetTargetService(), cmd.GetType()))}
	return p.Publish(ctx, cmd, append(defaults, options...)...)
}

// PublishEvent publishes event, defaulting the routing key to
// evt.<aggregateId>.<type> unless overridden.
func (p *Publisher) PublishEvent(ctx context.Context, event contracts.Event, options ...PublishOption) error {
	defaults := []PublishOption{WithRoutingKey(fmt.Sprintf("evt.%s.%s", event.GetAggregateID(), event.GetType()))}
	return p.Publish(ctx, event, append(defaults, options...)...)
}

func defaultRoutingKey(msg contracts.Message) string {
	switch m := msg.(type) {
	case contracts.Command:
		return fmt.Sprintf("cmd.%s.%s", m.GetTargetService(), m.GetType())
	case contracts.Event:
		return fmt.Sprintf("evt.%s.%s", m.GetAggregateID(), m.GetType())
	case contracts.Query:
		return fmt.Sprintf("qry.%s", m.GetType())
	case contracts.Reply:
		return fmt.Sprintf("rpl.%s", m.GetType())
	default:
		return fmt.Sprintf("msg.%s", m.GetType())
	}
}

// Close disposes the underlying ProducerCore, failing any publishes
// still in flight.
func (p *Publisher) Close() error {
	p.producer.Dispose()
	return nil
}
