package rabbitmq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YouDoCom/rabbit-link/internal/transport"
)

// channel adapts *amqp.Channel to transport.Channel.
//
// amqp091-go's own NotifyPublish already expands multiple-acks into one
// Confirmation event per delivery tag, so every Confirmation this
// adapter emits carries Multiple=false; ProducerCore's multiple-ack
// folding logic (spec §4.7) still runs, it just never sees a batch
// larger than one from this transport.
type channel struct {
	ch *amqp.Channel

	confirmMode int32
	nextTag     uint64
	tagMu       sync.Mutex

	shutdown           chan transport.ShutdownEvent
	acks               chan transport.Confirmation
	nacks              chan transport.Confirmation
	returns            chan transport.Return
	callbackExceptions chan error
}

func newChannel(ch *amqp.Channel) *channel {
	c := &channel{
		ch:                 ch,
		shutdown:           make(chan transport.ShutdownEvent, 1),
		acks:               make(chan transport.Confirmation, 256),
		nacks:              make(chan transport.Confirmation, 256),
		returns:            make(chan transport.Return, 64),
		callbackExceptions: make(chan error, 8),
	}

	closeNotify := ch.NotifyClose(make(chan *amqp.Error, 1))
	cancelNotify := ch.NotifyCancel(make(chan string, 8))
	returnNotify := ch.NotifyReturn(make(chan amqp.Return, 64))

	go func() {
		amqpErr := <-closeNotify
		c.shutdown <- shutdownEventFrom(amqpErr)
		close(c.shutdown)
	}()

	go func() {
		for reason := range cancelNotify {
			c.callbackExceptions <- &ConsumerCanceledError{Reason: reason}
		}
	}()

	go func() {
		for r := range returnNotify {
			c.returns <- transport.Return{
				ReplyCode:  r.ReplyCode,
				ReplyText:  r.ReplyText,
				Exchange:   r.Exchange,
				RoutingKey: r.RoutingKey,
				Properties: propertiesFromAMQP(r.ContentType, r.ContentEncoding, r.DeliveryMode, r.MessageId, r.AppId, r.CorrelationId, r.ReplyTo, r.Type, r.Expiration, r.Timestamp, r.Headers),
				Body:       r.Body,
			}
		}
	}()

	return c
}

func (c *channel) ExchangeDeclare(ctx context.Context, name, kind string, durable, autoDelete bool) error {
	err := c.ch.ExchangeDeclare(name, kind, durable, autoDelete, false, false, nil)
	return classifyTopologyError("exchange.declare", name, err)
}

func (c *channel) ExchangeDeclarePassive(ctx context.Context, name string) error {
	err := c.ch.ExchangeDeclarePassive(name, "", false, false, false, false, nil)
	return classifyTopologyError("exchange.declare-passive", name, err)
}

func (c *channel) ExchangeDelete(ctx context.Context, name string) error {
	err := c.ch.ExchangeDelete(name, false, false)
	return classifyTopologyError("exchange.delete", name, err)
}

func (c *channel) QueueDeclare(ctx context.Context, name string, durable, exclusive, autoDelete bool, args map[string]any) (transport.QueueInfo, error) {
	q, err := c.ch.QueueDeclare(name, durable, autoDelete, exclusive, false, amqp.Table(args))
	if err != nil {
		return transport.QueueInfo{}, classifyTopologyError("queue.declare", name, err)
	}
	return queueInfoFromAMQP(q), nil
}

func (c *channel) QueueDeclarePassive(ctx context.Context, name string) (transport.QueueInfo, error) {
	q, err := c.ch.QueueDeclarePassive(name, false, false, false, false, nil)
	if err != nil {
		return transport.QueueInfo{}, classifyTopologyError("queue.declare-passive", name, err)
	}
	return queueInfoFromAMQP(q), nil
}

func (c *channel) QueueDeclareExclusive(ctx context.Context, name string, byServer bool, args map[string]any) (transport.QueueInfo, error) {
	if byServer {
		name = ""
	}
	q, err := c.ch.QueueDeclare(name, false, true, true, false, amqp.Table(args))
	if err != nil {
		return transport.QueueInfo{}, classifyTopologyError("queue.declare-exclusive", name, err)
	}
	return queueInfoFromAMQP(q), nil
}

func (c *channel) QueueDelete(ctx context.Context, name string) error {
	_, err := c.ch.QueueDelete(name, false, false, false)
	return classifyTopologyError("queue.delete", name, err)
}

func (c *channel) QueuePurge(ctx context.Context, name string) (int, error) {
	n, err := c.ch.QueuePurge(name, false)
	if err != nil {
		return 0, classifyTopologyError("queue.purge", name, err)
	}
	return n, nil
}

func (c *channel) Bind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error {
	err := c.ch.QueueBind(queue, routingKey, exchange, false, amqp.Table(args))
	return classifyTopologyError("queue.bind", queue+"->"+exchange+":"+routingKey, err)
}

func (c *channel) Unbind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error {
	err := c.ch.QueueUnbind(queue, routingKey, exchange, amqp.Table(args))
	return classifyTopologyError("queue.unbind", queue+"->"+exchange+":"+routingKey, err)
}

func (c *channel) Confirm(noWait bool) error {
	if err := c.ch.Confirm(noWait); err != nil {
		return err
	}
	atomic.StoreInt32(&c.confirmMode, 1)
	confirmations := c.ch.NotifyPublish(make(chan amqp.Confirmation, 256))
	go func() {
		for conf := range confirmations {
			target := c.nacks
			if conf.Ack {
				target = c.acks
			}
			target <- transport.Confirmation{DeliveryTag: conf.DeliveryTag}
		}
	}()
	return nil
}

func (c *channel) Qos(prefetchCount int) error {
	return c.ch.Qos(prefetchCount, 0, false)
}

func (c *channel) Publish(ctx context.Context, exchange, routingKey string, mandatory bool, msg transport.OutboundMessage) (uint64, error) {
	var tag uint64
	if atomic.LoadInt32(&c.confirmMode) == 1 {
		c.tagMu.Lock()
		c.nextTag++
		tag = c.nextTag
		c.tagMu.Unlock()
	}

	pub := amqp.Publishing{
		ContentType:     msg.Properties.ContentType,
		ContentEncoding: msg.Properties.ContentEncoding,
		DeliveryMode:    msg.Properties.DeliveryMode,
		MessageId:       msg.Properties.MessageID,
		AppId:           msg.Properties.AppID,
		CorrelationId:   msg.Properties.CorrelationID,
		ReplyTo:         msg.Properties.ReplyTo,
		Type:            msg.Properties.Type,
		Expiration:      msg.Properties.Expiration,
		Timestamp:       msg.Properties.Timestamp,
		Headers:         amqp.Table(msg.Properties.Headers),
		Body:            msg.Body,
	}

	err := c.ch.PublishWithContext(ctx, exchange, routingKey, mandatory, false, pub)
	if err != nil {
		return 0, err
	}
	return tag, nil
}

func (c *channel) Consume(ctx context.Context, queue string, autoAck bool) (<-chan transport.Delivery, error) {
	deliveries, err := c.ch.ConsumeWithContext(ctx, queue, "", autoAck, false, false, false, nil)
	if err != nil {
		return nil, classifyTopologyError("basic.consume", queue, err)
	}
	out := make(chan transport.Delivery, 256)
	go func() {
		defer close(out)
		for d := range deliveries {
			out <- transport.Delivery{
				DeliveryTag: d.DeliveryTag,
				Redelivered: d.Redelivered,
				Exchange:    d.Exchange,
				RoutingKey:  d.RoutingKey,
				Queue:       queue,
				Properties:  propertiesFromAMQP(d.ContentType, d.ContentEncoding, d.DeliveryMode, d.MessageId, d.AppId, d.CorrelationId, d.ReplyTo, d.Type, d.Expiration, d.Timestamp, d.Headers),
				Body:        d.Body,
			}
		}
	}()
	return out, nil
}

func (c *channel) Ack(tag uint64, multiple bool) error    { return c.ch.Ack(tag, multiple) }
func (c *channel) Nack(tag uint64, multiple, requeue bool) error {
	return c.ch.Nack(tag, multiple, requeue)
}
func (c *channel) Reject(tag uint64, requeue bool) error { return c.ch.Reject(tag, requeue) }

func (c *channel) Close() error {
	return c.ch.Close()
}

func (c *channel) NotifyShutdown() <-chan transport.ShutdownEvent { return c.shutdown }
func (c *channel) NotifyPublishAck() <-chan transport.Confirmation  { return c.acks }
func (c *channel) NotifyPublishNack() <-chan transport.Confirmation { return c.nacks }
func (c *channel) NotifyReturn() <-chan transport.Return            { return c.returns }
func (c *channel) NotifyCallbackException() <-chan error            { return c.callbackExceptions }

// ConsumerCanceledError reports the broker unilaterally canceling a
// consumer (e.g. because its queue was deleted).
type ConsumerCanceledError struct {
	Reason string
}

func (e *ConsumerCanceledError) Error() string {
	return "rabbitmq: consumer canceled by broker: " + e.Reason
}

func queueInfoFromAMQP(q amqp.Queue) transport.QueueInfo {
	return transport.QueueInfo{Name: q.Name, Messages: q.Messages, Consumers: q.Consumers}
}

func propertiesFromAMQP(contentType, contentEncoding string, deliveryMode uint8, messageID, appID, correlationID, replyTo, typ, expiration string, timestamp time.Time, headers amqp.Table) transport.MessageProperties {
	return transport.MessageProperties{
		ContentType:     contentType,
		ContentEncoding: contentEncoding,
		DeliveryMode:    deliveryMode,
		MessageID:       messageID,
		AppID:           appID,
		CorrelationID:   correlationID,
		ReplyTo:         replyTo,
		Type:            typ,
		Expiration:      expiration,
		Timestamp:       timestamp,
		Headers:         map[string]any(headers),
	}
}
