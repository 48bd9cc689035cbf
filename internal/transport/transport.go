package transport

import (
	"context"
	"time"
)

// Initiator identifies who caused a shutdown: the application itself
// (a deliberate Close), the library (a local fault), or the remote
// peer.
type Initiator int

const (
	InitiatorApplication Initiator = iota
	InitiatorLibrary
	InitiatorPeer
)

func (i Initiator) String() string {
	switch i {
	case InitiatorApplication:
		return "application"
	case InitiatorLibrary:
		return "library"
	case InitiatorPeer:
		return "peer"
	default:
		return "unknown"
	}
}

// ShutdownEvent describes why a Connection or Channel closed.
type ShutdownEvent struct {
	Initiator Initiator
	Code      int
	Reason    string
}

// Endpoint is the remote address a Connection is talking to.
type Endpoint struct {
	Host string
	Port int
}

// MessageProperties carries the AMQP basic-properties an outbound
// message is published with, or an inbound delivery arrived with.
type MessageProperties struct {
	ContentType     string
	ContentEncoding string
	DeliveryMode    uint8
	MessageID       string
	AppID           string
	CorrelationID   string
	ReplyTo         string
	Type            string
	Expiration      string
	Timestamp       time.Time
	Headers         map[string]any
}

// OutboundMessage is the body and properties ProducerCore hands to a
// Channel's Publish call.
type OutboundMessage struct {
	Properties MessageProperties
	Body       []byte
}

// Delivery is an inbound message a Channel hands to ConsumerCore.
type Delivery struct {
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
	Queue       string
	Properties  MessageProperties
	Body        []byte
}

// Confirmation is a publisher-confirm ack/nack from the broker.
type Confirmation struct {
	DeliveryTag uint64
	Multiple    bool
}

// Return is an unroutable-message notification from the broker,
// delivered when a mandatory publish could not be routed.
type Return struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
	Properties MessageProperties
	Body       []byte
}

// QueueInfo is the result of a QueueDeclare/QueueDeclarePassive call.
type QueueInfo struct {
	Name      string
	Messages  int
	Consumers int
}

// ConnectionFactory opens connections to a broker.
type ConnectionFactory interface {
	Open(ctx context.Context, url string, connectionName string, timeout time.Duration) (Connection, error)
}

// Connection is one AMQP connection. NotifyShutdown delivers one
// ShutdownEvent when the connection closes. The interface does not
// require implementations to close their notification channels;
// internal/rabbitmq closes only the shutdown channel, after its event.
type Connection interface {
	IsOpen() bool
	LocalPort() int
	Endpoint() Endpoint

	CreateModel() (Channel, error)
	Close() error

	NotifyShutdown() <-chan ShutdownEvent
	NotifyBlocked() <-chan string
	NotifyUnblocked() <-chan struct{}
	NotifyCallbackException() <-chan error
}

// Channel is one AMQP channel (a "model" in AMQP 0-9-1 terms). All
// operations are synchronous RPCs; the caller is expected to invoke
// them from a single goroutine at a time, matching AMQP's own
// single-threaded-per-channel contract.
type Channel interface {
	ExchangeDeclare(ctx context.Context, name, kind string, durable, autoDelete bool) error
	ExchangeDeclarePassive(ctx context.Context, name string) error
	ExchangeDelete(ctx context.Context, name string) error

	QueueDeclare(ctx context.Context, name string, durable, exclusive, autoDelete bool, args map[string]any) (QueueInfo, error)
	QueueDeclarePassive(ctx context.Context, name string) (QueueInfo, error)
	QueueDeclareExclusive(ctx context.Context, name string, byServer bool, args map[string]any) (QueueInfo, error)
	QueueDelete(ctx context.Context, name string) error
	QueuePurge(ctx context.Context, name string) (int, error)

	Bind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error
	Unbind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error

	Confirm(noWait bool) error
	Qos(prefetchCount int) error
	Publish(ctx context.Context, exchange, routingKey string, mandatory bool, msg OutboundMessage) (deliveryTag uint64, err error)
	Consume(ctx context.Context, queue string, autoAck bool) (<-chan Delivery, error)

	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Reject(tag uint64, requeue bool) error

	Close() error

	NotifyShutdown() <-chan ShutdownEvent
	NotifyPublishAck() <-chan Confirmation
	NotifyPublishNack() <-chan Confirmation
	NotifyReturn() <-chan Return
	NotifyCallbackException() <-chan error
}
