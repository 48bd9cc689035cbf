package rabbitmq

import (
	"crypto/tls"
	"time"

	"github.com/YouDoCom/rabbit-link/internal/rabbitmq"
	"github.com/YouDoCom/rabbit-link/internal/transport"
)

// FactoryOption configures a production connection factory.
type FactoryOption func(*rabbitmq.Factory)

// WithTLS enables amqps:// dialing with the given client configuration.
func WithTLS(cfg *tls.Config) FactoryOption {
	return func(f *rabbitmq.Factory) { f.TLSClientConfig = cfg }
}

// WithHeartbeat overrides amqp091-go's default heartbeat interval.
func WithHeartbeat(interval time.Duration) FactoryOption {
	return func(f *rabbitmq.Factory) { f.Heartbeat = interval }
}

// WithLocale overrides amqp091-go's default connection locale.
func WithLocale(locale string) FactoryOption {
	return func(f *rabbitmq.Factory) { f.Locale = locale }
}

// NewConnectionFactory returns a transport.ConnectionFactory dialing
// real RabbitMQ brokers with amqp091-go, customized by options. This is
// the factory rabbitlink.New wires in by default; tests pass their own
// fake transport.ConnectionFactory to NewWithFactory instead.
func NewConnectionFactory(options ...FactoryOption) transport.ConnectionFactory {
	f := rabbitmq.NewFactory()
	for _, opt := range options {
		opt(f)
	}
	return f
}
