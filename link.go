package rabbitlink

import (
	"context"
	"fmt"

	"github.com/YouDoCom/rabbit-link/internal/reliability"
	"github.com/YouDoCom/rabbit-link/internal/supervisor"
	"github.com/YouDoCom/rabbit-link/internal/transport"
	"github.com/YouDoCom/rabbit-link/internal/workqueue"
	"github.com/YouDoCom/rabbit-link/messaging"
	rabbitmqtransport "github.com/YouDoCom/rabbit-link/transports/rabbitmq"
)

// Link owns one ConnectionSupervisor and is the entry point for every
// other component: Topology, Producer, and Consumer factories, plus a
// higher-level Publisher/Subscriber façade over contracts.Message.
type Link struct {
	cfg  *Configuration
	conn *supervisor.ConnectionSupervisor
	gate *reliability.ConnectionGate
}

// New constructs a Link against cfg, dialing with the default
// production transports/rabbitmq.ConnectionFactory.
func New(cfg *Configuration) (*Link, error) {
	return NewWithFactory(cfg, rabbitmqtransport.NewConnectionFactory())
}

// NewWithFactory constructs a Link dialing through factory, letting
// callers substitute a fake transport.ConnectionFactory in tests or a
// customized transports/rabbitmq factory for TLS/heartbeat.
func NewWithFactory(cfg *Configuration, factory transport.ConnectionFactory) (*Link, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rabbit-link: configuration required")
	}
	loggerFactory := cfg.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = func(string) Logger { return NoopLogger() }
	}

	breaker := reliability.NewCircuitBreaker(reliability.WithName("connection"))
	gate := reliability.NewConnectionGate(breaker)

	conn := supervisor.NewConnectionSupervisor(supervisor.ConnectionConfig{
		URL:               cfg.URL,
		ConnectionName:    cfg.ConnectionName,
		ConnectionTimeout: cfg.ConnectionTimeout,
		RecoveryInterval:  cfg.ConnectionRecoveryInterval,
		AutoStart:         cfg.AutoStart,
		Factory:           factory,
		Logger:            loggerFactory("connection"),
	})
	conn.AddListener(gate)

	return &Link{cfg: cfg, conn: conn, gate: gate}, nil
}

// Health reports the connection's circuit-breaker metrics. This is
// purely observational: spec §4.4 requires the ConnectionSupervisor to
// retry indefinitely regardless of breaker state, so nothing here ever
// gates a reconnect attempt.
func (l *Link) Health() reliability.Metrics { return l.gate.Breaker().GetMetrics() }

// Initialize starts connecting. Unnecessary if Configuration.AutoStart
// was set.
func (l *Link) Initialize() { l.conn.Initialize() }

// Dispose tears down the connection and, transitively, every channel
// and component attached to it.
func (l *Link) Dispose() { l.conn.Dispose() }

func (l *Link) loggerFor(component string) Logger {
	if l.cfg.LoggerFactory == nil {
		return NoopLogger()
	}
	return l.cfg.LoggerFactory(component)
}

func (l *Link) channelConfig(component string) supervisor.ChannelConfig {
	return supervisor.ChannelConfig{
		RecoveryInterval: l.cfg.ChannelRecoveryInterval,
		Logger:           l.loggerFor(component),
	}
}

// TopologyOptions configures a Topology handle.
type TopologyOptions struct {
	Mode      supervisor.TopologyMode
	Configure supervisor.ConfigureFunc
	OnReady   func()
	OnError   func(err error)
}

// TopologyHandle is a disposable handle onto a running TopologyRunner.
type TopologyHandle struct {
	runner *supervisor.TopologyRunner
}

// Topology returns a TopologyHandle declaring exchanges/queues/bindings
// per opts.Configure, starting it immediately.
func (l *Link) Topology(opts TopologyOptions) *TopologyHandle {
	runner := supervisor.NewTopologyRunner(l.conn, supervisor.TopologyConfig{
		Mode:             opts.Mode,
		RecoveryInterval: l.cfg.TopologyRecoveryInterval,
		Configure:        opts.Configure,
		OnReady:          opts.OnReady,
		OnError:          opts.OnError,
		Logger:           l.loggerFor("topology"),
	}, l.channelConfig("topology"))
	runner.Start()
	return &TopologyHandle{runner: runner}
}

// State reports NotConfigured/Configured/Failed/Disposed.
func (h *TopologyHandle) State() supervisor.TopologyState { return h.runner.State() }

// Wait blocks until the topology is first configured, or, in Once mode,
// until it terminally fails because the broker refused a declare or
// bind. Returns nil on success, the broker's error on terminal failure,
// ErrDisposed if the topology is disposed first, or ctx.Err() if ctx is
// done first.
func (h *TopologyHandle) Wait(ctx context.Context) error { return h.runner.Wait(ctx) }

// Dispose tears down the topology's channel permanently.
func (h *TopologyHandle) Dispose() { h.runner.Dispose() }

// ProducerOptions configures a Producer handle.
type ProducerOptions struct {
	// PublishQueueCeiling bounds how many publishes may be unsettled
	// (queued, dispatched, or awaiting a confirm) at once. Zero means
	// unbounded.
	PublishQueueCeiling int
}

// ProducerHandle is a disposable handle onto a running ProducerCore.
type ProducerHandle struct {
	core *supervisor.ProducerCore
}

// Producer returns a ProducerHandle publishing through this Link's
// connection, honoring Configuration.ConfirmMode and
// PublishConfirmTimeout, starting it immediately.
func (l *Link) Producer(opts ProducerOptions) *ProducerHandle {
	core := supervisor.NewProducerCore(l.conn, supervisor.ProducerConfig{
		ConfirmMode:           l.cfg.ConfirmMode,
		PublishConfirmTimeout: l.cfg.PublishConfirmTimeout,
		PublishQueueCeiling:   opts.PublishQueueCeiling,
		Logger:                l.loggerFor("producer"),
	}, l.channelConfig("producer"))
	core.Start()
	return &ProducerHandle{core: core}
}

// PublishAsync publishes a raw outbound message without blocking for
// its confirm. Call Wait on the result to observe the outcome.
func (h *ProducerHandle) PublishAsync(ctx context.Context, exchange, routingKey string, mandatory bool, msg transport.OutboundMessage) *PublishHandle {
	return &PublishHandle{item: h.core.Publish(ctx, exchange, routingKey, mandatory, msg)}
}

// Dispose tears down the producer's channel permanently, failing any
// publishes still in flight.
func (h *ProducerHandle) Dispose() { h.core.Dispose() }

// PublishHandle is the disposable promise PublishAsync returns.
type PublishHandle struct {
	item *workqueue.WorkItem[struct{}]
}

// Wait blocks until the publish is confirmed, rejected, or ctx is done.
func (p *PublishHandle) Wait(ctx context.Context) error {
	_, err := p.item.Wait(ctx)
	return err
}

// ConsumerOptions configures a Consumer handle.
type ConsumerOptions struct {
	Queue                    string
	PrefetchCount            int
	AutoAck                  bool
	DisableRedeliveryOnError bool
	Configure                supervisor.ConsumeConfigureFunc
	Handler                  supervisor.DeliveryHandler
}

// ConsumerHandle is a disposable handle onto a running ConsumerCore.
type ConsumerHandle struct {
	core *supervisor.ConsumerCore
}

// Consumer returns a ConsumerHandle consuming opts.Queue and invoking
// opts.Handler for each delivery, starting it immediately.
func (l *Link) Consumer(opts ConsumerOptions) *ConsumerHandle {
	core := supervisor.NewConsumerCore(l.conn, supervisor.ConsumerConfig{
		Queue:                    opts.Queue,
		PrefetchCount:            opts.PrefetchCount,
		AutoAck:                  opts.AutoAck,
		DisableRedeliveryOnError: opts.DisableRedeliveryOnError,
		RecoveryInterval:         l.cfg.ChannelRecoveryInterval,
		Configure:                opts.Configure,
		Handler:                  opts.Handler,
		Logger:                   l.loggerFor("consumer:" + opts.Queue),
	}, l.channelConfig("consumer:"+opts.Queue))
	core.Start()
	return &ConsumerHandle{core: core}
}

// Dispose tears down the consumer's channel permanently.
func (h *ConsumerHandle) Dispose() { h.core.Dispose() }

// Publisher returns a messaging.Publisher publishing contracts.Message
// values through a fresh ProducerCore, using Configuration.Serializer.
func (l *Link) Publisher(opts ProducerOptions) *messaging.Publisher {
	core := supervisor.NewProducerCore(l.conn, supervisor.ProducerConfig{
		ConfirmMode:           l.cfg.ConfirmMode,
		PublishConfirmTimeout: l.cfg.PublishConfirmTimeout,
		PublishQueueCeiling:   opts.PublishQueueCeiling,
		Logger:                l.loggerFor("producer"),
	}, l.channelConfig("producer"))
	core.Start()
	return messaging.NewPublisher(core, l.cfg.Serializer, l.loggerFor("publisher"))
}

// SubscriberOptions configures a Subscriber handle.
type SubscriberOptions struct {
	Queue                    string
	PrefetchCount            int
	DisableRedeliveryOnError bool
	Configure                supervisor.ConsumeConfigureFunc
}

// Subscriber returns a messaging.Subscriber decoding deliveries with
// Configuration.Serializer and dispatching them to handler, starting it
// immediately.
func (l *Link) Subscriber(opts SubscriberOptions, handler messaging.MessageHandler) *messaging.Subscriber {
	sub := messaging.NewSubscriber(l.conn, messaging.SubscriberConfig{
		Queue:                    opts.Queue,
		PrefetchCount:            opts.PrefetchCount,
		DisableRedeliveryOnError: opts.DisableRedeliveryOnError,
		RecoveryInterval:         l.cfg.ChannelRecoveryInterval,
		Configure:                opts.Configure,
		Logger:                   l.loggerFor("subscriber:" + opts.Queue),
	}, l.cfg.Serializer, handler, l.channelConfig("consumer:"+opts.Queue))
	sub.Start()
	return sub
}
