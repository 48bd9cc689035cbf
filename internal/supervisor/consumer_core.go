package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/YouDoCom/rabbit-link/internal/logging"
	"github.com/YouDoCom/rabbit-link/internal/transport"
	"github.com/YouDoCom/rabbit-link/internal/workqueue"
)

// HandlerOutcome is what a delivery handler asks ConsumerCore to do
// with a delivery once it returns (spec §4.8).
type HandlerOutcome int

const (
	Ack HandlerOutcome = iota
	Nack
	Reject
)

// DeliveryHandler processes one delivery and reports the outcome. A
// non-nil error is treated as Nack(requeue=true) unless
// ConsumerConfig.DisableRedeliveryOnError is set, in which case it is
// treated as Reject(requeue=false).
type DeliveryHandler func(ctx context.Context, d transport.Delivery) (outcome HandlerOutcome, requeue bool, err error)

// ConsumeConfigureFunc declares/binds the queue this consumer reads
// from. It runs once per Active transition, before basic.consume.
type ConsumeConfigureFunc func(ctx context.Context, model transport.Channel) error

// ConsumerConfig configures a ConsumerCore.
type ConsumerConfig struct {
	Queue                    string
	PrefetchCount            int
	AutoAck                  bool
	DisableRedeliveryOnError bool
	RecoveryInterval         time.Duration
	Configure                ConsumeConfigureFunc
	Handler                  DeliveryHandler
	Logger                   logging.Logger
}

type taggedDelivery struct {
	delivery   transport.Delivery
	generation Generation
	model      transport.Channel
}

// ConsumerCore is the per-channel delivery loop: declare/bind, qos,
// basic.consume, a single handler-invoker draining an internal
// delivery queue, and generation-guarded ack/nack/reject (spec §4.8).
type ConsumerCore struct {
	identity Identity
	channel  *ChannelSupervisor
	cfg      ConsumerConfig

	deliveryQueue *workqueue.AutoCancellingQueue[taggedDelivery]

	mu         sync.Mutex
	disposed   bool
	generation Generation
}

// NewConsumerCore wires a ConsumerCore to a fresh ChannelSupervisor
// bound to conn. Call Start to begin consuming.
func NewConsumerCore(conn *ConnectionSupervisor, cfg ConsumerConfig, channelCfg ChannelConfig) *ConsumerCore {
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop{}
	}
	c := &ConsumerCore{
		identity:      NewIdentity("consumer"),
		cfg:           cfg,
		deliveryQueue: workqueue.NewAutoCancellingQueue[taggedDelivery](),
	}
	c.channel = NewChannelSupervisor(conn, c, channelCfg)
	return c
}

// Identity returns this consumer's log-correlation identifier.
func (c *ConsumerCore) Identity() Identity { return c.identity }

// Start begins opening the underlying channel.
func (c *ConsumerCore) Start() { c.channel.Start() }

// Dispose tears the consumer and its channel down permanently.
func (c *ConsumerCore) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.channel.Dispose()
	c.deliveryQueue.Close()
}

// --- ChannelHandler ---

func (c *ConsumerCore) OnConnecting(ctx context.Context) { <-ctx.Done() }

func (c *ConsumerCore) OnActive(model transport.Channel, generation Generation, ctx context.Context) {
	if c.cfg.Configure != nil && !c.runConfigure(ctx, model) {
		<-ctx.Done()
		return
	}

	if err := model.Qos(c.cfg.PrefetchCount); err != nil {
		c.cfg.Logger.Warn("qos failed", "identity", c.identity.String(), "error", err)
	}

	deliveries, err := model.Consume(ctx, c.cfg.Queue, c.cfg.AutoAck)
	if err != nil {
		c.cfg.Logger.Warn("consume failed", "identity", c.identity.String(), "error", err)
		<-ctx.Done()
		return
	}

	c.mu.Lock()
	c.generation = generation
	c.mu.Unlock()

	go func() {
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.deliveryQueue.Put(ctx, taggedDelivery{delivery: d, generation: generation, model: model})
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			td, err := c.deliveryQueue.Take(ctx)
			if err != nil {
				return
			}
			c.handleDelivery(ctx, td)
		}
	}()

	<-ctx.Done()
}

func (c *ConsumerCore) runConfigure(ctx context.Context, model transport.Channel) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if err := c.cfg.Configure(ctx, model); err == nil {
			return true
		} else {
			c.cfg.Logger.Warn("consumer topology configuration failed", "identity", c.identity.String(), "error", err)
		}
		select {
		case <-time.After(c.cfg.RecoveryInterval):
		case <-ctx.Done():
			return false
		}
	}
}

func (c *ConsumerCore) handleDelivery(ctx context.Context, td taggedDelivery) {
	c.mu.Lock()
	current := c.generation
	c.mu.Unlock()
	if td.generation != current {
		return
	}

	outcome, requeue, err := c.cfg.Handler(ctx, td.delivery)

	if c.cfg.AutoAck {
		return
	}

	c.mu.Lock()
	stillCurrent := td.generation == c.generation
	c.mu.Unlock()
	if !stillCurrent {
		return
	}

	if err != nil {
		if c.cfg.DisableRedeliveryOnError {
			_ = td.model.Reject(td.delivery.DeliveryTag, false)
		} else {
			_ = td.model.Nack(td.delivery.DeliveryTag, false, true)
		}
		return
	}

	switch outcome {
	case Ack:
		_ = td.model.Ack(td.delivery.DeliveryTag, false)
	case Nack:
		_ = td.model.Nack(td.delivery.DeliveryTag, false, requeue)
	case Reject:
		_ = td.model.Reject(td.delivery.DeliveryTag, requeue)
	}
}

func (c *ConsumerCore) OnBasicAck(tag uint64, multiple bool)  {}
func (c *ConsumerCore) OnBasicNack(tag uint64, multiple bool) {}
func (c *ConsumerCore) OnBasicReturn(ret transport.Return)    {}
func (c *ConsumerCore) OnDisposed()                           {}
