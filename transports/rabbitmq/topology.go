package rabbitmq

import (
	"context"
	"fmt"

	"github.com/YouDoCom/rabbit-link/internal/supervisor"
)

// ExchangeSpec declares one exchange for StandardTopology.
type ExchangeSpec struct {
	Name       string
	Kind       string // "direct", "fanout", "topic", "headers"
	Durable    bool
	AutoDelete bool
}

// QueueBinding declares one queue-to-exchange binding for
// StandardTopology, alongside the queue's own declaration.
type QueueBinding struct {
	Queue      string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Arguments  map[string]any
	Exchange   string
	RoutingKey string
}

// StandardTopology builds a supervisor.ConfigureFunc that declares a
// fixed set of exchanges and queue bindings every time it runs,
// grounded on the pattern of declaring an application's whole
// exchange/queue layout up front rather than scattering declarations
// across producers and consumers. Use it as TopologyConfig.Configure
// with TopologyMode Persistent so the layout is re-asserted after every
// channel loss.
func StandardTopology(exchanges []ExchangeSpec, bindings []QueueBinding) supervisor.ConfigureFunc {
	return func(ctx context.Context, t *supervisor.TopologyRunner) error {
		for _, ex := range exchanges {
			if err := t.ExchangeDeclare(ctx, ex.Name, ex.Kind, ex.Durable, ex.AutoDelete); err != nil {
				return fmt.Errorf("transports/rabbitmq: declare exchange %s: %w", ex.Name, err)
			}
		}
		for _, b := range bindings {
			if _, err := t.QueueDeclare(ctx, b.Queue, b.Durable, b.Exclusive, b.AutoDelete, b.Arguments); err != nil {
				return fmt.Errorf("transports/rabbitmq: declare queue %s: %w", b.Queue, err)
			}
			if b.Exchange == "" {
				continue
			}
			if err := t.Bind(ctx, b.Queue, b.Exchange, b.RoutingKey, nil); err != nil {
				return fmt.Errorf("transports/rabbitmq: bind queue %s to exchange %s: %w", b.Queue, b.Exchange, err)
			}
		}
		return nil
	}
}
