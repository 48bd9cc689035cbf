package reliability

import (
	"context"
	"fmt"

	"github.com/YouDoCom/rabbit-link/internal/supervisor"
)

// DeadLetterSpec describes a queue that should dead-letter into its own
// exchange/queue pair instead of being silently dropped or looping
// forever on Nack(requeue=true).
type DeadLetterSpec struct {
	Queue           string
	DeadLetterQueue string
	DeadExchange    string
	RoutingKey      string // defaults to DeadLetterQueue if empty
	QueueArgs       map[string]any
}

// DeclareWithDeadLetter declares the dead-letter exchange, the
// dead-letter queue, binds them, then declares Queue with the matching
// x-dead-letter-exchange/x-dead-letter-routing-key arguments. Intended
// to be called from inside a TopologyConfig.Configure callback, where
// it runs serially with every other declarative call on that channel.
func DeclareWithDeadLetter(ctx context.Context, t *supervisor.TopologyRunner, spec DeadLetterSpec) error {
	routingKey := dlqRoutingKey(spec)

	if err := t.ExchangeDeclare(ctx, spec.DeadExchange, "direct", true, false); err != nil {
		return fmt.Errorf("reliability: declare dead-letter exchange %s: %w", spec.DeadExchange, err)
	}
	if _, err := t.QueueDeclare(ctx, spec.DeadLetterQueue, true, false, false, nil); err != nil {
		return fmt.Errorf("reliability: declare dead-letter queue %s: %w", spec.DeadLetterQueue, err)
	}
	if err := t.Bind(ctx, spec.DeadLetterQueue, spec.DeadExchange, routingKey, nil); err != nil {
		return fmt.Errorf("reliability: bind dead-letter queue %s: %w", spec.DeadLetterQueue, err)
	}
	if _, err := t.QueueDeclare(ctx, spec.Queue, true, false, false, dlqQueueArgs(spec)); err != nil {
		return fmt.Errorf("reliability: declare queue %s with dead-letter args: %w", spec.Queue, err)
	}
	return nil
}

// dlqRoutingKey is the routing key the dead-letter queue binds under
// and the main queue's x-dead-letter-routing-key argument, factored out
// so it can be verified without a live TopologyRunner.
func dlqRoutingKey(spec DeadLetterSpec) string {
	if spec.RoutingKey != "" {
		return spec.RoutingKey
	}
	return spec.DeadLetterQueue
}

// dlqQueueArgs is the amqp.Table the main queue is declared with,
// factored out for the same reason as dlqRoutingKey.
func dlqQueueArgs(spec DeadLetterSpec) map[string]any {
	args := map[string]any{}
	for k, v := range spec.QueueArgs {
		args[k] = v
	}
	args["x-dead-letter-exchange"] = spec.DeadExchange
	args["x-dead-letter-routing-key"] = dlqRoutingKey(spec)
	return args
}
