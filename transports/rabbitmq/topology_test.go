package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardTopology_ReturnsConfigureFunc(t *testing.T) {
	configure := StandardTopology(
		[]ExchangeSpec{{Name: "orders", Kind: "topic", Durable: true}},
		[]QueueBinding{{Queue: "orders.created", Exchange: "orders", RoutingKey: "created", Durable: true}},
	)
	assert.NotNil(t, configure)
}

func TestQueueBinding_UnroutedQueueHasNoExchange(t *testing.T) {
	b := QueueBinding{Queue: "audit-log", Durable: true}
	assert.Empty(t, b.Exchange, "a binding with no exchange declares a standalone queue")
}
