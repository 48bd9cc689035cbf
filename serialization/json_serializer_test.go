package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YouDoCom/rabbit-link/contracts"
)

type orderPlaced struct {
	contracts.BaseEvent
	OrderID string `json:"orderId"`
}

func TestJSONSerializer_RoundTrips(t *testing.T) {
	registry := NewTypeRegistry()
	require.NoError(t, registry.RegisterType(orderPlaced{}))
	s := NewJSONSerializer(registry)

	msg := &orderPlaced{BaseEvent: contracts.NewBaseEvent("OrderPlaced", "order-1", 1), OrderID: "order-1"}
	env, err := s.Serialize(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, env.Type)
	assert.Equal(t, msg.ID, env.ID)

	decoded, err := s.Deserialize(env)
	require.NoError(t, err)
	got, ok := decoded.(*orderPlaced)
	require.True(t, ok)
	assert.Equal(t, "order-1", got.OrderID)
}

func TestJSONSerializer_DeserializeUnknownTypeFails(t *testing.T) {
	s := NewJSONSerializer(nil)
	_, err := s.Deserialize(&contracts.Envelope{Type: "nope", Body: []byte(`{}`)})
	assert.Error(t, err)
}
