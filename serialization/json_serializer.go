package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/YouDoCom/rabbit-link/contracts"
)

// Serializer turns a contracts.Message into a wire Envelope and back.
// ProducerCore and ConsumerCore only ever see envelope bytes; this is
// the seam a caller can replace to swap wire formats.
type Serializer interface {
	Serialize(msg contracts.Message) (*contracts.Envelope, error)
	Deserialize(env *contracts.Envelope) (contracts.Message, error)
}

// JSONSerializer implements Serializer with encoding/json, tagging
// each envelope with the registry's type name so Deserialize can
// reconstruct the concrete Go type on the other end.
type JSONSerializer struct {
	registry TypeRegistry
}

// NewJSONSerializer builds a JSONSerializer backed by registry. Pass
// nil to get a fresh, empty registry.
func NewJSONSerializer(registry TypeRegistry) *JSONSerializer {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &JSONSerializer{registry: registry}
}

// Registry exposes the backing TypeRegistry so callers can Register
// message types before publishing or consuming.
func (s *JSONSerializer) Registry() TypeRegistry { return s.registry }

func (s *JSONSerializer) Serialize(msg contracts.Message) (*contracts.Envelope, error) {
	if msg == nil {
		return nil, fmt.Errorf("serialization: message cannot be nil")
	}
	typeName, err := s.registry.GetTypeName(msg)
	if err != nil {
		return nil, fmt.Errorf("serialization: %w", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serialization: marshal body: %w", err)
	}
	return &contracts.Envelope{
		ID:            msg.GetID(),
		Type:          typeName,
		Timestamp:     msg.GetTimestamp().Format(rfc3339Milli),
		CorrelationID: msg.GetCorrelationID(),
		Body:          body,
	}, nil
}

func (s *JSONSerializer) Deserialize(env *contracts.Envelope) (contracts.Message, error) {
	if env == nil {
		return nil, fmt.Errorf("serialization: envelope cannot be nil")
	}
	instance, err := s.registry.CreateInstance(env.Type)
	if err != nil {
		return nil, fmt.Errorf("serialization: %w", err)
	}
	if err := json.Unmarshal(env.Body, instance); err != nil {
		return nil, fmt.Errorf("serialization: unmarshal body for type %s: %w", env.Type, err)
	}
	msg, ok := instance.(contracts.Message)
	if !ok {
		return nil, fmt.Errorf("serialization: type %s does not implement contracts.Message", env.Type)
	}
	if env.CorrelationID != "" {
		msg.SetCorrelationID(env.CorrelationID)
	}
	return msg, nil
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
