package contracts

import "encoding/json"

// Envelope is the wire format every published message is wrapped in:
// serializer-agnostic routing/correlation metadata plus a raw body the
// registered Serializer knows how to decode once Type resolves to a
// concrete Go type.
type Envelope struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	ReplyTo       string                 `json:"replyTo,omitempty"`
	Headers       map[string]interface{} `json:"headers,omitempty"`
	Body          json.RawMessage        `json:"body"`
}

// PublishOptions carries the routing decisions a Publisher call makes
// on top of the message payload itself.
type PublishOptions struct {
	Exchange     string
	RoutingKey   string
	Mandatory    bool
	Priority     uint8
	Expiration   string
	DeliveryMode uint8
}
