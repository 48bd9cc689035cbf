// Package transport defines the wire-level collaborator this module's
// supervisors are built against: a ConnectionFactory that opens a
// Connection, and a Connection that opens Channels carrying the AMQP
// method set TopologyRunner, ProducerCore, and ConsumerCore need.
//
// Nothing in internal/supervisor imports amqp091-go directly. The
// concrete, broker-speaking implementation of these interfaces lives in
// internal/rabbitmq, so the state machines can be exercised in tests
// against a hand-built fake instead of a live broker.
package transport
