// Package rabbitmq is the concrete, github.com/rabbitmq/amqp091-go-backed
// implementation of the internal/transport interfaces. It owns every
// import of the wire client; nothing above this package touches
// amqp091-go types directly.
package rabbitmq
