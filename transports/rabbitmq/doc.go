// Package rabbitmq collects RabbitMQ-specific conveniences for wiring
// a Link against a real broker: a TLS/heartbeat-capable connection
// factory and topology helpers for the exchange/queue layouts an
// application commonly wants declared up front. Nothing here is
// required — a caller can talk to internal/supervisor directly with
// any transport.ConnectionFactory — but most applications want the
// same handful of exchange declarations and standard queue arguments,
// so this package gives them a name.
package rabbitmq
