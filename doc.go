// Package rabbitlink is a client library for AMQP 0-9-1 brokers. It
// hides connection drops, channel faults, and topology loss behind a
// persistent, self-healing Link: a Configuration built once through
// ConfigBuilder produces a Link, from which Topology, Producer, and
// Consumer factories yield disposable handles, and Publisher/Subscriber
// give a typed façade over contracts.Message values.
package rabbitlink
