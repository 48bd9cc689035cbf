package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YouDoCom/rabbit-link/internal/errs"
)

// ErrChannelClosed is returned by a Channel operation invoked after the
// underlying amqp091-go channel has been closed.
var ErrChannelClosed = errors.New("rabbitmq: channel closed")

// ErrConnectionClosed is returned by a Connection operation invoked
// after the underlying amqp091-go connection has been closed.
var ErrConnectionClosed = errors.New("rabbitmq: connection closed")

// DialError wraps a failure to open a connection, keeping the broker
// URL with credentials redacted for logs.
type DialError struct {
	URL string
	Err error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("rabbitmq: dial %s: %v", SanitizeURL(e.URL), e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// ChannelOpenError wraps a failure to open a channel on a live
// connection.
type ChannelOpenError struct {
	Err error
}

func (e *ChannelOpenError) Error() string {
	return fmt.Sprintf("rabbitmq: open channel: %v", e.Err)
}

func (e *ChannelOpenError) Unwrap() error { return e.Err }

// classifyTopologyError wraps a declare/bind/consume failure as an
// errs.TopologyError, detecting the AMQP reply codes the broker uses to
// refuse a request (404 Not Found, 403 Access Refused, 405 Resource
// Locked, 406 Precondition Failed, 530 Not Allowed) and folding those
// into errs.ErrBrokerReject so callers can errors.Is against it
// regardless of the underlying amqp091-go error shape.
func classifyTopologyError(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && isBrokerReject(amqpErr.Code) {
		return &errs.TopologyError{Op: op, Entity: entity, Err: fmt.Errorf("%w: %s", errs.ErrBrokerReject, amqpErr.Reason)}
	}
	return &errs.TopologyError{Op: op, Entity: entity, Err: err}
}

func isBrokerReject(code int) bool {
	switch code {
	case amqp.NotFound, amqp.AccessRefused, amqp.ResourceLocked, amqp.PreconditionFailed, amqp.NotAllowed:
		return true
	default:
		return false
	}
}

// SanitizeURL strips userinfo from an AMQP URL before it is logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.User = nil
	return u.String()
}
