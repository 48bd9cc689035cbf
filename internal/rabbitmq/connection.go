package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YouDoCom/rabbit-link/internal/transport"
)

// connection adapts *amqp.Connection to transport.Connection.
type connection struct {
	conn *amqp.Connection

	shutdown           chan transport.ShutdownEvent
	blocked            chan string
	unblocked          chan struct{}
	callbackExceptions chan error
}

func newConnection(conn *amqp.Connection) *connection {
	c := &connection{
		conn:               conn,
		shutdown:           make(chan transport.ShutdownEvent, 1),
		blocked:            make(chan string, 8),
		unblocked:          make(chan struct{}, 8),
		callbackExceptions: make(chan error, 8),
	}

	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
	blockedNotify := conn.NotifyBlocked(make(chan amqp.Blocking, 8))

	go func() {
		amqpErr := <-closeNotify
		c.shutdown <- shutdownEventFrom(amqpErr)
		close(c.shutdown)
	}()

	go func() {
		for b := range blockedNotify {
			if b.Active {
				c.blocked <- b.Reason
			} else {
				c.unblocked <- struct{}{}
			}
		}
	}()

	return c
}

func shutdownEventFrom(amqpErr *amqp.Error) transport.ShutdownEvent {
	if amqpErr == nil {
		return transport.ShutdownEvent{Initiator: transport.InitiatorApplication}
	}
	initiator := transport.InitiatorLibrary
	if amqpErr.Server {
		initiator = transport.InitiatorPeer
	}
	return transport.ShutdownEvent{
		Initiator: initiator,
		Code:      amqpErr.Code,
		Reason:    amqpErr.Reason,
	}
}

func (c *connection) IsOpen() bool {
	return !c.conn.IsClosed()
}

func (c *connection) LocalPort() int {
	if addr, ok := c.conn.LocalAddr().(interface{ Port() int }); ok {
		return addr.Port()
	}
	return 0
}

func (c *connection) Endpoint() transport.Endpoint {
	remote := c.conn.RemoteAddr()
	if remote == nil {
		return transport.Endpoint{}
	}
	return transport.Endpoint{Host: remote.String()}
}

func (c *connection) CreateModel() (transport.Channel, error) {
	if c.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, &ChannelOpenError{Err: err}
	}
	return newChannel(ch), nil
}

func (c *connection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

func (c *connection) NotifyShutdown() <-chan transport.ShutdownEvent { return c.shutdown }
func (c *connection) NotifyBlocked() <-chan string                  { return c.blocked }
func (c *connection) NotifyUnblocked() <-chan struct{}              { return c.unblocked }
func (c *connection) NotifyCallbackException() <-chan error         { return c.callbackExceptions }
