package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/YouDoCom/rabbit-link/internal/errs"
	"github.com/YouDoCom/rabbit-link/internal/transport"
)

// fakeFactory hands out fakeConnections in the order queued by enqueue,
// or fails with the queued error. It never touches a real socket, so
// supervisor tests run in milliseconds and never a live broker.
type fakeFactory struct {
	mu      sync.Mutex
	results []factoryResult
	opens   int
}

type factoryResult struct {
	conn *fakeConnection
	err  error
}

func (f *fakeFactory) enqueue(r factoryResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
}

func (f *fakeFactory) Open(ctx context.Context, url, connectionName string, timeout time.Duration) (transport.Connection, error) {
	f.mu.Lock()
	f.opens++
	var r factoryResult
	if len(f.results) > 0 {
		r = f.results[0]
		f.results = f.results[1:]
	} else {
		r = factoryResult{conn: newFakeConnection()}
	}
	f.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (f *fakeFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type fakeConnection struct {
	mu       sync.Mutex
	open     bool
	shutdown chan transport.ShutdownEvent
	channels []*fakeChannel
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{open: true, shutdown: make(chan transport.ShutdownEvent, 1)}
}

func (c *fakeConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConnection) LocalPort() int             { return 1234 }
func (c *fakeConnection) Endpoint() transport.Endpoint { return transport.Endpoint{Host: "fake"} }

func (c *fakeConnection) CreateModel() (transport.Channel, error) {
	ch := newFakeChannel()
	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	return ch, nil
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	c.shutdown <- transport.ShutdownEvent{Initiator: transport.InitiatorApplication}
	return nil
}

// closeFromPeer simulates the broker dropping the connection.
func (c *fakeConnection) closeFromPeer(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.open = false
	c.shutdown <- transport.ShutdownEvent{Initiator: transport.InitiatorPeer, Code: 320, Reason: reason}
}

func (c *fakeConnection) NotifyShutdown() <-chan transport.ShutdownEvent { return c.shutdown }
func (c *fakeConnection) NotifyBlocked() <-chan string                  { return make(chan string) }
func (c *fakeConnection) NotifyUnblocked() <-chan struct{}              { return make(chan struct{}) }
func (c *fakeConnection) NotifyCallbackException() <-chan error         { return make(chan error) }

// fakeChannel is a minimal, controllable transport.Channel.
type fakeChannel struct {
	mu          sync.Mutex
	open        bool
	confirmMode bool
	nextTag     uint64
	acked       []transport.Confirmation
	nacked      []transport.Confirmation
	rejected    []struct {
		tag     uint64
		requeue bool
	}
	published []transport.OutboundMessage
	queues    map[string]transport.QueueInfo
	exchanges map[string]bool

	// publishHook, if set, runs before Publish records msg. Tests use it
	// to hold up one dispatch while a burst of other publishes queues up
	// behind it.
	publishHook func(msg transport.OutboundMessage)

	shutdown chan transport.ShutdownEvent
	acks     chan transport.Confirmation
	nacks    chan transport.Confirmation
	returns  chan transport.Return
	delivery chan transport.Delivery
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		open:      true,
		queues:    map[string]transport.QueueInfo{},
		exchanges: map[string]bool{},
		shutdown:  make(chan transport.ShutdownEvent, 1),
		acks:     make(chan transport.Confirmation, 64),
		nacks:    make(chan transport.Confirmation, 64),
		returns:  make(chan transport.Return, 64),
		delivery: make(chan transport.Delivery, 256),
	}
}

func (c *fakeChannel) ExchangeDeclare(ctx context.Context, name, kind string, durable, autoDelete bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges[name] = true
	return nil
}
func (c *fakeChannel) ExchangeDeclarePassive(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exchanges[name] {
		return &fakeNotFoundError{name: name}
	}
	return nil
}
func (c *fakeChannel) ExchangeDelete(ctx context.Context, name string) error { return nil }

func (c *fakeChannel) QueueDeclare(ctx context.Context, name string, durable, exclusive, autoDelete bool, args map[string]any) (transport.QueueInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := transport.QueueInfo{Name: name}
	c.queues[name] = info
	return info, nil
}

func (c *fakeChannel) QueueDeclarePassive(ctx context.Context, name string) (transport.QueueInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.queues[name]
	if !ok {
		return transport.QueueInfo{}, &fakeNotFoundError{name: name}
	}
	return info, nil
}

func (c *fakeChannel) QueueDeclareExclusive(ctx context.Context, name string, byServer bool, args map[string]any) (transport.QueueInfo, error) {
	if byServer {
		name = "generated-" + name
	}
	return c.QueueDeclare(ctx, name, false, true, true, args)
}

func (c *fakeChannel) QueueDelete(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queues, name)
	return nil
}

func (c *fakeChannel) QueuePurge(ctx context.Context, name string) (int, error) { return 0, nil }

func (c *fakeChannel) Bind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error {
	return nil
}
func (c *fakeChannel) Unbind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error {
	return nil
}

func (c *fakeChannel) Confirm(noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmMode = true
	return nil
}

func (c *fakeChannel) Qos(prefetchCount int) error { return nil }

func (c *fakeChannel) Publish(ctx context.Context, exchange, routingKey string, mandatory bool, msg transport.OutboundMessage) (uint64, error) {
	c.mu.Lock()
	hook := c.publishHook
	c.mu.Unlock()
	if hook != nil {
		hook(msg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msg)
	if !c.confirmMode {
		return 0, nil
	}
	c.nextTag++
	return c.nextTag, nil
}

func (c *fakeChannel) Consume(ctx context.Context, queue string, autoAck bool) (<-chan transport.Delivery, error) {
	return c.delivery, nil
}

func (c *fakeChannel) Ack(tag uint64, multiple bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, transport.Confirmation{DeliveryTag: tag, Multiple: multiple})
	return nil
}

func (c *fakeChannel) Nack(tag uint64, multiple, requeue bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nacked = append(c.nacked, transport.Confirmation{DeliveryTag: tag, Multiple: multiple})
	return nil
}

func (c *fakeChannel) Reject(tag uint64, requeue bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, struct {
		tag     uint64
		requeue bool
	}{tag, requeue})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	c.shutdown <- transport.ShutdownEvent{Initiator: transport.InitiatorApplication}
	return nil
}

func (c *fakeChannel) closeFromPeer(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.open = false
	c.shutdown <- transport.ShutdownEvent{Initiator: transport.InitiatorPeer, Code: 320, Reason: reason}
}

func (c *fakeChannel) deliver(d transport.Delivery) { c.delivery <- d }
func (c *fakeChannel) ack(tag uint64)               { c.acks <- transport.Confirmation{DeliveryTag: tag} }
func (c *fakeChannel) nack(tag uint64)              { c.nacks <- transport.Confirmation{DeliveryTag: tag} }
func (c *fakeChannel) ret(r transport.Return)       { c.returns <- r }

func (c *fakeChannel) NotifyShutdown() <-chan transport.ShutdownEvent  { return c.shutdown }
func (c *fakeChannel) NotifyPublishAck() <-chan transport.Confirmation  { return c.acks }
func (c *fakeChannel) NotifyPublishNack() <-chan transport.Confirmation { return c.nacks }
func (c *fakeChannel) NotifyReturn() <-chan transport.Return            { return c.returns }
func (c *fakeChannel) NotifyCallbackException() <-chan error            { return make(chan error) }

// fakeNotFoundError stands in for the classified error the real
// channel adapter produces for a passive declare against a nonexistent
// entity: matchable via errors.Is(err, errs.ErrBrokerReject) without
// pulling amqp091-go into this package's tests.
type fakeNotFoundError struct{ name string }

func (e *fakeNotFoundError) Error() string { return "not found: " + e.name }
func (e *fakeNotFoundError) Unwrap() error { return errs.ErrBrokerReject }
