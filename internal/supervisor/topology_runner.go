package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/YouDoCom/rabbit-link/internal/errs"
	"github.com/YouDoCom/rabbit-link/internal/logging"
	"github.com/YouDoCom/rabbit-link/internal/transport"
	"github.com/YouDoCom/rabbit-link/internal/workqueue"
)

// TopologyMode selects whether a TopologyRunner reconfigures on every
// channel Active transition or configures exactly once (spec §4.6).
type TopologyMode int

const (
	TopologyOnce TopologyMode = iota
	TopologyPersistent
)

// TopologyState is {NotConfigured, Configured, Failed, Disposed} paired with a
// TopologyRunner's fixed Mode (spec §3).
type TopologyState int

const (
	TopoNotConfigured TopologyState = iota
	TopoConfigured
	TopoFailed
	TopoDisposed
)

// ConfigureFunc declares exchanges, queues, and bindings against a live
// channel. It runs once per Active transition (Persistent) or once
// total (Once), retried on failure at TopologyConfig.RecoveryInterval,
// except that a broker rejection in Once mode is terminal.
type ConfigureFunc func(ctx context.Context, t *TopologyRunner) error

// TopologyConfig configures a TopologyRunner.
type TopologyConfig struct {
	Mode             TopologyMode
	RecoveryInterval time.Duration
	Configure        ConfigureFunc
	OnReady          func()
	OnError          func(err error)
	Logger           logging.Logger
}

// TopologyRunner declares and re-declares exchanges, queues, and
// bindings on a channel it owns (spec §4.6). It implements
// ChannelHandler so a ChannelSupervisor can drive it.
type TopologyRunner struct {
	identity Identity
	channel  *ChannelSupervisor
	cfg      TopologyConfig

	mu    sync.Mutex
	state TopologyState

	// ready settles once: Succeeded the first time Configure returns nil,
	// or Failed if Mode is TopologyOnce and Configure is refused by the
	// broker. Persistent mode never fails it; a transient failure there
	// just retries at RecoveryInterval forever.
	ready *workqueue.WorkItem[struct{}]
}

// NewTopologyRunner wires a TopologyRunner to a fresh ChannelSupervisor
// bound to conn. Call Start to begin configuring.
func NewTopologyRunner(conn *ConnectionSupervisor, cfg TopologyConfig, channelCfg ChannelConfig) *TopologyRunner {
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop{}
	}
	t := &TopologyRunner{identity: NewIdentity("topology"), cfg: cfg, state: TopoNotConfigured, ready: workqueue.New[struct{}]()}
	t.channel = NewChannelSupervisor(conn, t, channelCfg)
	return t
}

// Identity returns this runner's log-correlation identifier.
func (t *TopologyRunner) Identity() Identity { return t.identity }

// State returns the current {NotConfigured, Configured, Failed, Disposed}
// state.
func (t *TopologyRunner) State() TopologyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start begins opening the underlying channel and running Configure.
func (t *TopologyRunner) Start() { t.channel.Start() }

// Dispose tears down the underlying channel permanently.
func (t *TopologyRunner) Dispose() { t.channel.Dispose() }

// Wait blocks until Configure first succeeds, or, in TopologyOnce mode,
// until it terminally fails with a broker rejection. It returns nil on
// success, the broker's error on terminal failure, ErrDisposed if the
// runner is disposed first, or ctx.Err() if ctx is done first.
// Persistent mode retries forever on non-terminal errors, so for it
// Wait returns only nil, ErrDisposed or a ctx error.
func (t *TopologyRunner) Wait(ctx context.Context) error {
	_, err := t.ready.Wait(ctx)
	return err
}

// --- ChannelHandler ---

func (t *TopologyRunner) OnConnecting(ctx context.Context) { <-ctx.Done() }

func (t *TopologyRunner) OnActive(model transport.Channel, generation Generation, ctx context.Context) {
	t.runConfiguration(ctx)
	<-ctx.Done()
}

func (t *TopologyRunner) OnBasicAck(tag uint64, multiple bool)  {}
func (t *TopologyRunner) OnBasicNack(tag uint64, multiple bool) {}
func (t *TopologyRunner) OnBasicReturn(ret transport.Return)    {}

func (t *TopologyRunner) OnDisposed() {
	t.mu.Lock()
	t.state = TopoDisposed
	t.mu.Unlock()
	t.ready.Fail(errs.ErrDisposed)
}

func (t *TopologyRunner) runConfiguration(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := t.cfg.Configure(ctx, t)
		if err == nil {
			t.mu.Lock()
			t.state = TopoConfigured
			t.mu.Unlock()
			t.ready.Succeed(struct{}{})
			if t.cfg.OnReady != nil {
				t.cfg.OnReady()
			}
			if t.cfg.Mode == TopologyOnce {
				go t.Dispose()
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		t.cfg.Logger.Warn("topology configuration failed", "identity", t.identity.String(), "error", err)
		if t.cfg.OnError != nil {
			t.cfg.OnError(err)
		}
		if t.cfg.Mode == TopologyOnce && errors.Is(err, errs.ErrBrokerReject) {
			t.mu.Lock()
			t.state = TopoFailed
			t.mu.Unlock()
			t.ready.Fail(err)
			go t.Dispose()
			return
		}
		select {
		case <-time.After(t.cfg.RecoveryInterval):
		case <-ctx.Done():
			return
		}
	}
}

// --- declarative operations, each a synchronous call serialized on the
// channel's own action loop (spec §4.6) ---

func (t *TopologyRunner) ExchangeDeclare(ctx context.Context, name, kind string, durable, autoDelete bool) error {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (struct{}, error) {
		return struct{}{}, ch.ExchangeDeclare(ctx, name, kind, durable, autoDelete)
	})
	_, err := item.Wait(ctx)
	return err
}

func (t *TopologyRunner) ExchangeDeclarePassive(ctx context.Context, name string) error {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (struct{}, error) {
		return struct{}{}, ch.ExchangeDeclarePassive(ctx, name)
	})
	_, err := item.Wait(ctx)
	return err
}

func (t *TopologyRunner) ExchangeDelete(ctx context.Context, name string) error {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (struct{}, error) {
		return struct{}{}, ch.ExchangeDelete(ctx, name)
	})
	_, err := item.Wait(ctx)
	return err
}

func (t *TopologyRunner) QueueDeclare(ctx context.Context, name string, durable, exclusive, autoDelete bool, args map[string]any) (transport.QueueInfo, error) {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (transport.QueueInfo, error) {
		return ch.QueueDeclare(ctx, name, durable, exclusive, autoDelete, args)
	})
	return item.Wait(ctx)
}

func (t *TopologyRunner) QueueDeclarePassive(ctx context.Context, name string) (transport.QueueInfo, error) {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (transport.QueueInfo, error) {
		return ch.QueueDeclarePassive(ctx, name)
	})
	return item.Wait(ctx)
}

// QueueDeclareExclusive declares a private, auto-deleted queue. When
// byServer is true the broker assigns the name and the returned
// QueueInfo carries it.
func (t *TopologyRunner) QueueDeclareExclusive(ctx context.Context, name string, byServer bool, args map[string]any) (transport.QueueInfo, error) {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (transport.QueueInfo, error) {
		return ch.QueueDeclareExclusive(ctx, name, byServer, args)
	})
	return item.Wait(ctx)
}

func (t *TopologyRunner) QueueDelete(ctx context.Context, name string) error {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (struct{}, error) {
		return struct{}{}, ch.QueueDelete(ctx, name)
	})
	_, err := item.Wait(ctx)
	return err
}

func (t *TopologyRunner) QueuePurge(ctx context.Context, name string) (int, error) {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (int, error) {
		return ch.QueuePurge(ctx, name)
	})
	return item.Wait(ctx)
}

func (t *TopologyRunner) Bind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (struct{}, error) {
		return struct{}{}, ch.Bind(ctx, queue, exchange, routingKey, args)
	})
	_, err := item.Wait(ctx)
	return err
}

func (t *TopologyRunner) Unbind(ctx context.Context, queue, exchange, routingKey string, args map[string]any) error {
	item := InvokeAction(t.channel, ctx, func(ch transport.Channel) (struct{}, error) {
		return struct{}{}, ch.Unbind(ctx, queue, exchange, routingKey, args)
	})
	_, err := item.Wait(ctx)
	return err
}
