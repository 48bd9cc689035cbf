package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YouDoCom/rabbit-link/internal/errs"
)

func TestTopologyRunner_OnceModeConfiguresAndSelfDisposes(t *testing.T) {
	conn, _ := newOpenConnectionSupervisor(t)
	defer conn.Dispose()

	var ready int32
	topo := NewTopologyRunner(conn, TopologyConfig{
		Mode: TopologyOnce,
		Configure: func(ctx context.Context, t *TopologyRunner) error {
			if err := t.ExchangeDeclare(ctx, "orders", "topic", true, false); err != nil {
				return err
			}
			if _, err := t.QueueDeclare(ctx, "orders.q", true, false, false, nil); err != nil {
				return err
			}
			return t.Bind(ctx, "orders.q", "orders", "orders.*", nil)
		},
		OnReady: func() { atomic.AddInt32(&ready, 1) },
	}, ChannelConfig{RecoveryInterval: time.Millisecond})
	topo.Start()

	waitFor(t, func() bool { return atomic.LoadInt32(&ready) == 1 })
	waitFor(t, func() bool { return topo.State() == TopoDisposed })
}

func TestTopologyRunner_OnceModeFailsTerminallyOnBrokerReject(t *testing.T) {
	conn, _ := newOpenConnectionSupervisor(t)
	defer conn.Dispose()

	var attempts int32
	var onErrCalls int32
	topo := NewTopologyRunner(conn, TopologyConfig{
		Mode: TopologyOnce,
		Configure: func(ctx context.Context, t *TopologyRunner) error {
			atomic.AddInt32(&attempts, 1)
			// "missing.q" was never QueueDeclare'd, so this mirrors passively
			// declaring an exchange/queue the broker doesn't have.
			_, err := t.QueueDeclarePassive(ctx, "missing.q")
			return err
		},
		OnError:          func(err error) { atomic.AddInt32(&onErrCalls, 1) },
		RecoveryInterval: time.Millisecond,
	}, ChannelConfig{RecoveryInterval: time.Millisecond})
	topo.Start()

	err := topo.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrBrokerReject)

	waitFor(t, func() bool { return topo.State() == TopoDisposed })
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&onErrCalls))
}

func TestTopologyRunner_PersistentModeRetriesOnFailure(t *testing.T) {
	conn, _ := newOpenConnectionSupervisor(t)
	defer conn.Dispose()

	var attempts int32
	var ready int32
	topo := NewTopologyRunner(conn, TopologyConfig{
		Mode: TopologyPersistent,
		Configure: func(ctx context.Context, t *TopologyRunner) error {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return errors.New("declare failed")
			}
			return nil
		},
		OnReady:          func() { atomic.AddInt32(&ready, 1) },
		RecoveryInterval: time.Millisecond,
	}, ChannelConfig{RecoveryInterval: time.Millisecond})
	topo.Start()
	defer topo.Dispose()

	waitFor(t, func() bool { return atomic.LoadInt32(&ready) == 1 })
	assert.Equal(t, TopoConfigured, topo.State())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestTopologyRunner_PersistentModeReconfiguresOnReopen(t *testing.T) {
	conn, _ := newOpenConnectionSupervisor(t)
	defer conn.Dispose()

	var configured int32
	topo := NewTopologyRunner(conn, TopologyConfig{
		Mode: TopologyPersistent,
		Configure: func(ctx context.Context, t *TopologyRunner) error {
			atomic.AddInt32(&configured, 1)
			_, err := t.QueueDeclare(ctx, "q", true, false, false, nil)
			return err
		},
		RecoveryInterval: time.Millisecond,
	}, ChannelConfig{RecoveryInterval: time.Millisecond})
	topo.Start()
	defer topo.Dispose()

	waitFor(t, func() bool { return atomic.LoadInt32(&configured) >= 1 })
	waitFor(t, func() bool { return topo.channel.State() == ChanActive })

	topo.channel.mu.Lock()
	model := topo.channel.model
	topo.channel.mu.Unlock()
	require.NotNil(t, model)
	fc, ok := model.(*fakeChannel)
	require.True(t, ok)
	fc.closeFromPeer("boom")

	waitFor(t, func() bool { return atomic.LoadInt32(&configured) >= 2 })
}
