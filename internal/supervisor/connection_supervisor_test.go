package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YouDoCom/rabbit-link/internal/errs"
	"github.com/YouDoCom/rabbit-link/internal/transport"
)

type recordingListener struct {
	mu            sync.Mutex
	connected     int
	disconnected  int
	disposed      int
	lastInitiator transport.Initiator
}

func (l *recordingListener) OnConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected++
}

func (l *recordingListener) OnDisconnected(initiator transport.Initiator, code int, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected++
	l.lastInitiator = initiator
}

func (l *recordingListener) OnDisposed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposed++
}

func (l *recordingListener) counts() (connected, disconnected, disposed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected, l.disconnected, l.disposed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestConnectionSupervisor_InitializeReachesOpen(t *testing.T) {
	factory := &fakeFactory{}
	listener := &recordingListener{}
	s := NewConnectionSupervisor(ConnectionConfig{
		Factory:          factory,
		RecoveryInterval: time.Millisecond,
	})
	s.AddListener(listener)
	s.Initialize()
	defer s.Dispose()

	waitFor(t, func() bool { return s.State() == ConnOpen })
	connected, _, _ := listener.counts()
	assert.Equal(t, 1, connected)
}

func TestConnectionSupervisor_AutoStart(t *testing.T) {
	factory := &fakeFactory{}
	s := NewConnectionSupervisor(ConnectionConfig{
		Factory:          factory,
		RecoveryInterval: time.Millisecond,
		AutoStart:        true,
	})
	defer s.Dispose()
	waitFor(t, func() bool { return s.State() == ConnOpen })
	assert.GreaterOrEqual(t, factory.openCount(), 1)
}

func TestConnectionSupervisor_CreateModelFailsWhenNotOpen(t *testing.T) {
	factory := &fakeFactory{}
	s := NewConnectionSupervisor(ConnectionConfig{Factory: factory})
	item := s.CreateModel(context.Background())
	_, err := item.Wait(context.Background())
	assert.ErrorIs(t, err, errs.ErrNotConnected)
}

func TestConnectionSupervisor_CreateModelSucceedsWhenOpen(t *testing.T) {
	factory := &fakeFactory{}
	s := NewConnectionSupervisor(ConnectionConfig{Factory: factory, RecoveryInterval: time.Millisecond})
	s.Initialize()
	defer s.Dispose()
	waitFor(t, func() bool { return s.State() == ConnOpen })

	item := s.CreateModel(context.Background())
	ch, err := item.Wait(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ch)
}

func TestConnectionSupervisor_RetriesOnDialFailure(t *testing.T) {
	factory := &fakeFactory{}
	factory.enqueue(factoryResult{err: errors.New("refused")})
	factory.enqueue(factoryResult{err: errors.New("refused")})

	s := NewConnectionSupervisor(ConnectionConfig{Factory: factory, RecoveryInterval: time.Millisecond})
	s.Initialize()
	defer s.Dispose()

	waitFor(t, func() bool { return s.State() == ConnOpen })
	assert.GreaterOrEqual(t, factory.openCount(), 3)
}

func TestConnectionSupervisor_ReconnectsAfterPeerDrop(t *testing.T) {
	factory := &fakeFactory{}
	listener := &recordingListener{}
	s := NewConnectionSupervisor(ConnectionConfig{Factory: factory, RecoveryInterval: time.Millisecond})
	s.AddListener(listener)
	s.Initialize()
	defer s.Dispose()

	waitFor(t, func() bool { return s.State() == ConnOpen })

	s.mu.Lock()
	conn := s.conn.(*fakeConnection)
	s.mu.Unlock()
	conn.closeFromPeer("connection lost")

	waitFor(t, func() bool {
		_, disconnected, _ := listener.counts()
		return disconnected >= 1
	})
	waitFor(t, func() bool { return s.State() == ConnOpen })
	connected, disconnected, _ := listener.counts()
	assert.GreaterOrEqual(t, connected, 2)
	assert.GreaterOrEqual(t, disconnected, 1)
}

func TestConnectionSupervisor_DisposeStopsEvents(t *testing.T) {
	factory := &fakeFactory{}
	listener := &recordingListener{}
	s := NewConnectionSupervisor(ConnectionConfig{Factory: factory, RecoveryInterval: time.Millisecond})
	s.AddListener(listener)
	s.Initialize()
	waitFor(t, func() bool { return s.State() == ConnOpen })

	s.Dispose()
	connected, disconnected, disposed := listener.counts()
	assert.Equal(t, 1, disposed)

	// give any in-flight goroutine a chance to misbehave, then check
	// counts are unchanged.
	time.Sleep(20 * time.Millisecond)
	c2, d2, disposed2 := listener.counts()
	assert.Equal(t, connected, c2)
	assert.Equal(t, disconnected, d2)
	assert.Equal(t, 1, disposed2)
	assert.Equal(t, ConnDisposed, s.State())
}

func TestConnectionSupervisor_DisposeIsIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	s := NewConnectionSupervisor(ConnectionConfig{Factory: factory, RecoveryInterval: time.Millisecond})
	s.Initialize()
	waitFor(t, func() bool { return s.State() == ConnOpen })

	s.Dispose()
	assert.NotPanics(t, func() { s.Dispose() })
}
