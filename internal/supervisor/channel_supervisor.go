package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/YouDoCom/rabbit-link/internal/errs"
	"github.com/YouDoCom/rabbit-link/internal/logging"
	"github.com/YouDoCom/rabbit-link/internal/transport"
	"github.com/YouDoCom/rabbit-link/internal/workqueue"
)

// ChannelState is the lifecycle of a ChannelSupervisor (spec §3).
type ChannelState int

const (
	ChanInit ChannelState = iota
	ChanOpen
	ChanReopen
	ChanActive
	ChanStop
	ChanDisposed
)

func (s ChannelState) String() string {
	switch s {
	case ChanInit:
		return "init"
	case ChanOpen:
		return "open"
	case ChanReopen:
		return "reopen"
	case ChanActive:
		return "active"
	case ChanStop:
		return "stop"
	case ChanDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// ChannelHandler is the capability interface a channel's owner
// (TopologyRunner, ProducerCore, ConsumerCore) implements. The channel
// supervisor owns the transition machinery and the model; the handler
// owns what to do with a live model (spec §9 "cyclic ownership").
type ChannelHandler interface {
	// OnConnecting is invoked concurrently with model creation and is
	// canceled the moment the attempt resolves, one way or the other.
	OnConnecting(ctx context.Context)
	// OnActive is invoked once a fresh model is live. ctx (the
	// "active-cts") is canceled when the channel is leaving Active,
	// for any reason.
	OnActive(model transport.Channel, generation Generation, ctx context.Context)
	OnBasicAck(tag uint64, multiple bool)
	OnBasicNack(tag uint64, multiple bool)
	OnBasicReturn(ret transport.Return)
	OnDisposed()
}

// ChannelConfig configures a ChannelSupervisor.
type ChannelConfig struct {
	RecoveryInterval time.Duration
	Logger           logging.Logger
}

type connEvent struct {
	kind      connEventKind
	initiator transport.Initiator
	reason    string
}

type connEventKind int

const (
	connEventConnected connEventKind = iota
	connEventDisconnected
	connEventDisposed
)

// ChannelSupervisor owns one AMQP channel bound to a connection,
// running Init/Open→Reopen→Active→Stop indefinitely until disposed
// (spec §4.5).
type ChannelSupervisor struct {
	identity Identity
	conn     *ConnectionSupervisor
	cfg      ChannelConfig
	handler  ChannelHandler
	loop     *workqueue.EventLoop

	mu         sync.Mutex
	state      ChannelState
	generation Generation
	model      transport.Channel
	disposing  bool

	connEvents    chan connEvent
	disposeCtx    context.Context
	disposeCancel context.CancelFunc
	startOnce     sync.Once
}

// NewChannelSupervisor constructs a ChannelSupervisor bound to conn.
// Call Start to begin opening it.
func NewChannelSupervisor(conn *ConnectionSupervisor, handler ChannelHandler, cfg ChannelConfig) *ChannelSupervisor {
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ChannelSupervisor{
		identity:      NewIdentity("channel"),
		conn:          conn,
		cfg:           cfg,
		handler:       handler,
		loop:          workqueue.NewEventLoop(),
		state:         ChanInit,
		connEvents:    make(chan connEvent, 16),
		disposeCtx:    ctx,
		disposeCancel: cancel,
	}
	conn.AddListener((*channelConnListener)(s))
	return s
}

// channelConnListener adapts *ChannelSupervisor to ConnectionListener
// without exposing OnConnected/OnDisconnected/OnDisposed on the public
// type (they are driver-internal plumbing, not handler-facing API).
type channelConnListener ChannelSupervisor

func (l *channelConnListener) OnConnected() {
	(*ChannelSupervisor)(l).pushConnEvent(connEvent{kind: connEventConnected})
}

func (l *channelConnListener) OnDisconnected(initiator transport.Initiator, code int, reason string) {
	(*ChannelSupervisor)(l).pushConnEvent(connEvent{kind: connEventDisconnected, initiator: initiator, reason: reason})
}

func (l *channelConnListener) OnDisposed() {
	(*ChannelSupervisor)(l).pushConnEvent(connEvent{kind: connEventDisposed})
}

func (s *ChannelSupervisor) pushConnEvent(ev connEvent) {
	select {
	case s.connEvents <- ev:
	case <-s.disposeCtx.Done():
	}
}

// Identity returns this supervisor's log-correlation identifier.
func (s *ChannelSupervisor) Identity() Identity { return s.identity }

// State returns the current lifecycle state.
func (s *ChannelSupervisor) State() ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the generation of the currently active model, or
// the generation of the last active model if none is live right now.
func (s *ChannelSupervisor) Generation() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Start begins the open/reopen loop. Idempotent.
func (s *ChannelSupervisor) Start() {
	s.startOnce.Do(func() { go s.run() })
}

// Dispose tears the channel down permanently. Idempotent.
func (s *ChannelSupervisor) Dispose() {
	s.mu.Lock()
	if s.disposing || s.state == ChanDisposed {
		s.mu.Unlock()
		return
	}
	s.disposing = true
	s.mu.Unlock()

	s.disposeCancel()
	s.loop.Dispose(workqueue.DisposeWait)
}

// InvokeAction posts a synchronous model action to run on this
// channel's serial action loop. It fails immediately with
// errs.ErrNotConnected if the channel is not currently Active.
func InvokeAction[R any](s *ChannelSupervisor, ctx context.Context, action func(ch transport.Channel) (R, error)) *workqueue.WorkItem[R] {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != ChanActive {
		item := workqueue.New[R]()
		item.Fail(errs.ErrNotConnected)
		return item
	}
	return workqueue.Schedule(s.loop, ctx, func(ctx context.Context) (R, error) {
		s.mu.Lock()
		model := s.model
		curState := s.state
		s.mu.Unlock()
		var zero R
		if curState != ChanActive || model == nil {
			return zero, errs.ErrNotConnected
		}
		return action(model)
	})
}

func (s *ChannelSupervisor) run() {
	attempt := ChanOpen
	for {
		if s.isDisposing() {
			s.finishDisposed()
			return
		}

		if !s.waitForConnected() {
			s.finishDisposed()
			return
		}

		if attempt == ChanReopen {
			if !s.sleepOrDisposed(s.cfg.RecoveryInterval) {
				s.finishDisposed()
				return
			}
		}

		s.setState(attempt)
		model, generation, ok := s.openModel()
		if !ok {
			if s.isDisposing() {
				s.finishDisposed()
				return
			}
			attempt = ChanReopen
			continue
		}

		s.runActive(model, generation)

		if s.isDisposing() {
			s.finishDisposed()
			return
		}
		attempt = ChanReopen
	}
}

func (s *ChannelSupervisor) openModel() (transport.Channel, Generation, bool) {
	connectingCtx, cancelConnecting := context.WithCancel(s.disposeCtx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.handler.OnConnecting(connectingCtx)
	}()

	item := s.conn.CreateModel(s.disposeCtx)
	model, err := item.Wait(s.disposeCtx)
	cancelConnecting()
	wg.Wait()

	if err != nil {
		s.cfg.Logger.Warn("channel open failed", "identity", s.identity.String(), "error", err)
		s.setState(ChanStop)
		return nil, 0, false
	}

	s.mu.Lock()
	s.model = model
	s.generation++
	generation := s.generation
	s.mu.Unlock()
	return model, generation, true
}

func (s *ChannelSupervisor) runActive(model transport.Channel, generation Generation) {
	activeCtx, activeCancel := context.WithCancel(s.disposeCtx)
	defer activeCancel()

	s.forwardCallbacks(activeCtx, model)

	s.setState(ChanActive)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.handler.OnActive(model, generation, activeCtx)
	}()

	select {
	case ev := <-model.NotifyShutdown():
		s.cfg.Logger.Info("model shutdown", "identity", s.identity.String(), "reason", ev.Reason)
	case ev := <-s.connEvents:
		if ev.kind == connEventDisposed {
			s.mu.Lock()
			s.disposing = true
			s.mu.Unlock()
		}
	case <-s.disposeCtx.Done():
	}

	activeCancel()
	wg.Wait()

	s.setState(ChanStop)
	_ = model.Close()
	s.mu.Lock()
	s.model = nil
	s.mu.Unlock()
}

func (s *ChannelSupervisor) forwardCallbacks(ctx context.Context, model transport.Channel) {
	go func() {
		for {
			select {
			case c := <-model.NotifyPublishAck():
				s.handler.OnBasicAck(c.DeliveryTag, c.Multiple)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case c := <-model.NotifyPublishNack():
				s.handler.OnBasicNack(c.DeliveryTag, c.Multiple)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case r := <-model.NotifyReturn():
				s.handler.OnBasicReturn(r)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *ChannelSupervisor) setState(state ChannelState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// waitForConnected blocks until the underlying connection is Open,
// returning false if the channel should give up (disposed instead).
// This avoids busy-looping CreateModel calls while the connection
// itself is down; the connection's own supervisor is what retries.
func (s *ChannelSupervisor) waitForConnected() bool {
	if s.conn.State() == ConnOpen {
		return true
	}
	for {
		select {
		case ev := <-s.connEvents:
			switch ev.kind {
			case connEventDisposed:
				s.mu.Lock()
				s.disposing = true
				s.mu.Unlock()
				return false
			case connEventConnected:
				return true
			}
		case <-s.disposeCtx.Done():
			return false
		}
	}
}

func (s *ChannelSupervisor) isDisposing() bool {
	if s.disposeCtx.Err() != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposing
}

func (s *ChannelSupervisor) finishDisposed() {
	s.setState(ChanDisposed)
	s.handler.OnDisposed()
}

func (s *ChannelSupervisor) sleepOrDisposed(d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.disposeCtx.Done():
		return false
	case ev := <-s.connEvents:
		if ev.kind == connEventDisposed {
			s.mu.Lock()
			s.disposing = true
			s.mu.Unlock()
			return false
		}
		return s.sleepOrDisposed(d)
	}
}
