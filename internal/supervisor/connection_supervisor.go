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

// ConnectionState is the lifecycle of a ConnectionSupervisor (spec §3).
type ConnectionState int

const (
	ConnInit ConnectionState = iota
	ConnOpening
	ConnOpen
	ConnDisposed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnInit:
		return "init"
	case ConnOpening:
		return "opening"
	case ConnOpen:
		return "open"
	case ConnDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// ConnectionListener observes a ConnectionSupervisor's lifecycle.
// OnConnected and OnDisconnected are delivered from the supervisor's own
// EventLoop; OnDisposed is called from Dispose after that loop has
// stopped. Two listener calls for the same supervisor are therefore
// never concurrent with each other.
type ConnectionListener interface {
	OnConnected()
	OnDisconnected(initiator transport.Initiator, code int, reason string)
	OnDisposed()
}

// ConnectionConfig configures a ConnectionSupervisor.
type ConnectionConfig struct {
	URL               string
	ConnectionName    string
	ConnectionTimeout time.Duration
	RecoveryInterval  time.Duration
	AutoStart         bool
	Factory           transport.ConnectionFactory
	Logger            logging.Logger
}

// ConnectionSupervisor owns the single live AMQP connection an
// application holds, driving Init→Opening→Open→Disposed and retrying
// failed or dropped connections indefinitely until Dispose (spec §4.4).
type ConnectionSupervisor struct {
	identity Identity
	cfg      ConnectionConfig
	loop     *workqueue.EventLoop

	mu         sync.Mutex
	state      ConnectionState
	conn       transport.Connection
	generation Generation
	listeners  []ConnectionListener

	disposeCtx    context.Context
	disposeCancel context.CancelFunc
	initOnce      sync.Once
}

// NewConnectionSupervisor constructs a ConnectionSupervisor in state
// Init. If cfg.AutoStart is set, Initialize is called before returning.
func NewConnectionSupervisor(cfg ConnectionConfig) *ConnectionSupervisor {
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ConnectionSupervisor{
		identity:      NewIdentity("connection"),
		cfg:           cfg,
		loop:          workqueue.NewEventLoop(),
		state:         ConnInit,
		disposeCtx:    ctx,
		disposeCancel: cancel,
	}
	if cfg.AutoStart {
		s.Initialize()
	}
	return s
}

// Identity returns the process-unique identifier used to correlate this
// supervisor's log lines.
func (s *ConnectionSupervisor) Identity() Identity { return s.identity }

// AddListener registers l to receive future lifecycle notifications.
func (s *ConnectionSupervisor) AddListener(l ConnectionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// State returns the current lifecycle state.
func (s *ConnectionSupervisor) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize starts the connect/reconnect driver. It is idempotent:
// calling it more than once has no additional effect.
func (s *ConnectionSupervisor) Initialize() {
	s.initOnce.Do(func() {
		s.mu.Lock()
		if s.state == ConnInit {
			s.state = ConnOpening
		}
		s.mu.Unlock()
		go s.drive()
	})
}

// CreateModel requests a new channel on the current connection. It
// fails immediately with errs.ErrNotConnected if the supervisor is not
// currently Open, without touching the EventLoop; otherwise the actual
// RPC is posted onto the EventLoop so it is serialized against
// concurrent connection loss.
func (s *ConnectionSupervisor) CreateModel(ctx context.Context) *workqueue.WorkItem[transport.Channel] {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != ConnOpen {
		item := workqueue.New[transport.Channel]()
		item.Fail(errs.ErrNotConnected)
		return item
	}
	return workqueue.Schedule(s.loop, ctx, func(ctx context.Context) (transport.Channel, error) {
		s.mu.Lock()
		conn := s.conn
		curState := s.state
		s.mu.Unlock()
		if curState != ConnOpen || conn == nil {
			return nil, errs.ErrNotConnected
		}
		ch, err := conn.CreateModel()
		if err != nil {
			return nil, &errs.ConnectionError{Op: "create-model", URL: s.cfg.URL, Err: err}
		}
		return ch, nil
	})
}

// Dispose closes the connection and stops the driver permanently.
// Idempotent.
func (s *ConnectionSupervisor) Dispose() {
	s.mu.Lock()
	if s.state == ConnDisposed {
		s.mu.Unlock()
		return
	}
	s.state = ConnDisposed
	conn := s.conn
	s.conn = nil
	listeners := append([]ConnectionListener{}, s.listeners...)
	s.mu.Unlock()

	s.disposeCancel()
	s.loop.Dispose(workqueue.DisposeWait)
	if conn != nil {
		_ = conn.Close()
	}
	for _, l := range listeners {
		l.OnDisposed()
	}
}

func (s *ConnectionSupervisor) drive() {
	for {
		if s.disposeCtx.Err() != nil {
			return
		}

		dialCtx := s.disposeCtx
		var dialCancel context.CancelFunc
		if s.cfg.ConnectionTimeout > 0 {
			dialCtx, dialCancel = context.WithTimeout(s.disposeCtx, s.cfg.ConnectionTimeout)
		}
		conn, err := s.cfg.Factory.Open(dialCtx, s.cfg.URL, s.cfg.ConnectionName, s.cfg.ConnectionTimeout)
		if dialCancel != nil {
			dialCancel()
		}
		if err != nil {
			if s.disposeCtx.Err() != nil {
				return
			}
			s.cfg.Logger.Warn("connection attempt failed", "identity", s.identity.String(), "error", err)
			if !s.sleepOrDisposed(s.cfg.RecoveryInterval) {
				return
			}
			continue
		}

		commit := workqueue.Schedule(s.loop, s.disposeCtx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.commitConnected(conn)
		})
		if _, err := commit.Wait(context.Background()); err != nil {
			_ = conn.Close()
			return
		}

		select {
		case ev := <-conn.NotifyShutdown():
			workqueue.Schedule(s.loop, context.Background(), func(ctx context.Context) (struct{}, error) {
				s.commitDisconnected(ev)
				return struct{}{}, nil
			})
			if ev.Initiator == transport.InitiatorApplication {
				return
			}
			s.cfg.Logger.Info("connection lost, will retry", "identity", s.identity.String(), "reason", ev.Reason)
			if !s.sleepOrDisposed(s.cfg.RecoveryInterval) {
				return
			}
		case <-s.disposeCtx.Done():
			return
		}
	}
}

func (s *ConnectionSupervisor) commitConnected(conn transport.Connection) error {
	s.mu.Lock()
	if s.state == ConnDisposed {
		s.mu.Unlock()
		return errs.ErrDisposed
	}
	old := s.conn
	s.conn = conn
	s.generation++
	s.state = ConnOpen
	listeners := append([]ConnectionListener{}, s.listeners...)
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.cfg.Logger.Info("connected", "identity", s.identity.String())
	for _, l := range listeners {
		l.OnConnected()
	}
	return nil
}

func (s *ConnectionSupervisor) commitDisconnected(ev transport.ShutdownEvent) {
	s.mu.Lock()
	if s.state == ConnDisposed {
		s.mu.Unlock()
		return
	}
	s.state = ConnOpening
	listeners := append([]ConnectionListener{}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnDisconnected(ev.Initiator, ev.Code, ev.Reason)
	}
}

func (s *ConnectionSupervisor) sleepOrDisposed(d time.Duration) bool {
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
	}
}
