// Package reliability supplements the supervisor stack with
// observability and retry helpers that never sit in the mandatory
// reconnect path: a circuit breaker that only reports health, pluggable
// retry policies for interceptor-level use, and a dead-letter topology
// convenience.
package reliability

import (
	"fmt"
	"sync"
	"time"

	"github.com/YouDoCom/rabbit-link/internal/transport"
)

// State is a circuit breaker's current disposition.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeListener receives circuit breaker transition notifications.
type StateChangeListener interface {
	OnStateChange(from, to State, reason string)
}

// CircuitBreaker tracks outcomes of an operation and reports a
// closed/open/half-open disposition. Unlike a conventional breaker it
// never gates execution of the operation it watches: ConnectionGate
// (this file) feeds it connect attempts purely for observation, since
// the connection supervisor's own reconnect loop is spec-mandated to
// retry forever regardless of the breaker's state.
type CircuitBreaker struct {
	mu              sync.RWMutex
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	name             string

	listeners []StateChangeListener
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.failureThreshold = threshold }
}

func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.successThreshold = threshold }
}

func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.timeout = timeout }
}

func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.name = name }
}

// NewCircuitBreaker builds a breaker starting in StateClosed.
func NewCircuitBreaker(options ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		timeout:          30 * time.Second,
		name:             "default",
	}
	for _, opt := range options {
		opt(cb)
	}
	return cb
}

// RecordSuccess records a successful outcome and may transition the
// breaker toward StateClosed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalRequests++
	cb.totalSuccesses++
	cb.successes++
	old := cb.state

	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.successThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.notifyStateChange(old, cb.state, fmt.Sprintf("success threshold reached (%d/%d)", cb.successes, cb.successThreshold))
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed outcome and may transition the
// breaker toward StateOpen. The transition is purely informational;
// callers are never blocked from retrying.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalRequests++
	cb.totalFailures++
	cb.failures++
	cb.lastFailureTime = time.Now()
	old := cb.state

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.notifyStateChange(old, cb.state, fmt.Sprintf("failure threshold reached (%d/%d)", cb.failures, cb.failureThreshold))
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.successes = 0
		cb.notifyStateChange(old, cb.state, "failure in half-open state")
	}
}

// tick reevaluates whether an Open breaker's timeout has elapsed,
// moving it to HalfOpen so the next recorded outcome can decide
// whether it recovers or reopens.
func (cb *CircuitBreaker) tick() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return
	}
	if time.Now().After(cb.lastFailureTime.Add(cb.timeout)) {
		old := cb.state
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.notifyStateChange(old, cb.state, "timeout expired")
	}
}

// GetState returns the current disposition, first checking whether an
// Open breaker's timeout has elapsed.
func (cb *CircuitBreaker) GetState() State {
	cb.tick()
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) AddListener(listener StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

func (cb *CircuitBreaker) notifyStateChange(from, to State, reason string) {
	listeners := append([]StateChangeListener{}, cb.listeners...)
	for _, l := range listeners {
		go l.OnStateChange(from, to, reason)
	}
}

// Metrics is a point-in-time snapshot of a CircuitBreaker.
type Metrics struct {
	Name             string
	State            State
	TotalRequests    int64
	TotalFailures    int64
	TotalSuccesses   int64
	CurrentFailures  int
	CurrentSuccesses int
	LastFailureTime  time.Time
}

func (cb *CircuitBreaker) GetMetrics() Metrics {
	state := cb.GetState()
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Metrics{
		Name:             cb.name,
		State:            state,
		TotalRequests:    cb.totalRequests,
		TotalFailures:    cb.totalFailures,
		TotalSuccesses:   cb.totalSuccesses,
		CurrentFailures:  cb.failures,
		CurrentSuccesses: cb.successes,
		LastFailureTime:  cb.lastFailureTime,
	}
}

// ConnectionGate adapts a CircuitBreaker to supervisor.ConnectionListener
// so a connection's connect/disconnect outcomes feed the breaker without
// the breaker ever having a say in whether the supervisor keeps trying.
// Wire it with (*ConnectionSupervisor).AddListener; read GetState/GetMetrics
// from a health endpoint.
type ConnectionGate struct {
	breaker *CircuitBreaker
}

// NewConnectionGate wraps breaker as a read-only connection observer.
func NewConnectionGate(breaker *CircuitBreaker) *ConnectionGate {
	return &ConnectionGate{breaker: breaker}
}

func (g *ConnectionGate) Breaker() *CircuitBreaker { return g.breaker }

func (g *ConnectionGate) OnConnected() { g.breaker.RecordSuccess() }

func (g *ConnectionGate) OnDisconnected(initiator transport.Initiator, code int, reason string) {
	g.breaker.RecordFailure()
}

// OnDisposed is a no-op: a deliberate Dispose is not a failure the
// breaker should count against the connection's health.
func (g *ConnectionGate) OnDisposed() {}
