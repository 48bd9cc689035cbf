package interceptors

import (
	"context"
	"fmt"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/internal/reliability"
	"github.com/YouDoCom/rabbit-link/messaging"
)

// CircuitBreakerInterceptor gates handler invocations behind a
// reliability.CircuitBreaker. Unlike reliability.ConnectionGate (which
// only observes connection outcomes and never blocks a reconnect
// attempt), this interceptor actively refuses to call next while the
// breaker is open — a handler failure mode is expected to be
// legitimately skippable, unlike the mandatory reconnect loop.
type CircuitBreakerInterceptor struct {
	breaker *reliability.CircuitBreaker
}

func NewCircuitBreakerInterceptor(breaker *reliability.CircuitBreaker) *CircuitBreakerInterceptor {
	return &CircuitBreakerInterceptor{breaker: breaker}
}

func (i *CircuitBreakerInterceptor) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	if i.breaker.GetState() == reliability.StateOpen {
		return fmt.Errorf("interceptors: circuit open, refusing message %s", msg.GetID())
	}

	err := next.Handle(ctx, msg)
	if err != nil {
		i.breaker.RecordFailure()
	} else {
		i.breaker.RecordSuccess()
	}
	return err
}

func (i *CircuitBreakerInterceptor) Name() string { return "CircuitBreakerInterceptor" }
