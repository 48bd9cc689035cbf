package interceptors

import (
	"context"
	"fmt"
	"time"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/messaging"
)

// TimeoutInterceptor fails a handler invocation that doesn't complete
// within timeout, leaving next running in its own goroutine (it may
// still be writing to shared state after the timeout fires — callers
// whose handlers aren't safe to abandon should not use this).
type TimeoutInterceptor struct {
	timeout time.Duration
}

func NewTimeoutInterceptor(timeout time.Duration) *TimeoutInterceptor {
	return &TimeoutInterceptor{timeout: timeout}
}

func (i *TimeoutInterceptor) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- next.Handle(timeoutCtx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		return fmt.Errorf("interceptors: message %s exceeded %v timeout", msg.GetID(), i.timeout)
	}
}

func (i *TimeoutInterceptor) Name() string { return "TimeoutInterceptor" }
