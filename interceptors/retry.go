package interceptors

import (
	"context"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/internal/reliability"
	"github.com/YouDoCom/rabbit-link/messaging"
)

// RetryInterceptor retries a failed handler invocation under policy
// before giving up. This is handler-local retry, unrelated to
// ConsumerCore's own Nack(requeue=true) redelivery path: a message
// that exhausts this interceptor's retries still gets nacked and
// redelivered by the broker unless the handler's caller disables that.
type RetryInterceptor struct {
	policy reliability.RetryPolicy
}

func NewRetryInterceptor(policy reliability.RetryPolicy) *RetryInterceptor {
	return &RetryInterceptor{policy: policy}
}

func (i *RetryInterceptor) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	return reliability.Retry(ctx, i.policy, func() error {
		return next.Handle(ctx, msg)
	})
}

func (i *RetryInterceptor) Name() string { return "RetryInterceptor" }
