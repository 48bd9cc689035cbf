// Package interceptors implements a chain-of-responsibility around
// messaging.MessageHandler: cross-cutting behavior (logging, timeout,
// circuit breaking, retry) wraps a user's handler without the handler
// itself knowing about any of it.
package interceptors

import (
	"context"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/messaging"
)

// Interceptor processes a message and decides whether/how to call next.
type Interceptor interface {
	Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error
	Name() string
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc struct {
	name string
	fn   func(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error
}

func NewInterceptorFunc(name string, fn func(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

func (i *InterceptorFunc) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	return i.fn(ctx, msg, next)
}

func (i *InterceptorFunc) Name() string { return i.name }

// Chain builds one messaging.MessageHandler out of an ordered list of
// interceptors wrapping a final handler: the first interceptor added
// runs outermost.
type Chain struct {
	interceptors []Interceptor
}

func NewChain(interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors}
}

func (c *Chain) Add(interceptor Interceptor) *Chain {
	c.interceptors = append(c.interceptors, interceptor)
	return c
}

// Then wraps final with every interceptor in the chain, outermost first.
func (c *Chain) Then(final messaging.MessageHandler) messaging.MessageHandler {
	handler := final
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		next := handler
		handler = messaging.MessageHandlerFunc(func(ctx context.Context, msg contracts.Message) error {
			return interceptor.Intercept(ctx, msg, next)
		})
	}
	return handler
}
