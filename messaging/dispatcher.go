// Package messaging layers typed contracts.Message publish/subscribe on
// top of the raw internal/supervisor pipelines: a Publisher that
// serializes and routes contracts.Message values, and a Subscriber that
// deserializes deliveries and dispatches them to type-registered
// handlers.
package messaging

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/internal/logging"
)

// MessageHandler processes one decoded message.
type MessageHandler interface {
	Handle(ctx context.Context, msg contracts.Message) error
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg contracts.Message) error

func (f MessageHandlerFunc) Handle(ctx context.Context, msg contracts.Message) error {
	return f(ctx, msg)
}

// MessageDispatcher routes a decoded message to every handler
// registered for its concrete type, keyed by reflect.Type the same way
// serialization.TypeRegistry keys its own lookups.
type MessageDispatcher struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]MessageHandler
	logger   logging.Logger
}

// DispatcherOption configures a MessageDispatcher.
type DispatcherOption func(*MessageDispatcher)

func WithDispatcherLogger(logger logging.Logger) DispatcherOption {
	return func(d *MessageDispatcher) { d.logger = logger }
}

func NewMessageDispatcher(options ...DispatcherOption) *MessageDispatcher {
	d := &MessageDispatcher{
		handlers: make(map[reflect.Type][]MessageHandler),
		logger:   logging.Noop{},
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// RegisterHandler wires handler to every delivery whose decoded type
// matches sample's concrete type. sample only supplies the type; its
// field values are never read.
func (d *MessageDispatcher) RegisterHandler(sample contracts.Message, handler MessageHandler) error {
	if sample == nil {
		return fmt.Errorf("messaging: sample message cannot be nil")
	}
	if handler == nil {
		return fmt.Errorf("messaging: handler cannot be nil")
	}
	t := messageType(sample)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], handler)
	d.logger.Debug("registered message handler", "messageType", t.Name())
	return nil
}

// RegisterHandlerFunc is RegisterHandler for a bare function.
func (d *MessageDispatcher) RegisterHandlerFunc(sample contracts.Message, handler MessageHandlerFunc) error {
	return d.RegisterHandler(sample, handler)
}

// Dispatch implements MessageHandler by fanning msg out to every
// handler registered for its concrete type.
func (d *MessageDispatcher) Dispatch(ctx context.Context, msg contracts.Message) error {
	if msg == nil {
		return fmt.Errorf("messaging: message cannot be nil")
	}
	t := messageType(msg)

	d.mu.RLock()
	handlers := append([]MessageHandler{}, d.handlers[t]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return fmt.Errorf("messaging: no handler registered for message type %s", t.Name())
	}

	for _, h := range handlers {
		if err := h.Handle(ctx, msg); err != nil {
			return fmt.Errorf("messaging: handler failed for message %s: %w", msg.GetID(), err)
		}
	}
	return nil
}

func (d *MessageDispatcher) Handle(ctx context.Context, msg contracts.Message) error {
	return d.Dispatch(ctx, msg)
}

func messageType(msg contracts.Message) reflect.Type {
	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
