package interceptors

import (
	"context"
	"time"

	"github.com/YouDoCom/rabbit-link/contracts"
	"github.com/YouDoCom/rabbit-link/internal/logging"
	"github.com/YouDoCom/rabbit-link/messaging"
)

// LoggingInterceptor logs entry, exit, and duration of every handler
// invocation it wraps.
type LoggingInterceptor struct {
	logger logging.Logger
}

func NewLoggingInterceptor(logger logging.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = logging.Noop{}
	}
	return &LoggingInterceptor{logger: logger}
}

func (i *LoggingInterceptor) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	start := time.Now()
	i.logger.Debug("processing message", "messageId", msg.GetID(), "messageType", msg.GetType(), "correlationId", msg.GetCorrelationID())

	err := next.Handle(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		i.logger.Error("message processing failed", "messageId", msg.GetID(), "messageType", msg.GetType(), "duration", duration, "error", err)
	} else {
		i.logger.Debug("message processed", "messageId", msg.GetID(), "messageType", msg.GetType(), "duration", duration)
	}
	return err
}

func (i *LoggingInterceptor) Name() string { return "LoggingInterceptor" }
