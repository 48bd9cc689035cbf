package rabbitlink

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/YouDoCom/rabbit-link/internal/logging"
)

// Logger is the structured logging collaborator every supervisor in
// this module logs through. It is an alias for internal/logging.Logger
// so callers can implement their own without importing an internal
// package.
type Logger = logging.Logger

// NoopLogger discards everything. Use it when no logging is wanted.
func NoopLogger() Logger { return logging.Noop{} }

// LoggerConfig controls the default zerolog-backed Logger.
type LoggerConfig struct {
	// Verbose selects zerolog's pretty console writer over compact JSON.
	Verbose bool
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string
	// Out defaults to os.Stdout.
	Out io.Writer
}

// NewLoggerFactory returns a LoggerFactory whose Loggers are backed by
// a single zerolog.Logger, each scoped with a "component" field.
func NewLoggerFactory(cfg LoggerConfig) LoggerFactory {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = cfg.Out
	if cfg.Verbose {
		w = zerolog.ConsoleWriter{Out: cfg.Out, TimeFormat: time.RFC3339Nano}
	}

	base := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()

	return func(component string) Logger {
		return &zerologLogger{logger: base.With().Str("component", component).Logger()}
	}
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// zerologLogger adapts zerolog.Logger to logging.Logger, spreading the
// kv varargs across zerolog's fluent Interface() calls.
type zerologLogger struct {
	logger zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, kv ...any) { withFields(l.logger.Debug(), kv).Msg(msg) }
func (l *zerologLogger) Info(msg string, kv ...any)  { withFields(l.logger.Info(), kv).Msg(msg) }
func (l *zerologLogger) Warn(msg string, kv ...any)  { withFields(l.logger.Warn(), kv).Msg(msg) }
func (l *zerologLogger) Error(msg string, kv ...any) { withFields(l.logger.Error(), kv).Msg(msg) }

func (l *zerologLogger) With(kv ...any) Logger {
	ctx := l.logger.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &zerologLogger{logger: ctx.Logger()}
}

func withFields(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
