package observability

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// InitLogger configures the global zerolog logger. Development gets a console
// writer; every other environment emits JSON with caller info. An empty or
// unknown level means info.
func InitLogger(serviceName, env, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var base zerolog.Logger
	if env == "development" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		base = zerolog.New(os.Stdout).With().Caller().Logger()
	}
	log.Logger = base.With().
		Timestamp().
		Str("service", serviceName).
		Str("env", env).
		Logger()
}

// WithLogger stores a request-scoped logger in ctx
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// LoggerFromContext returns the request-scoped logger, or the global one, with
// trace context
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := log.With().Logger()
	if scoped := zerolog.Ctx(ctx); scoped.GetLevel() != zerolog.Disabled {
		logger = scoped.With().Logger()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		logger = logger.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}

	return &logger
}

// ComponentLogger returns a trace-aware logger tagged with the engine or adapter name
func ComponentLogger(ctx context.Context, component string) *zerolog.Logger {
	logger := LoggerFromContext(ctx).With().Str("component", component).Logger()
	return &logger
}

// GetLogger returns the global logger
func GetLogger() *zerolog.Logger {
	return &log.Logger
}
