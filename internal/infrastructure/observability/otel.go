package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/medlogistics/backend"

// Metrics holds all allocation metrics
type Metrics struct {
	ReservationsCreated metric.Int64Counter
	Conflicts           metric.Int64Counter
	CASRetries          metric.Int64Counter
	Expirations         metric.Int64Counter
	Transitions         metric.Int64Counter
	EventsDropped       metric.Int64Counter
	OperationDuration   metric.Float64Histogram
	HTTPRequests        metric.Int64Counter
	HTTPDuration        metric.Float64Histogram
}

// Setup initializes OpenTelemetry tracing, metrics export and runtime metrics
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		GetLogger().Warn().Err(err).Msg("runtime metrics disabled")
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}

	return shutdown, nil
}

// InitMetrics initializes allocation metrics on the global meter provider.
// Without Setup the global provider is a no-op, which is what tests rely on.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	reservationsCreated, err := meter.Int64Counter(
		"allocation.reservations.created",
		metric.WithDescription("Number of reservations committed"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"allocation.conflicts",
		metric.WithDescription("Number of requests rejected with CONFLICT"),
	)
	if err != nil {
		return nil, err
	}

	casRetries, err := meter.Int64Counter(
		"allocation.cas.retries",
		metric.WithDescription("Number of registry compare-and-set races retried"),
	)
	if err != nil {
		return nil, err
	}

	expirations, err := meter.Int64Counter(
		"allocation.reservations.expired",
		metric.WithDescription("Number of reservations expired without check-in"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"allocation.transitions",
		metric.WithDescription("Number of committed state transitions"),
	)
	if err != nil {
		return nil, err
	}

	eventsDropped, err := meter.Int64Counter(
		"allocation.events.dropped",
		metric.WithDescription("Number of domain events that could not be delivered"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"allocation.operation.duration",
		metric.WithDescription("Engine operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	httpRequests, err := meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Number of HTTP requests served"),
	)
	if err != nil {
		return nil, err
	}

	httpDuration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ReservationsCreated: reservationsCreated,
		Conflicts:           conflicts,
		CASRetries:          casRetries,
		Expirations:         expirations,
		Transitions:         transitions,
		EventsDropped:       eventsDropped,
		OperationDuration:   operationDuration,
		HTTPRequests:        httpRequests,
		HTTPDuration:        httpDuration,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordOperation records how long an engine operation took and whether it failed
func RecordOperation(ctx context.Context, metrics *Metrics, operation string, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("allocation.operation", operation),
		attribute.Bool("allocation.failed", err != nil),
	}
	metrics.OperationDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordConflict records a request rejected with CONFLICT
func RecordConflict(ctx context.Context, metrics *Metrics, operation string) {
	if metrics == nil {
		return
	}
	metrics.Conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("allocation.operation", operation)))
}

// RecordCASRetry records a registry compare-and-set race that triggered a retry
func RecordCASRetry(ctx context.Context, metrics *Metrics, resourceKind string) {
	if metrics == nil {
		return
	}
	metrics.CASRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("resource.kind", resourceKind)))
}

// RecordReservationCreated records a committed reservation
func RecordReservationCreated(ctx context.Context, metrics *Metrics, resourceKind, status string) {
	if metrics == nil {
		return
	}
	metrics.ReservationsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource.kind", resourceKind),
		attribute.String("reservation.status", status),
	))
}

// RecordExpiration records a reservation moved to expired
func RecordExpiration(ctx context.Context, metrics *Metrics, lazy bool) {
	if metrics == nil {
		return
	}
	metrics.Expirations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("expiry.lazy", lazy)))
}

// RecordTransition records a committed state transition of an aggregate
func RecordTransition(ctx context.Context, metrics *Metrics, aggregate, status string) {
	if metrics == nil {
		return
	}
	metrics.Transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("aggregate.kind", aggregate),
		attribute.String("aggregate.status", status),
	))
}

// RecordEventDropped records a domain event that was not delivered
func RecordEventDropped(ctx context.Context, metrics *Metrics, eventType, reason string) {
	if metrics == nil {
		return
	}
	metrics.EventsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("drop.reason", reason),
	))
}

// RecordRequestMetric records an HTTP request against its route pattern
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, route string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)
	metrics.HTTPRequests.Add(ctx, 1, attrs)
	metrics.HTTPDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}
