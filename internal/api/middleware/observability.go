package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

// ObservabilityMiddleware traces a routed handler and records its request
// metrics. It must wrap the handler registered on the mux, not the mux itself,
// so the matched pattern is known and metric cardinality stays bounded.
func ObservabilityMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}

			ctx, span := observability.StartSpan(r.Context(), route)
			defer span.End()
			observability.SetSpanAttributes(span,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.request_id", w.Header().Get(RequestIDHeader)),
				attribute.String("allocation.actor_id", r.Header.Get("X-Actor-ID")),
			)
			if id := r.PathValue("id"); id != "" {
				observability.SetSpanAttributes(span, attribute.String("allocation.target_id", id))
			}

			rec := newStatusRecorder(w)
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))

			observability.RecordRequestMetric(ctx, metrics, r.Method, route, rec.status, time.Since(start))
			observability.SetSpanAttributes(span, attribute.Int("http.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}
