package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

// RequestIDHeader is echoed back so clients can correlate log lines
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware attaches a request-scoped logger to the context and logs
// each request once it completes
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		logger := observability.GetLogger().With().
			Str("request_id", requestID).
			Str("actor_id", r.Header.Get("X-Actor-ID")).
			Logger()
		ctx := observability.WithLogger(r.Context(), logger)

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		event := logger.Info()
		switch {
		case rec.status >= http.StatusInternalServerError:
			event = logger.Error()
		case rec.status >= http.StatusBadRequest:
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
