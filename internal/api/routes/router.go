package routes

import (
	"net/http"

	"github.com/zatekoja/medlogistics/backend/internal/api/handlers"
	"github.com/zatekoja/medlogistics/backend/internal/api/middleware"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	healthHandler      *handlers.HealthHandler
	reservationHandler *handlers.ReservationHandler
	dispatchHandler    *handlers.DispatchHandler
	workflowHandler    *handlers.WorkflowHandler
	resourceHandler    *handlers.ResourceHandler

	// sseHandler is nil when no event bus is configured
	sseHandler *handlers.SSEHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	healthHandler *handlers.HealthHandler,
	reservationHandler *handlers.ReservationHandler,
	dispatchHandler *handlers.DispatchHandler,
	workflowHandler *handlers.WorkflowHandler,
	resourceHandler *handlers.ResourceHandler,
	sseHandler *handlers.SSEHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:                http.NewServeMux(),
		healthHandler:      healthHandler,
		reservationHandler: reservationHandler,
		dispatchHandler:    dispatchHandler,
		workflowHandler:    workflowHandler,
		resourceHandler:    resourceHandler,
		sseHandler:         sseHandler,
		allowedOrigins:     allowedOrigins,
		metrics:            metrics,
	}
}

// handle registers fn behind the observability middleware, which needs the
// matched pattern on the request
func (r *Router) handle(pattern string, fn http.HandlerFunc) {
	r.mux.Handle(pattern, middleware.ObservabilityMiddleware(r.metrics)(fn))
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Reservation endpoints
	r.handle("POST /api/reservations", r.reservationHandler.Reserve)
	r.handle("GET /api/reservations/{id}", r.reservationHandler.GetReservation)
	r.handle("POST /api/reservations/{id}/approve", r.reservationHandler.Approve)
	r.handle("POST /api/reservations/{id}/reject", r.reservationHandler.Reject)
	r.handle("POST /api/reservations/{id}/check-in", r.reservationHandler.CheckIn)
	r.handle("POST /api/reservations/{id}/complete", r.reservationHandler.Complete)
	r.handle("POST /api/reservations/{id}/cancel", r.reservationHandler.Cancel)
	r.handle("GET /api/resources/{id}/reservations", r.reservationHandler.ListResourceReservations)

	// Resource endpoints
	r.handle("GET /api/resources/{id}", r.resourceHandler.GetResource)
	r.handle("POST /api/resources/{id}/status", r.resourceHandler.SetResourceStatus)

	// Dispatch endpoints
	r.handle("POST /api/dispatches", r.dispatchHandler.CreateDispatch)
	r.handle("GET /api/dispatches/{id}", r.dispatchHandler.GetDispatch)
	r.handle("POST /api/dispatches/{id}/status", r.dispatchHandler.AdvanceDispatch)
	r.handle("POST /api/dispatches/{id}/cancel", r.dispatchHandler.CancelDispatch)
	r.handle("GET /api/ambulances/{id}/dispatch", r.dispatchHandler.GetActiveDispatch)
	r.handle("POST /api/crews/{id}/shifts", r.dispatchHandler.AssignShift)

	// Transfer and disposal endpoints
	r.handle("POST /api/transfers", r.workflowHandler.RequestTransfer)
	r.handle("POST /api/disposals", r.workflowHandler.RequestDisposal)
	r.handle("GET /api/workflows/{id}", r.workflowHandler.GetWorkflow)
	r.handle("POST /api/workflows/{id}/approve", r.workflowHandler.Approve)
	r.handle("POST /api/workflows/{id}/reject", r.workflowHandler.Reject)
	r.handle("POST /api/workflows/{id}/in-transit", r.workflowHandler.MarkInTransit)
	r.handle("POST /api/workflows/{id}/complete", r.workflowHandler.Complete)
	r.handle("POST /api/workflows/{id}/verify", r.workflowHandler.Verify)

	if r.sseHandler != nil {
		r.handle("GET /api/stream/events", r.sseHandler.StreamEvents)
		r.handle("GET /api/stream/resources/{id}", r.sseHandler.StreamResourceEvents)
	}

	// CORS is outermost so preflight requests never reach the mux
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
