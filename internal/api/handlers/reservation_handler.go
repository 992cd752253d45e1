package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// ReservationHandler handles reservation-related HTTP requests
type ReservationHandler struct {
	engine *services.ReservationEngine
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(engine *services.ReservationEngine) *ReservationHandler {
	return &ReservationHandler{engine: engine}
}

type reserveBody struct {
	ResourceID string              `json:"resource_id"`
	From       time.Time           `json:"from"`
	Until      time.Time           `json:"until"`
	Holder     entities.Notifiable `json:"holder"`
	Reason     string              `json:"reason"`
	Backdated  bool                `json:"backdated"`
}

// Reserve handles POST /api/reservations
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var body reserveBody
	if err := decodeJSON(r, &body); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	reservation, err := h.engine.Reserve(r.Context(), services.ReserveRequest{
		ResourceID:  body.ResourceID,
		Window:      entities.NewTimeWindow(body.From, body.Until),
		Holder:      body.Holder,
		RequesterID: actor,
		Reason:      body.Reason,
		Backdated:   body.Backdated,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, reservation)
}

// GetReservation handles GET /api/reservations/{id}
func (h *ReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservation, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reservation)
}

// ListResourceReservations handles GET /api/resources/{id}/reservations
func (h *ReservationHandler) ListResourceReservations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseReservationFilter(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	reservations, err := h.engine.ListByResource(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"reservations": reservations,
		"count":        len(reservations),
	})
}

func parseReservationFilter(r *http.Request) (repositories.ReservationFilter, error) {
	query := r.URL.Query()
	filter := repositories.ReservationFilter{
		Status: entities.ReservationStatus(query.Get("status")),
		Limit:  50,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, apperrors.NewValidationError("unknown reservation status " + string(filter.Status))
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.NewValidationError(name + " must be an RFC 3339 timestamp")
		}
		*dst = &t
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, apperrors.NewValidationError(name + " must be a non-negative integer")
		}
		*dst = n
	}
	return filter, nil
}

// Approve handles POST /api/reservations/{id}/approve
func (h *ReservationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.Approve)
}

// CheckIn handles POST /api/reservations/{id}/check-in
func (h *ReservationHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.CheckIn)
}

// Complete handles POST /api/reservations/{id}/complete
func (h *ReservationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.Complete)
}

// Cancel handles POST /api/reservations/{id}/cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.Cancel)
}

// Reject handles POST /api/reservations/{id}/reject
func (h *ReservationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	reason, err := optionalReason(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	reservation, err := h.engine.Reject(r.Context(), r.PathValue("id"), actor, reason)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reservation)
}

func (h *ReservationHandler) act(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID string) (*entities.Reservation, error)) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	reservation, err := fn(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reservation)
}
