package handlers

import (
	"net/http"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// DispatchHandler handles ambulance dispatch and crew scheduling requests
type DispatchHandler struct {
	engine *services.DispatchEngine
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(engine *services.DispatchEngine) *DispatchHandler {
	return &DispatchHandler{engine: engine}
}

type dispatchBody struct {
	AmbulanceID string                    `json:"ambulance_id"`
	CrewIDs     []string                  `json:"crew_ids"`
	Patient     *entities.Notifiable      `json:"patient,omitempty"`
	Pickup      entities.Location         `json:"pickup"`
	Destination entities.Location         `json:"destination"`
	Priority    entities.DispatchPriority `json:"priority,omitempty"`
	// ExpectedMinutes overrides the default two hour crew window
	ExpectedMinutes int `json:"expected_minutes,omitempty"`
}

// CreateDispatch handles POST /api/dispatches
func (h *DispatchHandler) CreateDispatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var body dispatchBody
	if err := decodeJSON(r, &body); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if body.ExpectedMinutes < 0 {
		respondWithAppError(w, r, apperrors.NewValidationError("expected_minutes must not be negative"))
		return
	}

	dispatch, err := h.engine.Dispatch(r.Context(), services.DispatchRequest{
		AmbulanceID:      body.AmbulanceID,
		CrewIDs:          body.CrewIDs,
		DispatcherID:     actor,
		Patient:          body.Patient,
		Pickup:           body.Pickup,
		Destination:      body.Destination,
		Priority:         body.Priority,
		ExpectedDuration: time.Duration(body.ExpectedMinutes) * time.Minute,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, dispatch)
}

// GetDispatch handles GET /api/dispatches/{id}
func (h *DispatchHandler) GetDispatch(w http.ResponseWriter, r *http.Request) {
	dispatch, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dispatch)
}

// GetActiveDispatch handles GET /api/ambulances/{id}/dispatch
func (h *DispatchHandler) GetActiveDispatch(w http.ResponseWriter, r *http.Request) {
	dispatch, err := h.engine.ActiveForAmbulance(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dispatch)
}

type advanceBody struct {
	Status entities.DispatchStatus `json:"status"`
}

// AdvanceDispatch handles POST /api/dispatches/{id}/status
func (h *DispatchHandler) AdvanceDispatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var body advanceBody
	if err := decodeJSON(r, &body); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	dispatch, err := h.engine.Advance(r.Context(), r.PathValue("id"), body.Status, actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dispatch)
}

// CancelDispatch handles POST /api/dispatches/{id}/cancel
func (h *DispatchHandler) CancelDispatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	reason, err := optionalReason(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	dispatch, err := h.engine.Cancel(r.Context(), r.PathValue("id"), actor, reason)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dispatch)
}

type shiftBody struct {
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}

// AssignShift handles POST /api/crews/{id}/shifts
func (h *DispatchHandler) AssignShift(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorID(w, r); !ok {
		return
	}
	var body shiftBody
	if err := decodeJSON(r, &body); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	assignment, err := h.engine.AssignShift(r.Context(), r.PathValue("id"), entities.NewTimeWindow(body.From, body.Until))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, assignment)
}
