package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// WorkflowHandler handles transfer and disposal requests
type WorkflowHandler struct {
	engine *services.WorkflowEngine
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(engine *services.WorkflowEngine) *WorkflowHandler {
	return &WorkflowHandler{engine: engine}
}

type transferBody struct {
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
	entities.TransferDetails
}

type disposalBody struct {
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
	entities.DisposalDetails
}

// RequestTransfer handles POST /api/transfers
func (h *WorkflowHandler) RequestTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var body transferBody
	if err := decodeJSON(r, &body); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	request, err := h.engine.RequestTransfer(r.Context(), body.SubjectID, actor, body.Reason, body.TransferDetails)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, request)
}

// RequestDisposal handles POST /api/disposals
func (h *WorkflowHandler) RequestDisposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var body disposalBody
	if err := decodeJSON(r, &body); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	request, err := h.engine.RequestDisposal(r.Context(), body.SubjectID, actor, body.Reason, body.DisposalDetails)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, request)
}

// GetWorkflow handles GET /api/workflows/{id}
func (h *WorkflowHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	request, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, request)
}

// Approve handles POST /api/workflows/{id}/approve
func (h *WorkflowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.Approve)
}

// MarkInTransit handles POST /api/workflows/{id}/in-transit
func (h *WorkflowHandler) MarkInTransit(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.MarkInTransit)
}

// Complete handles POST /api/workflows/{id}/complete
func (h *WorkflowHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.Complete)
}

// Verify handles POST /api/workflows/{id}/verify
func (h *WorkflowHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.engine.Verify)
}

// Reject handles POST /api/workflows/{id}/reject
func (h *WorkflowHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	reason, err := optionalReason(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	request, err := h.engine.Reject(r.Context(), r.PathValue("id"), actor, reason)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, request)
}

func (h *WorkflowHandler) act(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID string) (*entities.WorkflowRequest, error)) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	request, err := fn(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, request)
}
