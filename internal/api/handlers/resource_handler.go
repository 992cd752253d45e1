package handlers

import (
	"net/http"

	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// ResourceHandler exposes the resource registry
type ResourceHandler struct {
	service *services.ResourceService
}

// NewResourceHandler creates a new resource handler
func NewResourceHandler(service *services.ResourceService) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// GetResource handles GET /api/resources/{id}
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	resource, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resource)
}

type resourceStatusBody struct {
	Status entities.ResourceStatus `json:"status"`
	// ExpectedStatus guards against a concurrent change; empty skips the check
	ExpectedStatus entities.ResourceStatus `json:"expected_status,omitempty"`
}

// SetResourceStatus handles POST /api/resources/{id}/status
func (h *ResourceHandler) SetResourceStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var body resourceStatusBody
	if err := decodeJSON(r, &body); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	resource, err := h.service.SetStatus(r.Context(), r.PathValue("id"), body.Status, body.ExpectedStatus, actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resource)
}
