package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// ActorHeader carries the id of the user performing the request
const ActorHeader = "X-Actor-ID"

// errorResponse is the body of every non-2xx reply
type errorResponse struct {
	Error          string   `json:"error"`
	Type           string   `json:"type,omitempty"`
	ConflictingIDs []string `json:"conflicting_ids,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.GetLogger().Warn().Err(err).Msg("failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: message})
}

// statusFor maps an application error type onto an HTTP status
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeInvalidWindow:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeInvalidTransition:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusForbidden
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondWithAppError writes err using its AppError type. Internal details
// are logged, never returned.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		observability.ComponentLogger(r.Context(), "http").Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := statusFor(appErr.Type)
	if status >= http.StatusInternalServerError {
		observability.ComponentLogger(r.Context(), "http").Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithJSON(w, status, errorResponse{Error: "internal server error", Type: string(appErr.Type)})
		return
	}
	respondWithJSON(w, status, errorResponse{
		Error:          appErr.Message,
		Type:           string(appErr.Type),
		ConflictingIDs: appErr.ConflictingIDs,
	})
}

// decodeJSON reads a request body into dst, rejecting unknown fields
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

// actorID returns the acting user, or writes 401 and returns false
func actorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(ActorHeader)
	if id == "" {
		respondWithError(w, http.StatusUnauthorized, ActorHeader+" header is required")
		return "", false
	}
	return id, true
}

// reasonBody is shared by the reject and cancel endpoints
type reasonBody struct {
	Reason string `json:"reason"`
}

// optionalReason decodes a reasonBody when the request has one
func optionalReason(r *http.Request) (string, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return "", nil
	}
	var body reasonBody
	if err := decodeJSON(r, &body); err != nil {
		return "", err
	}
	return body.Reason, nil
}
