package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

func TestRespondWithAppError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
		ids     []string
	}{
		{"not found", apperrors.NewNotFoundError("resource bed-9 not found"), http.StatusNotFound, "resource bed-9 not found", nil},
		{"conflict keeps ids", apperrors.NewConflictError("window overlaps", "r-1", "r-2"), http.StatusConflict, "window overlaps", []string{"r-1", "r-2"}},
		{"wrapped conflict", fmt.Errorf("reserve: %w", apperrors.NewConflictError("taken", "r-3")), http.StatusConflict, "taken", []string{"r-3"}},
		{"invalid window", apperrors.NewInvalidWindowError("empty"), http.StatusBadRequest, "empty", nil},
		{"transition", apperrors.NewInvalidTransitionError("reservation", "completed", "cancelled"), http.StatusUnprocessableEntity, "", nil},
		{"unauthorized", apperrors.NewUnauthorizedError("nope"), http.StatusForbidden, "nope", nil},
		{"internal hides details", apperrors.NewInternalError("db down", errors.New("dial tcp")), http.StatusInternalServerError, "internal server error", nil},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal server error", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondWithAppError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tc.message != "" {
				assert.Equal(t, tc.message, body.Error)
			}
			assert.Equal(t, tc.ids, body.ConflictingIDs)
		})
	}
}

func TestActorID_RequiresHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := actorID(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(ActorHeader, "nurse-1")
	id, ok := actorID(httptest.NewRecorder(), req)
	assert.True(t, ok)
	assert.Equal(t, "nurse-1", id)
}
