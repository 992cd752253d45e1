package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

func TestAppError_Error(t *testing.T) {
	err := apperrors.NewConflictError("bed already reserved", "res-1", "res-2")
	assert.Equal(t, "CONFLICT: bed already reserved [conflicts: res-1, res-2]", err.Error())

	wrapped := apperrors.NewInternalError("failed to query", fmt.Errorf("boom"))
	assert.Equal(t, "INTERNAL: failed to query: boom", wrapped.Error())
}

func TestIsType(t *testing.T) {
	base := apperrors.NewNotFoundError("reservation missing")
	wrapped := fmt.Errorf("loading: %w", base)

	assert.True(t, apperrors.IsType(wrapped, apperrors.ErrorTypeNotFound))
	assert.False(t, apperrors.IsType(wrapped, apperrors.ErrorTypeConflict))
	assert.False(t, apperrors.IsType(fmt.Errorf("plain"), apperrors.ErrorTypeNotFound))
}

func TestConflictIDs(t *testing.T) {
	err := fmt.Errorf("reserve: %w", apperrors.NewConflictError("overlap", "res-9"))
	assert.Equal(t, []string{"res-9"}, apperrors.ConflictIDs(err))
	assert.Nil(t, apperrors.ConflictIDs(apperrors.NewValidationError("reason required")))
}
