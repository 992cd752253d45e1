package repositories

import (
	"context"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// DispatchRepository defines the interface for dispatch data operations
type DispatchRepository interface {
	// Create stores a new dispatch. A duplicate dispatch number, or a second
	// non-terminal dispatch for the same ambulance, is reported as CONFLICT.
	Create(ctx context.Context, dispatch *entities.Dispatch) error

	// GetByID retrieves a dispatch by ID
	GetByID(ctx context.Context, id string) (*entities.Dispatch, error)

	// Update persists the dispatch only if its stored status still equals expected
	Update(ctx context.Context, dispatch *entities.Dispatch, expected entities.DispatchStatus) error

	// GetActiveByAmbulance retrieves the non-terminal dispatch of an ambulance,
	// or NOT_FOUND when the ambulance is idle
	GetActiveByAmbulance(ctx context.Context, ambulanceID string) (*entities.Dispatch, error)
}
