package repositories

import (
	"context"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// WorkflowRepository defines the interface for transfer and disposal requests
type WorkflowRepository interface {
	// Create stores a new request
	Create(ctx context.Context, request *entities.WorkflowRequest) error

	// GetByID retrieves a request by ID
	GetByID(ctx context.Context, id string) (*entities.WorkflowRequest, error)

	// Update persists the request only if its stored status still equals expected
	Update(ctx context.Context, request *entities.WorkflowRequest, expected entities.WorkflowStatus) error

	// GetOpenBySubject retrieves the non-terminal request for a resource, or NOT_FOUND
	GetOpenBySubject(ctx context.Context, resourceID string) (*entities.WorkflowRequest, error)
}
