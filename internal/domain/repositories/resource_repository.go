package repositories

import (
	"context"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// ResourceRegistry is the catalog of allocatable resources and their current
// status. Engines mutate status only through SetStatus, which is a
// compare-and-set on the expected current status.
type ResourceRegistry interface {
	// Create registers a new resource
	Create(ctx context.Context, resource *entities.Resource) error

	// Get retrieves a resource by ID, always reading the latest committed state
	Get(ctx context.Context, id string) (*entities.Resource, error)

	// SetStatus moves the resource to next only if its status is still expected.
	// It returns a CONFLICT error when another writer changed the status first.
	SetStatus(ctx context.Context, id string, next, expected entities.ResourceStatus) (*entities.Resource, error)

	// Relocate moves the resource to another facility/department if its version
	// still matches expectedVersion
	Relocate(ctx context.Context, id, facilityID string, departmentID *string, expectedVersion int64) (*entities.Resource, error)

	// ListByFacility retrieves resources for a facility
	ListByFacility(ctx context.Context, facilityID string, filter ResourceFilter) ([]*entities.Resource, error)
}

// ResourceFilter defines filters for listing resources
type ResourceFilter struct {
	Kind   entities.ResourceKind
	Status entities.ResourceStatus
	Limit  int
	Offset int
}
