// Package memory holds process-local implementations of the repositories. They
// honour the same compare-and-set and NOT_FOUND contracts as the PostgreSQL
// adapters and back the engine tests and single-node tooling.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// ResourceRegistry implements repositories.ResourceRegistry in memory
type ResourceRegistry struct {
	mu        sync.Mutex
	resources map[string]*entities.Resource
	now       func() time.Time
}

// NewResourceRegistry creates an empty registry
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{
		resources: make(map[string]*entities.Resource),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ repositories.ResourceRegistry = (*ResourceRegistry)(nil)

func cloneResource(r *entities.Resource) *entities.Resource {
	c := *r
	if r.DepartmentID != nil {
		dept := *r.DepartmentID
		c.DepartmentID = &dept
	}
	return &c
}

// Create registers a new resource
func (r *ResourceRegistry) Create(ctx context.Context, resource *entities.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[resource.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("resource %s already exists", resource.ID), resource.ID)
	}
	if resource.Version == 0 {
		resource.Version = 1
	}
	r.resources[resource.ID] = cloneResource(resource)
	return nil
}

// Get retrieves a resource by ID
func (r *ResourceRegistry) Get(ctx context.Context, id string) (*entities.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("resource with id %s not found", id))
	}
	return cloneResource(res), nil
}

// SetStatus is a compare-and-set on the resource status
func (r *ResourceRegistry) SetStatus(ctx context.Context, id string, next, expected entities.ResourceStatus) (*entities.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("resource with id %s not found", id))
	}
	if res.Status != expected {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("resource %s is %s, expected %s", id, res.Status, expected), id)
	}
	res.Status = next
	res.Version++
	res.UpdatedAt = r.now()
	return cloneResource(res), nil
}

// Relocate moves the resource if its version still matches
func (r *ResourceRegistry) Relocate(ctx context.Context, id, facilityID string, departmentID *string, expectedVersion int64) (*entities.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("resource with id %s not found", id))
	}
	if res.Version != expectedVersion {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("resource %s is at version %d, expected %d", id, res.Version, expectedVersion), id)
	}
	res.FacilityID = facilityID
	res.DepartmentID = departmentID
	res.Version++
	res.UpdatedAt = r.now()
	return cloneResource(res), nil
}

// ListByFacility retrieves resources for a facility ordered by label
func (r *ResourceRegistry) ListByFacility(ctx context.Context, facilityID string, filter repositories.ResourceFilter) ([]*entities.Resource, error) {
	r.mu.Lock()
	var out []*entities.Resource
	for _, res := range r.resources {
		if res.FacilityID != facilityID {
			continue
		}
		if filter.Kind != "" && res.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		out = append(out, cloneResource(res))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Label == out[j].Label {
			return out[i].ID < out[j].ID
		}
		return out[i].Label < out[j].Label
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
