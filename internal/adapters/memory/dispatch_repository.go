package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// DispatchRepository implements repositories.DispatchRepository in memory
type DispatchRepository struct {
	mu         sync.Mutex
	dispatches map[string]*entities.Dispatch
}

// NewDispatchRepository creates an empty repository
func NewDispatchRepository() *DispatchRepository {
	return &DispatchRepository{dispatches: make(map[string]*entities.Dispatch)}
}

var _ repositories.DispatchRepository = (*DispatchRepository)(nil)

func cloneDispatch(d *entities.Dispatch) *entities.Dispatch {
	c := *d
	c.CrewIDs = append([]string(nil), d.CrewIDs...)
	return &c
}

// Create stores a new dispatch
func (r *DispatchRepository) Create(ctx context.Context, dispatch *entities.Dispatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.dispatches {
		if existing.ID == dispatch.ID || existing.DispatchNumber == dispatch.DispatchNumber {
			return apperrors.NewConflictError("dispatch already exists", existing.ID)
		}
		if existing.AmbulanceID == dispatch.AmbulanceID && !existing.Status.Terminal() {
			return apperrors.NewConflictError(
				fmt.Sprintf("ambulance %s already has an active dispatch", dispatch.AmbulanceID), existing.ID)
		}
	}
	if dispatch.Version == 0 {
		dispatch.Version = 1
	}
	r.dispatches[dispatch.ID] = cloneDispatch(dispatch)
	return nil
}

// GetByID retrieves a dispatch by ID
func (r *DispatchRepository) GetByID(ctx context.Context, id string) (*entities.Dispatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dispatches[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("dispatch with id %s not found", id))
	}
	return cloneDispatch(d), nil
}

// Update persists the dispatch if the stored status equals expected
func (r *DispatchRepository) Update(ctx context.Context, dispatch *entities.Dispatch, expected entities.DispatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.dispatches[dispatch.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("dispatch with id %s not found", dispatch.ID))
	}
	if stored.Status != expected {
		return apperrors.NewConflictError(
			fmt.Sprintf("dispatch %s is %s, expected %s", dispatch.ID, stored.Status, expected), dispatch.ID)
	}
	dispatch.Version = stored.Version + 1
	r.dispatches[dispatch.ID] = cloneDispatch(dispatch)
	return nil
}

// GetActiveByAmbulance retrieves the non-terminal dispatch of an ambulance
func (r *DispatchRepository) GetActiveByAmbulance(ctx context.Context, ambulanceID string) (*entities.Dispatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.dispatches {
		if d.AmbulanceID == ambulanceID && !d.Status.Terminal() {
			return cloneDispatch(d), nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("ambulance %s has no active dispatch", ambulanceID))
}
