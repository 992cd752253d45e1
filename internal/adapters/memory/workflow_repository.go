package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// WorkflowRepository implements repositories.WorkflowRepository in memory
type WorkflowRepository struct {
	mu       sync.Mutex
	requests map[string]*entities.WorkflowRequest
}

// NewWorkflowRepository creates an empty repository
func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{requests: make(map[string]*entities.WorkflowRequest)}
}

var _ repositories.WorkflowRepository = (*WorkflowRepository)(nil)

func cloneWorkflow(w *entities.WorkflowRequest) *entities.WorkflowRequest {
	c := *w
	return &c
}

// Create stores a new request. A subject may have only one open request.
func (r *WorkflowRepository) Create(ctx context.Context, request *entities.WorkflowRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.ID == request.ID {
			return apperrors.NewConflictError(fmt.Sprintf("workflow %s already exists", request.ID), request.ID)
		}
		if existing.SubjectResourceID == request.SubjectResourceID && !existing.Kind.Terminal(existing.Status) {
			return apperrors.NewConflictError(
				fmt.Sprintf("resource %s already has an open %s request", request.SubjectResourceID, existing.Kind), existing.ID)
		}
	}
	if request.Version == 0 {
		request.Version = 1
	}
	r.requests[request.ID] = cloneWorkflow(request)
	return nil
}

// GetByID retrieves a request by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entities.WorkflowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.requests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("workflow request with id %s not found", id))
	}
	return cloneWorkflow(w), nil
}

// Update persists the request if the stored status equals expected
func (r *WorkflowRepository) Update(ctx context.Context, request *entities.WorkflowRequest, expected entities.WorkflowStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[request.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("workflow request with id %s not found", request.ID))
	}
	if stored.Status != expected {
		return apperrors.NewConflictError(
			fmt.Sprintf("workflow request %s is %s, expected %s", request.ID, stored.Status, expected), request.ID)
	}
	request.Version = stored.Version + 1
	r.requests[request.ID] = cloneWorkflow(request)
	return nil
}

// GetOpenBySubject retrieves the non-terminal request for a resource
func (r *WorkflowRepository) GetOpenBySubject(ctx context.Context, resourceID string) (*entities.WorkflowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.requests {
		if w.SubjectResourceID == resourceID && !w.Kind.Terminal(w.Status) {
			return cloneWorkflow(w), nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("resource %s has no open workflow request", resourceID))
}
