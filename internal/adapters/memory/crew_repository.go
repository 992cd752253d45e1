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

// CrewRepository implements repositories.CrewRepository in memory
type CrewRepository struct {
	mu          sync.Mutex
	members     map[string]*entities.CrewMember
	assignments map[string]*entities.CrewAssignment
	now         func() time.Time
}

// NewCrewRepository creates an empty repository
func NewCrewRepository() *CrewRepository {
	return &CrewRepository{
		members:     make(map[string]*entities.CrewMember),
		assignments: make(map[string]*entities.CrewAssignment),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ repositories.CrewRepository = (*CrewRepository)(nil)

// Create registers a crew member
func (r *CrewRepository) Create(ctx context.Context, member *entities.CrewMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[member.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("crew member %s already exists", member.ID), member.ID)
	}
	if member.Version == 0 {
		member.Version = 1
	}
	c := *member
	r.members[member.ID] = &c
	return nil
}

// Get retrieves a crew member by ID
func (r *CrewRepository) Get(ctx context.Context, id string) (*entities.CrewMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("crew member with id %s not found", id))
	}
	c := *m
	return &c, nil
}

// SetStatus is a compare-and-set on the crew member's availability
func (r *CrewRepository) SetStatus(ctx context.Context, id string, next, expected entities.CrewStatus) (*entities.CrewMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("crew member with id %s not found", id))
	}
	if m.Status != expected {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("crew member %s is %s, expected %s", id, m.Status, expected), id)
	}
	m.Status = next
	m.Version++
	m.UpdatedAt = r.now()
	c := *m
	return &c, nil
}

// CreateAssignment stores a schedule slot
func (r *CrewRepository) CreateAssignment(ctx context.Context, assignment *entities.CrewAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[assignment.CrewID]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("crew member with id %s not found", assignment.CrewID))
	}
	if _, exists := r.assignments[assignment.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("assignment %s already exists", assignment.ID), assignment.ID)
	}
	c := *assignment
	r.assignments[assignment.ID] = &c
	return nil
}

// CloseAssignment shortens an assignment so it ends at until
func (r *CrewRepository) CloseAssignment(ctx context.Context, id string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("assignment with id %s not found", id))
	}
	a.Window.Until = until.UTC()
	return nil
}

// ListAssignments retrieves the slots of a crew member that end after from
func (r *CrewRepository) ListAssignments(ctx context.Context, crewID string, from time.Time) ([]*entities.CrewAssignment, error) {
	r.mu.Lock()
	var out []*entities.CrewAssignment
	for _, a := range r.assignments {
		if a.CrewID == crewID && a.Window.Until.After(from) {
			c := *a
			out = append(out, &c)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Window.From.Before(out[j].Window.From) })
	return out, nil
}
