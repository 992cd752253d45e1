package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// CrewRepository defines the interface for crew availability and schedules
type CrewRepository interface {
	// Create registers a crew member
	Create(ctx context.Context, member *entities.CrewMember) error

	// Get retrieves a crew member by ID
	Get(ctx context.Context, id string) (*entities.CrewMember, error)

	// SetStatus is a compare-and-set on the crew member's availability record
	SetStatus(ctx context.Context, id string, next, expected entities.CrewStatus) (*entities.CrewMember, error)

	// CreateAssignment stores a schedule slot
	CreateAssignment(ctx context.Context, assignment *entities.CrewAssignment) error

	// CloseAssignment shortens an open-ended assignment so it ends at until
	CloseAssignment(ctx context.Context, id string, until time.Time) error

	// ListAssignments retrieves the slots of a crew member that end after from
	ListAssignments(ctx context.Context, crewID string, from time.Time) ([]*entities.CrewAssignment, error)
}
