package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// ReservationRepository defines the interface for reservation data operations
type ReservationRepository interface {
	// Create stores a new reservation. A duplicate (resource, from, until, status)
	// tuple is reported as CONFLICT.
	Create(ctx context.Context, reservation *entities.Reservation) error

	// GetByID retrieves a reservation by ID
	GetByID(ctx context.Context, id string) (*entities.Reservation, error)

	// UpdateStatus persists the reservation's status and milestones only if the
	// stored status still equals expected, then bumps the version
	UpdateStatus(ctx context.Context, reservation *entities.Reservation, expected entities.ReservationStatus) error

	// ListOpenByResource retrieves every non-terminal reservation of a resource
	ListOpenByResource(ctx context.Context, resourceID string) ([]*entities.Reservation, error)

	// ListByResource retrieves reservations of a resource
	ListByResource(ctx context.Context, resourceID string, filter ReservationFilter) ([]*entities.Reservation, error)

	// ListOverdue retrieves approved or active reservations whose window ended at or before now
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entities.Reservation, error)
}

// ReservationFilter defines filters for listing reservations
type ReservationFilter struct {
	Status entities.ReservationStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
