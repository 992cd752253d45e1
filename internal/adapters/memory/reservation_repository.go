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

// ReservationRepository implements repositories.ReservationRepository in memory
type ReservationRepository struct {
	mu           sync.Mutex
	reservations map[string]*entities.Reservation
}

// NewReservationRepository creates an empty repository
func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{reservations: make(map[string]*entities.Reservation)}
}

var _ repositories.ReservationRepository = (*ReservationRepository)(nil)

func cloneReservation(r *entities.Reservation) *entities.Reservation {
	c := *r
	return &c
}

// overlapping returns the ids of other blocking reservations of the same
// resource whose window overlaps candidate's. It mirrors the database's
// exclusion constraint; the caller holds r.mu.
func (r *ReservationRepository) overlapping(candidate *entities.Reservation) []string {
	if !candidate.Status.Blocking() {
		return nil
	}
	var ids []string
	for _, existing := range r.reservations {
		if existing.ID != candidate.ID &&
			existing.ResourceID == candidate.ResourceID &&
			existing.Status.Blocking() &&
			existing.Window.Overlaps(candidate.Window) {
			ids = append(ids, existing.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Create stores a new reservation, enforcing the live (resource, window, status)
// uniqueness and the blocking-overlap exclusion the database enforces
func (r *ReservationRepository) Create(ctx context.Context, reservation *entities.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reservations[reservation.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("reservation %s already exists", reservation.ID), reservation.ID)
	}
	for _, existing := range r.reservations {
		if existing.ResourceID == reservation.ResourceID &&
			existing.Status == reservation.Status &&
			!existing.Status.Terminal() &&
			existing.Window.Equal(reservation.Window) {
			return apperrors.NewConflictError("duplicate reservation for resource window", existing.ID)
		}
	}
	if ids := r.overlapping(reservation); len(ids) > 0 {
		return apperrors.NewConflictError("reservation overlaps a blocking reservation", ids...)
	}
	if reservation.Version == 0 {
		reservation.Version = 1
	}
	r.reservations[reservation.ID] = cloneReservation(reservation)
	return nil
}

// GetByID retrieves a reservation by ID
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*entities.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("reservation with id %s not found", id))
	}
	return cloneReservation(res), nil
}

// UpdateStatus persists the transition if the stored status equals expected
func (r *ReservationRepository) UpdateStatus(ctx context.Context, reservation *entities.Reservation, expected entities.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reservations[reservation.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("reservation with id %s not found", reservation.ID))
	}
	if stored.Status != expected {
		return apperrors.NewConflictError(
			fmt.Sprintf("reservation %s is %s, expected %s", reservation.ID, stored.Status, expected), reservation.ID)
	}
	if !stored.Status.Blocking() {
		if ids := r.overlapping(reservation); len(ids) > 0 {
			return apperrors.NewConflictError("reservation overlaps a blocking reservation", ids...)
		}
	}
	reservation.Version = stored.Version + 1
	r.reservations[reservation.ID] = cloneReservation(reservation)
	return nil
}

// ListOpenByResource retrieves every non-terminal reservation of a resource
func (r *ReservationRepository) ListOpenByResource(ctx context.Context, resourceID string) ([]*entities.Reservation, error) {
	return r.collect(func(res *entities.Reservation) bool {
		return res.ResourceID == resourceID && !res.Status.Terminal()
	}), nil
}

// ListByResource retrieves reservations of a resource ordered by window start
func (r *ReservationRepository) ListByResource(ctx context.Context, resourceID string, filter repositories.ReservationFilter) ([]*entities.Reservation, error) {
	out := r.collect(func(res *entities.Reservation) bool {
		if res.ResourceID != resourceID {
			return false
		}
		if filter.Status != "" && res.Status != filter.Status {
			return false
		}
		if filter.From != nil && !res.Window.Until.After(*filter.From) {
			return false
		}
		if filter.To != nil && !res.Window.From.Before(*filter.To) {
			return false
		}
		return true
	})
	return page(out, filter.Offset, filter.Limit), nil
}

// ListOverdue retrieves expirable reservations whose window ended at or before now
func (r *ReservationRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entities.Reservation, error) {
	out := r.collect(func(res *entities.Reservation) bool { return res.Overdue(now) })
	return page(out, 0, limit), nil
}

func (r *ReservationRepository) collect(match func(*entities.Reservation) bool) []*entities.Reservation {
	r.mu.Lock()
	var out []*entities.Reservation
	for _, res := range r.reservations {
		if match(res) {
			out = append(out, cloneReservation(res))
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Window.From.Equal(out[j].Window.From) {
			return out[i].ID < out[j].ID
		}
		return out[i].Window.From.Before(out[j].Window.From)
	})
	return out
}
