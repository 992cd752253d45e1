package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medlogistics/backend/internal/adapters/memory"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

func TestResourceRegistry_SetStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewResourceRegistry()
	require.NoError(t, reg.Create(ctx, &entities.Resource{
		ID: "bed-1", Kind: entities.ResourceKindBed, FacilityID: "f1", Status: entities.ResourceStatusAvailable,
	}))

	res, err := reg.SetStatus(ctx, "bed-1", entities.BedStatusOccupied, entities.ResourceStatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, entities.BedStatusOccupied, res.Status)
	assert.Equal(t, int64(2), res.Version)

	_, err = reg.SetStatus(ctx, "bed-1", entities.BedStatusCleaning, entities.ResourceStatusAvailable)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	_, err = reg.SetStatus(ctx, "missing", entities.BedStatusCleaning, entities.ResourceStatusAvailable)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestResourceRegistry_RelocateChecksVersion(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewResourceRegistry()
	require.NoError(t, reg.Create(ctx, &entities.Resource{ID: "eq-1", Kind: entities.ResourceKindEquipment, FacilityID: "f1"}))

	_, err := reg.Relocate(ctx, "eq-1", "f2", nil, 7)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	res, err := reg.Relocate(ctx, "eq-1", "f2", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "f2", res.FacilityID)

	list, err := reg.ListByFacility(ctx, "f2", repositories.ResourceFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReservationRepository_DuplicateTupleAndOverdue(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewReservationRepository()
	base := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	w := entities.NewTimeWindow(base, base.Add(time.Hour))

	require.NoError(t, repo.Create(ctx, &entities.Reservation{ID: "r1", ResourceID: "bed-1", Window: w, Status: entities.ReservationStatusApproved}))
	err := repo.Create(ctx, &entities.Reservation{ID: "r2", ResourceID: "bed-1", Window: w, Status: entities.ReservationStatusApproved})
	require.Error(t, err)
	assert.Equal(t, []string{"r1"}, apperrors.ConflictIDs(err))

	overdue, err := repo.ListOverdue(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "r1", overdue[0].ID)

	stale := overdue[0]
	stale.Apply(entities.ReservationStatusExpired, base.Add(time.Hour))
	require.NoError(t, repo.UpdateStatus(ctx, stale, entities.ReservationStatusApproved))
	assert.True(t, apperrors.IsType(repo.UpdateStatus(ctx, stale, entities.ReservationStatusApproved), apperrors.ErrorTypeConflict))
}

func TestReservationRepository_ExcludesOverlappingBlockingWindows(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewReservationRepository()
	base := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	hours := func(from, until int) entities.TimeWindow {
		return entities.NewTimeWindow(base.Add(time.Duration(from)*time.Hour), base.Add(time.Duration(until)*time.Hour))
	}

	require.NoError(t, repo.Create(ctx, &entities.Reservation{ID: "r1", ResourceID: "bed-1", Window: hours(2, 4), Status: entities.ReservationStatusActive}))

	err := repo.Create(ctx, &entities.Reservation{ID: "r2", ResourceID: "bed-1", Window: hours(3, 5), Status: entities.ReservationStatusActive})
	require.Error(t, err)
	assert.Equal(t, []string{"r1"}, apperrors.ConflictIDs(err))

	// adjacent windows, other resources and pending requests are not excluded
	require.NoError(t, repo.Create(ctx, &entities.Reservation{ID: "r3", ResourceID: "bed-1", Window: hours(4, 5), Status: entities.ReservationStatusActive}))
	require.NoError(t, repo.Create(ctx, &entities.Reservation{ID: "r4", ResourceID: "bed-2", Window: hours(3, 5), Status: entities.ReservationStatusActive}))
	pending := &entities.Reservation{ID: "r5", ResourceID: "bed-1", Window: hours(3, 6), Status: entities.ReservationStatusPending}
	require.NoError(t, repo.Create(ctx, pending))

	// approving the pending request is where it starts to block
	pending.Apply(entities.ReservationStatusApproved, base)
	err = repo.UpdateStatus(ctx, pending, entities.ReservationStatusPending)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Equal(t, []string{"r1", "r3"}, apperrors.ConflictIDs(err))

	stored, err := repo.GetByID(ctx, "r5")
	require.NoError(t, err)
	assert.Equal(t, entities.ReservationStatusPending, stored.Status)
}

func TestDispatchRepository_OneActivePerAmbulance(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDispatchRepository()
	require.NoError(t, repo.Create(ctx, &entities.Dispatch{ID: "d1", DispatchNumber: "DSP-1", AmbulanceID: "amb-1", Status: entities.DispatchStatusDispatched}))

	err := repo.Create(ctx, &entities.Dispatch{ID: "d2", DispatchNumber: "DSP-2", AmbulanceID: "amb-1", Status: entities.DispatchStatusDispatched})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	active, err := repo.GetActiveByAmbulance(ctx, "amb-1")
	require.NoError(t, err)
	assert.Equal(t, "d1", active.ID)

	_, err = repo.GetActiveByAmbulance(ctx, "amb-2")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestLocker_TryLockDoesNotWait(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLocker()

	unlock, ok, err := l.TryLock(ctx, "resource:bed-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "resource:bed-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	_, ok, _ = l.TryLock(ctx, "resource:bed-1", time.Minute)
	assert.True(t, ok)
}

func TestEventBus_FansOutByChannel(t *testing.T) {
	bus := memory.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := bus.Subscribe(ctx, "allocation:events")
	require.NoError(t, err)
	bed, err := bus.Subscribe(ctx, "resource:bed-1")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "resource:bed-2")
	require.NoError(t, err)

	event := entities.NewDomainEvent(entities.EventReservationCreated, entities.AggregateReservation, "r-1", time.Now())
	event.ResourceID = "bed-1"
	require.NoError(t, bus.Publish(ctx, event))

	assert.Equal(t, "r-1", (<-all).AggregateID)
	assert.Equal(t, "r-1", (<-bed).AggregateID)
	assert.Empty(t, other)

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-other
		return !open
	}, time.Second, 10*time.Millisecond)
}
