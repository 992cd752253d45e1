package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

func dispatchReq(ambulanceID string, crew ...string) services.DispatchRequest {
	return services.DispatchRequest{
		AmbulanceID:  ambulanceID,
		CrewIDs:      crew,
		DispatcherID: "dispatcher-1",
		Patient:      &patient,
		Pickup:       entities.Location{Street: "12 Marina Rd", City: "Lagos", Latitude: 6.45, Longitude: 3.39},
		Destination:  entities.Location{Label: "General Hospital", Latitude: 6.52, Longitude: 3.37},
		Priority:     entities.DispatchPriorityEmergency,
	}
}

func dispatchHarness(t *testing.T) *harness {
	h := newHarness(t)
	h.addResource(t, "amb-1", entities.ResourceKindAmbulance)
	h.addCrew(t, "crew-1", entities.CrewRoleParamedic)
	h.addCrew(t, "crew-2", entities.CrewRoleDriver)
	return h
}

func (h *harness) crewStatus(t *testing.T, id string) entities.CrewStatus {
	t.Helper()
	m, err := h.crews.Get(context.Background(), id)
	require.NoError(t, err)
	return m.Status
}

func TestDispatchEngine_DispatchAllocatesAmbulanceAndCrew(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	d, err := engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1", "crew-2"))
	require.NoError(t, err)

	assert.Regexp(t, `^DSP-20250301-[0-9a-f]{8}$`, d.DispatchNumber)
	assert.Equal(t, entities.DispatchStatusDispatched, d.Status)
	assert.Equal(t, entities.AmbulanceStatusDispatched, h.resourceStatus(t, "amb-1"))
	assert.Equal(t, entities.CrewStatusOnDispatch, h.crewStatus(t, "crew-1"))
	assert.Equal(t, entities.CrewStatusOnDispatch, h.crewStatus(t, "crew-2"))

	active, err := engine.ActiveForAmbulance(ctx, "amb-1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, active.ID)

	assignments, err := h.crews.ListAssignments(ctx, "crew-1", base)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, entities.AssignmentKindDispatch, assignments[0].Kind)
	require.NotNil(t, assignments[0].DispatchID)
	assert.Equal(t, d.ID, *assignments[0].DispatchID)
}

func TestDispatchEngine_AdvanceWalksTheLifecycle(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	d, err := engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1"))
	require.NoError(t, err)

	chain := []entities.DispatchStatus{
		entities.DispatchStatusEnRoutePickup,
		entities.DispatchStatusAtPickup,
		entities.DispatchStatusEnRouteDestination,
		entities.DispatchStatusArrived,
	}
	for i, status := range chain {
		h.clock.Set(base.Add(time.Duration(i+1) * 5 * time.Minute))
		d, err = engine.Advance(ctx, d.ID, status, "dispatcher-1")
		require.NoError(t, err, "advance to %s", status)
		assert.Equal(t, status, d.Status)
		assert.True(t, d.Recorded(status))
	}

	stamped := *d.EnRoutePickupAt
	again, err := engine.Advance(ctx, d.ID, entities.DispatchStatusArrived, "dispatcher-1")
	require.NoError(t, err, "repeating the current status is a no-op")
	assert.True(t, stamped.Equal(*again.EnRoutePickupAt))

	_, err = engine.Advance(ctx, d.ID, entities.DispatchStatusEnRoutePickup, "dispatcher-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))

	done, err := engine.Advance(ctx, d.ID, entities.DispatchStatusCompleted, "dispatcher-1")
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)

	assert.Equal(t, entities.ResourceStatusAvailable, h.resourceStatus(t, "amb-1"))
	assert.Equal(t, entities.CrewStatusAvailable, h.crewStatus(t, "crew-1"))
	open, err := h.crews.ListAssignments(ctx, "crew-1", h.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, open, "dispatch assignment is closed on completion")
}

func TestDispatchEngine_AdvanceRejectsSkipsAndCancel(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	d, err := engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1"))
	require.NoError(t, err)

	_, err = engine.Advance(ctx, d.ID, entities.DispatchStatusArrived, "dispatcher-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))

	_, err = engine.Advance(ctx, d.ID, entities.DispatchStatusCancelled, "dispatcher-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = engine.Advance(ctx, d.ID, entities.DispatchStatus("teleported"), "dispatcher-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = engine.Advance(ctx, "missing", entities.DispatchStatusEnRoutePickup, "dispatcher-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestDispatchEngine_CancelReleasesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	d, err := engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1", "crew-2"))
	require.NoError(t, err)
	_, err = engine.Advance(ctx, d.ID, entities.DispatchStatusEnRoutePickup, "dispatcher-1")
	require.NoError(t, err)

	cancelled, err := engine.Cancel(ctx, d.ID, "dispatcher-1", "patient self-transported")
	require.NoError(t, err)
	assert.Equal(t, entities.DispatchStatusCancelled, cancelled.Status)
	assert.Equal(t, "patient self-transported", cancelled.CancelReason)

	again, err := engine.Cancel(ctx, d.ID, "dispatcher-1", "duplicate click")
	require.NoError(t, err)
	assert.Equal(t, entities.DispatchStatusCancelled, again.Status)
	assert.Equal(t, "patient self-transported", again.CancelReason)

	assert.Equal(t, entities.ResourceStatusAvailable, h.resourceStatus(t, "amb-1"))
	assert.Equal(t, entities.CrewStatusAvailable, h.crewStatus(t, "crew-1"))
	assert.Equal(t, entities.CrewStatusAvailable, h.crewStatus(t, "crew-2"))

	_, err = engine.Advance(ctx, d.ID, entities.DispatchStatusAtPickup, "dispatcher-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))

	// the ambulance can go out again
	_, err = engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1"))
	assert.NoError(t, err)
}

func TestDispatchEngine_BusyAmbulanceConflictsWithActiveDispatch(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	first, err := engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1"))
	require.NoError(t, err)

	_, err = engine.Dispatch(ctx, dispatchReq("amb-1", "crew-2"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Equal(t, []string{first.ID}, apperrors.ConflictIDs(err))
	assert.Equal(t, entities.CrewStatusAvailable, h.crewStatus(t, "crew-2"))
}

func TestDispatchEngine_CrewFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	shift, err := engine.AssignShift(ctx, "crew-1", entities.NewTimeWindow(base.Add(30*time.Minute), base.Add(8*time.Hour)))
	require.NoError(t, err)

	_, err = engine.Dispatch(ctx, dispatchReq("amb-1", "crew-2", "crew-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Equal(t, []string{shift.ID}, apperrors.ConflictIDs(err))

	assert.Equal(t, entities.ResourceStatusAvailable, h.resourceStatus(t, "amb-1"))
	assert.Equal(t, entities.CrewStatusAvailable, h.crewStatus(t, "crew-2"))
	open, err := h.crews.ListAssignments(ctx, "crew-2", base)
	require.NoError(t, err)
	for _, a := range open {
		assert.NotEqual(t, entities.AssignmentKindDispatch, a.Kind, "rolled back dispatch assignment must be closed")
	}

	_, err = engine.Dispatch(ctx, dispatchReq("amb-1", "crew-2"))
	assert.NoError(t, err)
}

func TestDispatchEngine_OffDutyCrewConflicts(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	_, err := h.crews.SetStatus(ctx, "crew-2", entities.CrewStatusOffDuty, entities.CrewStatusAvailable)
	require.NoError(t, err)
	engine := h.dispatchEngine(nil)

	_, err = engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1", "crew-2"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Equal(t, entities.CrewStatusAvailable, h.crewStatus(t, "crew-1"))
	assert.Equal(t, entities.ResourceStatusAvailable, h.resourceStatus(t, "amb-1"))
}

func TestDispatchEngine_ConcurrentDispatchSingleWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResource(t, "amb-1", entities.ResourceKindAmbulance)
	const callers = 10
	for i := 0; i < callers; i++ {
		h.addCrew(t, fmt.Sprintf("crew-%d", i), entities.CrewRoleEMT)
	}
	engine := h.dispatchEngine(nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(crewID string) {
			defer wg.Done()
			_, err := engine.Dispatch(ctx, dispatchReq("amb-1", crewID))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
				conflicts++
			}
		}(fmt.Sprintf("crew-%d", i))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)

	onDispatch := 0
	for i := 0; i < callers; i++ {
		if h.crewStatus(t, fmt.Sprintf("crew-%d", i)) == entities.CrewStatusOnDispatch {
			onDispatch++
		}
	}
	assert.Equal(t, 1, onDispatch)
}

func TestDispatchEngine_ValidatesRequests(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	h.addResource(t, "bed-1", entities.ResourceKindBed)
	engine := h.dispatchEngine(nil)

	noCrew := dispatchReq("amb-1")
	dupCrew := dispatchReq("amb-1", "crew-1", "crew-1")
	noPickup := dispatchReq("amb-1", "crew-1")
	noPickup.Pickup = entities.Location{}
	badPriority := dispatchReq("amb-1", "crew-1")
	badPriority.Priority = "whenever"

	for name, req := range map[string]services.DispatchRequest{
		"no crew":          noCrew,
		"crew twice":       dupCrew,
		"no pickup":        noPickup,
		"bad priority":     badPriority,
		"not an ambulance": dispatchReq("bed-1", "crew-1"),
	} {
		_, err := engine.Dispatch(ctx, req)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "%s: got %v", name, err)
	}
	assert.Equal(t, entities.ResourceStatusAvailable, h.resourceStatus(t, "bed-1"))
}

func TestDispatchEngine_RequiresDispatcherRole(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	auth := &MockAuthorizer{}
	auth.On("Authorize", mock.Anything, "dispatcher-1", providers.ActionDispatchCreate).
		Return(apperrors.NewUnauthorizedError("not a dispatcher"))
	engine := h.dispatchEngine(auth)

	_, err := engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))
	assert.Equal(t, entities.ResourceStatusAvailable, h.resourceStatus(t, "amb-1"))
	auth.AssertExpectations(t)
}

func TestDispatchEngine_AssignShiftChecksSchedule(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	morning, err := engine.AssignShift(ctx, "crew-1", window(8, 14))
	require.NoError(t, err)
	assert.Equal(t, entities.AssignmentKindShift, morning.Kind)

	_, err = engine.AssignShift(ctx, "crew-1", window(14, 20))
	assert.NoError(t, err, "touching shifts do not overlap")

	_, err = engine.AssignShift(ctx, "crew-1", window(12, 16))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Contains(t, apperrors.ConflictIDs(err), morning.ID)

	_, err = engine.AssignShift(ctx, "crew-1", window(16, 15))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidWindow))

	_, err = engine.AssignShift(ctx, "crew-404", window(8, 9))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestDispatchEngine_EmitsEvents(t *testing.T) {
	ctx := context.Background()
	h := dispatchHarness(t)
	engine := h.dispatchEngine(nil)

	d, err := engine.Dispatch(ctx, dispatchReq("amb-1", "crew-1"))
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, d.ID, "dispatcher-1", "stood down")
	require.NoError(t, err)

	h.flush(t)
	assert.Equal(t, []entities.DomainEventType{
		entities.EventDispatchCreated,
		entities.EventDispatchStatusChanged,
	}, h.publisher.Types())
	events := h.publisher.Events()
	assert.Equal(t, "amb-1", events[0].ResourceID)
	assert.Contains(t, events[0].Recipients, patient)
	assert.Equal(t, "stood down", events[1].Data["cancel_reason"])
}
