package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/interval"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// DefaultDispatchDuration is how long a dispatch is expected to keep its crew
// when the request does not say
const DefaultDispatchDuration = 2 * time.Hour

// DispatchRequest asks for an ambulance and crew to move a patient
type DispatchRequest struct {
	AmbulanceID  string
	CrewIDs      []string
	DispatcherID string
	Patient      *entities.Notifiable
	Pickup       entities.Location
	Destination  entities.Location
	Priority     entities.DispatchPriority
	// ExpectedDuration is the window checked against the crew's schedule
	ExpectedDuration time.Duration
}

// DispatchEngine allocates ambulances and crews and drives the linear
// dispatch lifecycle
type DispatchEngine struct {
	registry   repositories.ResourceRegistry
	dispatches repositories.DispatchRepository
	crews      repositories.CrewRepository
	authorizer providers.Authorizer
	clock      providers.Clock
	notifier   *EventNotifier
	metrics    *observability.Metrics
	crewLocks  keyedMutex
}

// NewDispatchEngine creates a dispatch engine
func NewDispatchEngine(
	registry repositories.ResourceRegistry,
	dispatches repositories.DispatchRepository,
	crews repositories.CrewRepository,
	authorizer providers.Authorizer,
	clock providers.Clock,
	notifier *EventNotifier,
	metrics *observability.Metrics,
) *DispatchEngine {
	if clock == nil {
		clock = providers.SystemClock{}
	}
	return &DispatchEngine{
		registry:   registry,
		dispatches: dispatches,
		crews:      crews,
		authorizer: authorizer,
		clock:      clock,
		notifier:   notifier,
		metrics:    metrics,
	}
}

// dispatchAssignmentID is deterministic so completion can close it directly
func dispatchAssignmentID(dispatchID, crewID string) string {
	return dispatchID + ":" + crewID
}

// Dispatch allocates the ambulance and every crew member, or nothing. The
// ambulance is claimed with a compare-and-set, so of two racing dispatches on
// one ambulance exactly one wins.
func (e *DispatchEngine) Dispatch(ctx context.Context, req DispatchRequest) (d *entities.Dispatch, err error) {
	ctx, span := observability.StartSpan(ctx, "DispatchEngine.Dispatch")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("ambulance.id", req.AmbulanceID))

	now := e.clock.Now()
	defer func() {
		observability.RecordOperation(ctx, e.metrics, "dispatch", e.clock.Now().Sub(now), err)
		if err != nil {
			observability.RecordError(span, err)
		}
	}()

	if err := e.authorizer.Authorize(ctx, req.DispatcherID, providers.ActionDispatchCreate); err != nil {
		return nil, err
	}
	if err := validateDispatch(&req); err != nil {
		return nil, err
	}

	ambulance, err := e.registry.Get(ctx, req.AmbulanceID)
	if err != nil {
		return nil, err
	}
	if ambulance.Kind != entities.ResourceKindAmbulance {
		return nil, apperrors.NewValidationError(fmt.Sprintf("resource %s is a %s, not an ambulance", ambulance.ID, ambulance.Kind))
	}
	if _, err := e.registry.SetStatus(ctx, ambulance.ID, entities.AmbulanceStatusDispatched, entities.ResourceStatusAvailable); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			observability.RecordConflict(ctx, e.metrics, "dispatch")
			return nil, e.ambulanceConflict(ctx, ambulance.ID)
		}
		return nil, err
	}

	d = &entities.Dispatch{
		ID:             uuid.NewString(),
		DispatchNumber: entities.NewDispatchNumber(now),
		AmbulanceID:    ambulance.ID,
		CrewIDs:        append([]string(nil), req.CrewIDs...),
		DispatcherID:   req.DispatcherID,
		Patient:        req.Patient,
		Pickup:         req.Pickup,
		Destination:    req.Destination,
		Priority:       req.Priority,
		Status:         entities.DispatchStatusDispatched,
		DispatchedAt:   now,
		UpdatedAt:      now,
	}

	var claimed []string
	rollback := func() {
		for i := len(claimed) - 1; i >= 0; i-- {
			e.releaseCrew(ctx, d.ID, claimed[i], now)
		}
		e.releaseAmbulance(ctx, ambulance.ID)
	}

	expected := entities.NewTimeWindow(now, now.Add(req.ExpectedDuration))
	for _, crewID := range req.CrewIDs {
		if err := e.claimCrew(ctx, crewID, d.ID, expected); err != nil {
			rollback()
			if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
				observability.RecordConflict(ctx, e.metrics, "dispatch")
			}
			return nil, err
		}
		claimed = append(claimed, crewID)
	}

	if err := e.dispatches.Create(ctx, d); err != nil {
		rollback()
		return nil, err
	}

	observability.ComponentLogger(ctx, "dispatch_engine").Info().
		Str("dispatch_id", d.ID).
		Str("dispatch_number", d.DispatchNumber).
		Str("ambulance_id", d.AmbulanceID).
		Strs("crew_ids", d.CrewIDs).
		Msg("ambulance dispatched")
	observability.RecordTransition(ctx, e.metrics, string(entities.AggregateDispatch), string(d.Status))
	e.emit(ctx, entities.EventDispatchCreated, d, "", req.DispatcherID)
	return d, nil
}

func validateDispatch(req *DispatchRequest) error {
	if req.AmbulanceID == "" {
		return apperrors.NewValidationError("ambulance id is required")
	}
	if len(req.CrewIDs) == 0 {
		return apperrors.NewValidationError("at least one crew member is required")
	}
	seen := make(map[string]struct{}, len(req.CrewIDs))
	for _, id := range req.CrewIDs {
		if id == "" {
			return apperrors.NewValidationError("crew ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewValidationError(fmt.Sprintf("crew member %s is listed twice", id))
		}
		seen[id] = struct{}{}
	}
	if req.Pickup.Empty() || req.Destination.Empty() {
		return apperrors.NewValidationError("pickup and destination locations are required")
	}
	switch req.Priority {
	case "":
		req.Priority = entities.DispatchPriorityRoutine
	case entities.DispatchPriorityEmergency, entities.DispatchPriorityUrgent, entities.DispatchPriorityRoutine:
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown priority %q", req.Priority))
	}
	if req.ExpectedDuration <= 0 {
		req.ExpectedDuration = DefaultDispatchDuration
	}
	return nil
}

// ambulanceConflict builds the conflict for a lost ambulance claim, naming the
// winning dispatch when it is already visible
func (e *DispatchEngine) ambulanceConflict(ctx context.Context, ambulanceID string) error {
	msg := fmt.Sprintf("ambulance %s is not available", ambulanceID)
	if active, err := e.dispatches.GetActiveByAmbulance(ctx, ambulanceID); err == nil {
		return apperrors.NewConflictError(msg, active.ID)
	}
	return apperrors.NewConflictError(msg, ambulanceID)
}

// crewSchedule indexes a crew member's assignments that end after from
func (e *DispatchEngine) crewSchedule(ctx context.Context, crewID string, from time.Time) (*interval.Index, error) {
	assignments, err := e.crews.ListAssignments(ctx, crewID, from)
	if err != nil {
		return nil, err
	}
	ix := interval.New()
	for _, a := range assignments {
		if !a.Window.Valid() {
			continue
		}
		if err := ix.Insert(interval.Entry{ID: a.ID, Window: a.Window, Status: string(a.Kind)}); err != nil {
			return nil, apperrors.NewInternalError(fmt.Sprintf("failed to index assignment %s", a.ID), err)
		}
	}
	return ix, nil
}

func scheduleConflict(ix *interval.Index, crewID string, w entities.TimeWindow) error {
	overlaps := ix.QueryOverlap(w)
	if len(overlaps) == 0 {
		return nil
	}
	ids := make([]string, 0, len(overlaps))
	for _, entry := range overlaps {
		ids = append(ids, entry.ID)
	}
	return apperrors.NewConflictError(fmt.Sprintf("crew member %s is already assigned during %s", crewID, w), ids...)
}

// claimCrew checks the crew member's schedule, flips them to on_dispatch and
// records an open-ended dispatch assignment that completion closes
func (e *DispatchEngine) claimCrew(ctx context.Context, crewID, dispatchID string, expected entities.TimeWindow) error {
	unlock := e.crewLocks.Lock(crewID)
	defer unlock()

	member, err := e.crews.Get(ctx, crewID)
	if err != nil {
		return err
	}
	if member.Status != entities.CrewStatusAvailable {
		return apperrors.NewConflictError(fmt.Sprintf("crew member %s is %s", crewID, member.Status), crewID)
	}

	schedule, err := e.crewSchedule(ctx, crewID, expected.From)
	if err != nil {
		return err
	}
	if err := scheduleConflict(schedule, crewID, expected); err != nil {
		return err
	}

	if _, err := e.crews.SetStatus(ctx, crewID, entities.CrewStatusOnDispatch, entities.CrewStatusAvailable); err != nil {
		return err
	}

	id := dispatchID
	assignment := &entities.CrewAssignment{
		ID:         dispatchAssignmentID(dispatchID, crewID),
		CrewID:     crewID,
		Kind:       entities.AssignmentKindDispatch,
		DispatchID: &id,
		Window:     entities.NewTimeWindow(expected.From, entities.OpenEnded),
		CreatedAt:  expected.From,
	}
	if err := e.crews.CreateAssignment(ctx, assignment); err != nil {
		if _, revertErr := e.crews.SetStatus(ctx, crewID, entities.CrewStatusAvailable, entities.CrewStatusOnDispatch); revertErr != nil {
			observability.ComponentLogger(ctx, "dispatch_engine").Error().Err(revertErr).Str("crew_id", crewID).Msg("failed to restore crew availability")
		}
		return err
	}
	return nil
}

func (e *DispatchEngine) releaseCrew(ctx context.Context, dispatchID, crewID string, at time.Time) {
	logger := observability.ComponentLogger(ctx, "dispatch_engine")
	if err := e.crews.CloseAssignment(ctx, dispatchAssignmentID(dispatchID, crewID), at); err != nil {
		logger.Warn().Err(err).Str("crew_id", crewID).Str("dispatch_id", dispatchID).Msg("failed to close crew assignment")
	}
	if _, err := e.crews.SetStatus(ctx, crewID, entities.CrewStatusAvailable, entities.CrewStatusOnDispatch); err != nil {
		logger.Warn().Err(err).Str("crew_id", crewID).Msg("crew member not released")
	}
}

func (e *DispatchEngine) releaseAmbulance(ctx context.Context, ambulanceID string) {
	if _, err := e.registry.SetStatus(ctx, ambulanceID, entities.ResourceStatusAvailable, entities.AmbulanceStatusDispatched); err != nil {
		observability.ComponentLogger(ctx, "dispatch_engine").Warn().Err(err).Str("ambulance_id", ambulanceID).Msg("ambulance not released")
	}
}

func (e *DispatchEngine) release(ctx context.Context, d *entities.Dispatch, at time.Time) {
	for _, crewID := range d.CrewIDs {
		e.releaseCrew(ctx, d.ID, crewID, at)
	}
	e.releaseAmbulance(ctx, d.AmbulanceID)
}

// Advance moves a dispatch to the next status in its lifecycle. Advancing to
// the current status is a no-op; any other move that is not the immediate
// successor is an invalid transition.
func (e *DispatchEngine) Advance(ctx context.Context, id string, target entities.DispatchStatus, actorID string) (*entities.Dispatch, error) {
	ctx, span := observability.StartSpan(ctx, "DispatchEngine.Advance")
	defer span.End()

	if target == entities.DispatchStatusCancelled {
		return nil, apperrors.NewValidationError("use Cancel to cancel a dispatch")
	}
	if !target.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown dispatch status %q", target))
	}

	d, err := e.dispatches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == target {
		return d, nil
	}
	if next, ok := d.Status.Next(); !ok || next != target {
		return nil, apperrors.NewInvalidTransitionError("dispatch", string(d.Status), string(target))
	}

	return e.commit(ctx, d, target, actorID)
}

// Cancel cancels a dispatch from any non-terminal status and releases its
// ambulance and crew. Cancelling twice returns the cancelled dispatch.
func (e *DispatchEngine) Cancel(ctx context.Context, id, actorID, reason string) (*entities.Dispatch, error) {
	ctx, span := observability.StartSpan(ctx, "DispatchEngine.Cancel")
	defer span.End()

	d, err := e.dispatches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == entities.DispatchStatusCancelled {
		return d, nil
	}
	if d.Status.Terminal() {
		return nil, apperrors.NewInvalidTransitionError("dispatch", string(d.Status), string(entities.DispatchStatusCancelled))
	}
	d.CancelReason = reason
	return e.commit(ctx, d, entities.DispatchStatusCancelled, actorID)
}

// commit persists d moving to target. A racing caller that already committed
// the same target makes this call a no-op.
func (e *DispatchEngine) commit(ctx context.Context, d *entities.Dispatch, target entities.DispatchStatus, actorID string) (*entities.Dispatch, error) {
	now := e.clock.Now()
	prev := d.Status
	d.Apply(target, now)
	if err := e.dispatches.Update(ctx, d, prev); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			if current, getErr := e.dispatches.GetByID(ctx, d.ID); getErr == nil && current.Status == target {
				return current, nil
			}
		}
		return nil, err
	}

	if target.Terminal() {
		e.release(ctx, d, now)
	}

	observability.RecordTransition(ctx, e.metrics, string(entities.AggregateDispatch), string(target))
	e.emit(ctx, entities.EventDispatchStatusChanged, d, prev, actorID)
	return d, nil
}

// Get returns a dispatch by id
func (e *DispatchEngine) Get(ctx context.Context, id string) (*entities.Dispatch, error) {
	return e.dispatches.GetByID(ctx, id)
}

// ActiveForAmbulance returns the ambulance's non-terminal dispatch
func (e *DispatchEngine) ActiveForAmbulance(ctx context.Context, ambulanceID string) (*entities.Dispatch, error) {
	return e.dispatches.GetActiveByAmbulance(ctx, ambulanceID)
}

// AssignShift books a shift block into a crew member's schedule. It conflicts
// with any overlapping shift or running dispatch.
func (e *DispatchEngine) AssignShift(ctx context.Context, crewID string, window entities.TimeWindow) (*entities.CrewAssignment, error) {
	ctx, span := observability.StartSpan(ctx, "DispatchEngine.AssignShift")
	defer span.End()

	if !window.Valid() {
		return nil, apperrors.NewInvalidWindowError(fmt.Sprintf("window %s is empty or inverted", window))
	}

	unlock := e.crewLocks.Lock(crewID)
	defer unlock()

	if _, err := e.crews.Get(ctx, crewID); err != nil {
		return nil, err
	}
	schedule, err := e.crewSchedule(ctx, crewID, window.From)
	if err != nil {
		return nil, err
	}
	if err := scheduleConflict(schedule, crewID, window); err != nil {
		return nil, err
	}

	assignment := &entities.CrewAssignment{
		ID:        uuid.NewString(),
		CrewID:    crewID,
		Kind:      entities.AssignmentKindShift,
		Window:    window,
		CreatedAt: e.clock.Now(),
	}
	if err := e.crews.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (e *DispatchEngine) emit(ctx context.Context, eventType entities.DomainEventType, d *entities.Dispatch, prev entities.DispatchStatus, actorID string) {
	event := entities.NewDomainEvent(eventType, entities.AggregateDispatch, d.ID, d.UpdatedAt)
	event.ResourceID = d.AmbulanceID
	event.Status = string(d.Status)
	event.PreviousStatus = string(prev)
	event.ActorID = actorID
	event.Recipients = []entities.Notifiable{{Kind: entities.NotifiableUser, ID: d.DispatcherID}}
	if d.Patient != nil {
		event.Recipients = append(event.Recipients, *d.Patient)
	}
	event.Data = entities.Attributes{
		"dispatch_number": d.DispatchNumber,
		"priority":        string(d.Priority),
		"crew_ids":        d.CrewIDs,
	}
	if d.CancelReason != "" {
		event.Data["cancel_reason"] = d.CancelReason
	}
	e.notifier.Notify(ctx, event)
}
