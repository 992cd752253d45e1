package services

import (
	"context"
	"errors"
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
	"github.com/zatekoja/medlogistics/backend/pkg/retry"
)

const overdueBatchSize = 500

// ReserveRequest asks for a resource over a half-open window
type ReserveRequest struct {
	ResourceID  string
	Window      entities.TimeWindow
	Holder      entities.Notifiable
	RequesterID string
	Reason      string
	// Backdated records a bed occupancy that has already started, e.g. a
	// patient admitted before the booking was entered. The reservation starts
	// in_use and the window may begin in the past. Beds only.
	Backdated bool
}

// ReservationEngineDeps are the collaborators of a ReservationEngine. Locker,
// Notifier and Metrics are optional.
type ReservationEngineDeps struct {
	Registry     repositories.ResourceRegistry
	Reservations repositories.ReservationRepository
	Indexes      *IndexSet
	Authorizer   providers.Authorizer
	Clock        providers.Clock
	Locker       providers.Locker
	Notifier     *EventNotifier
	Metrics      *observability.Metrics
}

// ReservationEngine validates and commits reservations and owns their state
// machine. Registry status changes go through compare-and-set only.
type ReservationEngine struct {
	registry      repositories.ResourceRegistry
	reservations  repositories.ReservationRepository
	indexes       *IndexSet
	authorizer    providers.Authorizer
	clock         providers.Clock
	locker        providers.Locker
	notifier      *EventNotifier
	metrics       *observability.Metrics
	initialStatus entities.ReservationStatus
	lockTTL       time.Duration
}

// NewReservationEngine creates a reservation engine. initialStatus is pending
// or active; lockTTL bounds the cross-process lock lease.
func NewReservationEngine(deps ReservationEngineDeps, initialStatus entities.ReservationStatus, lockTTL time.Duration) *ReservationEngine {
	if initialStatus != entities.ReservationStatusActive {
		initialStatus = entities.ReservationStatusPending
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = providers.SystemClock{}
	}
	return &ReservationEngine{
		registry:      deps.Registry,
		reservations:  deps.Reservations,
		indexes:       deps.Indexes,
		authorizer:    deps.Authorizer,
		clock:         deps.Clock,
		locker:        deps.Locker,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		initialStatus: initialStatus,
		lockTTL:       lockTTL,
	}
}

// registryConflict marks a lost compare-and-set on the resource registry, the
// one failure Reserve retries
type registryConflict struct {
	err error
}

func (c *registryConflict) Error() string { return c.err.Error() }
func (c *registryConflict) Unwrap() error { return c.err }

func isRegistryConflict(err error) bool {
	var rc *registryConflict
	return errors.As(err, &rc)
}

// lockResource takes the in-process lock for a resource and, when a Locker is
// configured, the cross-process one. The cross-process lock never waits; a
// held lock is reported as a conflict. Once it is held the cached index is
// rebuilt, since another process may have booked the resource.
func lockResource(ctx context.Context, indexes *IndexSet, locker providers.Locker, ttl time.Duration, resourceID string) (func(), error) {
	unlock := indexes.Lock(resourceID)
	if locker == nil {
		return unlock, nil
	}

	release, ok, err := locker.TryLock(ctx, "resource:"+resourceID, ttl)
	if err != nil {
		unlock()
		return nil, apperrors.NewExternalError("failed to acquire resource lock", err)
	}
	if !ok {
		unlock()
		return nil, apperrors.NewConflictError(fmt.Sprintf("resource %s is being modified by another process", resourceID), resourceID)
	}
	if _, err := indexes.Reload(ctx, resourceID); err != nil {
		release()
		unlock()
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

func (e *ReservationEngine) lock(ctx context.Context, resourceID string) (func(), error) {
	return lockResource(ctx, e.indexes, e.locker, e.lockTTL, resourceID)
}

// Reserve validates and commits a reservation
func (e *ReservationEngine) Reserve(ctx context.Context, req ReserveRequest) (r *entities.Reservation, err error) {
	ctx, span := observability.StartSpan(ctx, "ReservationEngine.Reserve")
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("resource.id", req.ResourceID))

	now := e.clock.Now()
	defer func() {
		observability.RecordOperation(ctx, e.metrics, "reserve", e.clock.Now().Sub(now), err)
		if err != nil {
			observability.RecordError(span, err)
		}
	}()

	if err := e.validate(req, now); err != nil {
		return nil, err
	}

	resource, err := e.registry.Get(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if !resource.Kind.Reservable() {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("%s resources are allocated through dispatch, not reservations", resource.Kind))
	}
	if req.Backdated && resource.Kind != entities.ResourceKindBed {
		return nil, apperrors.NewValidationError("only bed occupancy can be recorded retroactively")
	}

	unlock, err := e.lock(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := observability.ComponentLogger(ctx, "reservation_engine")
	err = retry.DoWithLog(ctx, retry.Once(isRegistryConflict), "reserve", func() error {
		var attemptErr error
		r, attemptErr = e.reserveOnce(ctx, req, now)
		return attemptErr
	}, func(attempt int, err error, _ time.Duration) {
		logger.Warn().Err(err).Str("resource_id", req.ResourceID).Int("attempt", attempt).Msg("registry changed concurrently, retrying reservation")
		observability.RecordCASRetry(ctx, e.metrics, string(resource.Kind))
	})
	if err != nil {
		if isRegistryConflict(err) {
			err = apperrors.NewConflictError(
				fmt.Sprintf("resource %s changed concurrently", req.ResourceID), req.ResourceID)
		}
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			observability.RecordConflict(ctx, e.metrics, "reserve")
			logger.Info().Str("resource_id", req.ResourceID).Strs("conflicts", apperrors.ConflictIDs(err)).Msg("reservation conflict")
		}
		return nil, err
	}

	observability.RecordReservationCreated(ctx, e.metrics, string(r.ResourceKind), string(r.Status))
	e.emit(ctx, entities.EventReservationCreated, r, "", req.RequesterID)
	return r, nil
}

func (e *ReservationEngine) validate(req ReserveRequest, now time.Time) error {
	if req.ResourceID == "" {
		return apperrors.NewValidationError("resource id is required")
	}
	if req.RequesterID == "" {
		return apperrors.NewValidationError("requester id is required")
	}
	if !req.Holder.Kind.Valid() || req.Holder.ID == "" {
		return apperrors.NewValidationError("holder must be a patient, doctor, facility or user reference")
	}
	if !req.Window.Valid() {
		return apperrors.NewInvalidWindowError(fmt.Sprintf("window %s is empty or inverted", req.Window))
	}
	if !req.Backdated && req.Window.From.Before(now) {
		return apperrors.NewInvalidWindowError(fmt.Sprintf("window %s starts in the past", req.Window))
	}
	if req.Backdated && !req.Window.Contains(now) {
		return apperrors.NewInvalidWindowError(fmt.Sprintf("backdated window %s must cover the current time", req.Window))
	}
	return nil
}

// reserveOnce is one attempt of check, index insert, registry CAS, persist.
// Every failure leaves the index and registry as they were.
func (e *ReservationEngine) reserveOnce(ctx context.Context, req ReserveRequest, now time.Time) (*entities.Reservation, error) {
	resource, err := e.registry.Get(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	ix, err := e.indexes.Get(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	if err := e.expireOverlapping(ctx, ix, req.Window, now); err != nil {
		return nil, err
	}

	status := e.initialStatus
	if req.Backdated {
		status = entities.ReservationStatusInUse
	}
	if conflict := checkAvailability(ix, req.Window, status, ""); conflict != nil {
		if e.locker != nil {
			return nil, conflict
		}
		if ix, err = e.refreshAvailability(ctx, req.ResourceID, req.Window, status, ""); err != nil {
			return nil, err
		}
	}

	r := &entities.Reservation{
		ID:           uuid.NewString(),
		ResourceID:   resource.ID,
		ResourceKind: resource.Kind,
		RequesterID:  req.RequesterID,
		Holder:       req.Holder,
		Window:       req.Window,
		Status:       status,
		Reason:       req.Reason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if status == entities.ReservationStatusInUse {
		r.CheckedInAt = &now
	}

	if err := ix.Insert(interval.Entry{ID: r.ID, Window: r.Window, Status: string(r.Status)}); err != nil {
		return nil, apperrors.NewInternalError("failed to index reservation", err)
	}

	revert := func() {}
	if target, ok := immediateStatus(resource, r, now); ok {
		if _, err := e.registry.SetStatus(ctx, resource.ID, target, entities.ResourceStatusAvailable); err != nil {
			ix.Remove(r.ID)
			if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
				return nil, &registryConflict{err: err}
			}
			return nil, err
		}
		revert = func() { e.restoreRegistry(ctx, resource.ID, entities.ResourceStatusAvailable, target) }
	}

	if err := e.reservations.Create(ctx, r); err != nil {
		ix.Remove(r.ID)
		revert()
		return nil, e.storeConflict(ctx, r, "", err)
	}
	return r, nil
}

// refreshAvailability reloads the resource's index from storage and checks w
// against it. Without a cross-process lock the cached index can lag behind
// other replicas in both directions, so conflicts are confirmed against
// committed state.
func (e *ReservationEngine) refreshAvailability(ctx context.Context, resourceID string, w entities.TimeWindow, status entities.ReservationStatus, self string) (*interval.Index, error) {
	ix, err := e.indexes.Reload(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return ix, checkAvailability(ix, w, status, self)
}

// storeConflict turns a conflict raised by the reservation store, typically
// its overlap constraint firing on a booking this replica had not seen, into
// one naming the reservations in the way. Other errors pass through.
func (e *ReservationEngine) storeConflict(ctx context.Context, r *entities.Reservation, self string, err error) error {
	if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		return err
	}
	if _, conflict := e.refreshAvailability(ctx, r.ResourceID, r.Window, r.Status, self); apperrors.IsType(conflict, apperrors.ErrorTypeConflict) {
		return conflict
	}
	return err
}

// expireOverlapping lazily expires overdue reservations that overlap w, so a
// backdated booking is not refused over a hold the sweep has not reached yet
func (e *ReservationEngine) expireOverlapping(ctx context.Context, ix *interval.Index, w entities.TimeWindow, now time.Time) error {
	for _, entry := range ix.QueryOverlap(w) {
		if !entities.ReservationStatus(entry.Status).Expirable() || now.Before(entry.Window.Until) {
			continue
		}
		r, err := e.reservations.GetByID(ctx, entry.ID)
		if err != nil {
			return err
		}
		if r.Overdue(now) {
			if _, err := e.expire(ctx, r, now, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkAvailability fails with a conflict naming every blocking reservation
// that overlaps w, or an existing live reservation with the same window and
// status. self is skipped so a reservation does not conflict with itself.
func checkAvailability(ix *interval.Index, w entities.TimeWindow, status entities.ReservationStatus, self string) error {
	var conflicts []string
	for _, entry := range ix.QueryOverlap(w) {
		if entry.ID == self {
			continue
		}
		st := entities.ReservationStatus(entry.Status)
		if st.Blocking() || (st == status && entry.Window.Equal(w)) {
			conflicts = append(conflicts, entry.ID)
		}
	}
	if len(conflicts) > 0 {
		return apperrors.NewConflictError(fmt.Sprintf("window %s is already booked", w), conflicts...)
	}
	return nil
}

// immediateStatus is the registry status r implies right now, if any. A
// checked-in holder occupies the resource; a blocking reservation whose
// window covers now holds a bed.
func immediateStatus(resource *entities.Resource, r *entities.Reservation, now time.Time) (entities.ResourceStatus, bool) {
	if r.Status == entities.ReservationStatusInUse {
		return resource.OccupiedStatus()
	}
	if r.Status.Blocking() && r.Window.Contains(now) {
		return resource.HeldStatus()
	}
	return "", false
}

// restoreRegistry undoes a registry CAS made earlier in the same operation
func (e *ReservationEngine) restoreRegistry(ctx context.Context, resourceID string, to, from entities.ResourceStatus) {
	if _, err := e.registry.SetStatus(ctx, resourceID, to, from); err != nil {
		observability.ComponentLogger(ctx, "reservation_engine").Error().Err(err).
			Str("resource_id", resourceID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("failed to restore registry status")
	}
}

// releaseRegistry moves the resource back to available after r stopped
// holding it, unless another blocking reservation covers now
func (e *ReservationEngine) releaseRegistry(ctx context.Context, ix *interval.Index, r *entities.Reservation, held entities.ResourceStatus, now time.Time) {
	for _, entry := range ix.QueryOverlap(entities.Instant(now)) {
		if entry.ID != r.ID && entities.ReservationStatus(entry.Status).Blocking() {
			return
		}
	}
	if _, err := e.registry.SetStatus(ctx, r.ResourceID, entities.ResourceStatusAvailable, held); err != nil {
		observability.ComponentLogger(ctx, "reservation_engine").Warn().Err(err).
			Str("resource_id", r.ResourceID).
			Str("reservation_id", r.ID).
			Msg("registry not released")
	}
}

// releaseAfter frees the registry once r reached a terminal status from prev.
// Only a status r itself was holding is released; completion sends the
// resource through its post-use status, everything else back to available.
func (e *ReservationEngine) releaseAfter(ctx context.Context, ix *interval.Index, resource *entities.Resource, r *entities.Reservation, prev entities.ReservationStatus, now time.Time) {
	before := *r
	before.Status = prev
	held, ok := immediateStatus(resource, &before, now)
	if !ok || resource.Status != held {
		return
	}
	if r.Status != entities.ReservationStatusCompleted {
		e.releaseRegistry(ctx, ix, r, held, now)
		return
	}
	if _, err := e.registry.SetStatus(ctx, r.ResourceID, resource.ReleasedStatus(), held); err != nil {
		observability.ComponentLogger(ctx, "reservation_engine").Warn().Err(err).
			Str("resource_id", r.ResourceID).
			Msg("registry not released after completion")
	}
}

// Cancel cancels a non-terminal reservation. Cancelling twice returns the
// cancelled reservation without error.
func (e *ReservationEngine) Cancel(ctx context.Context, id, actorID string) (*entities.Reservation, error) {
	ctx, span := observability.StartSpan(ctx, "ReservationEngine.Cancel")
	defer span.End()

	return e.transition(ctx, id, actorID, entities.ReservationStatusCancelled, "")
}

// Approve approves a pending or active reservation. Pending reservations do
// not block, so the window is checked again before it starts blocking.
func (e *ReservationEngine) Approve(ctx context.Context, id, actorID string) (*entities.Reservation, error) {
	ctx, span := observability.StartSpan(ctx, "ReservationEngine.Approve")
	defer span.End()

	if err := e.authorizer.Authorize(ctx, actorID, providers.ActionReservationApprove); err != nil {
		return nil, err
	}
	return e.transition(ctx, id, actorID, entities.ReservationStatusApproved, "")
}

// Reject rejects a pending reservation. A reason is required.
func (e *ReservationEngine) Reject(ctx context.Context, id, actorID, reason string) (*entities.Reservation, error) {
	ctx, span := observability.StartSpan(ctx, "ReservationEngine.Reject")
	defer span.End()

	if reason == "" {
		return nil, apperrors.NewValidationError("a rejection reason is required")
	}
	if err := e.authorizer.Authorize(ctx, actorID, providers.ActionReservationReject); err != nil {
		return nil, err
	}
	return e.transition(ctx, id, actorID, entities.ReservationStatusRejected, reason)
}

// CheckIn records that the holder has taken the resource
func (e *ReservationEngine) CheckIn(ctx context.Context, id, actorID string) (*entities.Reservation, error) {
	ctx, span := observability.StartSpan(ctx, "ReservationEngine.CheckIn")
	defer span.End()

	return e.transition(ctx, id, actorID, entities.ReservationStatusInUse, "")
}

// Complete records that the holder has released the resource
func (e *ReservationEngine) Complete(ctx context.Context, id, actorID string) (*entities.Reservation, error) {
	ctx, span := observability.StartSpan(ctx, "ReservationEngine.Complete")
	defer span.End()

	return e.transition(ctx, id, actorID, entities.ReservationStatusCompleted, "")
}

// transition drives one edge of the state machine under the resource lock.
// Invoking the edge a reservation already took is a no-op.
func (e *ReservationEngine) transition(ctx context.Context, id, actorID string, next entities.ReservationStatus, reason string) (*entities.Reservation, error) {
	r, err := e.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lock(ctx, r.ResourceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// reread under the lock
	if r, err = e.reservations.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if r.Status == next {
		return r, nil
	}

	now := e.clock.Now()
	if r.Overdue(now) {
		r, err = e.expire(ctx, r, now, true)
		if err != nil {
			return nil, err
		}
	}
	if !r.Status.CanTransitionTo(next) {
		return nil, apperrors.NewInvalidTransitionError("reservation", string(r.Status), string(next))
	}

	resource, err := e.registry.Get(ctx, r.ResourceID)
	if err != nil {
		return nil, err
	}
	ix, err := e.indexes.Get(ctx, r.ResourceID)
	if err != nil {
		return nil, err
	}

	prev := r.Status
	switch next {
	case entities.ReservationStatusApproved:
		if !now.Before(r.Window.Until) {
			return nil, apperrors.NewInvalidWindowError(fmt.Sprintf("window %s has already ended", r.Window))
		}
		if conflict := checkAvailability(ix, r.Window, next, r.ID); conflict != nil {
			if e.locker == nil {
				ix, conflict = e.refreshAvailability(ctx, r.ResourceID, r.Window, next, r.ID)
			}
			if conflict != nil {
				observability.RecordConflict(ctx, e.metrics, "approve")
				return nil, conflict
			}
		}
	case entities.ReservationStatusInUse:
		if now.Before(r.Window.From) {
			return nil, apperrors.NewInvalidWindowError(fmt.Sprintf("window %s has not started", r.Window))
		}
	}

	r.Apply(next, now)
	if reason != "" {
		r.RejectionReason = reason
	}

	var revert func()
	if !r.Status.Terminal() {
		if target, ok := immediateStatus(resource, r, now); ok && resource.Status != target {
			from := resource.Status
			held, canHold := resource.HeldStatus()
			if from != entities.ResourceStatusAvailable && !(canHold && from == held) {
				observability.RecordConflict(ctx, e.metrics, string(next))
				return nil, apperrors.NewConflictError(fmt.Sprintf("resource %s is %s", r.ResourceID, from), r.ResourceID)
			}
			if _, err := e.registry.SetStatus(ctx, r.ResourceID, target, from); err != nil {
				observability.RecordConflict(ctx, e.metrics, string(next))
				return nil, err
			}
			revert = func() { e.restoreRegistry(ctx, r.ResourceID, from, target) }
		}
	}

	if err := e.reservations.UpdateStatus(ctx, r, prev); err != nil {
		if revert != nil {
			revert()
		}
		if next.Blocking() && !prev.Blocking() {
			return nil, e.storeConflict(ctx, r, r.ID, err)
		}
		return nil, err
	}

	if r.Status.Terminal() {
		ix.Remove(r.ID)
		e.releaseAfter(ctx, ix, resource, r, prev, now)
	} else {
		ix.Update(r.ID, string(r.Status))
	}

	observability.RecordTransition(ctx, e.metrics, string(entities.AggregateReservation), string(next))
	e.emit(ctx, entities.EventReservationStatusChanged, r, prev, actorID)
	return r, nil
}

// Get returns a reservation, expiring it first if its window passed without a
// check-in
func (e *ReservationEngine) Get(ctx context.Context, id string) (*entities.Reservation, error) {
	r, err := e.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if !r.Overdue(now) {
		return r, nil
	}

	unlock, err := e.lock(ctx, r.ResourceID)
	if err != nil {
		// someone else is working on the resource; report what we read
		return r, nil
	}
	defer unlock()

	if r, err = e.reservations.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if !r.Overdue(now) {
		return r, nil
	}
	return e.expire(ctx, r, now, true)
}

// ListByResource lists a resource's reservations
func (e *ReservationEngine) ListByResource(ctx context.Context, resourceID string, filter repositories.ReservationFilter) ([]*entities.Reservation, error) {
	return e.reservations.ListByResource(ctx, resourceID, filter)
}

// ExpireDue expires every approved or active reservation whose window ended
// without a check-in and returns how many it expired. A reservation that a
// concurrent check-in claimed first is skipped.
func (e *ReservationEngine) ExpireDue(ctx context.Context) (int, error) {
	ctx, span := observability.StartSpan(ctx, "ReservationEngine.ExpireDue")
	defer span.End()

	now := e.clock.Now()
	due, err := e.reservations.ListOverdue(ctx, now, overdueBatchSize)
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}

	logger := observability.ComponentLogger(ctx, "reservation_engine")
	expired := 0
	var errs []error
	for _, candidate := range due {
		ok, err := e.expireOne(ctx, candidate, now)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
				logger.Debug().Err(err).Str("reservation_id", candidate.ID).Msg("skipping reservation claimed concurrently")
				continue
			}
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}
	observability.SetSpanAttributes(span, attribute.Int("reservations.expired", expired))
	return expired, errors.Join(errs...)
}

func (e *ReservationEngine) expireOne(ctx context.Context, candidate *entities.Reservation, now time.Time) (bool, error) {
	unlock, err := e.lock(ctx, candidate.ResourceID)
	if err != nil {
		return false, err
	}
	defer unlock()

	r, err := e.reservations.GetByID(ctx, candidate.ID)
	if err != nil {
		return false, err
	}
	if !r.Overdue(now) {
		return false, nil
	}
	r, err = e.expire(ctx, r, now, false)
	if err != nil {
		return false, err
	}
	return r.Status == entities.ReservationStatusExpired, nil
}

// expire moves an overdue reservation to expired with a compare-and-set on its
// status; the caller holds the resource lock. A lost race returns the winner's
// state.
func (e *ReservationEngine) expire(ctx context.Context, r *entities.Reservation, now time.Time, lazy bool) (*entities.Reservation, error) {
	prev := r.Status
	r.Apply(entities.ReservationStatusExpired, now)
	if err := e.reservations.UpdateStatus(ctx, r, prev); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return e.reservations.GetByID(ctx, r.ID)
		}
		return nil, err
	}

	ix, err := e.indexes.Get(ctx, r.ResourceID)
	if err != nil {
		return nil, err
	}
	ix.Remove(r.ID)

	// a bed held by this reservation is released once nothing else covers now
	if resource, err := e.registry.Get(ctx, r.ResourceID); err == nil {
		if held, ok := resource.HeldStatus(); ok && resource.Status == held {
			e.releaseRegistry(ctx, ix, r, held, now)
		}
	}

	observability.RecordExpiration(ctx, e.metrics, lazy)
	observability.ComponentLogger(ctx, "reservation_engine").Info().
		Str("reservation_id", r.ID).
		Str("resource_id", r.ResourceID).
		Bool("lazy", lazy).
		Msg("reservation expired")
	e.emit(ctx, entities.EventReservationStatusChanged, r, prev, "")
	return r, nil
}

func (e *ReservationEngine) emit(ctx context.Context, eventType entities.DomainEventType, r *entities.Reservation, prev entities.ReservationStatus, actorID string) {
	event := entities.NewDomainEvent(eventType, entities.AggregateReservation, r.ID, r.UpdatedAt)
	event.ResourceID = r.ResourceID
	event.Status = string(r.Status)
	event.PreviousStatus = string(prev)
	event.ActorID = actorID
	event.Recipients = []entities.Notifiable{
		r.Holder,
		{Kind: entities.NotifiableUser, ID: r.RequesterID},
	}
	event.Data = entities.Attributes{
		"resource_kind": string(r.ResourceKind),
		"window_from":   r.Window.From,
		"window_until":  r.Window.Until,
	}
	if r.RejectionReason != "" {
		event.Data["rejection_reason"] = r.RejectionReason
	}
	e.notifier.Notify(ctx, event)
}
