package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// WorkflowEngine drives transfer and disposal requests through their approval
// chains. Who may take a step is the Authorizer's call; the engine only
// enforces ordering and idempotency.
type WorkflowEngine struct {
	registry   repositories.ResourceRegistry
	requests   repositories.WorkflowRepository
	authorizer providers.Authorizer
	clock      providers.Clock
	notifier   *EventNotifier
	metrics    *observability.Metrics
	locks      keyedMutex
}

// NewWorkflowEngine creates a workflow engine
func NewWorkflowEngine(
	registry repositories.ResourceRegistry,
	requests repositories.WorkflowRepository,
	authorizer providers.Authorizer,
	clock providers.Clock,
	notifier *EventNotifier,
	metrics *observability.Metrics,
) *WorkflowEngine {
	if clock == nil {
		clock = providers.SystemClock{}
	}
	return &WorkflowEngine{
		registry:   registry,
		requests:   requests,
		authorizer: authorizer,
		clock:      clock,
		notifier:   notifier,
		metrics:    metrics,
	}
}

// RequestTransfer opens a transfer of subjectID to another facility
func (e *WorkflowEngine) RequestTransfer(ctx context.Context, subjectID, requestedBy, reason string, details entities.TransferDetails) (*entities.WorkflowRequest, error) {
	if details.ToFacilityID == "" {
		return nil, apperrors.NewValidationError("destination facility is required")
	}
	return e.open(ctx, entities.WorkflowKindTransfer, subjectID, requestedBy, reason, func(w *entities.WorkflowRequest, r *entities.Resource) error {
		if details.FromFacilityID == "" {
			details.FromFacilityID = r.FacilityID
		}
		if details.FromFacilityID != r.FacilityID {
			return apperrors.NewValidationError(fmt.Sprintf("resource %s is not at facility %s", r.ID, details.FromFacilityID))
		}
		if details.ToFacilityID == r.FacilityID && details.ToDepartmentID == nil {
			return apperrors.NewValidationError("transfer destination equals the current location")
		}
		w.Transfer = &details
		return nil
	})
}

// RequestDisposal opens a disposal of subjectID
func (e *WorkflowEngine) RequestDisposal(ctx context.Context, subjectID, requestedBy, reason string, details entities.DisposalDetails) (*entities.WorkflowRequest, error) {
	if details.Method == "" {
		return nil, apperrors.NewValidationError("disposal method is required")
	}
	return e.open(ctx, entities.WorkflowKindDisposal, subjectID, requestedBy, reason, func(w *entities.WorkflowRequest, _ *entities.Resource) error {
		w.Disposal = &details
		return nil
	})
}

func (e *WorkflowEngine) open(
	ctx context.Context,
	kind entities.WorkflowKind,
	subjectID, requestedBy, reason string,
	fill func(*entities.WorkflowRequest, *entities.Resource) error,
) (w *entities.WorkflowRequest, err error) {
	ctx, span := observability.StartSpan(ctx, "WorkflowEngine.Request")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("workflow.kind", string(kind)),
		attribute.String("resource.id", subjectID),
	)

	now := e.clock.Now()
	defer func() {
		observability.RecordOperation(ctx, e.metrics, string(kind)+".request", e.clock.Now().Sub(now), err)
		if err != nil {
			observability.RecordError(span, err)
		}
	}()

	if requestedBy == "" {
		return nil, apperrors.NewValidationError("requester is required")
	}

	unlock := e.locks.Lock(subjectID)
	defer unlock()

	resource, err := e.registry.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if existing, err := e.requests.GetOpenBySubject(ctx, subjectID); err == nil {
		observability.RecordConflict(ctx, e.metrics, string(kind)+".request")
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("resource %s already has an open %s request", subjectID, existing.Kind), existing.ID)
	} else if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return nil, err
	}

	w = &entities.WorkflowRequest{
		ID:                uuid.NewString(),
		Kind:              kind,
		SubjectResourceID: resource.ID,
		RequestedBy:       requestedBy,
		Reason:            reason,
		Status:            entities.WorkflowStatusPending,
		RequestedAt:       now,
		UpdatedAt:         now,
	}
	if err := fill(w, resource); err != nil {
		return nil, err
	}
	if err := e.requests.Create(ctx, w); err != nil {
		return nil, err
	}

	observability.ComponentLogger(ctx, "workflow_engine").Info().
		Str("workflow_id", w.ID).
		Str("kind", string(kind)).
		Str("resource_id", subjectID).
		Str("requested_by", requestedBy).
		Msg("workflow requested")
	observability.RecordTransition(ctx, e.metrics, string(kind), string(w.Status))
	e.emit(ctx, w, "", requestedBy)
	return w, nil
}

// Approve moves a pending request to approved
func (e *WorkflowEngine) Approve(ctx context.Context, id, actorID string) (*entities.WorkflowRequest, error) {
	return e.step(ctx, id, actorID, providers.ActionWorkflowApprove, entities.WorkflowStatusApproved, "")
}

// Reject ends a request from any non-terminal step. A reason is required.
func (e *WorkflowEngine) Reject(ctx context.Context, id, actorID, reason string) (*entities.WorkflowRequest, error) {
	if reason == "" {
		return nil, apperrors.NewValidationError("a rejection reason is required")
	}
	return e.step(ctx, id, actorID, providers.ActionWorkflowReject, entities.WorkflowStatusRejected, reason)
}

// MarkInTransit records that a transferred resource has left its facility
func (e *WorkflowEngine) MarkInTransit(ctx context.Context, id, actorID string) (*entities.WorkflowRequest, error) {
	return e.step(ctx, id, actorID, providers.ActionWorkflowDispatch, entities.WorkflowStatusInTransit, "")
}

// Complete finishes the request and applies its effect on the registry: a
// transfer relocates the resource, a disposal retires it.
func (e *WorkflowEngine) Complete(ctx context.Context, id, actorID string) (*entities.WorkflowRequest, error) {
	return e.step(ctx, id, actorID, providers.ActionWorkflowComplete, entities.WorkflowStatusCompleted, "")
}

// Verify confirms a completed disposal
func (e *WorkflowEngine) Verify(ctx context.Context, id, actorID string) (*entities.WorkflowRequest, error) {
	return e.step(ctx, id, actorID, providers.ActionWorkflowVerify, entities.WorkflowStatusVerified, "")
}

// Get returns a request by id
func (e *WorkflowEngine) Get(ctx context.Context, id string) (*entities.WorkflowRequest, error) {
	return e.requests.GetByID(ctx, id)
}

func (e *WorkflowEngine) step(
	ctx context.Context,
	id, actorID string,
	action providers.Action,
	target entities.WorkflowStatus,
	reason string,
) (w *entities.WorkflowRequest, err error) {
	ctx, span := observability.StartSpan(ctx, "WorkflowEngine."+string(target))
	defer span.End()
	observability.SetSpanAttributes(span, attribute.String("workflow.id", id))

	start := e.clock.Now()
	defer func() {
		observability.RecordOperation(ctx, e.metrics, "workflow."+string(target), e.clock.Now().Sub(start), err)
		if err != nil {
			observability.RecordError(span, err)
		}
	}()

	if err := e.authorizer.Authorize(ctx, actorID, action); err != nil {
		return nil, err
	}

	w, err = e.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(w.SubjectResourceID)
	defer unlock()

	// reread under the subject lock
	if w, err = e.requests.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if w.Status == target {
		return w, nil
	}
	if err := checkStep(w, target); err != nil {
		return nil, err
	}

	if target == entities.WorkflowStatusCompleted {
		if err := e.applyCompletion(ctx, w); err != nil {
			return nil, err
		}
	}

	now := e.clock.Now()
	prev := w.Status
	w.Apply(target, actorID, now)
	if target == entities.WorkflowStatusRejected {
		w.RejectionReason = reason
	}
	if err := e.requests.Update(ctx, w, prev); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			observability.RecordConflict(ctx, e.metrics, "workflow."+string(target))
		}
		return nil, err
	}

	observability.ComponentLogger(ctx, "workflow_engine").Info().
		Str("workflow_id", w.ID).
		Str("kind", string(w.Kind)).
		Str("from", string(prev)).
		Str("to", string(target)).
		Str("actor_id", actorID).
		Msg("workflow advanced")
	observability.RecordTransition(ctx, e.metrics, string(w.Kind), string(target))
	e.emit(ctx, w, prev, actorID)
	return w, nil
}

// checkStep allows the immediate successor in the kind's chain, or rejection
// from any non-terminal step before completion
func checkStep(w *entities.WorkflowRequest, target entities.WorkflowStatus) error {
	invalid := apperrors.NewInvalidTransitionError(string(w.Kind), string(w.Status), string(target))
	if w.Kind.Terminal(w.Status) {
		return invalid
	}
	if target == entities.WorkflowStatusRejected {
		if w.Status == entities.WorkflowStatusCompleted {
			return invalid
		}
		return nil
	}
	if w.Kind.Rank(target) < 0 {
		return invalid
	}
	if next, ok := w.Kind.Next(w.Status); !ok || next != target {
		return invalid
	}
	return nil
}

func (e *WorkflowEngine) applyCompletion(ctx context.Context, w *entities.WorkflowRequest) error {
	resource, err := e.registry.Get(ctx, w.SubjectResourceID)
	if err != nil {
		return err
	}

	switch w.Kind {
	case entities.WorkflowKindTransfer:
		if w.Transfer == nil {
			return apperrors.NewInternalError(fmt.Sprintf("transfer %s has no destination", w.ID), nil)
		}
		_, err = e.registry.Relocate(ctx, resource.ID, w.Transfer.ToFacilityID, w.Transfer.ToDepartmentID, resource.Version)
		return err
	case entities.WorkflowKindDisposal:
		retired := resource.RetiredStatus()
		switch resource.Status {
		case retired:
			return nil
		case entities.ResourceStatusAvailable, entities.ResourceStatusMaintenance, entities.BedStatusCleaning:
		default:
			return apperrors.NewConflictError(
				fmt.Sprintf("resource %s is %s and cannot be retired", resource.ID, resource.Status), resource.ID)
		}
		_, err = e.registry.SetStatus(ctx, resource.ID, retired, resource.Status)
		return err
	}
	return nil
}

func (e *WorkflowEngine) emit(ctx context.Context, w *entities.WorkflowRequest, prev entities.WorkflowStatus, actorID string) {
	event := entities.NewDomainEvent(workflowEventType(w.Kind, w.Status), entities.AggregateWorkflow, w.ID, w.UpdatedAt)
	event.ResourceID = w.SubjectResourceID
	event.Status = string(w.Status)
	event.PreviousStatus = string(prev)
	event.ActorID = actorID
	event.Recipients = []entities.Notifiable{{Kind: entities.NotifiableUser, ID: w.RequestedBy}}
	event.Data = entities.Attributes{"kind": string(w.Kind)}
	if w.RejectionReason != "" {
		event.Data["rejection_reason"] = w.RejectionReason
	}
	if w.Transfer != nil {
		event.Data["to_facility_id"] = w.Transfer.ToFacilityID
	}
	e.notifier.Notify(ctx, event)
}

func workflowEventType(kind entities.WorkflowKind, status entities.WorkflowStatus) entities.DomainEventType {
	transfer := kind == entities.WorkflowKindTransfer
	switch status {
	case entities.WorkflowStatusPending:
		if transfer {
			return entities.EventTransferRequested
		}
		return entities.EventDisposalRequested
	case entities.WorkflowStatusApproved:
		if transfer {
			return entities.EventTransferApproved
		}
		return entities.EventDisposalApproved
	}
	if transfer {
		return entities.EventTransferStatusChanged
	}
	return entities.EventDisposalStatusChanged
}
