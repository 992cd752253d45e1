package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/domain/repositories"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// ResourceService covers the registry changes staff make by hand: a cleaned
// bed going back into service, equipment sent to maintenance, an ambulance
// taken off the road. Statuses owned by live reservations and dispatches are
// off limits here.
type ResourceService struct {
	registry   repositories.ResourceRegistry
	authorizer providers.Authorizer
	clock      providers.Clock
	notifier   *EventNotifier
	metrics    *observability.Metrics
}

// NewResourceService creates a resource service
func NewResourceService(
	registry repositories.ResourceRegistry,
	authorizer providers.Authorizer,
	clock providers.Clock,
	notifier *EventNotifier,
	metrics *observability.Metrics,
) *ResourceService {
	if clock == nil {
		clock = providers.SystemClock{}
	}
	return &ResourceService{
		registry:   registry,
		authorizer: authorizer,
		clock:      clock,
		notifier:   notifier,
		metrics:    metrics,
	}
}

// Get returns a resource
func (s *ResourceService) Get(ctx context.Context, id string) (*entities.Resource, error) {
	return s.registry.Get(ctx, id)
}

// SetStatus moves a resource from expected to next with a compare-and-set.
// An empty expected means the status read just before the write. Asking for
// the status the resource already has is a no-op.
func (s *ResourceService) SetStatus(ctx context.Context, id string, next, expected entities.ResourceStatus, actorID string) (res *entities.Resource, err error) {
	ctx, span := observability.StartSpan(ctx, "ResourceService.SetStatus")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("resource.id", id),
		attribute.String("resource.status", string(next)),
	)
	defer func() {
		if err != nil {
			observability.RecordError(span, err)
		}
	}()

	if err := s.authorizer.Authorize(ctx, actorID, providers.ActionResourceStatus); err != nil {
		return nil, err
	}

	current, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Kind.ValidStatus(next) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%q is not a %s status", next, current.Kind))
	}
	if expected == "" {
		expected = current.Status
	} else if !current.Kind.ValidStatus(expected) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%q is not a %s status", expected, current.Kind))
	}
	if next.Allocated() || expected.Allocated() {
		return nil, apperrors.NewInvalidTransitionError("resource", string(expected), string(next))
	}
	if current.Status == next && expected == next {
		return current, nil
	}

	res, err = s.registry.SetStatus(ctx, id, next, expected)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			observability.RecordConflict(ctx, s.metrics, "resource.status")
		}
		return nil, err
	}

	observability.RecordTransition(ctx, s.metrics, string(entities.AggregateResource), string(next))
	event := entities.NewDomainEvent(entities.EventResourceStatusChanged, entities.AggregateResource, res.ID, s.clock.Now())
	event.ResourceID = res.ID
	event.Status = string(res.Status)
	event.PreviousStatus = string(expected)
	event.ActorID = actorID
	event.Data = entities.Attributes{"kind": string(res.Kind)}
	s.notifier.Notify(ctx, event)

	observability.ComponentLogger(ctx, "resource_service").Info().
		Str("resource_id", res.ID).
		Str("from", string(expected)).
		Str("to", string(res.Status)).
		Str("actor_id", actorID).
		Msg("resource status changed")
	return res, nil
}
