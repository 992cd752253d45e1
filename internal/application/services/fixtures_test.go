package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medlogistics/backend/internal/adapters/memory"
	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
)

var base = time.Date(2025, time.March, 1, 6, 0, 0, 0, time.UTC)

// at returns base's day at hour:minute
func at(hour, minute int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, time.UTC)
}

func window(fromHour, untilHour int) entities.TimeWindow {
	return entities.NewTimeWindow(at(fromHour, 0), at(untilHour, 0))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// MockAuthorizer is a testify mock of providers.Authorizer
type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(ctx context.Context, actorID string, action providers.Action) error {
	args := m.Called(ctx, actorID, action)
	return args.Error(0)
}

// MockPublisher is a testify mock of providers.EventPublisher that also
// records what it was given
type MockPublisher struct {
	mock.Mock
	mu     sync.Mutex
	events []*entities.DomainEvent
}

func (m *MockPublisher) Publish(ctx context.Context, event *entities.DomainEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return nil
}

func (m *MockPublisher) Events() []*entities.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entities.DomainEvent(nil), m.events...)
}

func (m *MockPublisher) Types() []entities.DomainEventType {
	var out []entities.DomainEventType
	for _, e := range m.Events() {
		out = append(out, e.Type)
	}
	return out
}

func acceptingPublisher() *MockPublisher {
	p := &MockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil)
	return p
}

type harness struct {
	clock        *fakeClock
	registry     *memory.ResourceRegistry
	reservations *memory.ReservationRepository
	dispatches   *memory.DispatchRepository
	crews        *memory.CrewRepository
	workflows    *memory.WorkflowRepository
	publisher    *MockPublisher
	notifier     *services.EventNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:        newFakeClock(base),
		registry:     memory.NewResourceRegistry(),
		reservations: memory.NewReservationRepository(),
		dispatches:   memory.NewDispatchRepository(),
		crews:        memory.NewCrewRepository(),
		workflows:    memory.NewWorkflowRepository(),
		publisher:    acceptingPublisher(),
	}
	h.notifier = services.NewEventNotifier(h.publisher, 64, nil)
	t.Cleanup(func() { _ = h.notifier.Close(context.Background()) })
	return h
}

// flush waits for queued events to reach the publisher
func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.notifier.Close(ctx))
}

func (h *harness) addResource(t *testing.T, id string, kind entities.ResourceKind) {
	t.Helper()
	require.NoError(t, h.registry.Create(context.Background(), &entities.Resource{
		ID:         id,
		Kind:       kind,
		FacilityID: "fac-1",
		Label:      id,
		Status:     entities.ResourceStatusAvailable,
		CreatedAt:  base,
		UpdatedAt:  base,
	}))
}

func (h *harness) addCrew(t *testing.T, id string, role entities.CrewRole) {
	t.Helper()
	require.NoError(t, h.crews.Create(context.Background(), &entities.CrewMember{
		ID:         id,
		Name:       id,
		Role:       role,
		FacilityID: "fac-1",
		Status:     entities.CrewStatusAvailable,
	}))
}

func (h *harness) resourceStatus(t *testing.T, id string) entities.ResourceStatus {
	t.Helper()
	res, err := h.registry.Get(context.Background(), id)
	require.NoError(t, err)
	return res.Status
}

func (h *harness) reservationEngine(t *testing.T, initial entities.ReservationStatus, authorizer providers.Authorizer, locker providers.Locker) *services.ReservationEngine {
	t.Helper()
	indexes, err := services.NewIndexSet(h.reservations, 16)
	require.NoError(t, err)
	if authorizer == nil {
		authorizer = providers.AllowAll{}
	}
	return services.NewReservationEngine(services.ReservationEngineDeps{
		Registry:     h.registry,
		Reservations: h.reservations,
		Indexes:      indexes,
		Authorizer:   authorizer,
		Clock:        h.clock,
		Locker:       locker,
		Notifier:     h.notifier,
	}, initial, time.Second)
}

func (h *harness) dispatchEngine(authorizer providers.Authorizer) *services.DispatchEngine {
	if authorizer == nil {
		authorizer = providers.AllowAll{}
	}
	return services.NewDispatchEngine(h.registry, h.dispatches, h.crews, authorizer, h.clock, h.notifier, nil)
}

func (h *harness) workflowEngine(authorizer providers.Authorizer) *services.WorkflowEngine {
	if authorizer == nil {
		authorizer = providers.AllowAll{}
	}
	return services.NewWorkflowEngine(h.registry, h.workflows, authorizer, h.clock, h.notifier, nil)
}

var patient = entities.Notifiable{Kind: entities.NotifiablePatient, ID: "patient-1"}
