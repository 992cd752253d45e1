package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

func testEvent(id string) *entities.DomainEvent {
	e := entities.NewDomainEvent(entities.EventReservationCreated, entities.AggregateReservation, id, base)
	e.ResourceID = "bed-1"
	return e
}

func TestEventNotifier_DeliversQueuedEventsBeforeClose(t *testing.T) {
	publisher := acceptingPublisher()
	notifier := services.NewEventNotifier(publisher, 8, nil)

	for _, id := range []string{"r1", "r2", "r3"} {
		notifier.Notify(context.Background(), testEvent(id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, notifier.Close(ctx))

	var ids []string
	for _, e := range publisher.Events() {
		ids = append(ids, e.AggregateID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)
}

func TestEventNotifier_RetriesFailedPublish(t *testing.T) {
	publisher := &MockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker unavailable")).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	notifier := services.NewEventNotifier(publisher, 8, nil)

	notifier.Notify(context.Background(), testEvent("r1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, notifier.Close(ctx))

	assert.Len(t, publisher.Events(), 2)
	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestEventNotifier_NeverBlocksOrPanics(t *testing.T) {
	var nilNotifier *services.EventNotifier
	assert.NotPanics(t, func() { nilNotifier.Notify(context.Background(), testEvent("r1")) })
	assert.NoError(t, nilNotifier.Close(context.Background()))

	publisher := acceptingPublisher()
	notifier := services.NewEventNotifier(publisher, 1, nil)
	require.NoError(t, notifier.Close(context.Background()))

	done := make(chan struct{})
	go func() {
		notifier.Notify(context.Background(), testEvent("late"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked after Close")
	}
	assert.Empty(t, publisher.Events())
}
