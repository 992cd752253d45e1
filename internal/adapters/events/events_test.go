package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medlogistics/backend/internal/adapters/memory"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event *entities.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

func sampleEvent() *entities.DomainEvent {
	e := entities.NewDomainEvent(entities.EventReservationCreated, entities.AggregateReservation, "r1",
		time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
	e.ResourceID = "bed-1"
	e.Status = string(entities.ReservationStatusApproved)
	return e
}

func TestAMQPPublisher_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(nil, func() (amqpChannel, error) { return ch, nil }, "allocation")

	event := sampleEvent()
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, "reservation.created", ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, event.ID, msg.MessageId)

	var decoded entities.DomainEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "bed-1", decoded.ResourceID)
}

func TestAMQPPublisher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	broken := errors.New("connection refused")
	p := newAMQPPublisher(nil, func() (amqpChannel, error) {
		calls++
		return nil, broken
	}, "allocation")

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, p.Publish(context.Background(), sampleEvent()), broken)
	}
	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, calls, "an open breaker must not reach the broker")
}

func TestMultiPublisher_AttemptsEveryPublisher(t *testing.T) {
	failing := new(mockPublisher)
	healthy := new(mockPublisher)
	event := sampleEvent()

	failing.On("Publish", mock.Anything, event).Return(errors.New("down"))
	healthy.On("Publish", mock.Anything, event).Return(nil)

	m := NewMultiPublisher(failing, nil, healthy)
	err := m.Publish(context.Background(), event)

	assert.Error(t, err)
	failing.AssertExpectations(t)
	healthy.AssertExpectations(t)
}

func TestChannelsFor(t *testing.T) {
	event := sampleEvent()
	assert.Equal(t, []string{"allocation:events", "allocation:reservation", "resource:bed-1"}, providers.ChannelsFor(event))

	event.ResourceID = ""
	assert.Len(t, providers.ChannelsFor(event), 2)
}

func TestRelay_FansOutDecodedEvents(t *testing.T) {
	local := memory.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	byResource, err := local.Subscribe(ctx, providers.GetResourceChannel("bed-1"))
	require.NoError(t, err)
	byKind, err := local.Subscribe(ctx, providers.GetAggregateChannel(entities.AggregateDispatch))
	require.NoError(t, err)

	payload, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	messages := make(chan *redis.Message, 2)
	messages <- &redis.Message{Channel: providers.EventChannelAllocation, Payload: "{not json"}
	messages <- &redis.Message{Channel: providers.EventChannelAllocation, Payload: string(payload)}
	close(messages)

	relay(messages, local)

	select {
	case got := <-byResource:
		assert.Equal(t, sampleEvent().AggregateID, got.AggregateID)
	case <-time.After(time.Second):
		t.Fatal("event was not relayed to the resource channel")
	}
	assert.Empty(t, byKind)
}
