package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medlogistics/backend/internal/api/handlers"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
)

// MockEventBus for testing
type MockEventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *entities.DomainEvent
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{subscribers: make(map[string][]chan *entities.DomainEvent)}
}

func (m *MockEventBus) Publish(ctx context.Context, event *entities.DomainEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, channel := range providers.ChannelsFor(event) {
		for _, ch := range m.subscribers[channel] {
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.DomainEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *entities.DomainEvent, 10)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, channel)
	return nil
}

func (m *MockEventBus) Close() error {
	return nil
}

func (m *MockEventBus) SubscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[channel])
}

// serve runs fn until stop is called and returns the recorded response
func serve(t *testing.T, fn http.HandlerFunc, req *http.Request) (stop func() *httptest.ResponseRecorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(req.Context())
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		fn(w, req.WithContext(ctx))
		close(done)
	}()
	return func() *httptest.ResponseRecorder {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not exit after cancel")
		}
		return w
	}
}

func TestSSEHandler_StreamResourceEvents(t *testing.T) {
	t.Run("should establish SSE connection", func(t *testing.T) {
		eventBus := NewMockEventBus()
		handler := handlers.NewSSEHandler(eventBus)

		req := httptest.NewRequest(http.MethodGet, "/api/stream/resources/bed-1", nil)
		req.SetPathValue("id", "bed-1")
		stop := serve(t, handler.StreamResourceEvents, req)

		require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
		w := stop()

		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
		assert.True(t, strings.HasPrefix(w.Body.String(), "event: connected\n"))
		assert.Zero(t, handler.GetClientCount())
	})

	t.Run("should receive events for the resource only", func(t *testing.T) {
		eventBus := NewMockEventBus()
		handler := handlers.NewSSEHandler(eventBus)

		req := httptest.NewRequest(http.MethodGet, "/api/stream/resources/bed-2", nil)
		req.SetPathValue("id", "bed-2")
		stop := serve(t, handler.StreamResourceEvents, req)

		channel := providers.GetResourceChannel("bed-2")
		require.Eventually(t, func() bool { return eventBus.SubscriberCount(channel) == 1 }, time.Second, 10*time.Millisecond)

		mine := entities.NewDomainEvent(entities.EventReservationCreated, entities.AggregateReservation, "r-1", time.Now())
		mine.ResourceID = "bed-2"
		other := entities.NewDomainEvent(entities.EventReservationCreated, entities.AggregateReservation, "r-2", time.Now())
		other.ResourceID = "bed-3"
		require.NoError(t, eventBus.Publish(context.Background(), other))
		require.NoError(t, eventBus.Publish(context.Background(), mine))

		time.Sleep(100 * time.Millisecond)
		body := stop().Body.String()

		assert.Contains(t, body, "event: reservation.created")
		assert.Contains(t, body, `"aggregate_id":"r-1"`)
		assert.NotContains(t, body, `"aggregate_id":"r-2"`)
	})

	t.Run("should return error for missing resource ID", func(t *testing.T) {
		handler := handlers.NewSSEHandler(NewMockEventBus())
		w := httptest.NewRecorder()

		handler.StreamResourceEvents(w, httptest.NewRequest(http.MethodGet, "/api/stream/resources/", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSSEHandler_StreamEventsByKind(t *testing.T) {
	eventBus := NewMockEventBus()
	handler := handlers.NewSSEHandler(eventBus)

	stop := serve(t, handler.StreamEvents, httptest.NewRequest(http.MethodGet, "/api/stream/events?kind=dispatch", nil))

	channel := providers.GetAggregateChannel(entities.AggregateDispatch)
	require.Eventually(t, func() bool { return eventBus.SubscriberCount(channel) == 1 }, time.Second, 10*time.Millisecond)

	event := entities.NewDomainEvent(entities.EventDispatchCreated, entities.AggregateDispatch, "d-1", time.Now())
	require.NoError(t, eventBus.Publish(context.Background(), event))

	time.Sleep(100 * time.Millisecond)
	assert.Contains(t, stop().Body.String(), "event: dispatch.created")
}

func TestSSEHandler_CloseEndsStreams(t *testing.T) {
	handler := handlers.NewSSEHandler(NewMockEventBus())
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		handler.StreamEvents(w, httptest.NewRequest(http.MethodGet, "/api/stream/events", nil))
		close(done)
	}()

	require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
	handler.Close()
	handler.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on Close")
	}
}
