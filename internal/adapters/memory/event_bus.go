package memory

import (
	"context"
	"sync"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

const subscriberBuffer = 100

// EventBus is a process-local providers.EventBus used when Redis is disabled.
// Slow subscribers miss events rather than block publishers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.DomainEvent]struct{}
	closed      bool
}

// NewEventBus creates an EventBus
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string]map[chan *entities.DomainEvent]struct{})}
}

var _ providers.EventBus = (*EventBus)(nil)

// Publish delivers the event to every subscriber of its channels
func (b *EventBus) Publish(ctx context.Context, event *entities.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, channel := range providers.ChannelsFor(event) {
		for subscriber := range b.subscribers[channel] {
			select {
			case subscriber <- event:
			default:
				observability.ComponentLogger(ctx, "memory_event_bus").Warn().
					Str("channel", channel).
					Str("event_id", event.ID).
					Msg("subscriber channel full, skipping event")
			}
		}
	}
	return nil
}

// Subscribe returns a channel of events until ctx ends
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.DomainEvent, error) {
	ch := make(chan *entities.DomainEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.DomainEvent]struct{})
	}
	b.subscribers[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, ch)
	}()
	return ch, nil
}

func (b *EventBus) remove(channel string, ch chan *entities.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[channel][ch]; !ok {
		return
	}
	delete(b.subscribers[channel], ch)
	close(ch)
	if len(b.subscribers[channel]) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscription of a channel
func (b *EventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[channel] {
		close(ch)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close ends every subscription
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, subs := range b.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
