package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/medlogistics/backend/internal/adapters/memory"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

// RedisEventBus publishes every event to the allocation channel, its aggregate
// channel and its resource channel, so consumers outside this process can pick
// the granularity they need.
//
// In-process subscribers share a single Redis subscription to the allocation
// channel. Received events are fanned out locally, which keeps one Redis
// connection per process regardless of how many streams are open.
type RedisEventBus struct {
	client *redisclient.Client
	local  *memory.EventBus

	mu      sync.Mutex
	pubsub  *redis.PubSub
	relayed chan struct{}
	closed  bool
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	return &RedisEventBus{
		client: client,
		local:  memory.NewEventBus(),
	}
}

// Publish publishes an event to all of its channels in one pipeline
func (b *RedisEventBus) Publish(ctx context.Context, event *entities.DomainEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := b.client.Client().Pipeline()
	for _, channel := range providers.ChannelsFor(event) {
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	observability.ComponentLogger(ctx, "redis_event_bus").Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Msg("published event")
	return nil
}

// Subscribe returns the events of one channel until ctx ends. The shared
// Redis subscription is opened on first use.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.DomainEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("event bus is closed")
	}
	if b.pubsub == nil {
		pubsub := b.client.Client().Subscribe(context.Background(), providers.EventChannelAllocation)
		// Receive blocks until Redis confirms the subscription
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			b.mu.Unlock()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", providers.EventChannelAllocation, err)
		}
		b.pubsub = pubsub
		b.relayed = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			relay(pubsub.Channel(), b.local)
		}(b.relayed)
	}
	b.mu.Unlock()

	observability.ComponentLogger(ctx, "redis_event_bus").Debug().Str("channel", channel).Msg("subscribed")
	return b.local.Subscribe(ctx, channel)
}

// relay decodes messages from the shared subscription and hands them to the
// local fan-out until the subscription is closed
func relay(messages <-chan *redis.Message, local *memory.EventBus) {
	logger := observability.GetLogger()
	for msg := range messages {
		var event entities.DomainEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Warn().Err(err).Str("channel", msg.Channel).Msg("failed to unmarshal event")
			continue
		}
		_ = local.Publish(context.Background(), &event)
	}
}

// Unsubscribe ends every in-process subscription of a channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	return b.local.Unsubscribe(ctx, channel)
}

// Close closes the shared subscription and every in-process stream
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pubsub, relayed := b.pubsub, b.relayed
	b.mu.Unlock()

	var err error
	if pubsub != nil {
		if err = pubsub.Close(); err != nil {
			err = fmt.Errorf("failed to close redis subscription: %w", err)
		}
		<-relayed
	}
	_ = b.local.Close()
	return err
}
