package providers

import (
	"context"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

// EventPublisher delivers committed domain events to downstream consumers such
// as the notification service. Delivery is best effort.
type EventPublisher interface {
	// Publish publishes an event
	Publish(ctx context.Context, event *entities.DomainEvent) error

	// Close releases the publisher's connections
	Close() error
}

// EventBus is a publisher that in-process consumers can also subscribe to
type EventBus interface {
	EventPublisher

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.DomainEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error
}

// EventChannel constants for the pub/sub topology
const (
	// EventChannelAllocation receives every allocation event
	EventChannelAllocation = "allocation:events"

	// EventChannelResourcePrefix is the prefix for resource-specific channels
	EventChannelResourcePrefix = "resource:"

	// EventChannelAggregatePrefix is the prefix for per-aggregate-kind channels
	EventChannelAggregatePrefix = "allocation:"
)

// GetResourceChannel returns the channel name for a specific resource
func GetResourceChannel(resourceID string) string {
	return EventChannelResourcePrefix + resourceID
}

// GetAggregateChannel returns the channel for one aggregate kind, e.g. allocation:dispatch
func GetAggregateChannel(kind entities.AggregateKind) string {
	return EventChannelAggregatePrefix + string(kind)
}

// ChannelsFor lists every channel an event fans out to
func ChannelsFor(event *entities.DomainEvent) []string {
	channels := []string{
		EventChannelAllocation,
		GetAggregateChannel(event.AggregateKind),
	}
	if event.ResourceID != "" {
		channels = append(channels, GetResourceChannel(event.ResourceID))
	}
	return channels
}
