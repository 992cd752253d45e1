package services

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	"github.com/zatekoja/medlogistics/backend/pkg/retry"
)

// EventNotifier delivers domain events to a publisher in the background. Notify
// never blocks and never fails: a committed transition is not rolled back
// because delivery failed. Events that cannot be queued or delivered after
// retries are logged and counted as dropped.
type EventNotifier struct {
	publisher providers.EventPublisher
	queue     chan *entities.DomainEvent
	retryCfg  retry.Config
	metrics   *observability.Metrics

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewEventNotifier starts a notifier with a queue of bufferSize events
func NewEventNotifier(publisher providers.EventPublisher, bufferSize int, metrics *observability.Metrics) *EventNotifier {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	n := &EventNotifier{
		publisher: publisher,
		queue:     make(chan *entities.DomainEvent, bufferSize),
		retryCfg: retry.Config{
			MaxAttempts:     3,
			InitialDelay:    50 * time.Millisecond,
			MaxDelay:        time.Second,
			BackoffFactor:   2.0,
			MaxTotalTimeout: 10 * time.Second,
		},
		metrics: metrics,
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify queues an event for delivery. A nil notifier discards events.
func (n *EventNotifier) Notify(ctx context.Context, event *entities.DomainEvent) {
	if n == nil || event == nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.drop(ctx, event, "closed")
		return
	}
	select {
	case n.queue <- event:
	default:
		n.drop(ctx, event, "queue_full")
	}
}

func (n *EventNotifier) drop(ctx context.Context, event *entities.DomainEvent, reason string) {
	observability.ComponentLogger(ctx, "event_notifier").Warn().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("reason", reason).
		Msg("dropping domain event")
	observability.RecordEventDropped(ctx, n.metrics, string(event.Type), reason)
}

func (n *EventNotifier) run() {
	defer close(n.done)
	for event := range n.queue {
		n.deliver(event)
	}
}

func (n *EventNotifier) deliver(event *entities.DomainEvent) {
	ctx := context.Background()
	logger := observability.ComponentLogger(ctx, "event_notifier")
	err := retry.DoWithLog(ctx, n.retryCfg, "event publisher", func() error {
		return n.publisher.Publish(ctx, event)
	}, func(attempt int, err error, nextDelay time.Duration) {
		logger.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Str("event_id", event.ID).Msg("publish failed, retrying")
	})
	if err != nil {
		logger.Error().Err(err).Str("event_id", event.ID).Msg("domain event delivery failed")
		observability.RecordEventDropped(ctx, n.metrics, string(event.Type), "publish_failed")
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end
func (n *EventNotifier) Close(ctx context.Context) error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
