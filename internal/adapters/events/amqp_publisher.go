package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/rabbitmq"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

// amqpChannel is the slice of *amqp.Channel the publisher needs
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// channelSource hands out a live channel, reconnecting if needed
type channelSource interface {
	Channel() (*amqp.Channel, error)
	Exchange() string
	Close() error
}

// AMQPPublisher publishes domain events to a durable topic exchange so the
// notification service can consume them. The routing key is the event type.
// A circuit breaker stops hammering a broker that is down.
type AMQPPublisher struct {
	source   channelSource
	channel  func() (amqpChannel, error)
	exchange string
	breaker  *gobreaker.CircuitBreaker
}

// NewAMQPPublisher creates a publisher on the client's exchange
func NewAMQPPublisher(client *rabbitmq.Client) *AMQPPublisher {
	return newAMQPPublisher(client, func() (amqpChannel, error) { return client.Channel() }, client.Exchange())
}

func newAMQPPublisher(source channelSource, channel func() (amqpChannel, error), exchange string) *AMQPPublisher {
	logger := observability.GetLogger()
	return &AMQPPublisher{
		source:   source,
		channel:  channel,
		exchange: exchange,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "amqp-publisher",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
	}
}

var _ providers.EventPublisher = (*AMQPPublisher)(nil)

// Publish publishes a persistent JSON message
func (p *AMQPPublisher) Publish(ctx context.Context, event *entities.DomainEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		ch, err := p.channel()
		if err != nil {
			return nil, err
		}
		return nil, ch.PublishWithContext(ctx,
			p.exchange,         // exchange
			string(event.Type), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.ID,
				Timestamp:    event.OccurredAt,
				Type:         string(event.Type),
				Body:         body,
			},
		)
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (p *AMQPPublisher) Close() error {
	if p.source == nil {
		return nil
	}
	return p.source.Close()
}
