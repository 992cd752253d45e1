package events

import (
	"context"
	"errors"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
)

// MultiPublisher fans an event out to several publishers. Every publisher is
// attempted; the errors are joined.
type MultiPublisher struct {
	publishers []providers.EventPublisher
}

// NewMultiPublisher creates a fan-out publisher, skipping nil entries
func NewMultiPublisher(publishers ...providers.EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Publish publishes to every publisher
func (m *MultiPublisher) Publish(ctx context.Context, event *entities.DomainEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
