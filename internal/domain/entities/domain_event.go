package entities

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DomainEventType names a committed state change
type DomainEventType string

const (
	EventReservationCreated       DomainEventType = "reservation.created"
	EventReservationStatusChanged DomainEventType = "reservation.status_changed"
	EventDispatchCreated          DomainEventType = "dispatch.created"
	EventDispatchStatusChanged    DomainEventType = "dispatch.status_changed"
	EventTransferRequested        DomainEventType = "transfer.requested"
	EventTransferApproved         DomainEventType = "transfer.approved"
	EventTransferStatusChanged    DomainEventType = "transfer.status_changed"
	EventDisposalRequested        DomainEventType = "disposal.requested"
	EventDisposalApproved         DomainEventType = "disposal.approved"
	EventDisposalStatusChanged    DomainEventType = "disposal.status_changed"
	EventResourceStatusChanged    DomainEventType = "resource.status_changed"
)

// AggregateKind identifies which engine owns the aggregate
type AggregateKind string

const (
	AggregateReservation AggregateKind = "reservation"
	AggregateDispatch    AggregateKind = "dispatch"
	AggregateWorkflow    AggregateKind = "workflow"
	AggregateResource    AggregateKind = "resource"
)

// DomainEvent is emitted after an engine commits a transition
type DomainEvent struct {
	ID             string          `json:"id"`
	Type           DomainEventType `json:"type"`
	AggregateKind  AggregateKind   `json:"aggregate_kind"`
	AggregateID    string          `json:"aggregate_id"`
	ResourceID     string          `json:"resource_id,omitempty"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	ActorID        string          `json:"actor_id,omitempty"`
	Recipients     []Notifiable    `json:"recipients,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Data           Attributes      `json:"data,omitempty"`
}

// NewDomainEvent creates a new domain event
func NewDomainEvent(eventType DomainEventType, kind AggregateKind, aggregateID string, occurredAt time.Time) *DomainEvent {
	return &DomainEvent{
		ID:            generateEventID(occurredAt),
		Type:          eventType,
		AggregateKind: kind,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt,
	}
}

// generateEventID generates a unique event ID
func generateEventID(at time.Time) string {
	return at.UTC().Format("20060102150405") + "-" + randomHex(8)
}

// randomHex generates a random hex string of specified length
func randomHex(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().Format("150405.000")
	}
	return hex.EncodeToString(bytes)[:length]
}

// NewDispatchNumber returns the human-facing dispatch reference DSP-YYYYMMDD-xxxxxxxx
func NewDispatchNumber(at time.Time) string {
	return "DSP-" + at.UTC().Format("20060102") + "-" + randomHex(8)
}
