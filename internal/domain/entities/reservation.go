package entities

import (
	"time"
)

// ReservationStatus represents the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusApproved  ReservationStatus = "approved"
	ReservationStatusInUse     ReservationStatus = "in_use"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusRejected  ReservationStatus = "rejected"
	ReservationStatusExpired   ReservationStatus = "expired"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending: {
		ReservationStatusApproved, ReservationStatusRejected, ReservationStatusCancelled,
	},
	ReservationStatusActive: {
		ReservationStatusApproved, ReservationStatusInUse, ReservationStatusCancelled, ReservationStatusExpired,
	},
	ReservationStatusApproved: {
		ReservationStatusInUse, ReservationStatusCancelled, ReservationStatusExpired,
	},
	ReservationStatusInUse: {
		ReservationStatusCompleted, ReservationStatusCancelled,
	},
}

// CanTransitionTo reports whether s -> next is an edge of the state machine
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s ReservationStatus) Valid() bool {
	return s == ReservationStatusPending || s.Terminal() || s.Blocking()
}

// Terminal reports whether no further transition is permitted
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationStatusCompleted, ReservationStatusCancelled,
		ReservationStatusRejected, ReservationStatusExpired:
		return true
	}
	return false
}

// Blocking reports whether a reservation in this status holds its window
// exclusively. Pending requests do not block until approved.
func (s ReservationStatus) Blocking() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusApproved, ReservationStatusInUse:
		return true
	}
	return false
}

// Expirable reports whether the sweep may move this status to expired once the
// window has passed without a check-in.
func (s ReservationStatus) Expirable() bool {
	return s == ReservationStatusApproved || s == ReservationStatusActive
}

// Reservation books a resource for a half-open window
type Reservation struct {
	ID              string            `json:"id"`
	ResourceID      string            `json:"resource_id"`
	ResourceKind    ResourceKind      `json:"resource_kind"`
	RequesterID     string            `json:"requester_id"`
	Holder          Notifiable        `json:"holder"`
	Window          TimeWindow        `json:"window"`
	Status          ReservationStatus `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	CheckedInAt     *time.Time        `json:"checked_in_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	ExpiredAt       *time.Time        `json:"expired_at,omitempty"`
}

// Apply moves the reservation to next and stamps the matching milestone.
// It does not validate the edge; callers check CanTransitionTo first.
func (r *Reservation) Apply(next ReservationStatus, at time.Time) {
	r.Status = next
	r.UpdatedAt = at
	switch next {
	case ReservationStatusApproved:
		r.ApprovedAt = &at
	case ReservationStatusInUse:
		r.CheckedInAt = &at
	case ReservationStatusCompleted:
		r.CompletedAt = &at
	case ReservationStatusCancelled:
		r.CancelledAt = &at
	case ReservationStatusExpired:
		r.ExpiredAt = &at
	}
}

// Overdue reports whether an expirable reservation's window ended before now
func (r *Reservation) Overdue(now time.Time) bool {
	return r.Status.Expirable() && !now.Before(r.Window.Until)
}
