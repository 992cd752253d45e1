package entities

import (
	"time"
)

// DispatchStatus represents the ambulance dispatch lifecycle
type DispatchStatus string

const (
	DispatchStatusDispatched         DispatchStatus = "dispatched"
	DispatchStatusEnRoutePickup      DispatchStatus = "en_route_pickup"
	DispatchStatusAtPickup           DispatchStatus = "at_pickup"
	DispatchStatusEnRouteDestination DispatchStatus = "en_route_destination"
	DispatchStatusArrived            DispatchStatus = "arrived"
	DispatchStatusCompleted          DispatchStatus = "completed"
	DispatchStatusCancelled          DispatchStatus = "cancelled"
)

// dispatchOrder is the strictly linear progression. Cancelled sits outside it.
var dispatchOrder = []DispatchStatus{
	DispatchStatusDispatched,
	DispatchStatusEnRoutePickup,
	DispatchStatusAtPickup,
	DispatchStatusEnRouteDestination,
	DispatchStatusArrived,
	DispatchStatusCompleted,
}

// Rank returns the position of s in the linear lifecycle, or -1
func (s DispatchStatus) Rank() int {
	for i, st := range dispatchOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the status that follows s, if any
func (s DispatchStatus) Next() (DispatchStatus, bool) {
	i := s.Rank()
	if i < 0 || i+1 >= len(dispatchOrder) {
		return "", false
	}
	return dispatchOrder[i+1], true
}

// Terminal reports whether the dispatch is finished
func (s DispatchStatus) Terminal() bool {
	return s == DispatchStatusCompleted || s == DispatchStatusCancelled
}

// Valid reports whether s is a known dispatch status
func (s DispatchStatus) Valid() bool {
	return s == DispatchStatusCancelled || s.Rank() >= 0
}

// DispatchPriority ranks how urgent a dispatch is
type DispatchPriority string

const (
	DispatchPriorityEmergency DispatchPriority = "emergency"
	DispatchPriorityUrgent    DispatchPriority = "urgent"
	DispatchPriorityRoutine   DispatchPriority = "routine"
)

// Dispatch assigns an ambulance and crew to move a patient
type Dispatch struct {
	ID                   string           `json:"id"`
	DispatchNumber       string           `json:"dispatch_number"`
	AmbulanceID          string           `json:"ambulance_id"`
	CrewIDs              []string         `json:"crew_ids"`
	DispatcherID         string           `json:"dispatcher_id"`
	Patient              *Notifiable      `json:"patient,omitempty"`
	Pickup               Location         `json:"pickup_location"`
	Destination          Location         `json:"destination_location"`
	Priority             DispatchPriority `json:"priority"`
	Status               DispatchStatus   `json:"status"`
	CancelReason         string           `json:"cancel_reason,omitempty"`
	Version              int64            `json:"version"`
	DispatchedAt         time.Time        `json:"dispatched_at"`
	EnRoutePickupAt      *time.Time       `json:"en_route_pickup_at,omitempty"`
	AtPickupAt           *time.Time       `json:"at_pickup_at,omitempty"`
	EnRouteDestinationAt *time.Time       `json:"en_route_destination_at,omitempty"`
	ArrivedAt            *time.Time       `json:"arrived_at,omitempty"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	CancelledAt          *time.Time       `json:"cancelled_at,omitempty"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// milestone returns the timestamp slot for status s
func (d *Dispatch) milestone(s DispatchStatus) **time.Time {
	switch s {
	case DispatchStatusEnRoutePickup:
		return &d.EnRoutePickupAt
	case DispatchStatusAtPickup:
		return &d.AtPickupAt
	case DispatchStatusEnRouteDestination:
		return &d.EnRouteDestinationAt
	case DispatchStatusArrived:
		return &d.ArrivedAt
	case DispatchStatusCompleted:
		return &d.CompletedAt
	case DispatchStatusCancelled:
		return &d.CancelledAt
	}
	return nil
}

// Recorded reports whether the milestone for s has already been stamped
func (d *Dispatch) Recorded(s DispatchStatus) bool {
	if s == DispatchStatusDispatched {
		return !d.DispatchedAt.IsZero()
	}
	slot := d.milestone(s)
	return slot != nil && *slot != nil
}

// Apply moves the dispatch to s and stamps its milestone once
func (d *Dispatch) Apply(s DispatchStatus, at time.Time) {
	d.Status = s
	d.UpdatedAt = at
	if slot := d.milestone(s); slot != nil && *slot == nil {
		stamped := at
		*slot = &stamped
	}
}
