package entities

import (
	"time"
)

// ResourceKind identifies the class of allocatable capacity
type ResourceKind string

const (
	ResourceKindBed       ResourceKind = "bed"
	ResourceKindEquipment ResourceKind = "equipment"
	ResourceKindAmbulance ResourceKind = "ambulance"
)

// ResourceStatus is the denormalized current status of a resource. The set of
// valid values depends on the resource kind.
type ResourceStatus string

const (
	ResourceStatusAvailable   ResourceStatus = "available"
	ResourceStatusMaintenance ResourceStatus = "maintenance"

	// Beds
	BedStatusOccupied ResourceStatus = "occupied"
	BedStatusReserved ResourceStatus = "reserved"
	BedStatusCleaning ResourceStatus = "cleaning"

	// Equipment
	EquipmentStatusInUse      ResourceStatus = "in_use"
	EquipmentStatusOutOfOrder ResourceStatus = "out_of_order"

	// Ambulances
	AmbulanceStatusDispatched   ResourceStatus = "dispatched"
	AmbulanceStatusOutOfService ResourceStatus = "out_of_service"
)

var kindStatuses = map[ResourceKind][]ResourceStatus{
	ResourceKindBed: {
		ResourceStatusAvailable, BedStatusOccupied, ResourceStatusMaintenance,
		BedStatusReserved, BedStatusCleaning,
	},
	ResourceKindEquipment: {
		ResourceStatusAvailable, EquipmentStatusInUse, ResourceStatusMaintenance,
		EquipmentStatusOutOfOrder,
	},
	ResourceKindAmbulance: {
		ResourceStatusAvailable, AmbulanceStatusDispatched, ResourceStatusMaintenance,
		AmbulanceStatusOutOfService,
	},
}

// Allocated reports whether the status is owned by a live reservation or
// dispatch. Only the engines move a resource into or out of these.
func (s ResourceStatus) Allocated() bool {
	switch s {
	case BedStatusOccupied, BedStatusReserved, EquipmentStatusInUse, AmbulanceStatusDispatched:
		return true
	}
	return false
}

// Valid reports whether k is a known resource kind
func (k ResourceKind) Valid() bool {
	_, ok := kindStatuses[k]
	return ok
}

// ValidStatus reports whether status belongs to the closed enum of this kind
func (k ResourceKind) ValidStatus(status ResourceStatus) bool {
	for _, s := range kindStatuses[k] {
		if s == status {
			return true
		}
	}
	return false
}

// Reservable reports whether the kind is booked through time-windowed
// reservations. Ambulances are single-occupancy and go through dispatch.
func (k ResourceKind) Reservable() bool {
	return k == ResourceKindBed || k == ResourceKindEquipment
}

// Resource is a unit of allocatable capacity
type Resource struct {
	ID           string         `json:"id" db:"id"`
	Kind         ResourceKind   `json:"kind" db:"kind"`
	FacilityID   string         `json:"facility_id" db:"facility_id"`
	DepartmentID *string        `json:"department_id,omitempty" db:"department_id"`
	Label        string         `json:"label" db:"label"`
	Status       ResourceStatus `json:"status" db:"status"`
	Attributes   Attributes     `json:"attributes,omitempty" db:"attributes"`
	Version      int64          `json:"version" db:"version"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// OccupiedStatus is the registry status a resource takes while a holder is
// checked in.
func (r *Resource) OccupiedStatus() (ResourceStatus, bool) {
	switch r.Kind {
	case ResourceKindBed:
		return BedStatusOccupied, true
	case ResourceKindEquipment:
		return EquipmentStatusInUse, true
	}
	return "", false
}

// HeldStatus is the registry status a resource takes while a reservation
// covers the current instant but nobody is checked in yet.
func (r *Resource) HeldStatus() (ResourceStatus, bool) {
	if r.Kind == ResourceKindBed {
		return BedStatusReserved, true
	}
	return "", false
}

// ReleasedStatus is the registry status after a holder checks out. Beds go
// through cleaning before they can be booked again.
func (r *Resource) ReleasedStatus() ResourceStatus {
	if r.Kind == ResourceKindBed {
		return BedStatusCleaning
	}
	return ResourceStatusAvailable
}

// RetiredStatus is the registry status after a completed disposal
func (r *Resource) RetiredStatus() ResourceStatus {
	switch r.Kind {
	case ResourceKindEquipment:
		return EquipmentStatusOutOfOrder
	case ResourceKindAmbulance:
		return AmbulanceStatusOutOfService
	}
	return ResourceStatusMaintenance
}
