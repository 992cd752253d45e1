package entities

import (
	"time"
)

// CrewRole is the clinical or operational role of an ambulance crew member
type CrewRole string

const (
	CrewRoleParamedic CrewRole = "paramedic"
	CrewRoleEMT       CrewRole = "emt"
	CrewRoleDriver    CrewRole = "driver"
	CrewRoleNurse     CrewRole = "nurse"
	CrewRoleDoctor    CrewRole = "doctor"
)

// CrewStatus is a crew member's availability record
type CrewStatus string

const (
	CrewStatusAvailable  CrewStatus = "available"
	CrewStatusOnDispatch CrewStatus = "on_dispatch"
	CrewStatusOffDuty    CrewStatus = "off_duty"
)

// CrewMember is a person who can staff an ambulance
type CrewMember struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Role       CrewRole   `json:"role" db:"role"`
	FacilityID string     `json:"facility_id" db:"facility_id"`
	Status     CrewStatus `json:"status" db:"status"`
	Version    int64      `json:"version" db:"version"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// AssignmentKind distinguishes scheduled shifts from dispatch duty
type AssignmentKind string

const (
	AssignmentKindShift    AssignmentKind = "shift"
	AssignmentKindDispatch AssignmentKind = "dispatch"
)

// CrewAssignment occupies a crew member's schedule for a half-open window
type CrewAssignment struct {
	ID         string         `json:"id"`
	CrewID     string         `json:"crew_id"`
	Kind       AssignmentKind `json:"kind"`
	DispatchID *string        `json:"dispatch_id,omitempty"`
	Window     TimeWindow     `json:"window"`
	CreatedAt  time.Time      `json:"created_at"`
}
