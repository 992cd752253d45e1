package entities

import (
	"time"
)

// WorkflowKind distinguishes the approval chains that share the workflow engine
type WorkflowKind string

const (
	WorkflowKindTransfer WorkflowKind = "transfer"
	WorkflowKindDisposal WorkflowKind = "disposal"
)

// WorkflowStatus is a step of the approval chain
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusApproved  WorkflowStatus = "approved"
	WorkflowStatusRejected  WorkflowStatus = "rejected"
	WorkflowStatusInTransit WorkflowStatus = "in_transit"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusVerified  WorkflowStatus = "verified"
)

// Steps returns the ordered chain for the kind, excluding rejection
func (k WorkflowKind) Steps() []WorkflowStatus {
	switch k {
	case WorkflowKindTransfer:
		return []WorkflowStatus{
			WorkflowStatusPending, WorkflowStatusApproved, WorkflowStatusInTransit, WorkflowStatusCompleted,
		}
	case WorkflowKindDisposal:
		return []WorkflowStatus{
			WorkflowStatusPending, WorkflowStatusApproved, WorkflowStatusCompleted, WorkflowStatusVerified,
		}
	}
	return nil
}

// Rank returns the position of s in the kind's chain, or -1
func (k WorkflowKind) Rank(s WorkflowStatus) int {
	for i, st := range k.Steps() {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the step that follows s for this kind
func (k WorkflowKind) Next(s WorkflowStatus) (WorkflowStatus, bool) {
	steps := k.Steps()
	i := k.Rank(s)
	if i < 0 || i+1 >= len(steps) {
		return "", false
	}
	return steps[i+1], true
}

// Terminal reports whether a request of kind k in status s is finished.
// A completed disposal stays open for the optional verification step.
func (k WorkflowKind) Terminal(s WorkflowStatus) bool {
	switch s {
	case WorkflowStatusRejected, WorkflowStatusVerified:
		return true
	case WorkflowStatusCompleted:
		return k == WorkflowKindTransfer
	}
	return false
}

// TransferDetails describes where a transferred resource is going
type TransferDetails struct {
	FromFacilityID string  `json:"from_facility_id"`
	ToFacilityID   string  `json:"to_facility_id"`
	ToDepartmentID *string `json:"to_department_id,omitempty"`
}

// DisposalDetails describes how a resource is being retired
type DisposalDetails struct {
	Method      string `json:"method"`
	Certificate string `json:"certificate,omitempty"`
}

// WorkflowRequest is a transfer or disposal moving through its approval chain
type WorkflowRequest struct {
	ID                string           `json:"id"`
	Kind              WorkflowKind     `json:"kind"`
	SubjectResourceID string           `json:"subject_resource_id"`
	RequestedBy       string           `json:"requested_by"`
	ApprovedBy        *string          `json:"approved_by,omitempty"`
	RejectedBy        *string          `json:"rejected_by,omitempty"`
	VerifiedBy        *string          `json:"verified_by,omitempty"`
	Reason            string           `json:"reason,omitempty"`
	RejectionReason   string           `json:"rejection_reason,omitempty"`
	Status            WorkflowStatus   `json:"status"`
	Transfer          *TransferDetails `json:"transfer,omitempty"`
	Disposal          *DisposalDetails `json:"disposal,omitempty"`
	Version           int64            `json:"version"`
	RequestedAt       time.Time        `json:"requested_at"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty"`
	RejectedAt        *time.Time       `json:"rejected_at,omitempty"`
	InTransitAt       *time.Time       `json:"in_transit_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	VerifiedAt        *time.Time       `json:"verified_at,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Apply moves the request to s, stamping the milestone and the acting user
func (w *WorkflowRequest) Apply(s WorkflowStatus, actorID string, at time.Time) {
	w.Status = s
	w.UpdatedAt = at
	actor := actorID
	switch s {
	case WorkflowStatusApproved:
		w.ApprovedAt = &at
		w.ApprovedBy = &actor
	case WorkflowStatusRejected:
		w.RejectedAt = &at
		w.RejectedBy = &actor
	case WorkflowStatusInTransit:
		w.InTransitAt = &at
	case WorkflowStatusCompleted:
		w.CompletedAt = &at
	case WorkflowStatusVerified:
		w.VerifiedAt = &at
		w.VerifiedBy = &actor
	}
}
