package providers

import "context"

// Action names an authorization-gated step
type Action string

const (
	ActionReservationApprove Action = "reservation.approve"
	ActionReservationReject  Action = "reservation.reject"
	ActionDispatchCreate     Action = "dispatch.create"
	ActionWorkflowApprove    Action = "workflow.approve"
	ActionWorkflowReject     Action = "workflow.reject"
	ActionWorkflowDispatch   Action = "workflow.dispatch"
	ActionWorkflowComplete   Action = "workflow.complete"
	ActionWorkflowVerify     Action = "workflow.verify"
	ActionResourceStatus     Action = "resource.status"
)

// Authorizer decides whether an actor may perform an action. It returns nil to
// permit and an UNAUTHORIZED error to deny.
type Authorizer interface {
	Authorize(ctx context.Context, actorID string, action Action) error
}

// AllowAll permits every action. It is meant for tests and local tooling.
type AllowAll struct{}

// Authorize always permits
func (AllowAll) Authorize(context.Context, string, Action) error { return nil }
