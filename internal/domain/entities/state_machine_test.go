package entities

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.January, 1, hour, minute, 0, 0, time.UTC)
}

func TestTimeWindow_Overlaps_HalfOpen(t *testing.T) {
	cases := []struct {
		name string
		a, b TimeWindow
		want bool
	}{
		{"touching endpoints", NewTimeWindow(at(9, 0), at(10, 0)), NewTimeWindow(at(10, 0), at(11, 0)), false},
		{"partial overlap", NewTimeWindow(at(8, 0), at(12, 0)), NewTimeWindow(at(10, 0), at(14, 0)), true},
		{"contained", NewTimeWindow(at(8, 0), at(12, 0)), NewTimeWindow(at(9, 0), at(9, 30)), true},
		{"disjoint", NewTimeWindow(at(8, 0), at(9, 0)), NewTimeWindow(at(13, 0), at(14, 0)), false},
	}
	for _, tc := range cases {
		if got := tc.a.Overlaps(tc.b); got != tc.want {
			t.Errorf("%s: a.Overlaps(b) = %v, want %v", tc.name, got, tc.want)
		}
		if got := tc.b.Overlaps(tc.a); got != tc.want {
			t.Errorf("%s: b.Overlaps(a) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTimeWindow_Contains(t *testing.T) {
	w := NewTimeWindow(at(9, 0), at(10, 0))
	if !w.Contains(at(9, 0)) {
		t.Error("window should contain its start")
	}
	if w.Contains(at(10, 0)) {
		t.Error("window should not contain its end")
	}
}

func TestReservationStatus_Transitions(t *testing.T) {
	allowed := []struct{ from, to ReservationStatus }{
		{ReservationStatusPending, ReservationStatusApproved},
		{ReservationStatusPending, ReservationStatusRejected},
		{ReservationStatusPending, ReservationStatusCancelled},
		{ReservationStatusApproved, ReservationStatusInUse},
		{ReservationStatusApproved, ReservationStatusExpired},
		{ReservationStatusActive, ReservationStatusInUse},
		{ReservationStatusInUse, ReservationStatusCompleted},
		{ReservationStatusInUse, ReservationStatusCancelled},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to ReservationStatus }{
		{ReservationStatusPending, ReservationStatusInUse},
		{ReservationStatusPending, ReservationStatusExpired},
		{ReservationStatusInUse, ReservationStatusExpired},
		{ReservationStatusCompleted, ReservationStatusCancelled},
		{ReservationStatusCancelled, ReservationStatusApproved},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestReservationStatus_Blocking(t *testing.T) {
	if ReservationStatusPending.Blocking() {
		t.Error("pending must not block the window")
	}
	for _, s := range []ReservationStatus{ReservationStatusActive, ReservationStatusApproved, ReservationStatusInUse} {
		if !s.Blocking() {
			t.Errorf("%s should block", s)
		}
	}
}

func TestReservation_Overdue(t *testing.T) {
	r := &Reservation{Status: ReservationStatusApproved, Window: NewTimeWindow(at(8, 0), at(9, 0))}
	if r.Overdue(at(8, 59)) {
		t.Error("reservation is not overdue before its end")
	}
	if !r.Overdue(at(9, 0)) {
		t.Error("reservation is overdue at its end")
	}
	r.Status = ReservationStatusInUse
	if r.Overdue(at(10, 0)) {
		t.Error("checked-in reservations never expire")
	}
}

func TestDispatchStatus_Order(t *testing.T) {
	next, ok := DispatchStatusDispatched.Next()
	if !ok || next != DispatchStatusEnRoutePickup {
		t.Errorf("expected en_route_pickup after dispatched, got %q", next)
	}
	if _, ok := DispatchStatusCompleted.Next(); ok {
		t.Error("completed has no successor")
	}
	if DispatchStatusArrived.Rank() <= DispatchStatusEnRoutePickup.Rank() {
		t.Error("arrived must rank after en_route_pickup")
	}
	if DispatchStatusCancelled.Rank() != -1 || !DispatchStatusCancelled.Valid() {
		t.Error("cancelled sits outside the linear order but is valid")
	}
}

func TestDispatch_ApplyStampsOnce(t *testing.T) {
	d := &Dispatch{Status: DispatchStatusDispatched, DispatchedAt: at(8, 0)}
	d.Apply(DispatchStatusEnRoutePickup, at(8, 5))
	d.Apply(DispatchStatusEnRoutePickup, at(8, 10))

	if d.EnRoutePickupAt == nil || !d.EnRoutePickupAt.Equal(at(8, 5)) {
		t.Errorf("expected first stamp to survive, got %v", d.EnRoutePickupAt)
	}
	if !d.Recorded(DispatchStatusEnRoutePickup) || d.Recorded(DispatchStatusAtPickup) {
		t.Error("recorded milestones are wrong")
	}
}

func TestWorkflowKind_Chains(t *testing.T) {
	if next, _ := WorkflowKindTransfer.Next(WorkflowStatusApproved); next != WorkflowStatusInTransit {
		t.Errorf("transfer: expected in_transit after approved, got %q", next)
	}
	if next, _ := WorkflowKindDisposal.Next(WorkflowStatusApproved); next != WorkflowStatusCompleted {
		t.Errorf("disposal: expected completed after approved, got %q", next)
	}
	if !WorkflowKindTransfer.Terminal(WorkflowStatusCompleted) {
		t.Error("completed transfer is terminal")
	}
	if WorkflowKindDisposal.Terminal(WorkflowStatusCompleted) {
		t.Error("completed disposal still accepts verification")
	}
	if WorkflowKindTransfer.Rank(WorkflowStatusVerified) != -1 {
		t.Error("transfers have no verification step")
	}
}

func TestResourceKind_ValidStatus(t *testing.T) {
	if !ResourceKindBed.ValidStatus(BedStatusCleaning) {
		t.Error("cleaning is a bed status")
	}
	if ResourceKindEquipment.ValidStatus(BedStatusReserved) {
		t.Error("reserved is not an equipment status")
	}
	if ResourceKindAmbulance.Reservable() {
		t.Error("ambulances are dispatched, not reserved")
	}
}

func TestRoleLevel_Ordering(t *testing.T) {
	if !RoleFacilityAdmin.AtLeast(RoleDepartmentHead) {
		t.Error("facility admin outranks department head")
	}
	if RoleNurse.AtLeast(RoleDoctor) {
		t.Error("nurse does not outrank doctor")
	}
	level, err := ParseRoleLevel("Dispatcher")
	if err != nil || level != RoleDispatcher {
		t.Errorf("ParseRoleLevel(Dispatcher) = %v, %v", level, err)
	}
	if _, err := ParseRoleLevel("janitor"); err == nil {
		t.Error("unknown roles must be rejected")
	}
}

func TestParseNotifiable(t *testing.T) {
	n, err := ParseNotifiable("patient:p-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind != NotifiablePatient || n.ID != "p-42" || n.String() != "patient:p-42" {
		t.Errorf("unexpected notifiable %+v", n)
	}
	for _, bad := range []string{"p-42", "robot:1", "doctor:"} {
		if _, err := ParseNotifiable(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
