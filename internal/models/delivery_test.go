package models

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	path := []DeliveryStatus{
		DeliveryStatusPending,
		DeliveryStatusAssigned,
		DeliveryStatusPickedUp,
		DeliveryStatusInTransit,
		DeliveryStatusArrived,
		DeliveryStatusDelivered,
	}

	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

func TestCanTransitionRejectsBackwards(t *testing.T) {
	cases := []struct {
		from DeliveryStatus
		to   DeliveryStatus
	}{
		{DeliveryStatusDelivered, DeliveryStatusInTransit},
		{DeliveryStatusInTransit, DeliveryStatusPickedUp},
		{DeliveryStatusArrived, DeliveryStatusInTransit},
		{DeliveryStatusPickedUp, DeliveryStatusAssigned},
		{DeliveryStatusAssigned, DeliveryStatusPending},
	}

	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be rejected", c.from, c.to)
		}
	}
}

func TestCanTransitionRejectsSkippingAssignment(t *testing.T) {
	for _, to := range []DeliveryStatus{DeliveryStatusPickedUp, DeliveryStatusInTransit, DeliveryStatusArrived, DeliveryStatusDelivered} {
		if CanTransition(DeliveryStatusPending, to) {
			t.Errorf("expected pending -> %s to be rejected", to)
		}
	}
}

func TestCanTransitionTerminalIsFinal(t *testing.T) {
	terminals := []DeliveryStatus{
		DeliveryStatusDelivered,
		DeliveryStatusFailed,
		DeliveryStatusCancelled,
		DeliveryStatusReturned,
	}
	all := []DeliveryStatus{
		DeliveryStatusPending,
		DeliveryStatusAssigned,
		DeliveryStatusPickedUp,
		DeliveryStatusInTransit,
		DeliveryStatusArrived,
		DeliveryStatusDelivered,
		DeliveryStatusFailed,
		DeliveryStatusCancelled,
		DeliveryStatusReturned,
	}

	for _, from := range terminals {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("expected terminal %s -> %s to be rejected", from, to)
			}
		}
	}
}

func TestCanTransitionCancelFromAnyActiveStatus(t *testing.T) {
	active := []DeliveryStatus{
		DeliveryStatusPending,
		DeliveryStatusAssigned,
		DeliveryStatusPickedUp,
		DeliveryStatusInTransit,
		DeliveryStatusArrived,
	}

	for _, from := range active {
		for _, to := range []DeliveryStatus{DeliveryStatusCancelled, DeliveryStatusFailed, DeliveryStatusReturned} {
			if !CanTransition(from, to) {
				t.Errorf("expected %s -> %s to be allowed", from, to)
			}
		}
	}
}

func TestCanTransitionSameStatusRepeat(t *testing.T) {
	// Повтор текущего статуса допустим и только дополняет историю
	if !CanTransition(DeliveryStatusInTransit, DeliveryStatusInTransit) {
		t.Fatal("expected in_transit -> in_transit to be allowed")
	}
	if CanTransition(DeliveryStatusDelivered, DeliveryStatusDelivered) {
		t.Fatal("expected delivered -> delivered to be rejected")
	}
}

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		status DeliveryStatus
		want   bool
	}{
		{DeliveryStatusPending, false},
		{DeliveryStatusAssigned, false},
		{DeliveryStatusInTransit, false},
		{DeliveryStatusArrived, false},
		{DeliveryStatusDelivered, true},
		{DeliveryStatusFailed, true},
		{DeliveryStatusCancelled, true},
		{DeliveryStatusReturned, true},
	}

	for _, c := range cases {
		if got := c.status.IsTerminal(); got != c.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestIsActive(t *testing.T) {
	activeStatuses := map[DeliveryStatus]bool{
		DeliveryStatusAssigned:  true,
		DeliveryStatusPickedUp:  true,
		DeliveryStatusInTransit: true,
		DeliveryStatusArrived:   true,
		DeliveryStatusPending:   false,
		DeliveryStatusDelivered: false,
		DeliveryStatusCancelled: false,
	}

	for status, want := range activeStatuses {
		if got := status.IsActive(); got != want {
			t.Errorf("IsActive(%s) = %v, want %v", status, got, want)
		}
	}
}
