package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to AppointmentStatus }{
		{AppointmentPending, AppointmentConfirmed},
		{AppointmentPending, AppointmentCancelled},
		{AppointmentPending, AppointmentNoShow},
		{AppointmentConfirmed, AppointmentInProgress},
		{AppointmentConfirmed, AppointmentCancelled},
		{AppointmentConfirmed, AppointmentNoShow},
		{AppointmentInProgress, AppointmentCompleted},
		{AppointmentInProgress, AppointmentCancelled},
		{AppointmentInProgress, AppointmentNoShow},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to AppointmentStatus }{
		{AppointmentPending, AppointmentInProgress},
		{AppointmentPending, AppointmentCompleted},
		{AppointmentConfirmed, AppointmentCompleted},
		{AppointmentCompleted, AppointmentCancelled},
		{AppointmentCancelled, AppointmentPending},
		{AppointmentCancelled, AppointmentConfirmed},
		{AppointmentNoShow, AppointmentCompleted},
		{AppointmentConfirmed, AppointmentConfirmed},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestBlocking(t *testing.T) {
	if AppointmentCancelled.Blocking() {
		t.Error("cancelled appointments must not block slots")
	}
	for _, st := range []AppointmentStatus{
		AppointmentPending, AppointmentConfirmed, AppointmentInProgress,
		AppointmentCompleted, AppointmentNoShow,
	} {
		if !st.Blocking() {
			t.Errorf("expected %s to block its slot", st)
		}
	}
}
