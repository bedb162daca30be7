package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/j-arredondo/cleansched/internal/model"
)

func testResolver(emps *fakeEmployees, appts *fakeAppointments) *Resolver {
	eng := testEngine(emps, newFakeOverrides(), appts, noon2DaysBefore())
	return NewResolver(eng, emps)
}

func TestResolveTeamExplicit(t *testing.T) {
	res := testResolver(newFakeEmployees(weekdayWorker(1), weekdayWorker(2)), newFakeAppointments())

	svc := deepClean()
	svc.Capacity = 2
	team, check, err := res.ResolveTeam(context.Background(), svc, SpecificTeam(1, 2), monday(), at(monday(), 9, 0))
	if err != nil {
		t.Fatalf("ResolveTeam: %v", err)
	}
	if !check.Available() {
		t.Fatalf("outcome = %v, want AVAILABLE", check.Outcome)
	}
	if len(team.Members) != 2 {
		t.Fatalf("got %d members, want 2", len(team.Members))
	}
	for i, m := range team.Members {
		if m.Role != model.DefaultAssignmentRole {
			t.Fatalf("member %d role = %q, want %q", i, m.Role, model.DefaultAssignmentRole)
		}
	}
}

// One busy member sinks the whole explicit team; no partial assignment.
func TestResolveTeamExplicitAllOrNothing(t *testing.T) {
	appts := newFakeAppointments()
	appts.add(2, booked(77, monday(), 9, 0, 120))
	res := testResolver(newFakeEmployees(weekdayWorker(1), weekdayWorker(2)), appts)

	team, check, err := res.ResolveTeam(context.Background(), deepClean(), SpecificTeam(1, 2), monday(), at(monday(), 9, 0))
	if err != nil {
		t.Fatalf("ResolveTeam: %v", err)
	}
	if check.Available() {
		t.Fatal("expected the team check to fail")
	}
	if check.Outcome != OutcomeConflict || check.EmployeeID != 2 {
		t.Fatalf("check = %+v, want conflict on employee 2", check)
	}
	if len(team.Members) != 0 {
		t.Fatalf("partial team returned: %+v", team.Members)
	}
}

func TestResolveTeamIneligibleEmployee(t *testing.T) {
	other := weekdayWorker(2)
	other.ServiceIDs = []int64{99}
	res := testResolver(newFakeEmployees(weekdayWorker(1), other), newFakeAppointments())

	_, _, err := res.ResolveTeam(context.Background(), deepClean(), SpecificTeam(1, 2), monday(), at(monday(), 9, 0))
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("err = %v, want ErrNotEligible", err)
	}
}

func TestResolveTeamInactiveEmployee(t *testing.T) {
	gone := weekdayWorker(2)
	gone.Status = model.EmployeeInactive
	res := testResolver(newFakeEmployees(weekdayWorker(1), gone), newFakeAppointments())

	_, _, err := res.ResolveTeam(context.Background(), deepClean(), SpecificTeam(1, 2), monday(), at(monday(), 9, 0))
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("err = %v, want ErrNotEligible", err)
	}
}

// Auto-assign picks the lowest-id free employees first.
func TestAutoAssignAscendingID(t *testing.T) {
	appts := newFakeAppointments()
	appts.add(1, booked(77, monday(), 9, 0, 120)) // employee 1 busy
	res := testResolver(newFakeEmployees(weekdayWorker(1), weekdayWorker(2), weekdayWorker(3)), appts)

	svc := deepClean()
	svc.Capacity = 2
	team, check, err := res.ResolveTeam(context.Background(), svc, AutoAssignTeam(), monday(), at(monday(), 9, 0))
	if err != nil {
		t.Fatalf("ResolveTeam: %v", err)
	}
	if !check.Available() {
		t.Fatalf("outcome = %v, want AVAILABLE", check.Outcome)
	}
	if len(team.Members) != 2 || team.Members[0].EmployeeID != 2 || team.Members[1].EmployeeID != 3 {
		t.Fatalf("team = %+v, want employees 2 and 3", team.Members)
	}
}

func TestAutoAssignCapacityDefaultsToOne(t *testing.T) {
	res := testResolver(newFakeEmployees(weekdayWorker(1), weekdayWorker(2)), newFakeAppointments())

	svc := deepClean()
	svc.Capacity = 0
	team, _, err := res.ResolveTeam(context.Background(), svc, AutoAssignTeam(), monday(), at(monday(), 9, 0))
	if err != nil {
		t.Fatalf("ResolveTeam: %v", err)
	}
	if len(team.Members) != 1 || team.Members[0].EmployeeID != 1 {
		t.Fatalf("team = %+v, want just employee 1", team.Members)
	}
}

func TestAutoAssignNoFeasibleTeam(t *testing.T) {
	appts := newFakeAppointments()
	appts.add(1, booked(70, monday(), 9, 0, 120))
	appts.add(2, booked(71, monday(), 9, 0, 120))
	res := testResolver(newFakeEmployees(weekdayWorker(1), weekdayWorker(2)), appts)

	svc := deepClean()
	svc.Capacity = 2
	_, _, err := res.ResolveTeam(context.Background(), svc, AutoAssignTeam(), monday(), at(monday(), 9, 0))
	if !errors.Is(err, ErrNoFeasibleTeam) {
		t.Fatalf("err = %v, want ErrNoFeasibleTeam", err)
	}
}

func TestAutoAssignSkipsIneligible(t *testing.T) {
	limited := weekdayWorker(1)
	limited.ServiceIDs = []int64{99}
	res := testResolver(newFakeEmployees(limited, weekdayWorker(2)), newFakeAppointments())

	team, _, err := res.ResolveTeam(context.Background(), deepClean(), AutoAssignTeam(), monday(), at(monday(), 9, 0))
	if err != nil {
		t.Fatalf("ResolveTeam: %v", err)
	}
	if len(team.Members) != 1 || team.Members[0].EmployeeID != 2 {
		t.Fatalf("team = %+v, want just employee 2", team.Members)
	}
}

func TestResolveTeamEmptyExplicit(t *testing.T) {
	res := testResolver(newFakeEmployees(weekdayWorker(1)), newFakeAppointments())

	_, _, err := res.ResolveTeam(context.Background(), deepClean(), SpecificTeam(), monday(), at(monday(), 9, 0))
	if err == nil {
		t.Fatal("expected error for empty explicit team")
	}
}
