package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/j-arredondo/cleansched/internal/model"
)

var (
	// ErrNotEligible means a requested employee is not allowed to perform the
	// service, or is inactive.
	ErrNotEligible = errors.New("employee not eligible for service")
	// ErrNoFeasibleTeam means auto-assign could not staff the service at the
	// requested time.
	ErrNoFeasibleTeam = errors.New("no feasible team for requested slot")
)

// TeamRequest selects either an explicit set of employees or automatic
// assignment. The zero value is invalid; use SpecificTeam or AutoAssignTeam.
type TeamRequest struct {
	auto bool
	ids  []int64
}

func SpecificTeam(ids ...int64) TeamRequest {
	return TeamRequest{ids: ids}
}

func AutoAssignTeam() TeamRequest {
	return TeamRequest{auto: true}
}

func (t TeamRequest) AutoAssign() bool { return t.auto }

func (t TeamRequest) EmployeeIDs() []int64 { return t.ids }

// EmployeeDirectory lists candidates for auto-assignment.
type EmployeeDirectory interface {
	// ListActiveByService returns active employees eligible for the service,
	// in ascending id order.
	ListActiveByService(ctx context.Context, serviceID int64) ([]model.Employee, error)
}

// AssignedTeam is a resolved, fully-available set of employees for one slot.
type AssignedTeam struct {
	Members []model.Assignment
}

// Resolver staffs an appointment: it validates explicit teams whole, or
// greedily assembles one for auto-assign requests.
type Resolver struct {
	engine    *Engine
	directory EmployeeDirectory
}

func NewResolver(engine *Engine, directory EmployeeDirectory) *Resolver {
	return &Resolver{engine: engine, directory: directory}
}

// ResolveTeam returns the team to assign and the engine's decision. For
// explicit teams the decision covers the whole set: any member's conflict or
// off-duty day fails the entire request, never a partial team. For
// auto-assign, eligible active employees are tried in ascending id order
// until service.Capacity members (minimum 1; capacity models team size here)
// are individually available; falling short returns ErrNoFeasibleTeam.
func (r *Resolver) ResolveTeam(ctx context.Context, svc model.Service, req TeamRequest, date, start time.Time) (AssignedTeam, Result, error) {
	if req.AutoAssign() {
		return r.autoAssign(ctx, svc, date, start)
	}

	ids := req.EmployeeIDs()
	if len(ids) == 0 {
		return AssignedTeam{}, Result{}, fmt.Errorf("team request names no employees")
	}
	for _, id := range ids {
		emp, err := r.engine.employees.GetEmployee(ctx, id)
		if err != nil {
			return AssignedTeam{}, Result{}, err
		}
		if emp.Status != model.EmployeeActive || !emp.EligibleFor(svc.ID) {
			return AssignedTeam{}, Result{}, fmt.Errorf("employee %d: %w", id, ErrNotEligible)
		}
	}

	res, err := r.engine.CheckSlot(ctx, svc, ids, date, start, 0)
	if err != nil {
		return AssignedTeam{}, Result{}, err
	}
	if !res.Available() {
		return AssignedTeam{}, res, nil
	}
	return team(ids), res, nil
}

func (r *Resolver) autoAssign(ctx context.Context, svc model.Service, date, start time.Time) (AssignedTeam, Result, error) {
	needed := svc.Capacity
	if needed < 1 {
		needed = 1
	}

	candidates, err := r.directory.ListActiveByService(ctx, svc.ID)
	if err != nil {
		return AssignedTeam{}, Result{}, err
	}

	var picked []int64
	var lastResult Result
	for _, emp := range candidates {
		res, err := r.engine.CheckSlot(ctx, svc, []int64{emp.ID}, date, start, 0)
		if err != nil {
			return AssignedTeam{}, Result{}, err
		}
		if res.Available() {
			picked = append(picked, emp.ID)
			lastResult = res
			if len(picked) == needed {
				return team(picked), lastResult, nil
			}
			continue
		}
		lastResult = res
	}
	return AssignedTeam{}, lastResult, fmt.Errorf("%w: need %d, found %d", ErrNoFeasibleTeam, needed, len(picked))
}

func team(ids []int64) AssignedTeam {
	members := make([]model.Assignment, 0, len(ids))
	for _, id := range ids {
		members = append(members, model.Assignment{EmployeeID: id, Role: model.DefaultAssignmentRole})
	}
	return AssignedTeam{Members: members}
}
