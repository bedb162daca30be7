package schedule

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/j-arredondo/cleansched/internal/model"
)

type Outcome int

const (
	OutcomeAvailable Outcome = iota
	OutcomeConflict
	OutcomeOutsideWorkingHours
	OutcomeOutOfWindow
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAvailable:
		return "available"
	case OutcomeConflict:
		return "conflict"
	case OutcomeOutsideWorkingHours:
		return "outside_working_hours"
	case OutcomeOutOfWindow:
		return "out_of_window"
	default:
		return "unknown"
	}
}

// Result is the engine's decision for one candidate slot. EmployeeID is set
// for per-employee failures (conflict, outside working hours); Conflict and
// Notice carry the structured detail for whichever outcome applies.
type Result struct {
	Outcome    Outcome
	Window     Window
	EmployeeID int64
	Conflict   *ConflictSummary
	Notice     *NoticeResult
}

func (r Result) Available() bool { return r.Outcome == OutcomeAvailable }

// EmployeeSource fetches employees for availability checks.
type EmployeeSource interface {
	GetEmployee(ctx context.Context, id int64) (model.Employee, error)
}

// Engine is the availability decision pipeline. It only reads; persisting a
// booking after a passed check is the caller's responsibility, and the
// check-plus-insert pair must be treated as a critical section (see
// internal/booking).
type Engine struct {
	employees EmployeeSource
	calendar  *Calendar
	detector  *Detector
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(employees EmployeeSource, calendar *Calendar, detector *Detector, logger *slog.Logger) *Engine {
	return &Engine{
		employees: employees,
		calendar:  calendar,
		detector:  detector,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock. Test hook.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CheckSlot decides whether every listed employee is free for svc starting at
// start on date. The pipeline short-circuits in a fixed order so failures are
// deterministic and explainable: advance notice, then working hours (the
// buffer-expanded window must fit inside the resolved range), then conflicts.
// excludeID > 0 ignores that appointment, for reschedule validation.
func (e *Engine) CheckSlot(ctx context.Context, svc model.Service, employeeIDs []int64, date, start time.Time, excludeID int64) (Result, error) {
	win := ServiceWindow(svc, start)

	if notice := ValidateNotice(svc, start, e.now()); notice.Violation != NoticeOK {
		return Result{Outcome: OutcomeOutOfWindow, Window: win, Notice: &notice}, nil
	}

	for _, id := range employeeIDs {
		emp, err := e.employees.GetEmployee(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if emp.Status != model.EmployeeActive {
			return Result{Outcome: OutcomeOutsideWorkingHours, Window: win, EmployeeID: id}, nil
		}

		rng, working, err := e.calendar.Resolve(ctx, emp, date)
		if err != nil {
			return Result{}, err
		}
		if !working || win.OccupiedStart.Before(rng.Start) || win.OccupiedEnd.After(rng.End) {
			return Result{Outcome: OutcomeOutsideWorkingHours, Window: win, EmployeeID: id}, nil
		}
	}

	for _, id := range employeeIDs {
		conflicts, err := e.detector.FindConflicts(ctx, id, date, win, excludeID)
		if err != nil {
			return Result{}, err
		}
		if len(conflicts) > 0 {
			first := conflicts[0]
			return Result{Outcome: OutcomeConflict, Window: win, EmployeeID: id, Conflict: &first}, nil
		}
	}

	return Result{Outcome: OutcomeAvailable, Window: win}, nil
}

// Slot is one free start time and the employees who could take it.
type Slot struct {
	Start       time.Time
	EmployeeIDs []int64
}

// ListFreeSlots enumerates candidate start times across the candidates'
// working windows on date at step granularity (default: the service
// duration) and returns, in ascending start order, every slot at least one
// employee is fully available for. Pure function of its inputs; no cursor
// state survives the call.
func (e *Engine) ListFreeSlots(ctx context.Context, svc model.Service, date time.Time, candidateIDs []int64, step time.Duration) ([]Slot, error) {
	if step <= 0 {
		step = svc.Duration()
	}
	if step <= 0 {
		return nil, nil
	}

	free := make(map[time.Time][]int64)
	for _, id := range candidateIDs {
		emp, err := e.employees.GetEmployee(ctx, id)
		if err != nil {
			return nil, err
		}
		if emp.Status != model.EmployeeActive {
			continue
		}
		rng, working, err := e.calendar.Resolve(ctx, emp, date)
		if err != nil {
			return nil, err
		}
		if !working {
			continue
		}

		// Earliest start whose buffer-expanded window still begins inside the
		// working range; walk forward until the window no longer fits.
		first := rng.Start.Add(time.Duration(svc.BufferBeforeMins) * time.Minute)
		for start := first; ; start = start.Add(step) {
			win := ServiceWindow(svc, start)
			if win.OccupiedEnd.After(rng.End) {
				break
			}
			res, err := e.CheckSlot(ctx, svc, []int64{id}, date, start, 0)
			if err != nil {
				return nil, err
			}
			if res.Available() {
				free[start] = append(free[start], id)
			}
		}
	}

	slots := make([]Slot, 0, len(free))
	for start, ids := range free {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		slots = append(slots, Slot{Start: start, EmployeeIDs: ids})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}
