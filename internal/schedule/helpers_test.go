package schedule

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/j-arredondo/cleansched/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 2026-03-02 is a Monday.
func monday() time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
}

func at(date time.Time, hour, min int) time.Time {
	return date.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func deepClean() model.Service {
	return model.Service{
		ID:               1,
		Name:             "Deep Clean",
		DurationMins:     120,
		Capacity:         1,
		BufferBeforeMins: 15,
		BufferAfterMins:  15,
		MinAdvanceHours:  24,
		MaxAdvanceDays:   30,
		Status:           model.ServiceActive,
	}
}

func weekdayWorker(id int64) model.Employee {
	hours := model.WeeklyHours{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours[wd] = model.DayHours{Enabled: true, StartMinute: 8 * 60, EndMinute: 18 * 60}
	}
	return model.Employee{ID: id, Name: fmt.Sprintf("emp-%d", id), Status: model.EmployeeActive, Hours: hours}
}

type fakeOverrides struct {
	perEmployee map[string]*model.Override // key employeeID|date
	global      map[string]*model.Override // key date
}

func overrideKey(employeeID int64, date time.Time) string {
	return fmt.Sprintf("%d|%s", employeeID, date.Format("2006-01-02"))
}

func newFakeOverrides() *fakeOverrides {
	return &fakeOverrides{
		perEmployee: map[string]*model.Override{},
		global:      map[string]*model.Override{},
	}
}

func (f *fakeOverrides) addEmployee(employeeID int64, ov model.Override) {
	ov.EmployeeID = &employeeID
	f.perEmployee[overrideKey(employeeID, ov.Date)] = &ov
}

func (f *fakeOverrides) addGlobal(ov model.Override) {
	f.global[ov.Date.Format("2006-01-02")] = &ov
}

func (f *fakeOverrides) FindEmployeeOverride(_ context.Context, employeeID int64, date time.Time) (*model.Override, error) {
	return f.perEmployee[overrideKey(employeeID, date)], nil
}

func (f *fakeOverrides) FindGlobalOverride(_ context.Context, date time.Time) (*model.Override, error) {
	return f.global[date.Format("2006-01-02")], nil
}

type fakeAppointments struct {
	byEmployee map[int64][]BookedAppointment
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{byEmployee: map[int64][]BookedAppointment{}}
}

func (f *fakeAppointments) add(employeeID int64, appt BookedAppointment) {
	f.byEmployee[employeeID] = append(f.byEmployee[employeeID], appt)
}

func (f *fakeAppointments) FindActiveByEmployeeAndDate(_ context.Context, employeeID int64, date time.Time, excludeID int64) ([]BookedAppointment, error) {
	var out []BookedAppointment
	for _, a := range f.byEmployee[employeeID] {
		if excludeID > 0 && a.ID == excludeID {
			continue
		}
		if a.ServiceStart.Year() == date.Year() && a.ServiceStart.YearDay() == date.YearDay() {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeEmployees struct {
	byID map[int64]model.Employee
}

func newFakeEmployees(emps ...model.Employee) *fakeEmployees {
	f := &fakeEmployees{byID: map[int64]model.Employee{}}
	for _, e := range emps {
		f.byID[e.ID] = e
	}
	return f
}

func (f *fakeEmployees) GetEmployee(_ context.Context, id int64) (model.Employee, error) {
	emp, ok := f.byID[id]
	if !ok {
		return model.Employee{}, fmt.Errorf("employee %d not found", id)
	}
	return emp, nil
}

func (f *fakeEmployees) ListActiveByService(_ context.Context, serviceID int64) ([]model.Employee, error) {
	var out []model.Employee
	var ids []int64
	for id := range f.byID {
		ids = append(ids, id)
	}
	// ascending id order
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids {
		emp := f.byID[id]
		if emp.Status == model.EmployeeActive && emp.EligibleFor(serviceID) {
			out = append(out, emp)
		}
	}
	return out, nil
}

func testEngine(emps *fakeEmployees, ovs *fakeOverrides, appts *fakeAppointments, now time.Time) *Engine {
	cal := NewCalendar(ovs, testLogger())
	det := NewDetector(appts)
	return NewEngine(emps, cal, det, testLogger()).WithNow(func() time.Time { return now })
}
