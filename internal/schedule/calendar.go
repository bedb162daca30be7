package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/j-arredondo/cleansched/internal/model"
)

// TimeRange is a half-open [Start, End) range on a single date.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// OverrideStore looks up date-specific availability exceptions.
// Implementations return nil (no error) when no override exists.
type OverrideStore interface {
	// FindEmployeeOverride returns the override for (employeeID, date), if any.
	FindEmployeeOverride(ctx context.Context, employeeID int64, date time.Time) (*model.Override, error)
	// FindGlobalOverride returns the all-employees override for date, if any.
	FindGlobalOverride(ctx context.Context, date time.Time) (*model.Override, error)
}

// Calendar resolves an employee's working range for a date, combining the
// weekly recurring schedule with overrides. Precedence, most specific first:
// employee override, global override, weekly hours.
type Calendar struct {
	overrides OverrideStore
	logger    *slog.Logger
}

func NewCalendar(overrides OverrideStore, logger *slog.Logger) *Calendar {
	return &Calendar{overrides: overrides, logger: logger}
}

// Resolve returns the working range for emp on date and whether the employee
// works at all that day. date must be midnight in the business timezone.
// Malformed schedule data degrades to not-working instead of failing the
// request.
func (c *Calendar) Resolve(ctx context.Context, emp model.Employee, date time.Time) (TimeRange, bool, error) {
	// An employee override of any shape shadows the global one for the date;
	// the global override is only consulted when no employee row exists.
	ov, err := c.overrides.FindEmployeeOverride(ctx, emp.ID, date)
	if err != nil {
		return TimeRange{}, false, err
	}
	if ov == nil {
		ov, err = c.overrides.FindGlobalOverride(ctx, date)
		if err != nil {
			return TimeRange{}, false, err
		}
	}
	if ov != nil {
		if !ov.Available {
			return TimeRange{}, false, nil
		}
		if ov.HasTimes() {
			r, ok := minuteRange(date, *ov.StartMinute, *ov.EndMinute)
			if !ok {
				c.logger.Warn("override has invalid time range, treating as not working",
					"override_id", ov.ID, "employee_id", emp.ID, "date", date.Format("2006-01-02"))
				return TimeRange{}, false, nil
			}
			return r, true, nil
		}
		// Available override without explicit times: the date is not blocked,
		// the hours come from the weekly schedule below.
	}

	day, found := emp.Hours[date.Weekday()]
	if !found || !day.Enabled {
		return TimeRange{}, false, nil
	}
	if !day.Valid() {
		c.logger.Warn("malformed working hours, treating day as not working",
			"employee_id", emp.ID, "weekday", date.Weekday().String())
		return TimeRange{}, false, nil
	}
	r, ok := minuteRange(date, day.StartMinute, day.EndMinute)
	if !ok {
		c.logger.Warn("malformed working hours, treating day as not working",
			"employee_id", emp.ID, "weekday", date.Weekday().String())
		return TimeRange{}, false, nil
	}
	return r, true, nil
}

func minuteRange(date time.Time, startMin, endMin int) (TimeRange, bool) {
	if startMin < 0 || startMin >= endMin || endMin > 24*60 {
		return TimeRange{}, false
	}
	return TimeRange{
		Start: date.Add(time.Duration(startMin) * time.Minute),
		End:   date.Add(time.Duration(endMin) * time.Minute),
	}, true
}
