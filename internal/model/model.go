package model

import "time"

type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "active"
	ServiceInactive ServiceStatus = "inactive"
)

// Service is a bookable cleaning service. Durations and buffers are minutes;
// advance-notice bounds are hours (min) and days (max), zero meaning
// unrestricted in that direction.
type Service struct {
	ID               int64
	Name             string
	DurationMins     int
	Price            string
	Capacity         int
	BufferBeforeMins int
	BufferAfterMins  int
	MinAdvanceHours  int
	MaxAdvanceDays   int
	Status           ServiceStatus
	CreatedAt        time.Time
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMins) * time.Minute
}

type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// DayHours is one weekday's recurring working window, as minutes of day.
type DayHours struct {
	Enabled     bool
	StartMinute int
	EndMinute   int
}

// Valid reports whether the stored hours describe a usable window.
// Rows that fail this check are treated as not-working rather than erroring,
// so one bad record cannot take down the whole calendar.
func (d DayHours) Valid() bool {
	if !d.Enabled {
		return true
	}
	return d.StartMinute >= 0 && d.StartMinute < d.EndMinute && d.EndMinute <= 24*60
}

type WeeklyHours map[time.Weekday]DayHours

type Employee struct {
	ID     int64
	Name   string
	Status EmployeeStatus
	Hours  WeeklyHours
	// ServiceIDs lists the services this employee may be assigned to.
	// An empty list means eligible for every service.
	ServiceIDs []int64
	CreatedAt  time.Time
}

func (e Employee) EligibleFor(serviceID int64) bool {
	if len(e.ServiceIDs) == 0 {
		return true
	}
	for _, id := range e.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Override is a date-specific exception to recurring working hours.
// EmployeeID nil means the override applies to every employee (e.g. a
// holiday closure). StartMinute/EndMinute nil with Available=true narrows
// nothing; with Available=false the whole date is blocked.
type Override struct {
	ID          int64
	EmployeeID  *int64
	Date        time.Time // midnight, business timezone
	StartMinute *int
	EndMinute   *int
	Available   bool
	Reason      string
	CreatedAt   time.Time
}

func (o Override) HasTimes() bool {
	return o.StartMinute != nil && o.EndMinute != nil
}

type AppointmentStatus string

const (
	AppointmentPending    AppointmentStatus = "pending"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentNoShow     AppointmentStatus = "no_show"
)

// Blocking reports whether an appointment in this status occupies its
// employees' time for future scheduling. Only cancellation frees the slot.
func (s AppointmentStatus) Blocking() bool {
	return s != AppointmentCancelled
}

const DefaultAssignmentRole = "technician"

// Assignment links one employee to an appointment with a role tag.
type Assignment struct {
	EmployeeID int64
	Role       string
}

// Appointment is a booked service visit. StartTime/EndTime are the
// customer-visible service window; EndTime is always StartTime plus the
// service duration. Buffer margins are recomputed from the service's current
// configuration, never persisted here.
type Appointment struct {
	ID            int64
	ServiceID     int64
	QuoteID       *int64
	Assignments   []Assignment
	Date          time.Time // midnight, business timezone
	StartTime     time.Time
	EndTime       time.Time
	Status        AppointmentStatus
	Price         string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	CancelReason  string
	CancelledAt   *time.Time
	CreatedAt     time.Time
}

func (a Appointment) EmployeeIDs() []int64 {
	ids := make([]int64, 0, len(a.Assignments))
	for _, asg := range a.Assignments {
		ids = append(ids, asg.EmployeeID)
	}
	return ids
}

type QuoteStatus string

const (
	QuotePending  QuoteStatus = "pending"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteDeclined QuoteStatus = "declined"
)

// Quote is the customer-intake record that may seed an appointment.
// Pricing arithmetic happens outside the scheduling service; Price is an
// opaque caller-provided value.
type Quote struct {
	ID            int64
	ServiceID     int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	RequestedDate time.Time
	Price         string
	Status        QuoteStatus
	CreatedAt     time.Time
}
