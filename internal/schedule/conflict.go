package schedule

import (
	"context"
	"fmt"
	"time"
)

// BookedAppointment is the minimal persisted-appointment view the detector
// needs: the customer-visible service range plus the owning service's
// current buffer configuration. Buffers are re-applied here rather than
// snapshotted at booking time, so later buffer changes take effect for all
// future conflict checks.
type BookedAppointment struct {
	ID               int64
	ServiceStart     time.Time
	ServiceEnd       time.Time
	BufferBeforeMins int
	BufferAfterMins  int
}

func (b BookedAppointment) occupied() (time.Time, time.Time) {
	return b.ServiceStart.Add(-time.Duration(b.BufferBeforeMins) * time.Minute),
		b.ServiceEnd.Add(time.Duration(b.BufferAfterMins) * time.Minute)
}

// blocks reports whether the candidate and this appointment cannot share the
// employee: the candidate's service range against the appointment's occupied
// window, and the candidate's occupied window against the appointment's
// service range. Occupied-vs-occupied would charge the transition gap between
// two bookings twice; one buffer covers a handover, so an appointment
// occupying [08:45, 10:15) leaves 10:15 bookable with the same buffers.
func (b BookedAppointment) blocks(cand Window) bool {
	occStart, occEnd := b.occupied()
	return Overlaps(cand.ServiceStart, cand.ServiceEnd, occStart, occEnd) ||
		Overlaps(cand.OccupiedStart, cand.OccupiedEnd, b.ServiceStart, b.ServiceEnd)
}

// storedOverlap applies the same rule to two persisted appointments.
func storedOverlap(a, b BookedAppointment) bool {
	aOccStart, aOccEnd := a.occupied()
	bOccStart, bOccEnd := b.occupied()
	return Overlaps(a.ServiceStart, a.ServiceEnd, bOccStart, bOccEnd) ||
		Overlaps(aOccStart, aOccEnd, b.ServiceStart, b.ServiceEnd)
}

// AppointmentSource fetches the blocking appointments for one employee on one
// date. Cancelled appointments are excluded; every other status blocks.
// excludeID > 0 omits that appointment (reschedule self-exclusion).
type AppointmentSource interface {
	FindActiveByEmployeeAndDate(ctx context.Context, employeeID int64, date time.Time, excludeID int64) ([]BookedAppointment, error)
}

// ConflictSummary describes one persisted appointment that blocks a
// candidate window, with enough detail for a human message.
type ConflictSummary struct {
	AppointmentID int64
	OccupiedStart time.Time
	OccupiedEnd   time.Time
}

// IntegrityError reports two already-persisted appointments for the same
// employee that block each other. The core cannot repair this; it must
// surface for manual reconciliation.
type IntegrityError struct {
	EmployeeID     int64
	AppointmentIDs [2]int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("overlapping persisted appointments %d and %d for employee %d",
		e.AppointmentIDs[0], e.AppointmentIDs[1], e.EmployeeID)
}

// Detector checks candidate windows against persisted appointments.
type Detector struct {
	appts AppointmentSource
}

func NewDetector(appts AppointmentSource) *Detector {
	return &Detector{appts: appts}
}

// FindConflicts returns every persisted appointment that blocks the candidate
// window, ordered as returned by the source. It also cross-checks the fetched
// records against each other and returns an IntegrityError if the store
// already holds an overlap.
func (d *Detector) FindConflicts(ctx context.Context, employeeID int64, date time.Time, candidate Window, excludeID int64) ([]ConflictSummary, error) {
	existing, err := d.appts.FindActiveByEmployeeAndDate(ctx, employeeID, date, excludeID)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(existing); i++ {
		for j := i + 1; j < len(existing); j++ {
			if storedOverlap(existing[i], existing[j]) {
				return nil, &IntegrityError{
					EmployeeID:     employeeID,
					AppointmentIDs: [2]int64{existing[i].ID, existing[j].ID},
				}
			}
		}
	}

	var conflicts []ConflictSummary
	for _, appt := range existing {
		if appt.blocks(candidate) {
			occStart, occEnd := appt.occupied()
			conflicts = append(conflicts, ConflictSummary{
				AppointmentID: appt.ID,
				OccupiedStart: occStart,
				OccupiedEnd:   occEnd,
			})
		}
	}
	return conflicts, nil
}

// HasConflict is FindConflicts reduced to a yes/no answer.
func (d *Detector) HasConflict(ctx context.Context, employeeID int64, date time.Time, candidate Window, excludeID int64) (bool, error) {
	conflicts, err := d.FindConflicts(ctx, employeeID, date, candidate, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}
