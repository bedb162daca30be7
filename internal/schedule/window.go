package schedule

import (
	"time"

	"github.com/j-arredondo/cleansched/internal/model"
)

// Window is the pair of time ranges a booking produces: the customer-visible
// service range and the buffer-expanded range the employee is actually
// blocked for. Both are half-open intervals.
type Window struct {
	OccupiedStart time.Time
	OccupiedEnd   time.Time
	ServiceStart  time.Time
	ServiceEnd    time.Time
}

// ServiceWindow computes the occupied window for a service starting at start:
// [start - buffer_before, start + duration + buffer_after). The service range
// is what gets persisted and shown to customers; buffers are scheduling
// margin only.
func ServiceWindow(svc model.Service, start time.Time) Window {
	serviceEnd := start.Add(svc.Duration())
	return Window{
		OccupiedStart: start.Add(-time.Duration(svc.BufferBeforeMins) * time.Minute),
		OccupiedEnd:   serviceEnd.Add(time.Duration(svc.BufferAfterMins) * time.Minute),
		ServiceStart:  start,
		ServiceEnd:    serviceEnd,
	}
}

// Overlaps reports whether two half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
