package schedule

import (
	"testing"
	"time"
)

func TestServiceWindowIncludesBuffers(t *testing.T) {
	svc := deepClean() // 120min service, 15min buffer each side
	start := at(monday(), 9, 0)

	win := ServiceWindow(svc, start)

	if got, want := win.ServiceStart, start; !got.Equal(want) {
		t.Fatalf("service start = %v, want %v", got, want)
	}
	if got, want := win.ServiceEnd, at(monday(), 11, 0); !got.Equal(want) {
		t.Fatalf("service end = %v, want %v", got, want)
	}
	if got, want := win.OccupiedStart, at(monday(), 8, 45); !got.Equal(want) {
		t.Fatalf("occupied start = %v, want %v", got, want)
	}
	if got, want := win.OccupiedEnd, at(monday(), 11, 15); !got.Equal(want) {
		t.Fatalf("occupied end = %v, want %v", got, want)
	}
}

func TestServiceWindowZeroBuffers(t *testing.T) {
	svc := deepClean()
	svc.BufferBeforeMins = 0
	svc.BufferAfterMins = 0
	start := at(monday(), 9, 0)

	win := ServiceWindow(svc, start)
	if !win.OccupiedStart.Equal(win.ServiceStart) || !win.OccupiedEnd.Equal(win.ServiceEnd) {
		t.Fatalf("zero buffers should leave occupied == service window, got %+v", win)
	}
}

func TestOverlaps(t *testing.T) {
	d := monday()
	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"disjoint", at(d, 8, 0), at(d, 9, 0), at(d, 10, 0), at(d, 11, 0), false},
		{"partial", at(d, 8, 0), at(d, 10, 0), at(d, 9, 0), at(d, 11, 0), true},
		{"contained", at(d, 8, 0), at(d, 12, 0), at(d, 9, 0), at(d, 10, 0), true},
		{"identical", at(d, 8, 0), at(d, 10, 0), at(d, 8, 0), at(d, 10, 0), true},
		// back-to-back windows share only the boundary instant, which belongs
		// to the later window, so they do not overlap
		{"adjacent", at(d, 8, 0), at(d, 10, 0), at(d, 10, 0), at(d, 12, 0), false},
		{"adjacent reversed", at(d, 10, 0), at(d, 12, 0), at(d, 8, 0), at(d, 10, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
			// overlap is symmetric
			if got := Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd); got != tc.want {
				t.Fatalf("Overlaps (swapped) = %v, want %v", got, tc.want)
			}
		})
	}
}
