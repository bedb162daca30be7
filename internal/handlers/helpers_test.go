package handlers

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	d, ok := parseDate("2026-03-02", loc)
	if !ok {
		t.Fatal("expected valid date")
	}
	if d.Hour() != 0 || d.Location() != loc {
		t.Fatalf("expected midnight in business tz, got %v", d)
	}

	for _, raw := range []string{"", "03/02/2026", "2026-13-01", "yesterday"} {
		if _, ok := parseDate(raw, loc); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestParseStart(t *testing.T) {
	loc := time.UTC
	date, _ := parseDate("2026-03-02", loc)

	start, ok := parseStart(date, "09:30")
	if !ok {
		t.Fatal("expected valid start")
	}
	if start.Hour() != 9 || start.Minute() != 30 {
		t.Fatalf("expected 09:30, got %v", start)
	}
	if !start.Truncate(24 * time.Hour).Equal(date.Truncate(24 * time.Hour)) {
		t.Fatalf("start not on requested date: %v", start)
	}

	for _, raw := range []string{"", "9am", "25:00", "12:61"} {
		if _, ok := parseStart(date, raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestQueryInt64(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/?id=42&bad=x", nil)
	if got := queryInt64(r, "id"); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := queryInt64(r, "bad"); got != 0 {
		t.Fatalf("expected 0 for non-numeric, got %d", got)
	}
	if got := queryInt64(r, "missing"); got != 0 {
		t.Fatalf("expected 0 for missing, got %d", got)
	}
}

func TestAppointmentStatusParsing(t *testing.T) {
	for _, valid := range []string{"pending", "confirmed", "in_progress", "completed", "cancelled", "no_show"} {
		if _, ok := appointmentStatus(valid); !ok {
			t.Fatalf("expected %q to parse", valid)
		}
	}
	for _, invalid := range []string{"", "done", "PENDING"} {
		if _, ok := appointmentStatus(invalid); ok {
			t.Fatalf("expected %q to be rejected", invalid)
		}
	}
}

func TestParseWeeklyHours(t *testing.T) {
	hours, msg := parseWeeklyHours([]dayHoursPayload{
		{Weekday: 1, Enabled: true, StartMinute: 480, EndMinute: 1080},
		{Weekday: 0, Enabled: false},
	})
	if msg != "" {
		t.Fatalf("unexpected error: %s", msg)
	}
	mon := hours[time.Monday]
	if !mon.Enabled || mon.StartMinute != 480 || mon.EndMinute != 1080 {
		t.Fatalf("monday hours wrong: %+v", mon)
	}
	if hours[time.Sunday].Enabled {
		t.Fatal("sunday should be disabled")
	}

	cases := []struct {
		name string
		in   []dayHoursPayload
	}{
		{"weekday out of range", []dayHoursPayload{{Weekday: 7, Enabled: true, StartMinute: 0, EndMinute: 60}}},
		{"inverted window", []dayHoursPayload{{Weekday: 1, Enabled: true, StartMinute: 600, EndMinute: 480}}},
		{"past midnight", []dayHoursPayload{{Weekday: 1, Enabled: true, StartMinute: 0, EndMinute: 1441}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, msg := parseWeeklyHours(tc.in); msg == "" {
				t.Fatal("expected validation error")
			}
		})
	}
}
