package schedule

import (
	"testing"
	"time"
)

func TestValidateNoticeTooSoon(t *testing.T) {
	svc := deepClean() // min 24h, max 30d
	now := at(monday(), 9, 0)

	res := ValidateNotice(svc, now.Add(23*time.Hour+59*time.Minute), now)
	if res.Violation != NoticeTooSoon {
		t.Fatalf("23h59m lead: violation = %v, want TooSoon", res.Violation)
	}

	// exactly the minimum is acceptable
	res = ValidateNotice(svc, now.Add(24*time.Hour), now)
	if res.Violation != NoticeOK {
		t.Fatalf("24h lead: violation = %v, want OK", res.Violation)
	}
}

func TestValidateNoticeTooFarOut(t *testing.T) {
	svc := deepClean()
	now := at(monday(), 9, 0)

	// exactly the maximum is acceptable
	res := ValidateNotice(svc, now.Add(30*24*time.Hour), now)
	if res.Violation != NoticeOK {
		t.Fatalf("30d lead: violation = %v, want OK", res.Violation)
	}

	res = ValidateNotice(svc, now.Add(30*24*time.Hour+time.Minute), now)
	if res.Violation != NoticeTooLate {
		t.Fatalf("30d1m lead: violation = %v, want TooLate", res.Violation)
	}
}

func TestValidateNoticeUnrestricted(t *testing.T) {
	svc := deepClean()
	svc.MinAdvanceHours = 0
	svc.MaxAdvanceDays = 0
	now := at(monday(), 9, 0)

	if res := ValidateNotice(svc, now.Add(time.Minute), now); res.Violation != NoticeOK {
		t.Fatalf("no minimum configured but got %v", res.Violation)
	}
	if res := ValidateNotice(svc, now.Add(365*24*time.Hour), now); res.Violation != NoticeOK {
		t.Fatalf("no maximum configured but got %v", res.Violation)
	}
}

func TestValidateNoticeReportsLead(t *testing.T) {
	svc := deepClean()
	now := at(monday(), 9, 0)

	res := ValidateNotice(svc, now.Add(48*time.Hour), now)
	if res.Lead != 48*time.Hour {
		t.Fatalf("lead = %v, want 48h", res.Lead)
	}
	if res.Min != 24*time.Hour {
		t.Fatalf("min = %v, want 24h", res.Min)
	}
	if res.Max != 30*24*time.Hour {
		t.Fatalf("max = %v, want 720h", res.Max)
	}
}
