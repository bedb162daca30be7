package schedule

import (
	"time"

	"github.com/j-arredondo/cleansched/internal/model"
)

type NoticeViolation int

const (
	NoticeOK NoticeViolation = iota
	NoticeTooSoon
	NoticeTooLate
)

func (v NoticeViolation) String() string {
	switch v {
	case NoticeTooSoon:
		return "too_soon"
	case NoticeTooLate:
		return "too_late"
	default:
		return "ok"
	}
}

// NoticeResult carries which advance-notice bound was violated and by what
// margin, for rendering a useful message.
type NoticeResult struct {
	Violation NoticeViolation
	Lead      time.Duration // requested time minus now
	Min       time.Duration // 0 = unrestricted
	Max       time.Duration // 0 = unrestricted
}

// ValidateNotice enforces the service's booking window against now.
// A requested time exactly at the minimum bound is acceptable; one exactly at
// the maximum bound is too.
func ValidateNotice(svc model.Service, requested, now time.Time) NoticeResult {
	res := NoticeResult{
		Violation: NoticeOK,
		Lead:      requested.Sub(now),
		Min:       time.Duration(svc.MinAdvanceHours) * time.Hour,
		Max:       time.Duration(svc.MaxAdvanceDays) * 24 * time.Hour,
	}
	if svc.MinAdvanceHours > 0 && res.Lead < res.Min {
		res.Violation = NoticeTooSoon
		return res
	}
	if svc.MaxAdvanceDays > 0 && res.Lead > res.Max {
		res.Violation = NoticeTooLate
	}
	return res
}
