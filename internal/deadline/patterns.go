package deadline

import (
	"regexp"
	"strconv"
	"time"
)

// maxRelativeDays bounds accepted "D-N" style markers.
const maxRelativeDays = 365

var (
	relativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)D[_\s]*-[_\s]*(\d+)`),
		regexp.MustCompile(`(\d+)\s*일\s*남음`),
		regexp.MustCompile(`남은\s*(\d+)\s*일`),
		regexp.MustCompile(`마감\s*(\d+)\s*일\s*전`),
	}
	monthDayPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\s*마감`),
		regexp.MustCompile(`(\d{1,2})/(\d{1,2})\s*마감`),
		regexp.MustCompile(`(\d{1,2})-(\d{1,2})\s*마감`),
	}

	fullDate      = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)
	koreanDate    = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일`)
	dayOfMonth    = regexp.MustCompile(`(\d{1,2})일\s*마감`)
	recruitPeriod = regexp.MustCompile(`(?:모집|신청)\s*기간[:\s]*(\d{1,2})[./-](\d{1,2})\s*[~～-]\s*(\d{1,2})[./-](\d{1,2})`)
	reviewPeriod  = regexp.MustCompile(`리뷰\s*등록\s*기간[:\s]*(\d{1,2})[./-](\d{1,2})\s*[~～-]\s*(\d{1,2})[./-](\d{1,2})`)
)

// MatchListing runs the listing patterns over text. Relative markers are
// accepted within [1, 365] days; explicit month/day markers must resolve to a
// future date. The first accepted match wins.
func MatchListing(text string, now time.Time) (time.Time, bool) {
	for _, p := range relativePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			days := atoi(m[1])
			if days >= 1 && days <= maxRelativeDays {
				return EndOfDay(now.AddDate(0, 0, days)), true
			}
		}
	}
	for _, p := range monthDayPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if d, ok := MonthDay(atoi(m[1]), atoi(m[2]), now); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

// matchPrimary is the detail-page matcher without the review-period proxy.
// A recruitment period end date beats every other marker in the same text.
func matchPrimary(text string, now time.Time) (time.Time, bool) {
	if m := recruitPeriod.FindStringSubmatch(text); m != nil {
		if d, ok := MonthDay(atoi(m[3]), atoi(m[4]), now); ok {
			return d, true
		}
	}
	if d, ok := MatchListing(text, now); ok {
		return d, true
	}
	if m := fullDate.FindStringSubmatch(text); m != nil {
		if d, ok := civilEndOfDay(atoi(m[1]), atoi(m[2]), atoi(m[3]), now.Location()); ok && d.After(now) {
			return d, true
		}
	}
	if m := koreanDate.FindStringSubmatch(text); m != nil {
		if d, ok := MonthDay(atoi(m[1]), atoi(m[2]), now); ok {
			return d, true
		}
	}
	if m := dayOfMonth.FindStringSubmatch(text); m != nil {
		if d, ok := dayInMonth(atoi(m[1]), now); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func matchReviewPeriod(text string, now time.Time) (time.Time, bool) {
	m := reviewPeriod.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return MonthDay(atoi(m[1]), atoi(m[2]), now)
}

// MonthDay converts a month/day marker into 23:59:59 of that day in the
// current year, rolling to next year when it has already passed. Calendar
// dates that do not exist are rejected.
func MonthDay(month, day int, now time.Time) (time.Time, bool) {
	loc := now.Location()
	d, ok := civilEndOfDay(now.Year(), month, day, loc)
	if ok && d.After(now) {
		return d, true
	}
	d, ok = civilEndOfDay(now.Year()+1, month, day, loc)
	if ok && d.After(now) {
		return d, true
	}
	return time.Time{}, false
}

// dayInMonth resolves "D일 마감" against the current month, or the next month
// once that day has passed.
func dayInMonth(day int, now time.Time) (time.Time, bool) {
	loc := now.Location()
	if d, ok := civilEndOfDay(now.Year(), int(now.Month()), day, loc); ok && d.After(now) {
		return d, true
	}
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, loc)
	if d, ok := civilEndOfDay(next.Year(), int(next.Month()), day, loc); ok && d.After(now) {
		return d, true
	}
	return time.Time{}, false
}

func civilEndOfDay(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 23, 59, 59, 0, loc)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// EndOfDay returns 23:59:59 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// RemainingDays is the whole-day difference between the midnight-truncated
// dates of now and deadline, in now's location, clamped at 0.
func RemainingDays(now, deadline time.Time) int {
	deadline = deadline.In(now.Location())
	days := int(civilDay(deadline).Sub(civilDay(now)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
