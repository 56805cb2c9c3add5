package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// All schedule comparisons run on minutes-since-midnight integers; this
// package owns the conversions between that representation, "HH:mm"
// strings on the wire, and time.Time instants.

const MinutesPerDay = 24 * 60

var errBadClock = errors.New("time must be HH:mm (24-hour)")

// ParseClock converts "HH:mm" to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, errBadClock
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%2d:%2d", &h, &m); err != nil {
		return 0, errBadClock
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, errBadClock
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:mm".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// MinuteOfDay truncates t to whole minutes since midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// SecondOfDay returns seconds since midnight. The late-arrival check
// needs second resolution so a scan exactly on the threshold minute is
// not flagged.
func SecondOfDay(t time.Time) int {
	return MinuteOfDay(t)*60 + t.Second()
}

// DateOf strips the time component, keeping t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate reads a plain "YYYY-MM-DD" calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// FormatDate renders a plain calendar date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Overlaps reports whether two half-open minute ranges [s1,e1) and
// [s2,e2) intersect. Back-to-back ranges (e1 == s2) do not overlap.
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// AbsDiff is |a-b| for minute arithmetic.
func AbsDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
