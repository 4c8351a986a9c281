package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/roost-social/roost/domain"
)

// ParseWhen turns a human schedule expression into an absolute UTC instant.
// Accepted forms:
//
//	in 30s / in 5m / in 2 hours / in 3 days / in 1 week
//	15:04 / 3pm / 3:30pm        (today, or tomorrow once passed)
//	2026-01-02 15:04 / 2026-01-02T15:04
//	RFC 3339 timestamps
//
// Bare times and dates are read in now's location and normalized to UTC.
func ParseWhen(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, domain.NewFailure(domain.FailValidation, "empty schedule expression")
	}

	lower := strings.ToLower(expr)
	if strings.HasPrefix(lower, "in ") {
		return parseRelative(strings.TrimPrefix(lower, "in "), now)
	}

	// Explicit instants are taken literally; a past instant simply makes
	// the post due on the next scan.
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t.UTC(), nil
	}

	loc := now.Location()

	for _, layout := range []string{
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, expr, loc); err == nil {
			return t.UTC(), nil
		}
	}

	if t, ok := parseClock(lower, now); ok {
		return t.UTC(), nil
	}

	return time.Time{}, domain.NewFailure(domain.FailValidation,
		"cannot parse schedule expression %q", expr)
}

var relativeRe = regexp.MustCompile(`^(\d+)\s*([a-z]+)$`)

func parseRelative(expr string, now time.Time) (time.Time, error) {
	m := relativeRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return time.Time{}, domain.NewFailure(domain.FailValidation,
			"cannot parse relative expression %q", expr)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return time.Time{}, domain.NewFailure(domain.FailValidation,
			"relative amount must be a positive number, got %q", m[1])
	}

	var unit time.Duration
	switch m[2] {
	case "s", "sec", "secs", "second", "seconds":
		unit = time.Second
	case "m", "min", "mins", "minute", "minutes":
		unit = time.Minute
	case "h", "hr", "hrs", "hour", "hours":
		unit = time.Hour
	case "d", "day", "days":
		unit = 24 * time.Hour
	case "w", "week", "weeks":
		unit = 7 * 24 * time.Hour
	default:
		return time.Time{}, domain.NewFailure(domain.FailValidation,
			"unknown time unit %q", m[2])
	}

	return now.Add(time.Duration(n) * unit).UTC(), nil
}

var clockRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)

// parseClock reads a bare wall-clock time in now's location. A time already
// past today means tomorrow.
func parseClock(expr string, now time.Time) (time.Time, bool) {
	m := clockRe.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}

	meridiem := m[3]
	// A bare hour with no meridiem and no colon ("15") must still look like
	// a clock time.
	if meridiem == "" && m[2] == "" {
		return time.Time{}, false
	}

	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return time.Time{}, false
		}
	}

	if minute > 59 {
		return time.Time{}, false
	}

	loc := now.Location()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}

	return t, true
}

// FormatWhen renders a UTC instant in the local clock for display.
func FormatWhen(t time.Time) string {
	local := t.Local()
	return fmt.Sprintf("%s (%s)", local.Format("2006-01-02 15:04"), local.Format("MST"))
}
