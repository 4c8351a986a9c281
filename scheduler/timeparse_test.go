package scheduler

import (
	"testing"
	"time"

	"github.com/roost-social/roost/domain"
)

// fixedNow is a Tuesday at 10:30 local time.
var fixedNow = time.Date(2026, 3, 10, 10, 30, 0, 0, time.Local)

func TestParseWhenRelative(t *testing.T) {
	cases := []struct {
		expr string
		want time.Duration
	}{
		{"in 30s", 30 * time.Second},
		{"in 5m", 5 * time.Minute},
		{"in 5 min", 5 * time.Minute},
		{"in 2 hours", 2 * time.Hour},
		{"in 1h", time.Hour},
		{"in 3 days", 3 * 24 * time.Hour},
		{"in 1 week", 7 * 24 * time.Hour},
		{"IN 10 MINUTES", 10 * time.Minute},
	}

	for _, tc := range cases {
		got, err := ParseWhen(tc.expr, fixedNow)
		if err != nil {
			t.Errorf("ParseWhen(%q): %v", tc.expr, err)
			continue
		}
		if want := fixedNow.Add(tc.want).UTC(); !got.Equal(want) {
			t.Errorf("ParseWhen(%q) = %v, want %v", tc.expr, got, want)
		}
	}
}

func TestParseWhenClockTodayOrTomorrow(t *testing.T) {
	// 15:00 is still ahead of the 10:30 reference, so it is today.
	got, err := ParseWhen("15:00", fixedNow)
	if err != nil {
		t.Fatalf("ParseWhen: %v", err)
	}
	want := time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local).UTC()
	if !got.Equal(want) {
		t.Errorf("expected today at 15:00, got %v", got)
	}

	// 9am has passed, so it rolls to tomorrow.
	got, err = ParseWhen("9am", fixedNow)
	if err != nil {
		t.Fatalf("ParseWhen: %v", err)
	}
	want = time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local).UTC()
	if !got.Equal(want) {
		t.Errorf("expected tomorrow at 9am, got %v", got)
	}
}

func TestParseWhenMeridiem(t *testing.T) {
	cases := []struct {
		expr string
		hour int
	}{
		{"3pm", 15},
		{"3:30pm", 15},
		{"12pm", 12},
		{"12am", 0},
		{"11:45am", 11},
	}

	for _, tc := range cases {
		got, err := ParseWhen(tc.expr, fixedNow)
		if err != nil {
			t.Errorf("ParseWhen(%q): %v", tc.expr, err)
			continue
		}
		if gotHour := got.Local().Hour(); gotHour != tc.hour {
			t.Errorf("ParseWhen(%q) hour = %d, want %d", tc.expr, gotHour, tc.hour)
		}
	}
}

func TestParseWhenAbsolute(t *testing.T) {
	got, err := ParseWhen("2026-03-12 08:00", fixedNow)
	if err != nil {
		t.Fatalf("ParseWhen: %v", err)
	}
	want := time.Date(2026, 3, 12, 8, 0, 0, 0, time.Local).UTC()
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got, err = ParseWhen("2026-03-12T08:00", fixedNow)
	if err != nil {
		t.Fatalf("ParseWhen: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got, err = ParseWhen("2026-03-12T08:00:00Z", fixedNow)
	if err != nil {
		t.Fatalf("ParseWhen RFC3339: %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected RFC3339 result %v", got)
	}
}

func TestParseWhenPastAbsoluteIsImmediatelyDue(t *testing.T) {
	// An explicit instant is taken literally even when already past; the
	// post just becomes due on the next scan.
	got, err := ParseWhen("2020-01-01 00:00", fixedNow)
	if err != nil {
		t.Fatalf("ParseWhen: %v", err)
	}
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local).UTC()
	if !got.Equal(want) {
		t.Errorf("expected exactly the stated instant, got %v", got)
	}
}

func TestParseWhenRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"", "whenever", "in -5m", "in 5 fortnights", "25:00", "13pm", "12:99"} {
		_, err := ParseWhen(expr, fixedNow)
		if !domain.IsKind(err, domain.FailValidation) {
			t.Errorf("ParseWhen(%q): expected validation failure, got %v", expr, err)
		}
	}
}
