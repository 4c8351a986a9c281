package domain

import (
	"testing"
	"time"
)

func TestScheduledPostDue(t *testing.T) {
	now := time.Now().UTC()

	p := NewScheduledPost("hello", "", []Network{NetworkMastodon}, now.Add(-time.Minute))
	if !p.Due(now) {
		t.Error("Expected post scheduled in the past to be due")
	}

	p = NewScheduledPost("hello", "", []Network{NetworkMastodon}, now.Add(time.Hour))
	if p.Due(now) {
		t.Error("Expected post scheduled in the future to not be due")
	}

	p = NewScheduledPost("hello", "", []Network{NetworkMastodon}, now.Add(-time.Minute))
	p.Status = StatusCancelled
	if p.Due(now) {
		t.Error("Expected cancelled post to never be due")
	}
}

func TestScheduleStatusTerminal(t *testing.T) {
	terminal := []ScheduleStatus{StatusSent, StatusFailed, StatusCancelled, StatusPartiallyFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	if StatusPending.Terminal() {
		t.Error("Expected pending to be non-terminal")
	}
	if StatusPosting.Terminal() {
		t.Error("Expected posting to be non-terminal")
	}
}

func TestTimeUntil(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		offset   time.Duration
		expected string
	}{
		{-time.Minute, "now"},
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{3 * time.Hour, "3h"},
		{26 * time.Hour, "1d 2h"},
		{48 * time.Hour, "2d"},
	}

	for _, tt := range tests {
		p := NewScheduledPost("x", "", []Network{NetworkBluesky}, now.Add(tt.offset))
		if got := p.TimeUntil(now); got != tt.expected {
			t.Errorf("TimeUntil(%v) = %q, want %q", tt.offset, got, tt.expected)
		}
	}
}

func TestNetworksRoundTrip(t *testing.T) {
	networks := []Network{NetworkMastodon, NetworkBluesky}
	s := NetworksToString(networks)
	if s != "mastodon,bluesky" {
		t.Errorf("Expected mastodon,bluesky, got %s", s)
	}

	parsed := NetworksFromString(s)
	if len(parsed) != 2 || parsed[0] != NetworkMastodon || parsed[1] != NetworkBluesky {
		t.Errorf("Round trip failed: %v", parsed)
	}

	// Unknown entries are dropped
	parsed = NetworksFromString("mastodon,myspace")
	if len(parsed) != 1 || parsed[0] != NetworkMastodon {
		t.Errorf("Expected unknown networks to be dropped, got %v", parsed)
	}
}
