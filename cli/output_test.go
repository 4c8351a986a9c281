package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/roost-social/roost/domain"
)

func TestOutputPostsJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, true)

	out.Posts([]domain.Post{{
		Id:           domain.NewToken(),
		NetworkId:    "42",
		Network:      domain.NetworkMastodon,
		AuthorHandle: "alice",
		Content:      "hello",
		CreatedAt:    time.Now(),
	}})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if line["author"] != "alice" || line["network"] != "mastodon" {
		t.Errorf("unexpected JSON line: %v", line)
	}
}

func TestOutputPostsText(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, false)

	out.Posts([]domain.Post{{
		Id:             domain.NewToken(),
		Network:        domain.NetworkBluesky,
		AuthorHandle:   "bob.bsky.social",
		Content:        "hi there",
		ContentWarning: "greeting",
		CreatedAt:      time.Now(),
	}})

	got := buf.String()
	for _, want := range []string{"@bob.bsky.social", "hi there", "CW: greeting"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q:\n%s", want, got)
		}
	}
}

func TestOutputErrorJSONCarriesKind(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, true)

	out.Error(domain.NewFailure(domain.FailRateLimited, "mastodon: rate limited"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if line["ok"] != false || line["kind"] != "rate_limited" {
		t.Errorf("unexpected error line: %v", line)
	}
}

func TestOutputPostFailedMarksRetriable(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, true)

	out.PostFailed(domain.NetworkBluesky, domain.NewFailure(domain.FailNetwork, "bluesky: timeout"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if line["retriable"] != true {
		t.Errorf("network failure should be retriable: %v", line)
	}

	buf.Reset()
	out.PostFailed(domain.NetworkBluesky, domain.NewFailure(domain.FailAuth, "bluesky: bad token"))
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if line["retriable"] != false {
		t.Errorf("auth failure should not be retriable: %v", line)
	}
}

func TestOutputScheduledEmpty(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, false)

	out.Scheduled(nil)
	if !strings.Contains(buf.String(), "Nothing scheduled") {
		t.Errorf("expected empty-queue message, got %q", buf.String())
	}
}
