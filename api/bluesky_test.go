package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/roost-social/roost/domain"
)

const sessionBody = `{"accessJwt": "access-1", "refreshJwt": "refresh-1", "did": "did:plc:abc", "handle": "bob.bsky.social"}`

func TestBlueskyCreatePostEstablishesSession(t *testing.T) {
	mock := &mockHTTPClient{responses: []*http.Response{
		jsonResponse(200, sessionBody),
		jsonResponse(200, `{"uri": "at://did:plc:abc/app.bsky.feed.post/rkey1", "cid": "cid1"}`),
	}}

	client := NewBlueskyClientWithDeps("", "bob.bsky.social", "app-pass", mock)

	post, err := client.CreatePost(context.Background(), PostDraft{Body: "hello sky"})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if len(mock.requests) != 2 {
		t.Fatalf("expected createSession then createRecord, got %d requests", len(mock.requests))
	}
	if !strings.HasSuffix(mock.requests[0].URL.Path, "com.atproto.server.createSession") {
		t.Errorf("first call should create session, got %s", mock.requests[0].URL.Path)
	}
	if !strings.HasSuffix(mock.requests[1].URL.Path, "com.atproto.repo.createRecord") {
		t.Errorf("second call should create record, got %s", mock.requests[1].URL.Path)
	}

	if post.Uri != "at://did:plc:abc/app.bsky.feed.post/rkey1" || post.Cid != "cid1" {
		t.Errorf("unexpected record identity: %+v", post)
	}
}

func TestBlueskyRetriesOnceOnExpiredToken(t *testing.T) {
	mock := &mockHTTPClient{responses: []*http.Response{
		jsonResponse(401, `{"error": "ExpiredToken", "message": "Token has expired"}`),
		jsonResponse(200, `{"accessJwt": "access-2", "refreshJwt": "refresh-2", "did": "did:plc:abc", "handle": "bob.bsky.social"}`),
		jsonResponse(200, `{"feed": []}`),
	}}

	client := NewBlueskyClientWithDeps("", "bob.bsky.social", "app-pass", mock)
	client.RestoreSession("stale-access", "refresh-1", "did:plc:abc")

	_, _, err := client.Timeline(context.Background(), "", 20)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}

	if len(mock.requests) != 3 {
		t.Fatalf("expected failed call, refresh, retry; got %d requests", len(mock.requests))
	}
	if !strings.HasSuffix(mock.requests[1].URL.Path, "com.atproto.server.refreshSession") {
		t.Errorf("expected refreshSession, got %s", mock.requests[1].URL.Path)
	}
	if got := mock.requests[2].Header.Get("Authorization"); got != "Bearer access-2" {
		t.Errorf("retry should use refreshed token, got %q", got)
	}
}

func TestBlueskyTimelineCursor(t *testing.T) {
	mock := &mockHTTPClient{responses: []*http.Response{
		jsonResponse(200, `{"feed": [], "cursor": "next-c"}`),
	}}

	client := NewBlueskyClientWithDeps("", "bob.bsky.social", "app-pass", mock)
	client.RestoreSession("access-1", "refresh-1", "did:plc:abc")

	_, next, err := client.Timeline(context.Background(), "prev-c", 20)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if next != "next-c" {
		t.Errorf("expected protocol cursor passed through, got %q", next)
	}

	if got := mock.requests[0].URL.Query().Get("cursor"); got != "prev-c" {
		t.Errorf("expected cursor=prev-c, got %q", got)
	}
}

func TestBlueskySessionChangeCallback(t *testing.T) {
	mock := &mockHTTPClient{responses: []*http.Response{
		jsonResponse(200, sessionBody),
		jsonResponse(200, `{"uri": "at://x/app.bsky.feed.post/r", "cid": "c"}`),
	}}

	client := NewBlueskyClientWithDeps("", "bob.bsky.social", "app-pass", mock)

	var savedAccess, savedDid string
	client.OnSessionChange(func(access, refresh, did string) {
		savedAccess = access
		savedDid = did
	})

	if _, err := client.CreatePost(context.Background(), PostDraft{Body: "x"}); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if savedAccess != "access-1" || savedDid != "did:plc:abc" {
		t.Errorf("expected session persisted via callback, got %q %q", savedAccess, savedDid)
	}
}

func TestBlueskyUnlikeFindsAndDeletesRecord(t *testing.T) {
	mock := &mockHTTPClient{responses: []*http.Response{
		jsonResponse(200, sessionBody),
		jsonResponse(200, `{"records": [
			{"uri": "at://did:plc:abc/app.bsky.feed.like/aaa", "value": {"subject": {"uri": "at://other/post/1"}}},
			{"uri": "at://did:plc:abc/app.bsky.feed.like/bbb", "value": {"subject": {"uri": "at://target/post/2"}}}
		]}`),
		jsonResponse(200, `{}`),
	}}

	client := NewBlueskyClientWithDeps("", "bob.bsky.social", "app-pass", mock)

	ref := domain.PostRef{Network: domain.NetworkBluesky, Uri: "at://target/post/2", Cid: "cid"}
	if err := client.Unlike(context.Background(), ref); err != nil {
		t.Fatalf("Unlike: %v", err)
	}

	del := mock.requests[2]
	if !strings.HasSuffix(del.URL.Path, "com.atproto.repo.deleteRecord") {
		t.Fatalf("expected deleteRecord, got %s", del.URL.Path)
	}

	buf, _ := io.ReadAll(del.Body)
	var payload map[string]any
	if err := json.Unmarshal(buf, &payload); err != nil {
		t.Fatalf("decoding delete payload: %v", err)
	}
	if payload["rkey"] != "bbb" {
		t.Errorf("expected rkey bbb, got %v", payload["rkey"])
	}
}

func TestBlueskyUnlikeNotFound(t *testing.T) {
	mock := &mockHTTPClient{responses: []*http.Response{
		jsonResponse(200, sessionBody),
		jsonResponse(200, `{"records": []}`),
	}}

	client := NewBlueskyClientWithDeps("", "bob.bsky.social", "app-pass", mock)

	ref := domain.PostRef{Network: domain.NetworkBluesky, Uri: "at://target/post/2", Cid: "cid"}
	err := client.Unlike(context.Background(), ref)
	if !domain.IsKind(err, domain.FailNotFound) {
		t.Errorf("expected not found failure, got %v", err)
	}
}

func TestBlueskyContentWarningFoldedIntoText(t *testing.T) {
	mock := &mockHTTPClient{responses: []*http.Response{
		jsonResponse(200, sessionBody),
		jsonResponse(200, `{"uri": "at://x/app.bsky.feed.post/r", "cid": "c"}`),
	}}

	client := NewBlueskyClientWithDeps("", "bob.bsky.social", "app-pass", mock)

	draft := PostDraft{Body: "spoilers inside", ContentWarning: "movie"}
	if _, err := client.CreatePost(context.Background(), draft); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	buf, _ := io.ReadAll(mock.requests[1].Body)
	if !strings.Contains(string(buf), "CW: movie") {
		t.Errorf("expected content warning folded into text, got %s", buf)
	}
}
