// Package api holds the per-network adapters. Each adapter translates the
// shared post/timeline operations into one network's wire protocol and maps
// remote failures onto the shared failure kinds.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/roost-social/roost/domain"
)

// HTTPClient lets tests swap out the transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SocialClient is the operation surface every network adapter implements.
// Engagement calls take a PostRef so callers never handle network-specific
// identifiers directly. Timeline takes an opaque resume cursor ("" for the
// newest page) and returns the cursor for the next older page ("" when the
// feed is exhausted).
type SocialClient interface {
	Network() domain.Network
	VerifyCredentials(ctx context.Context) (*domain.Account, error)
	Timeline(ctx context.Context, cursor string, limit int) ([]domain.Post, string, error)
	CreatePost(ctx context.Context, draft PostDraft) (*domain.Post, error)
	Reply(ctx context.Context, target domain.PostRef, draft PostDraft) (*domain.Post, error)
	Like(ctx context.Context, target domain.PostRef) error
	Unlike(ctx context.Context, target domain.PostRef) error
	Boost(ctx context.Context, target domain.PostRef) error
	Unboost(ctx context.Context, target domain.PostRef) error
}

// PostDraft is the network-agnostic input to CreatePost and Reply.
type PostDraft struct {
	Body           string
	ContentWarning string
	Visibility     domain.Visibility
	Media          []domain.MediaAttachment
}

// Validate rejects drafts no adapter could deliver.
func (d PostDraft) Validate(maxChars int) error {
	if d.Body == "" {
		return domain.NewFailure(domain.FailValidation, "post body is empty")
	}
	if maxChars > 0 && len([]rune(d.Body)) > maxChars {
		return domain.NewFailure(domain.FailValidation, "post exceeds %d characters", maxChars)
	}
	if len(d.Media) > 0 {
		// Uploads aren't implemented on either adapter yet.
		return domain.NewFailure(domain.FailValidation, "media attachments are not supported")
	}
	return nil
}

// newLimiter is the shared client-side rate limit. Mastodon allows 300
// requests per 5 minutes; one per second with a small burst stays well under
// that and is gentle on Bluesky too.
func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 5)
}

// statusFailure maps an HTTP status to a failure kind, reading Retry-After
// when the remote rate limits us.
func statusFailure(network domain.Network, resp *http.Response, body []byte) *domain.Failure {
	msg := remoteMessage(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.NewFailure(domain.FailAuth, "%s: %s", network.Name(), msg)
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewFailure(domain.FailNotFound, "%s: %s", network.Name(), msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		f := domain.NewFailure(domain.FailRateLimited, "%s: rate limited", network.Name())
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				f.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return f
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return domain.NewFailure(domain.FailValidation, "%s: %s", network.Name(), msg)
	case resp.StatusCode >= 500:
		return domain.NewFailure(domain.FailNetwork, "%s: server error %d", network.Name(), resp.StatusCode)
	default:
		return domain.NewFailure(domain.FailProtocol, "%s: unexpected status %d: %s", network.Name(), resp.StatusCode, msg)
	}
}

// remoteMessage pulls the human-readable error out of a JSON error body.
// Mastodon uses {"error": ...}, Bluesky {"error": ..., "message": ...}.
func remoteMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// doJSON runs a request through the limiter and transport, decodes a JSON
// response into out (when non-nil), and maps failures. The caller owns
// request construction; this owns everything after.
func doJSON(ctx context.Context, client HTTPClient, limiter *rate.Limiter, network domain.Network, req *http.Request, out any) error {
	if err := limiter.Wait(ctx); err != nil {
		return domain.WrapFailure(domain.FailNetwork, err, "%s: request cancelled", network.Name())
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return domain.WrapFailure(domain.FailNetwork, err, "%s: request failed", network.Name())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.WrapFailure(domain.FailNetwork, err, "%s: reading response", network.Name())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusFailure(network, resp, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return domain.WrapFailure(domain.FailProtocol, err, "%s: malformed response", network.Name())
		}
	}

	return nil
}

func jsonBody(v any) (io.Reader, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return bytes.NewReader(buf), nil
}
