package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roost-social/roost/domain"
)

const blueskyDefaultPDS = "https://bsky.social"

// BlueskyClient talks AT-proto XRPC to one PDS with one session. App-password
// sessions expire quickly, so every call retries once through refreshSession
// on an auth failure before surfacing it.
type BlueskyClient struct {
	pds     string
	http    HTTPClient
	limiter *rate.Limiter

	mu         sync.Mutex
	identifier string
	password   string
	did        string
	handle     string
	accessJwt  string
	refreshJwt string

	// onSession, when set, receives refreshed tokens for persistence.
	onSession func(accessJwt, refreshJwt, did string)
}

func NewBlueskyClient(pds, identifier, password string) *BlueskyClient {
	return NewBlueskyClientWithDeps(pds, identifier, password, &http.Client{Timeout: 30 * time.Second})
}

func NewBlueskyClientWithDeps(pds, identifier, password string, httpClient HTTPClient) *BlueskyClient {
	if pds == "" {
		pds = blueskyDefaultPDS
	}

	return &BlueskyClient{
		pds:        strings.TrimRight(pds, "/"),
		http:       httpClient,
		limiter:    newLimiter(),
		identifier: identifier,
		password:   password,
	}
}

// RestoreSession seeds cached tokens so a fresh process can skip createSession.
func (c *BlueskyClient) RestoreSession(accessJwt, refreshJwt, did string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessJwt = accessJwt
	c.refreshJwt = refreshJwt
	c.did = did
}

// OnSessionChange registers a callback invoked whenever tokens change.
func (c *BlueskyClient) OnSessionChange(fn func(accessJwt, refreshJwt, did string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSession = fn
}

func (c *BlueskyClient) Network() domain.Network {
	return domain.NetworkBluesky
}

type blueskySession struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Did        string `json:"did"`
	Handle     string `json:"handle"`
}

// createSession logs in with the identifier and app password.
func (c *BlueskyClient) createSession(ctx context.Context) error {
	c.mu.Lock()
	identifier, password := c.identifier, c.password
	c.mu.Unlock()

	body, err := jsonBody(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.pds+"/xrpc/com.atproto.server.createSession", body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var session blueskySession
	if err := doJSON(ctx, c.http, c.limiter, domain.NetworkBluesky, req, &session); err != nil {
		return err
	}

	c.storeSession(session)
	return nil
}

// refreshSession rotates tokens with the refresh JWT, falling back to a
// fresh createSession when the refresh token is also stale.
func (c *BlueskyClient) refreshSession(ctx context.Context) error {
	c.mu.Lock()
	refreshJwt := c.refreshJwt
	c.mu.Unlock()

	if refreshJwt == "" {
		return c.createSession(ctx)
	}

	req, err := http.NewRequest(http.MethodPost, c.pds+"/xrpc/com.atproto.server.refreshSession", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshJwt)

	var session blueskySession
	if err := doJSON(ctx, c.http, c.limiter, domain.NetworkBluesky, req, &session); err != nil {
		if domain.IsKind(err, domain.FailAuth) {
			return c.createSession(ctx)
		}
		return err
	}

	c.storeSession(session)
	return nil
}

func (c *BlueskyClient) storeSession(s blueskySession) {
	c.mu.Lock()
	c.accessJwt = s.AccessJwt
	c.refreshJwt = s.RefreshJwt
	c.did = s.Did
	if s.Handle != "" {
		c.handle = s.Handle
	}
	fn := c.onSession
	access, refresh, did := c.accessJwt, c.refreshJwt, c.did
	c.mu.Unlock()

	if fn != nil {
		fn(access, refresh, did)
	}
}

// ensureSession establishes a session on first use.
func (c *BlueskyClient) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	have := c.accessJwt != ""
	c.mu.Unlock()

	if have {
		return nil
	}
	return c.createSession(ctx)
}

// xrpc runs one authenticated XRPC call, establishing a session on first use
// and retrying once through a refresh when the token has expired.
func (c *BlueskyClient) xrpc(ctx context.Context, method, nsid string, query url.Values, payload any, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	err := c.xrpcOnce(ctx, method, nsid, query, payload, out)
	if err != nil && domain.IsKind(err, domain.FailAuth) {
		if rerr := c.refreshSession(ctx); rerr != nil {
			return rerr
		}
		return c.xrpcOnce(ctx, method, nsid, query, payload, out)
	}

	return err
}

func (c *BlueskyClient) xrpcOnce(ctx context.Context, method, nsid string, query url.Values, payload any, out any) error {
	endpoint := c.pds + "/xrpc/" + nsid
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		var err error
		body, err = jsonBody(payload)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	c.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	c.mu.Unlock()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return doJSON(ctx, c.http, c.limiter, domain.NetworkBluesky, req, out)
}

func (c *BlueskyClient) VerifyCredentials(ctx context.Context) (*domain.Account, error) {
	if err := c.createSession(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	handle, did := c.handle, c.did
	c.mu.Unlock()

	var profile struct {
		DisplayName string `json:"displayName"`
		Avatar      string `json:"avatar"`
	}
	q := url.Values{"actor": {did}}
	if err := c.xrpc(ctx, http.MethodGet, "app.bsky.actor.getProfile", q, nil, &profile); err != nil {
		return nil, err
	}

	a := domain.NewAccount(domain.NetworkBluesky, handle, profile.DisplayName, c.pds)
	a.AvatarURL = profile.Avatar
	return a, nil
}

type blueskyFeedItem struct {
	Post struct {
		Uri    string `json:"uri"`
		Cid    string `json:"cid"`
		Author struct {
			Handle      string `json:"handle"`
			DisplayName string `json:"displayName"`
			Avatar      string `json:"avatar"`
		} `json:"author"`
		Record struct {
			Text      string    `json:"text"`
			CreatedAt time.Time `json:"createdAt"`
			Reply     *struct {
				Parent struct {
					Uri string `json:"uri"`
				} `json:"parent"`
			} `json:"reply"`
		} `json:"record"`
		LikeCount   int `json:"likeCount"`
		RepostCount int `json:"repostCount"`
		ReplyCount  int `json:"replyCount"`
		Viewer      struct {
			Like   string `json:"like"`
			Repost string `json:"repost"`
		} `json:"viewer"`
	} `json:"post"`
	Reason *struct {
		Type string `json:"$type"`
		By   struct {
			Handle string `json:"handle"`
		} `json:"by"`
	} `json:"reason"`
}

func (c *BlueskyClient) Timeline(ctx context.Context, cursor string, limit int) ([]domain.Post, string, error) {
	var payload struct {
		Feed   []blueskyFeedItem `json:"feed"`
		Cursor string            `json:"cursor"`
	}

	q := url.Values{"limit": {fmt.Sprint(limit)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if err := c.xrpc(ctx, http.MethodGet, "app.bsky.feed.getTimeline", q, nil, &payload); err != nil {
		return nil, "", err
	}

	posts := make([]domain.Post, 0, len(payload.Feed))
	for _, item := range payload.Feed {
		posts = append(posts, feedItemToPost(item))
	}

	return posts, payload.Cursor, nil
}

func feedItemToPost(item blueskyFeedItem) domain.Post {
	p := domain.Post{
		Id:           domain.NewToken(),
		NetworkId:    item.Post.Uri,
		Network:      domain.NetworkBluesky,
		AuthorHandle: item.Post.Author.Handle,
		AuthorName:   item.Post.Author.DisplayName,
		AuthorAvatar: item.Post.Author.Avatar,
		Content:      item.Post.Record.Text,
		Visibility:   domain.VisibilityPublic,
		CreatedAt:    item.Post.Record.CreatedAt,
		URL:          blueskyWebURL(item.Post.Author.Handle, item.Post.Uri),
		LikeCount:    item.Post.LikeCount,
		BoostCount:   item.Post.RepostCount,
		ReplyCount:   item.Post.ReplyCount,
		Liked:        item.Post.Viewer.Like != "",
		Boosted:      item.Post.Viewer.Repost != "",
		Uri:          item.Post.Uri,
		Cid:          item.Post.Cid,
	}

	if item.Post.Record.Reply != nil {
		p.ReplyToId = item.Post.Record.Reply.Parent.Uri
	}

	if item.Reason != nil && strings.HasSuffix(item.Reason.Type, "reasonRepost") {
		p.IsRepost = true
		p.RepostAuthor = item.Reason.By.Handle
	}

	return p
}

// blueskyWebURL builds the bsky.app permalink from a record URI.
func blueskyWebURL(handle, uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) == 0 {
		return ""
	}
	rkey := parts[len(parts)-1]
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey)
}

type createRecordResponse struct {
	Uri string `json:"uri"`
	Cid string `json:"cid"`
}

func (c *BlueskyClient) CreatePost(ctx context.Context, draft PostDraft) (*domain.Post, error) {
	return c.publish(ctx, draft, nil)
}

func (c *BlueskyClient) Reply(ctx context.Context, target domain.PostRef, draft PostDraft) (*domain.Post, error) {
	if target.Uri == "" || target.Cid == "" {
		return nil, domain.NewFailure(domain.FailValidation, "bluesky: reply target has no record uri")
	}
	return c.publish(ctx, draft, &target)
}

func (c *BlueskyClient) publish(ctx context.Context, draft PostDraft, replyTo *domain.PostRef) (*domain.Post, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	body := draft.Body
	// Bluesky has no content warning field; fold it into the text.
	if draft.ContentWarning != "" {
		body = "CW: " + draft.ContentWarning + "\n\n" + body
	}

	now := time.Now().UTC()
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      body,
		"createdAt": now.Format(time.RFC3339),
	}

	if replyTo != nil {
		ref := map[string]string{"uri": replyTo.Uri, "cid": replyTo.Cid}
		record["reply"] = map[string]any{"root": ref, "parent": ref}
	}

	c.mu.Lock()
	did, handle := c.did, c.handle
	c.mu.Unlock()

	payload := map[string]any{
		"repo":       did,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}

	var created createRecordResponse
	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, payload, &created); err != nil {
		return nil, err
	}

	return &domain.Post{
		Id:           domain.NewToken(),
		NetworkId:    created.Uri,
		Network:      domain.NetworkBluesky,
		AuthorHandle: handle,
		Content:      body,
		Visibility:   domain.VisibilityPublic,
		CreatedAt:    now,
		URL:          blueskyWebURL(handle, created.Uri),
		Uri:          created.Uri,
		Cid:          created.Cid,
	}, nil
}

func (c *BlueskyClient) Like(ctx context.Context, target domain.PostRef) error {
	return c.createSubjectRecord(ctx, "app.bsky.feed.like", target)
}

func (c *BlueskyClient) Boost(ctx context.Context, target domain.PostRef) error {
	return c.createSubjectRecord(ctx, "app.bsky.feed.repost", target)
}

func (c *BlueskyClient) Unlike(ctx context.Context, target domain.PostRef) error {
	return c.deleteSubjectRecord(ctx, "app.bsky.feed.like", target)
}

func (c *BlueskyClient) Unboost(ctx context.Context, target domain.PostRef) error {
	return c.deleteSubjectRecord(ctx, "app.bsky.feed.repost", target)
}

func (c *BlueskyClient) createSubjectRecord(ctx context.Context, collection string, target domain.PostRef) error {
	if target.Uri == "" || target.Cid == "" {
		return domain.NewFailure(domain.FailValidation, "bluesky: target has no record uri")
	}

	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	did := c.did
	c.mu.Unlock()

	payload := map[string]any{
		"repo":       did,
		"collection": collection,
		"record": map[string]any{
			"$type": collection,
			"subject": map[string]string{
				"uri": target.Uri,
				"cid": target.Cid,
			},
			"createdAt": time.Now().UTC().Format(time.RFC3339),
		},
	}

	return c.xrpc(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, payload, nil)
}

// deleteSubjectRecord finds the like/repost record pointing at the target in
// the user's own repo and deletes it. AT-proto has no direct "unlike" call.
func (c *BlueskyClient) deleteSubjectRecord(ctx context.Context, collection string, target domain.PostRef) error {
	if target.Uri == "" {
		return domain.NewFailure(domain.FailValidation, "bluesky: target has no record uri")
	}

	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	did := c.did
	c.mu.Unlock()

	var records struct {
		Records []struct {
			Uri   string `json:"uri"`
			Value struct {
				Subject struct {
					Uri string `json:"uri"`
				} `json:"subject"`
			} `json:"value"`
		} `json:"records"`
		Cursor string `json:"cursor"`
	}

	q := url.Values{
		"repo":       {did},
		"collection": {collection},
		"limit":      {"100"},
	}
	if err := c.xrpc(ctx, http.MethodGet, "com.atproto.repo.listRecords", q, nil, &records); err != nil {
		return err
	}

	for _, r := range records.Records {
		if r.Value.Subject.Uri != target.Uri {
			continue
		}

		parts := strings.Split(r.Uri, "/")
		rkey := parts[len(parts)-1]

		payload := map[string]any{
			"repo":       did,
			"collection": collection,
			"rkey":       rkey,
		}
		return c.xrpc(ctx, http.MethodPost, "com.atproto.repo.deleteRecord", nil, payload, nil)
	}

	return domain.NewFailure(domain.FailNotFound, "bluesky: no %s record for target", collection)
}
