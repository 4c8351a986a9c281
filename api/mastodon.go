package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roost-social/roost/domain"
)

// MastodonClient talks to one Mastodon instance with one account's token.
type MastodonClient struct {
	server  string // instance base URL, no trailing slash
	token   string
	http    HTTPClient
	limiter *rate.Limiter
}

func NewMastodonClient(server, token string) *MastodonClient {
	return NewMastodonClientWithDeps(server, token, &http.Client{Timeout: 30 * time.Second})
}

func NewMastodonClientWithDeps(server, token string, httpClient HTTPClient) *MastodonClient {
	return &MastodonClient{
		server:  strings.TrimRight(server, "/"),
		token:   token,
		http:    httpClient,
		limiter: newLimiter(),
	}
}

func (c *MastodonClient) Network() domain.Network {
	return domain.NetworkMastodon
}

// mastodonStatus is the subset of the status entity we consume.
type mastodonStatus struct {
	Id      string `json:"id"`
	Content string `json:"content"`
	Account struct {
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar"`
	} `json:"account"`
	CreatedAt        time.Time       `json:"created_at"`
	URL              string          `json:"url"`
	SpoilerText      string          `json:"spoiler_text"`
	Visibility       string          `json:"visibility"`
	FavouritesCount  int             `json:"favourites_count"`
	ReblogsCount     int             `json:"reblogs_count"`
	RepliesCount     int             `json:"replies_count"`
	Favourited       bool            `json:"favourited"`
	Reblogged        bool            `json:"reblogged"`
	InReplyToId      *string         `json:"in_reply_to_id"`
	Reblog           *mastodonStatus `json:"reblog"`
	MediaAttachments []struct {
		URL         string `json:"url"`
		PreviewURL  string `json:"preview_url"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"media_attachments"`
}

func (c *MastodonClient) VerifyCredentials(ctx context.Context) (*domain.Account, error) {
	var payload struct {
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar"`
	}

	req, err := c.newRequest(http.MethodGet, "/api/v1/accounts/verify_credentials", nil)
	if err != nil {
		return nil, err
	}
	if err := doJSON(ctx, c.http, c.limiter, domain.NetworkMastodon, req, &payload); err != nil {
		return nil, err
	}

	a := domain.NewAccount(domain.NetworkMastodon, payload.Acct, payload.DisplayName, c.server)
	a.AvatarURL = payload.Avatar
	return a, nil
}

// Timeline pages the home timeline with max_id. The cursor is the id of the
// last status seen; the next cursor is the id of the last status returned.
func (c *MastodonClient) Timeline(ctx context.Context, cursor string, limit int) ([]domain.Post, string, error) {
	var statuses []mastodonStatus

	path := fmt.Sprintf("/api/v1/timelines/home?limit=%d", limit)
	if cursor != "" {
		path += "&max_id=" + url.QueryEscape(cursor)
	}

	req, err := c.newRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	if err := doJSON(ctx, c.http, c.limiter, domain.NetworkMastodon, req, &statuses); err != nil {
		return nil, "", err
	}

	posts := make([]domain.Post, 0, len(statuses))
	for _, s := range statuses {
		posts = append(posts, statusToPost(s))
	}

	next := ""
	if len(statuses) > 0 {
		next = statuses[len(statuses)-1].Id
	}

	return posts, next, nil
}

func (c *MastodonClient) CreatePost(ctx context.Context, draft PostDraft) (*domain.Post, error) {
	return c.publish(ctx, draft, "")
}

func (c *MastodonClient) Reply(ctx context.Context, target domain.PostRef, draft PostDraft) (*domain.Post, error) {
	if target.NetworkId == "" {
		return nil, domain.NewFailure(domain.FailValidation, "mastodon: reply target has no status id")
	}
	return c.publish(ctx, draft, target.NetworkId)
}

func (c *MastodonClient) publish(ctx context.Context, draft PostDraft, inReplyTo string) (*domain.Post, error) {
	payload := map[string]string{
		"status":     draft.Body,
		"visibility": string(draft.Visibility),
	}
	if draft.ContentWarning != "" {
		payload["spoiler_text"] = draft.ContentWarning
	}
	if inReplyTo != "" {
		payload["in_reply_to_id"] = inReplyTo
	}

	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(http.MethodPost, "/api/v1/statuses", body)
	if err != nil {
		return nil, err
	}

	var status mastodonStatus
	if err := doJSON(ctx, c.http, c.limiter, domain.NetworkMastodon, req, &status); err != nil {
		return nil, err
	}

	post := statusToPost(status)
	return &post, nil
}

func (c *MastodonClient) Like(ctx context.Context, target domain.PostRef) error {
	return c.statusAction(ctx, target, "favourite")
}

func (c *MastodonClient) Unlike(ctx context.Context, target domain.PostRef) error {
	return c.statusAction(ctx, target, "unfavourite")
}

func (c *MastodonClient) Boost(ctx context.Context, target domain.PostRef) error {
	return c.statusAction(ctx, target, "reblog")
}

func (c *MastodonClient) Unboost(ctx context.Context, target domain.PostRef) error {
	return c.statusAction(ctx, target, "unreblog")
}

func (c *MastodonClient) statusAction(ctx context.Context, target domain.PostRef, action string) error {
	if target.NetworkId == "" {
		return domain.NewFailure(domain.FailValidation, "mastodon: target has no status id")
	}

	req, err := c.newRequest(http.MethodPost, fmt.Sprintf("/api/v1/statuses/%s/%s", target.NetworkId, action), nil)
	if err != nil {
		return err
	}

	return doJSON(ctx, c.http, c.limiter, domain.NetworkMastodon, req, nil)
}

func (c *MastodonClient) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.server+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if method == http.MethodPost && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func statusToPost(s mastodonStatus) domain.Post {
	display := s
	repostAuthor := ""
	isRepost := false

	if s.Reblog != nil {
		display = *s.Reblog
		isRepost = true
		repostAuthor = s.Account.Acct
	}

	p := domain.Post{
		Id:             domain.NewToken(),
		NetworkId:      display.Id,
		Network:        domain.NetworkMastodon,
		AuthorHandle:   display.Account.Acct,
		AuthorName:     display.Account.DisplayName,
		AuthorAvatar:   display.Account.Avatar,
		Content:        stripHTML(display.Content),
		ContentWarning: display.SpoilerText,
		Visibility:     domain.ParseVisibility(display.Visibility),
		CreatedAt:      display.CreatedAt,
		URL:            display.URL,
		IsRepost:       isRepost,
		RepostAuthor:   repostAuthor,
		LikeCount:      display.FavouritesCount,
		BoostCount:     display.ReblogsCount,
		ReplyCount:     display.RepliesCount,
		Liked:          display.Favourited,
		Boosted:        display.Reblogged,
	}

	if display.InReplyToId != nil {
		p.ReplyToId = *display.InReplyToId
	}

	for _, m := range display.MediaAttachments {
		p.Media = append(p.Media, domain.MediaAttachment{
			URL:        m.URL,
			PreviewURL: m.PreviewURL,
			Type:       mediaType(m.Type),
			AltText:    m.Description,
		})
	}

	return p
}

func mediaType(s string) domain.MediaType {
	switch s {
	case "image":
		return domain.MediaImage
	case "video":
		return domain.MediaVideo
	case "gifv":
		return domain.MediaGifv
	case "audio":
		return domain.MediaAudio
	default:
		return domain.MediaUnknown
	}
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// stripHTML converts Mastodon's HTML status content to plain text.
func stripHTML(s string) string {
	s = strings.ReplaceAll(s, "</p>", "\n\n")
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")
	return strings.TrimSpace(s)
}
