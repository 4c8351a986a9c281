package bus

import (
	"context"
	"testing"
	"time"

	"github.com/roost-social/roost/api"
	"github.com/roost-social/roost/domain"
)

type fakeClient struct {
	network domain.Network
	posts   []domain.Post
	next    string
	err     error
}

func (f *fakeClient) Network() domain.Network { return f.network }

func (f *fakeClient) VerifyCredentials(ctx context.Context) (*domain.Account, error) {
	return nil, f.err
}

func (f *fakeClient) Timeline(ctx context.Context, cursor string, limit int) ([]domain.Post, string, error) {
	return f.posts, f.next, f.err
}

func (f *fakeClient) CreatePost(ctx context.Context, draft api.PostDraft) (*domain.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Post{Id: domain.NewToken(), Network: f.network, Content: draft.Body}, nil
}

func (f *fakeClient) Reply(ctx context.Context, target domain.PostRef, draft api.PostDraft) (*domain.Post, error) {
	return f.CreatePost(ctx, draft)
}

func (f *fakeClient) Like(ctx context.Context, target domain.PostRef) error    { return f.err }
func (f *fakeClient) Unlike(ctx context.Context, target domain.PostRef) error  { return f.err }
func (f *fakeClient) Boost(ctx context.Context, target domain.PostRef) error   { return f.err }
func (f *fakeClient) Unboost(ctx context.Context, target domain.PostRef) error { return f.err }

type recordingCache struct {
	cached []domain.Post
}

func (c *recordingCache) CachePosts(posts []domain.Post) error {
	c.cached = append(c.cached, posts...)
	return nil
}

func (c *recordingCache) ReadCachedPosts(limit int) (error, []domain.Post) {
	if limit > 0 && len(c.cached) > limit {
		return nil, c.cached[:limit]
	}
	return nil, c.cached
}

func twoNetworkSet(mastoErr, bskyErr error) *api.ClientSet {
	set := api.NewClientSet()
	set.Add(&fakeClient{network: domain.NetworkMastodon, err: mastoErr, next: "m-cursor", posts: []domain.Post{
		{Id: domain.NewToken(), Network: domain.NetworkMastodon, CreatedAt: time.Now()},
	}})
	set.Add(&fakeClient{network: domain.NetworkBluesky, err: bskyErr})
	return set
}

func TestDispatchPostFansOutPerNetwork(t *testing.T) {
	d := NewDispatcher(twoNetworkSet(nil, nil), nil, 300)

	cmd := domain.Command{
		Token:   domain.NewToken(),
		Kind:    domain.CmdPost,
		Targets: domain.AllNetworks(),
		Body:    "hello",
	}

	results := d.Execute(context.Background(), cmd)
	if len(results) != 2 {
		t.Fatalf("expected one result per network, got %d", len(results))
	}

	for _, r := range results {
		if r.Kind != domain.ResPosted || r.Created == nil {
			t.Errorf("expected posted result, got %+v", r)
		}
	}
}

func TestDispatchPostPartialFailure(t *testing.T) {
	bskyErr := domain.NewFailure(domain.FailNetwork, "bluesky: down")
	d := NewDispatcher(twoNetworkSet(nil, bskyErr), nil, 300)

	cmd := domain.Command{
		Token:   domain.NewToken(),
		Kind:    domain.CmdPost,
		Targets: domain.AllNetworks(),
		Body:    "hello",
	}

	results := d.Execute(context.Background(), cmd)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byNetwork := make(map[domain.Network]domain.Result)
	for _, r := range results {
		byNetwork[r.Network] = r
	}

	if byNetwork[domain.NetworkMastodon].Kind != domain.ResPosted {
		t.Errorf("mastodon should succeed: %+v", byNetwork[domain.NetworkMastodon])
	}
	if byNetwork[domain.NetworkBluesky].Kind != domain.ResFailure {
		t.Errorf("bluesky should fail: %+v", byNetwork[domain.NetworkBluesky])
	}
}

func TestDispatchValidationShortCircuits(t *testing.T) {
	d := NewDispatcher(twoNetworkSet(nil, nil), nil, 300)

	cmd := domain.Command{Token: domain.NewToken(), Kind: domain.CmdPost, Body: ""}

	results := d.Execute(context.Background(), cmd)
	if len(results) != 1 {
		t.Fatalf("expected single validation failure, got %d results", len(results))
	}
	if !domain.IsKind(results[0].Failure, domain.FailValidation) {
		t.Errorf("expected validation failure, got %v", results[0].Failure)
	}
}

func TestDispatchTimelineCachesPosts(t *testing.T) {
	cache := &recordingCache{}
	d := NewDispatcher(twoNetworkSet(nil, nil), cache, 300)

	cmd := domain.Command{Token: domain.NewToken(), Kind: domain.CmdFetchTimeline, Limit: 20}

	results := d.Execute(context.Background(), cmd)
	if results[0].Kind != domain.ResTimeline {
		t.Fatalf("expected timeline result, got %+v", results[0])
	}
	if len(cache.cached) == 0 {
		t.Error("fetched posts were not cached")
	}
	if results[0].Cursors[domain.NetworkMastodon] != "m-cursor" {
		t.Errorf("expected next-page cursor in result, got %+v", results[0].Cursors)
	}
}

func TestDispatchTimelineFallsBackToCache(t *testing.T) {
	cache := &recordingCache{cached: []domain.Post{
		{Id: domain.NewToken(), Network: domain.NetworkMastodon, Content: "from cache", CreatedAt: time.Now()},
	}}
	mastoErr := domain.NewFailure(domain.FailNetwork, "mastodon: unreachable")
	bskyErr := domain.NewFailure(domain.FailNetwork, "bluesky: unreachable")
	d := NewDispatcher(twoNetworkSet(mastoErr, bskyErr), cache, 300)

	cmd := domain.Command{Token: domain.NewToken(), Kind: domain.CmdFetchTimeline, Limit: 20}

	results := d.Execute(context.Background(), cmd)
	if results[0].Kind != domain.ResTimeline {
		t.Fatalf("expected timeline result, got %+v", results[0])
	}
	if len(results[0].Posts) != 1 || results[0].Posts[0].Content != "from cache" {
		t.Fatalf("expected cached posts when every network fails, got %+v", results[0].Posts)
	}

	// Both failures still surface alongside the cached view.
	failures := 0
	for _, r := range results[1:] {
		if r.Kind == domain.ResFailure {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("expected 2 failure results, got %d", failures)
	}
}

func TestDispatchEngagementAck(t *testing.T) {
	d := NewDispatcher(twoNetworkSet(nil, nil), nil, 300)

	cmd := domain.Command{
		Token:  domain.NewToken(),
		Kind:   domain.CmdLike,
		Target: domain.PostRef{Network: domain.NetworkMastodon, NetworkId: "1"},
	}

	results := d.Execute(context.Background(), cmd)
	if len(results) != 1 || results[0].Kind != domain.ResAck {
		t.Errorf("expected ack, got %+v", results)
	}
}
