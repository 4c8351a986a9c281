package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roost-social/roost/auth"
	"github.com/roost-social/roost/domain"
)

// stubClient is a canned SocialClient for fan-out tests.
type stubClient struct {
	network    domain.Network
	posts      []domain.Post
	next       string
	postErr    error
	fetchErr   error
	delay      time.Duration
	postCalls  int
	lastCursor string
}

func (s *stubClient) Network() domain.Network { return s.network }

func (s *stubClient) VerifyCredentials(ctx context.Context) (*domain.Account, error) {
	return domain.NewAccount(s.network, "stub", "Stub", "stub.example"), nil
}

func (s *stubClient) Timeline(ctx context.Context, cursor string, limit int) ([]domain.Post, string, error) {
	s.lastCursor = cursor
	if s.fetchErr != nil {
		return nil, "", s.fetchErr
	}
	return s.posts, s.next, nil
}

func (s *stubClient) CreatePost(ctx context.Context, draft PostDraft) (*domain.Post, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.postCalls++
	if s.postErr != nil {
		return nil, s.postErr
	}
	return &domain.Post{Id: domain.NewToken(), Network: s.network, Content: draft.Body}, nil
}

func (s *stubClient) Reply(ctx context.Context, target domain.PostRef, draft PostDraft) (*domain.Post, error) {
	return s.CreatePost(ctx, draft)
}

func (s *stubClient) Like(ctx context.Context, target domain.PostRef) error   { return s.postErr }
func (s *stubClient) Unlike(ctx context.Context, target domain.PostRef) error { return s.postErr }
func (s *stubClient) Boost(ctx context.Context, target domain.PostRef) error  { return s.postErr }
func (s *stubClient) Unboost(ctx context.Context, target domain.PostRef) error {
	return s.postErr
}

func TestCrossPostIndependentOutcomes(t *testing.T) {
	set := NewClientSet()
	set.Add(&stubClient{network: domain.NetworkMastodon})
	set.Add(&stubClient{
		network: domain.NetworkBluesky,
		postErr: domain.NewFailure(domain.FailNetwork, "bluesky: connection refused"),
	})

	networks := []domain.Network{domain.NetworkMastodon, domain.NetworkBluesky}
	outcomes := set.CrossPost(context.Background(), networks, PostDraft{Body: "hi"})

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}

	if outcomes[0].Network != domain.NetworkMastodon || outcomes[0].Err != nil {
		t.Errorf("mastodon should succeed: %+v", outcomes[0])
	}
	if outcomes[1].Network != domain.NetworkBluesky || outcomes[1].Err == nil {
		t.Errorf("bluesky should fail: %+v", outcomes[1])
	}
	if !domain.IsKind(outcomes[1].Err, domain.FailNetwork) {
		t.Errorf("expected network failure, got %v", outcomes[1].Err)
	}
}

func TestCrossPostMissingAdapter(t *testing.T) {
	set := NewClientSet()
	set.Add(&stubClient{network: domain.NetworkMastodon})

	networks := []domain.Network{domain.NetworkMastodon, domain.NetworkBluesky}
	outcomes := set.CrossPost(context.Background(), networks, PostDraft{Body: "hi"})

	if outcomes[0].Err != nil {
		t.Errorf("configured network should succeed: %v", outcomes[0].Err)
	}
	if !domain.IsKind(outcomes[1].Err, domain.FailAuth) {
		t.Errorf("unconfigured network should fail auth, got %v", outcomes[1].Err)
	}
}

func TestMergeTimelinesPartialFailure(t *testing.T) {
	now := time.Now()

	set := NewClientSet()
	set.Add(&stubClient{
		network: domain.NetworkMastodon,
		posts: []domain.Post{
			{Id: domain.NewToken(), Network: domain.NetworkMastodon, Content: "old", CreatedAt: now.Add(-time.Hour)},
			{Id: domain.NewToken(), Network: domain.NetworkMastodon, Content: "new", CreatedAt: now},
		},
	})
	set.Add(&stubClient{
		network:  domain.NetworkBluesky,
		fetchErr: domain.NewFailure(domain.FailNetwork, "bluesky: timeout"),
	})

	posts, _, errs := set.MergeTimelines(context.Background(), domain.AllNetworks(), nil, 20)

	if len(posts) != 2 {
		t.Fatalf("expected mastodon posts despite bluesky failure, got %d", len(posts))
	}
	if posts[0].Content != "new" {
		t.Errorf("expected newest first, got %q", posts[0].Content)
	}
	if len(errs) != 1 {
		t.Errorf("expected one per-network error, got %d", len(errs))
	}
}

func TestMergeTimelinesCursors(t *testing.T) {
	mast := &stubClient{
		network: domain.NetworkMastodon,
		posts:   []domain.Post{{Id: domain.NewToken(), Network: domain.NetworkMastodon}},
		next:    "109",
	}
	bsky := &stubClient{
		network: domain.NetworkBluesky,
		posts:   []domain.Post{{Id: domain.NewToken(), Network: domain.NetworkBluesky}},
	}

	set := NewClientSet()
	set.Add(mast)
	set.Add(bsky)

	resume := map[domain.Network]string{domain.NetworkBluesky: "feed-cursor"}
	_, next, errs := set.MergeTimelines(context.Background(), domain.AllNetworks(), resume, 20)

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if mast.lastCursor != "" {
		t.Errorf("mastodon should start from the newest page, got cursor %q", mast.lastCursor)
	}
	if bsky.lastCursor != "feed-cursor" {
		t.Errorf("bluesky should resume from its cursor, got %q", bsky.lastCursor)
	}
	if next[domain.NetworkMastodon] != "109" {
		t.Errorf("expected mastodon next cursor 109, got %q", next[domain.NetworkMastodon])
	}
	if _, ok := next[domain.NetworkBluesky]; ok {
		t.Error("exhausted bluesky feed should carry no next cursor")
	}
}

func TestBuildClientSetPrefersDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := auth.OpenStoreAt(filepath.Join(dir, "key"), filepath.Join(dir, "creds.enc"))
	if err != nil {
		t.Fatalf("OpenStoreAt: %v", err)
	}

	first := domain.NewAccount(domain.NetworkMastodon, "alice", "Alice", "mastodon.social")
	second := domain.NewAccount(domain.NetworkMastodon, "bob", "Bob", "hachyderm.io")
	second.IsDefault = true

	for _, a := range []*domain.Account{first, second} {
		if err := store.Put(a.CredentialKey(), auth.Credential{AccessToken: "tok-" + a.Handle}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	// Insertion order puts the default second; it must still win.
	set := BuildClientSet([]domain.Account{*first, *second}, store)

	got, ok := set.Account(domain.NetworkMastodon)
	if !ok {
		t.Fatal("expected a mastodon adapter")
	}
	if got.Id != second.Id {
		t.Errorf("expected default account %s chosen, got %s", second.Handle, got.Handle)
	}
	if len(set.Networks()) != 1 {
		t.Errorf("expected one network configured, got %v", set.Networks())
	}
}

func TestBuildClientSetFirstWithoutDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := auth.OpenStoreAt(filepath.Join(dir, "key"), filepath.Join(dir, "creds.enc"))
	if err != nil {
		t.Fatalf("OpenStoreAt: %v", err)
	}

	first := domain.NewAccount(domain.NetworkMastodon, "alice", "Alice", "mastodon.social")
	second := domain.NewAccount(domain.NetworkMastodon, "bob", "Bob", "hachyderm.io")

	for _, a := range []*domain.Account{first, second} {
		if err := store.Put(a.CredentialKey(), auth.Credential{AccessToken: "tok-" + a.Handle}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	set := BuildClientSet([]domain.Account{*first, *second}, store)

	got, ok := set.Account(domain.NetworkMastodon)
	if !ok {
		t.Fatal("expected a mastodon adapter")
	}
	if got.Id != first.Id {
		t.Errorf("with no default the first stored account wins, got %s", got.Handle)
	}
}

func TestPostDraftValidate(t *testing.T) {
	if err := (PostDraft{Body: "ok"}).Validate(300); err != nil {
		t.Errorf("valid draft rejected: %v", err)
	}

	err := (PostDraft{}).Validate(300)
	if !domain.IsKind(err, domain.FailValidation) {
		t.Errorf("empty body should fail validation, got %v", err)
	}

	long := make([]rune, 301)
	for i := range long {
		long[i] = 'a'
	}
	err = (PostDraft{Body: string(long)}).Validate(300)
	if !domain.IsKind(err, domain.FailValidation) {
		t.Errorf("oversized body should fail validation, got %v", err)
	}

	err = (PostDraft{Body: "x", Media: []domain.MediaAttachment{{URL: "f.png"}}}).Validate(300)
	if !domain.IsKind(err, domain.FailValidation) {
		t.Errorf("media should fail validation, got %v", err)
	}
}
