package api

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/roost-social/roost/auth"
	"github.com/roost-social/roost/domain"
)

// ClientSet holds one ready adapter per configured network and fans posts
// out across them. Each network succeeds or fails on its own; one network
// being down never blocks the other.
type ClientSet struct {
	clients  map[domain.Network]SocialClient
	accounts map[domain.Network]domain.Account
}

func NewClientSet() *ClientSet {
	return &ClientSet{
		clients:  make(map[domain.Network]SocialClient),
		accounts: make(map[domain.Network]domain.Account),
	}
}

func (s *ClientSet) Add(c SocialClient) {
	s.clients[c.Network()] = c
}

// Account returns the stored account backing a network's adapter, when the
// set was built from stored accounts.
func (s *ClientSet) Account(n domain.Network) (domain.Account, bool) {
	a, ok := s.accounts[n]
	return a, ok
}

// For returns the adapter for a network.
func (s *ClientSet) For(n domain.Network) (SocialClient, error) {
	c, ok := s.clients[n]
	if !ok {
		return nil, domain.NewFailure(domain.FailAuth, "no %s account configured", n.Name())
	}
	return c, nil
}

// Networks lists the networks with a configured adapter, in stable order.
func (s *ClientSet) Networks() []domain.Network {
	var out []domain.Network
	for _, n := range domain.AllNetworks() {
		if _, ok := s.clients[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// PostOutcome is the per-network result of a fan-out post.
type PostOutcome struct {
	Network domain.Network
	Post    *domain.Post
	Err     error
}

// CrossPost publishes the draft to every requested network concurrently and
// returns one outcome per network, in the order requested. A missing adapter
// is an auth failure for that network only.
func (s *ClientSet) CrossPost(ctx context.Context, networks []domain.Network, draft PostDraft) []PostOutcome {
	outcomes := make([]PostOutcome, len(networks))

	var wg sync.WaitGroup
	for i, n := range networks {
		wg.Add(1)
		go func(i int, n domain.Network) {
			defer wg.Done()
			outcomes[i] = PostOutcome{Network: n}

			client, err := s.For(n)
			if err != nil {
				outcomes[i].Err = err
				return
			}

			post, err := client.CreatePost(ctx, draft)
			outcomes[i].Post = post
			outcomes[i].Err = err
		}(i, n)
	}
	wg.Wait()

	return outcomes
}

// MergeTimelines fetches every network's timeline concurrently and returns
// the union, newest first, plus per-network next-page cursors and any
// per-network errors. Partial results are kept even when one network fails.
// Pass nil cursors for the newest page.
func (s *ClientSet) MergeTimelines(ctx context.Context, networks []domain.Network, cursors map[domain.Network]string, limit int) ([]domain.Post, map[domain.Network]string, []error) {
	type fetchResult struct {
		posts []domain.Post
		next  string
		err   error
	}

	results := make([]fetchResult, len(networks))

	var wg sync.WaitGroup
	for i, n := range networks {
		wg.Add(1)
		go func(i int, n domain.Network) {
			defer wg.Done()

			client, err := s.For(n)
			if err != nil {
				results[i].err = err
				return
			}

			results[i].posts, results[i].next, results[i].err = client.Timeline(ctx, cursors[n], limit)
		}(i, n)
	}
	wg.Wait()

	var posts []domain.Post
	var errs []error
	next := make(map[domain.Network]string)
	for i, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		posts = append(posts, r.posts...)
		if r.next != "" {
			next[networks[i]] = r.next
		}
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	return posts, next, errs
}

// BuildClientSet assembles one adapter per network from the stored accounts,
// preferring the account flagged as default and otherwise taking the first
// stored account for that network. Accounts whose secrets are missing are
// skipped.
func BuildClientSet(accounts []domain.Account, store *auth.Store) *ClientSet {
	set := NewClientSet()

	picked := make(map[domain.Network]domain.Account)
	for i := range accounts {
		a := accounts[i]
		prev, ok := picked[a.Network]
		if !ok || (a.IsDefault && !prev.IsDefault) {
			picked[a.Network] = a
		}
	}

	for _, a := range picked {
		cred, err := store.Get(a.CredentialKey())
		if err != nil {
			continue
		}

		switch a.Network {
		case domain.NetworkMastodon:
			set.Add(NewMastodonClient(a.Server, cred.AccessToken))
			set.accounts[a.Network] = a
		case domain.NetworkBluesky:
			c := NewBlueskyClient(a.Server, cred.Identifier, cred.AppPassword)
			if cred.AccessToken != "" {
				c.RestoreSession(cred.AccessToken, cred.RefreshToken, cred.Did)
			}
			key := a.CredentialKey()
			c.OnSessionChange(func(access, refresh, did string) {
				cred.AccessToken = access
				cred.RefreshToken = refresh
				cred.Did = did
				if err := store.Put(key, cred); err != nil {
					log.Warn("Could not persist refreshed session", "account", a.Handle, "err", err)
				}
			})
			set.Add(c)
			set.accounts[a.Network] = a
		}
	}

	return set
}
