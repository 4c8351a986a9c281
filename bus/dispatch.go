package bus

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/roost-social/roost/api"
	"github.com/roost-social/roost/domain"
)

// PostCache stores fetched timeline posts for offline reuse and serves them
// back when every network is unreachable.
type PostCache interface {
	CachePosts(posts []domain.Post) error
	ReadCachedPosts(limit int) (error, []domain.Post)
}

// Dispatcher executes bus commands against the configured network adapters.
type Dispatcher struct {
	clients  *api.ClientSet
	cache    PostCache // may be nil
	maxChars int
}

func NewDispatcher(clients *api.ClientSet, cache PostCache, maxChars int) *Dispatcher {
	return &Dispatcher{clients: clients, cache: cache, maxChars: maxChars}
}

func (d *Dispatcher) Execute(ctx context.Context, cmd domain.Command) []domain.Result {
	switch cmd.Kind {
	case domain.CmdFetchTimeline:
		return d.fetchTimeline(ctx, cmd)
	case domain.CmdPost:
		return d.post(ctx, cmd)
	case domain.CmdReply:
		return d.reply(ctx, cmd)
	case domain.CmdLike, domain.CmdUnlike, domain.CmdBoost, domain.CmdUnboost:
		return d.engage(ctx, cmd)
	default:
		return []domain.Result{{
			Token:   cmd.Token,
			Kind:    domain.ResFailure,
			Failure: domain.NewFailure(domain.FailInternal, "unknown command %q", cmd.Kind),
		}}
	}
}

func (d *Dispatcher) fetchTimeline(ctx context.Context, cmd domain.Command) []domain.Result {
	networks := d.clients.Networks()
	if cmd.NetworkFilter != "" {
		networks = []domain.Network{cmd.NetworkFilter}
	}

	posts, cursors, errs := d.clients.MergeTimelines(ctx, networks, cmd.Cursors, cmd.Limit)

	if d.cache != nil && len(posts) > 0 {
		if err := d.cache.CachePosts(posts); err != nil {
			log.Warn("Could not cache timeline posts", "err", err)
		}
	}

	// When every network failed, fall back to the last cached view so the
	// feed stays readable offline. The failures still surface alongside.
	if len(posts) == 0 && len(errs) > 0 && d.cache != nil {
		if err, cached := d.cache.ReadCachedPosts(cmd.Limit); err != nil {
			log.Warn("Could not read cached timeline", "err", err)
		} else {
			posts = cached
		}
	}

	// Partial results still surface; each failed network gets its own
	// failure result so the frontend can report it next to the posts.
	results := []domain.Result{{
		Token:   cmd.Token,
		Kind:    domain.ResTimeline,
		Posts:   posts,
		Cursors: cursors,
	}}

	for _, err := range errs {
		results = append(results, failureResult(cmd.Token, "", err))
	}

	return results
}

func (d *Dispatcher) post(ctx context.Context, cmd domain.Command) []domain.Result {
	draft := api.PostDraft{
		Body:           cmd.Body,
		ContentWarning: cmd.ContentWarning,
		Visibility:     cmd.Visibility,
		Media:          cmd.Media,
	}

	if err := draft.Validate(d.maxChars); err != nil {
		return []domain.Result{failureResult(cmd.Token, "", err)}
	}

	networks := cmd.Targets
	if len(networks) == 0 {
		networks = d.clients.Networks()
	}

	outcomes := d.clients.CrossPost(ctx, networks, draft)

	results := make([]domain.Result, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			results = append(results, failureResult(cmd.Token, o.Network, o.Err))
			continue
		}
		results = append(results, domain.Result{
			Token:   cmd.Token,
			Kind:    domain.ResPosted,
			Network: o.Network,
			Created: o.Post,
		})
	}

	return results
}

func (d *Dispatcher) reply(ctx context.Context, cmd domain.Command) []domain.Result {
	draft := api.PostDraft{
		Body:           cmd.Body,
		ContentWarning: cmd.ContentWarning,
		Visibility:     cmd.Visibility,
		Media:          cmd.Media,
	}

	if err := draft.Validate(d.maxChars); err != nil {
		return []domain.Result{failureResult(cmd.Token, cmd.Target.Network, err)}
	}

	client, err := d.clients.For(cmd.Target.Network)
	if err != nil {
		return []domain.Result{failureResult(cmd.Token, cmd.Target.Network, err)}
	}

	created, err := client.Reply(ctx, cmd.Target, draft)
	if err != nil {
		return []domain.Result{failureResult(cmd.Token, cmd.Target.Network, err)}
	}

	return []domain.Result{{
		Token:   cmd.Token,
		Kind:    domain.ResPosted,
		Network: cmd.Target.Network,
		Created: created,
	}}
}

func (d *Dispatcher) engage(ctx context.Context, cmd domain.Command) []domain.Result {
	client, err := d.clients.For(cmd.Target.Network)
	if err != nil {
		return []domain.Result{failureResult(cmd.Token, cmd.Target.Network, err)}
	}

	switch cmd.Kind {
	case domain.CmdLike:
		err = client.Like(ctx, cmd.Target)
	case domain.CmdUnlike:
		err = client.Unlike(ctx, cmd.Target)
	case domain.CmdBoost:
		err = client.Boost(ctx, cmd.Target)
	case domain.CmdUnboost:
		err = client.Unboost(ctx, cmd.Target)
	}
	if err != nil {
		return []domain.Result{failureResult(cmd.Token, cmd.Target.Network, err)}
	}

	return []domain.Result{{
		Token:   cmd.Token,
		Kind:    domain.ResAck,
		Network: cmd.Target.Network,
	}}
}

func failureResult(token domain.Token, network domain.Network, err error) domain.Result {
	f, ok := err.(*domain.Failure)
	if !ok {
		f = domain.WrapFailure(domain.KindOf(err), err, "command failed")
	}

	return domain.Result{
		Token:   token,
		Kind:    domain.ResFailure,
		Network: network,
		Failure: f,
	}
}
