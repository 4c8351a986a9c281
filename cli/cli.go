// Package cli is the command surface: account sign-in, one-shot posting and
// timeline fetches, and the schedule queue. Running with no subcommand
// starts the interactive session.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	ucli "github.com/urfave/cli/v2"

	"github.com/roost-social/roost/api"
	"github.com/roost-social/roost/auth"
	"github.com/roost-social/roost/bus"
	"github.com/roost-social/roost/db"
	"github.com/roost-social/roost/domain"
	"github.com/roost-social/roost/scheduler"
	"github.com/roost-social/roost/ui"
	"github.com/roost-social/roost/util"
)

// App bundles the shared state every command needs.
type App struct {
	conf  *util.AppConfig
	store *auth.Store
	out   *Output
}

func (a *App) clientSet() (*api.ClientSet, error) {
	err, accounts := db.GetDB().ReadAllAccounts()
	if err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, domain.NewFailure(domain.FailAuth,
			"no accounts configured; run 'roost auth mastodon' or 'roost auth bluesky'")
	}

	return api.BuildClientSet(accounts, a.store), nil
}

func (a *App) defaultNetworks() []domain.Network {
	return domain.NetworksFromString(a.conf.Conf.DefaultNetworks)
}

// Run is the entry point invoked by main.
func Run(args []string) error {
	conf, err := util.ReadConf()
	if err != nil {
		return err
	}

	if conf.Conf.LogFile != "" {
		f, err := os.OpenFile(conf.Conf.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			log.SetOutput(f)
		}
	}

	store, err := auth.OpenStore()
	if err != nil {
		return err
	}

	appState := &App{conf: conf, store: store}

	jsonFlag := &ucli.BoolFlag{Name: "json", Usage: "emit JSON lines instead of text"}

	app := &ucli.App{
		Name:    util.Name,
		Usage:   "one terminal for Mastodon and Bluesky",
		Version: util.Version,
		Flags:   []ucli.Flag{jsonFlag},
		Before: func(c *ucli.Context) error {
			appState.out = NewOutput(c.Bool("json"))
			return nil
		},
		Action: func(c *ucli.Context) error {
			return appState.runTUI()
		},
		Commands: []*ucli.Command{
			{
				Name:  "auth",
				Usage: "sign in to a network",
				Subcommands: []*ucli.Command{
					{
						Name:      "mastodon",
						Usage:     "sign in to a Mastodon instance via OAuth",
						ArgsUsage: "[server-url]",
						Action:    appState.authMastodon,
					},
					{
						Name:      "bluesky",
						Usage:     "sign in to Bluesky with an app password",
						ArgsUsage: "[handle]",
						Flags: []ucli.Flag{
							&ucli.StringFlag{Name: "pds", Usage: "PDS URL", Value: ""},
						},
						Action: appState.authBluesky,
					},
				},
			},
			{
				Name:      "post",
				Usage:     "publish a post now or at a scheduled time",
				ArgsUsage: "<text>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "networks", Aliases: []string{"n", "to"}, Usage: "comma-separated targets (mastodon,bluesky)"},
					&ucli.StringFlag{Name: "cw", Usage: "content warning"},
					&ucli.StringFlag{Name: "visibility", Value: "public", Usage: "public, unlisted, private or direct"},
					&ucli.StringFlag{Name: "schedule", Aliases: []string{"s"}, Usage: "deliver later, e.g. 'in 2 hours' or '15:00'"},
				},
				Action: appState.post,
			},
			{
				Name:   "timeline",
				Usage:  "print the merged home timeline",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "network", Usage: "limit to one network"},
					&ucli.IntFlag{Name: "limit", Value: 0, Usage: "posts per network"},
				},
				Action: appState.timeline,
			},
			{
				Name:   "accounts",
				Usage:  "list signed-in accounts",
				Action: appState.accounts,
				Subcommands: []*ucli.Command{
					{
						Name:      "default",
						Usage:     "mark an account as its network's default",
						ArgsUsage: "<account-id-prefix>",
						Action:    appState.accountsDefault,
					},
					{
						Name:      "remove",
						Usage:     "sign out and forget an account",
						ArgsUsage: "<account-id-prefix>",
						Action:    appState.accountsRemove,
					},
				},
			},
			{
				Name:  "drafts",
				Usage: "manage saved drafts",
				Action: func(c *ucli.Context) error {
					return appState.draftsList(c)
				},
				Subcommands: []*ucli.Command{
					{
						Name:      "save",
						Usage:     "save post text as a draft",
						ArgsUsage: "<text>",
						Flags: []ucli.Flag{
							&ucli.StringFlag{Name: "networks", Aliases: []string{"n"}},
							&ucli.StringFlag{Name: "cw"},
						},
						Action: appState.draftsSave,
					},
					{
						Name:      "edit",
						Usage:     "replace a draft's text",
						ArgsUsage: "<draft-id-prefix> <text>",
						Flags: []ucli.Flag{
							&ucli.StringFlag{Name: "networks", Aliases: []string{"n"}},
							&ucli.StringFlag{Name: "cw"},
						},
						Action: appState.draftsEdit,
					},
					{
						Name:      "send",
						Usage:     "publish a draft now",
						ArgsUsage: "<draft-id-prefix>",
						Action:    appState.draftsSend,
					},
					{
						Name:      "delete",
						Usage:     "delete a draft",
						ArgsUsage: "<draft-id-prefix>",
						Action:    appState.draftsDelete,
					},
				},
			},
			{
				Name:  "schedule",
				Usage: "manage the scheduled post queue",
				Subcommands: []*ucli.Command{
					{
						Name:  "list",
						Usage: "show queued and finished scheduled posts",
						Flags: []ucli.Flag{
							&ucli.BoolFlag{Name: "pending", Usage: "only posts still waiting to fire"},
						},
						Action: appState.scheduleList,
					},
					{
						Name:      "cancel",
						Usage:     "cancel a pending scheduled post",
						ArgsUsage: "<id-prefix>",
						Action:    appState.scheduleCancel,
					},
					{
						Name:      "remove",
						Usage:     "delete a scheduled post from the queue entirely",
						ArgsUsage: "<id-prefix>",
						Action:    appState.scheduleRemove,
					},
					{
						Name:      "resubmit",
						Usage:     "requeue a failed scheduled post",
						ArgsUsage: "<id-prefix> <when>",
						Action:    appState.scheduleResubmit,
					},
					{
						Name:   "run",
						Usage:  "deliver everything currently due, then exit",
						Action: appState.scheduleRun,
					},
					{
						Name:  "daemon",
						Usage: "keep delivering due posts until stopped",
						Flags: []ucli.Flag{
							&ucli.IntFlag{Name: "interval", Usage: "scan interval in seconds", Value: 0},
						},
						Action: appState.scheduleDaemon,
					},
				},
			},
		},
	}

	return app.Run(args)
}

func (a *App) runTUI() error {
	clients, err := a.clientSet()
	if err != nil {
		return err
	}

	dispatcher := bus.NewDispatcher(clients, db.GetDB(), a.conf.Conf.MaxChars)
	dispatchBus := bus.New(dispatcher, a.conf.Conf.Workers)
	defer dispatchBus.Close()

	sched := scheduler.New(db.GetDB(), clients, a.conf.Conf.MaxChars)

	cutoff := time.Now().Add(-time.Duration(a.conf.Conf.CacheMaxAgeH) * time.Hour)
	if err := db.GetDB().PruneCache(cutoff); err != nil {
		log.Warn("Could not prune post cache", "err", err)
	}

	return ui.Run(dispatchBus, sched, a.conf)
}

func (a *App) post(c *ucli.Context) error {
	body := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if body == "" {
		return domain.NewFailure(domain.FailValidation, "nothing to post")
	}

	networks := a.defaultNetworks()
	if s := c.String("networks"); s != "" {
		networks = domain.NetworksFromString(s)
		if len(networks) == 0 {
			return domain.NewFailure(domain.FailValidation, "no valid networks in %q", s)
		}
	}

	// Scheduled delivery never touches the network now.
	if when := c.String("schedule"); when != "" {
		sched := scheduler.New(db.GetDB(), nil, a.conf.Conf.MaxChars)
		post, err := sched.Schedule(body, c.String("cw"), networks, when)
		if err != nil {
			return err
		}
		a.out.Info("Scheduled %s for %s", post.Id.String()[:8], scheduler.FormatWhen(post.ScheduledFor))
		return nil
	}

	clients, err := a.clientSet()
	if err != nil {
		return err
	}

	draft := api.PostDraft{
		Body:           body,
		ContentWarning: c.String("cw"),
		Visibility:     domain.ParseVisibility(c.String("visibility")),
	}
	if err := draft.Validate(a.conf.Conf.MaxChars); err != nil {
		return err
	}

	outcomes := clients.CrossPost(c.Context, networks, draft)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			a.out.PostFailed(o.Network, o.Err)
			continue
		}
		a.out.Posted(o.Network, o.Post)
		if err, acct := db.GetDB().ReadDefaultAccount(o.Network); err == nil {
			if err := db.GetDB().TouchAccount(acct.Id); err != nil {
				log.Warn("Could not update account last-used time", "err", err)
			}
		}
	}

	if failed == len(outcomes) {
		return ucli.Exit("", 1)
	}
	return nil
}

func (a *App) timeline(c *ucli.Context) error {
	clients, err := a.clientSet()
	if err != nil {
		return err
	}

	networks := clients.Networks()
	if s := c.String("network"); s != "" {
		n, ok := domain.ParseNetwork(s)
		if !ok {
			return domain.NewFailure(domain.FailValidation, "unknown network %q", s)
		}
		networks = []domain.Network{n}
	}

	limit := c.Int("limit")
	if limit <= 0 {
		limit = a.conf.Conf.TimelineLimit
	}

	posts, _, errs := clients.MergeTimelines(c.Context, networks, nil, limit)

	if len(posts) > 0 {
		if err := db.GetDB().CachePosts(posts); err != nil {
			log.Warn("Could not cache timeline posts", "err", err)
		}
		a.touchUsed(clients, posts)
	}

	// Offline fallback: serve the last cached view when nothing fresh came
	// back.
	if len(posts) == 0 && len(errs) > 0 {
		if err, cached := db.GetDB().ReadCachedPosts(limit); err == nil && len(cached) > 0 {
			a.out.Info("All networks unreachable; showing cached timeline.")
			a.out.Posts(cached)
			for _, err := range errs {
				a.out.Error(err)
			}
			return nil
		}
	}

	a.out.Posts(posts)
	for _, err := range errs {
		a.out.Error(err)
	}

	if len(posts) == 0 && len(errs) > 0 {
		return ucli.Exit("", 1)
	}
	return nil
}

// touchUsed stamps last-used on every account whose network produced posts.
func (a *App) touchUsed(clients *api.ClientSet, posts []domain.Post) {
	seen := make(map[domain.Network]bool)
	for i := range posts {
		seen[posts[i].Network] = true
	}
	for n := range seen {
		if acct, ok := clients.Account(n); ok {
			if err := db.GetDB().TouchAccount(acct.Id); err != nil {
				log.Warn("Could not update account last-used time", "err", err)
			}
		}
	}
}

func (a *App) accounts(c *ucli.Context) error {
	err, accounts := db.GetDB().ReadAllAccounts()
	if err != nil {
		return fmt.Errorf("reading accounts: %w", err)
	}

	a.out.Accounts(accounts)
	return nil
}

func (a *App) accountsDefault(c *ucli.Context) error {
	account, err := a.findAccount(c.Args().First())
	if err != nil {
		return err
	}

	if err := db.GetDB().SetDefaultAccount(account.Id, account.Network); err != nil {
		return fmt.Errorf("setting default account: %w", err)
	}

	a.out.Info("Default %s account is now %s", account.Network.Name(), account.Handle)
	return nil
}

func (a *App) accountsRemove(c *ucli.Context) error {
	account, err := a.findAccount(c.Args().First())
	if err != nil {
		return err
	}

	if err := a.store.Delete(account.CredentialKey()); err != nil {
		return fmt.Errorf("removing credentials: %w", err)
	}
	if err := db.GetDB().DeleteAccount(account.Id); err != nil {
		return fmt.Errorf("removing account: %w", err)
	}

	a.out.Info("Removed %s", account.ToString())
	return nil
}

// findAccount resolves an id prefix to exactly one stored account.
func (a *App) findAccount(prefix string) (*domain.Account, error) {
	if prefix == "" {
		return nil, domain.NewFailure(domain.FailValidation, "an account id is required")
	}

	err, accounts := db.GetDB().ReadAllAccounts()
	if err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}

	var match *domain.Account
	for i := range accounts {
		if strings.HasPrefix(accounts[i].Id.String(), prefix) {
			if match != nil {
				return nil, domain.NewFailure(domain.FailValidation, "ambiguous account id %q", prefix)
			}
			match = &accounts[i]
		}
	}

	if match == nil {
		return nil, domain.NewFailure(domain.FailNotFound, "no account matching %q", prefix)
	}
	return match, nil
}

func (a *App) scheduleList(c *ucli.Context) error {
	sched := scheduler.New(db.GetDB(), nil, a.conf.Conf.MaxChars)

	var posts []domain.ScheduledPost
	var err error
	if c.Bool("pending") {
		posts, err = sched.ListPending()
	} else {
		posts, err = sched.List()
	}
	if err != nil {
		return err
	}

	a.out.Scheduled(posts)
	return nil
}

func (a *App) scheduleRemove(c *ucli.Context) error {
	post, err := a.findScheduled(c.Args().First())
	if err != nil {
		return err
	}

	sched := scheduler.New(db.GetDB(), nil, a.conf.Conf.MaxChars)
	if err := sched.Remove(post.Id); err != nil {
		return err
	}

	a.out.Info("Removed %s", post.Id.String()[:8])
	return nil
}

func (a *App) scheduleCancel(c *ucli.Context) error {
	id, err := a.findScheduled(c.Args().First())
	if err != nil {
		return err
	}

	sched := scheduler.New(db.GetDB(), nil, a.conf.Conf.MaxChars)
	if err := sched.Cancel(id.Id); err != nil {
		return err
	}

	a.out.Info("Cancelled %s", id.Id.String()[:8])
	return nil
}

func (a *App) scheduleResubmit(c *ucli.Context) error {
	post, err := a.findScheduled(c.Args().First())
	if err != nil {
		return err
	}

	when := strings.Join(c.Args().Tail(), " ")
	if when == "" {
		return domain.NewFailure(domain.FailValidation, "a schedule time is required, e.g. 'in 1 hour'")
	}

	sched := scheduler.New(db.GetDB(), nil, a.conf.Conf.MaxChars)
	requeued, err := sched.Resubmit(post.Id, when)
	if err != nil {
		return err
	}

	a.out.Info("Requeued %s for %s", requeued.Id.String()[:8], scheduler.FormatWhen(requeued.ScheduledFor))
	return nil
}

func (a *App) findScheduled(prefix string) (*domain.ScheduledPost, error) {
	if prefix == "" {
		return nil, domain.NewFailure(domain.FailValidation, "a scheduled post id is required")
	}

	err, posts := db.GetDB().ReadAllScheduledPosts()
	if err != nil {
		return nil, fmt.Errorf("reading schedule queue: %w", err)
	}

	var match *domain.ScheduledPost
	for i := range posts {
		if strings.HasPrefix(posts[i].Id.String(), prefix) {
			if match != nil {
				return nil, domain.NewFailure(domain.FailValidation, "ambiguous id %q", prefix)
			}
			match = &posts[i]
		}
	}

	if match == nil {
		return nil, domain.NewFailure(domain.FailNotFound, "no scheduled post matching %q", prefix)
	}
	return match, nil
}

func (a *App) scheduleRun(c *ucli.Context) error {
	clients, err := a.clientSet()
	if err != nil {
		return err
	}

	sched := scheduler.New(db.GetDB(), clients, a.conf.Conf.MaxChars)
	if err := sched.RecoverStale(); err != nil {
		log.Warn("Could not recover stale posts", "err", err)
	}

	n, err := sched.RunOnce(c.Context)
	if err != nil {
		return err
	}

	a.out.Info("Processed %d due post(s)", n)
	return nil
}

func (a *App) scheduleDaemon(c *ucli.Context) error {
	clients, err := a.clientSet()
	if err != nil {
		return err
	}

	interval := time.Duration(c.Int("interval")) * time.Second
	if interval <= 0 {
		interval = time.Duration(a.conf.Conf.PollIntervalSec) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(db.GetDB(), clients, a.conf.Conf.MaxChars)
	err = sched.Daemon(ctx, interval)
	if err == context.Canceled {
		return nil
	}
	return err
}

// prompt reads one trimmed line from stdin.
func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
