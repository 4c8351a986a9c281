package cli

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	ucli "github.com/urfave/cli/v2"

	"github.com/roost-social/roost/api"
	"github.com/roost-social/roost/db"
	"github.com/roost-social/roost/domain"
)

func (a *App) draftsList(c *ucli.Context) error {
	err, drafts := db.GetDB().ReadAllDrafts()
	if err != nil {
		return fmt.Errorf("reading drafts: %w", err)
	}

	if len(drafts) == 0 {
		a.out.Info("No drafts.")
		return nil
	}

	for i := range drafts {
		d := &drafts[i]
		a.out.Info("%s  %s  %s", d.Id.String()[:8],
			d.UpdatedAt.Local().Format("2006-01-02 15:04"),
			runewidth.Truncate(d.Body, 60, "..."))
	}
	return nil
}

func (a *App) draftsSave(c *ucli.Context) error {
	body := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if body == "" {
		return domain.NewFailure(domain.FailValidation, "nothing to save")
	}

	networks := a.defaultNetworks()
	if s := c.String("networks"); s != "" {
		networks = domain.NetworksFromString(s)
	}

	draft := domain.NewDraft(body, c.String("cw"), networks)
	if err := db.GetDB().CreateDraft(*draft); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}

	a.out.Info("Saved draft %s", draft.Id.String()[:8])
	return nil
}

// draftsEdit replaces a draft's text, and optionally its content warning and
// target networks.
func (a *App) draftsEdit(c *ucli.Context) error {
	found, err := a.findDraft(c.Args().First())
	if err != nil {
		return err
	}

	body := strings.TrimSpace(strings.Join(c.Args().Tail(), " "))
	if body == "" {
		return domain.NewFailure(domain.FailValidation, "new draft text is required")
	}

	// Re-read by id so a concurrent edit is not clobbered with stale fields.
	err, draft := db.GetDB().ReadDraft(found.Id)
	if err != nil {
		return fmt.Errorf("reading draft: %w", err)
	}

	draft.Body = body
	if c.IsSet("cw") {
		draft.ContentWarning = c.String("cw")
	}
	if s := c.String("networks"); s != "" {
		draft.Networks = domain.NetworksFromString(s)
	}

	if err := db.GetDB().UpdateDraft(*draft); err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}

	a.out.Info("Updated draft %s", draft.Id.String()[:8])
	return nil
}

// draftsSend publishes a draft now and deletes it on full success. A partial
// failure keeps the draft so nothing is lost.
func (a *App) draftsSend(c *ucli.Context) error {
	draft, err := a.findDraft(c.Args().First())
	if err != nil {
		return err
	}

	clients, err := a.clientSet()
	if err != nil {
		return err
	}

	networks := draft.Networks
	if len(networks) == 0 {
		networks = a.defaultNetworks()
	}

	postDraft := api.PostDraft{
		Body:           draft.Body,
		ContentWarning: draft.ContentWarning,
		Visibility:     domain.VisibilityPublic,
	}
	if err := postDraft.Validate(a.conf.Conf.MaxChars); err != nil {
		return err
	}

	outcomes := clients.CrossPost(c.Context, networks, postDraft)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			a.out.PostFailed(o.Network, o.Err)
			continue
		}
		a.out.Posted(o.Network, o.Post)
	}

	if failed == 0 {
		if err := db.GetDB().DeleteDraft(draft.Id); err != nil {
			return fmt.Errorf("removing sent draft: %w", err)
		}
		return nil
	}

	a.out.Info("Draft kept because %d network(s) failed", failed)
	return ucli.Exit("", 1)
}

func (a *App) draftsDelete(c *ucli.Context) error {
	draft, err := a.findDraft(c.Args().First())
	if err != nil {
		return err
	}

	if err := db.GetDB().DeleteDraft(draft.Id); err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}

	a.out.Info("Deleted draft %s", draft.Id.String()[:8])
	return nil
}

func (a *App) findDraft(prefix string) (*domain.Draft, error) {
	if prefix == "" {
		return nil, domain.NewFailure(domain.FailValidation, "a draft id is required")
	}

	err, drafts := db.GetDB().ReadAllDrafts()
	if err != nil {
		return nil, fmt.Errorf("reading drafts: %w", err)
	}

	var match *domain.Draft
	for i := range drafts {
		if strings.HasPrefix(drafts[i].Id.String(), prefix) {
			if match != nil {
				return nil, domain.NewFailure(domain.FailValidation, "ambiguous draft id %q", prefix)
			}
			match = &drafts[i]
		}
	}

	if match == nil {
		return nil, domain.NewFailure(domain.FailNotFound, "no draft matching %q", prefix)
	}
	return match, nil
}
