package cli

import (
	"fmt"
	"strings"

	ucli "github.com/urfave/cli/v2"

	"github.com/roost-social/roost/api"
	"github.com/roost-social/roost/auth"
	"github.com/roost-social/roost/db"
	"github.com/roost-social/roost/domain"
)

// authMastodon runs the out-of-band OAuth flow: register (or reuse) an app
// on the instance, send the user to the authorize URL, then trade the
// pasted code for a token.
func (a *App) authMastodon(c *ucli.Context) error {
	server := c.Args().First()
	if server == "" {
		var err error
		server, err = prompt("Instance URL (e.g. https://mastodon.social): ")
		if err != nil {
			return err
		}
	}
	if server == "" {
		return domain.NewFailure(domain.FailValidation, "an instance URL is required")
	}
	if !strings.HasPrefix(server, "http") {
		server = "https://" + server
	}
	server = strings.TrimRight(server, "/")

	httpClient := api.DefaultHTTPClient()

	// App registrations are reusable per instance.
	appKey := "mastodon-app:" + server
	var oauthApp *api.OAuthApp

	if cred, err := a.store.Get(appKey); err == nil && cred.ClientID != "" {
		oauthApp = &api.OAuthApp{ClientID: cred.ClientID, ClientSecret: cred.ClientSecret}
	} else {
		registered, err := api.RegisterApp(c.Context, httpClient, server)
		if err != nil {
			return err
		}
		oauthApp = registered

		if err := a.store.Put(appKey, auth.Credential{
			ClientID:     registered.ClientID,
			ClientSecret: registered.ClientSecret,
		}); err != nil {
			return fmt.Errorf("saving app registration: %w", err)
		}
	}

	fmt.Println("Open this URL in your browser and authorize roost:")
	fmt.Println()
	fmt.Println("  " + oauthApp.AuthorizeURL(server))
	fmt.Println()

	code, err := prompt("Paste the authorization code: ")
	if err != nil {
		return err
	}
	if code == "" {
		return domain.NewFailure(domain.FailValidation, "an authorization code is required")
	}

	token, err := oauthApp.ExchangeCode(c.Context, httpClient, server, code)
	if err != nil {
		return err
	}

	client := api.NewMastodonClient(server, token)
	account, err := client.VerifyCredentials(c.Context)
	if err != nil {
		return err
	}

	if err := a.saveAccount(account, auth.Credential{AccessToken: token}); err != nil {
		return err
	}

	a.out.Info("Signed in as %s", account.ToString())
	return nil
}

// authBluesky signs in with an app password and stores it so future
// sessions can be re-established without user interaction.
func (a *App) authBluesky(c *ucli.Context) error {
	handle := c.Args().First()
	if handle == "" {
		var err error
		handle, err = prompt("Handle (e.g. you.bsky.social): ")
		if err != nil {
			return err
		}
	}
	if handle == "" {
		return domain.NewFailure(domain.FailValidation, "a handle is required")
	}

	password, err := prompt("App password (from Settings > App Passwords): ")
	if err != nil {
		return err
	}
	if password == "" {
		return domain.NewFailure(domain.FailValidation, "an app password is required")
	}

	client := api.NewBlueskyClient(c.String("pds"), handle, password)

	var sessionCred auth.Credential
	client.OnSessionChange(func(access, refresh, did string) {
		sessionCred.AccessToken = access
		sessionCred.RefreshToken = refresh
		sessionCred.Did = did
	})

	account, err := client.VerifyCredentials(c.Context)
	if err != nil {
		return err
	}

	sessionCred.Identifier = handle
	sessionCred.AppPassword = password
	if err := a.saveAccount(account, sessionCred); err != nil {
		return err
	}

	a.out.Info("Signed in as %s", account.ToString())
	return nil
}

// saveAccount upserts the account row and its credentials. Signing in again
// with the same handle replaces the stored secret.
func (a *App) saveAccount(account *domain.Account, cred auth.Credential) error {
	err, existing := db.GetDB().ReadAccountsByNetwork(account.Network)
	if err != nil {
		return fmt.Errorf("reading accounts: %w", err)
	}

	for i := range existing {
		if existing[i].Handle == account.Handle && existing[i].Server == account.Server {
			account.Id = existing[i].Id
			account.IsDefault = existing[i].IsDefault
			if err := db.GetDB().DeleteAccount(existing[i].Id); err != nil {
				return fmt.Errorf("replacing account: %w", err)
			}
			break
		}
	}

	if err := db.GetDB().CreateAccount(*account); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}

	if err := a.store.Put(account.CredentialKey(), cred); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	return nil
}
