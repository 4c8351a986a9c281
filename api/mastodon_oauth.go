package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roost-social/roost/domain"
)

const oauthRedirectOOB = "urn:ietf:wg:oauth:2.0:oob"
const oauthScopes = "read write follow"
const oauthClientName = "roost"

// OAuthApp is a client registration on one Mastodon instance. Registrations
// are reusable, so callers cache them per instance in the credential store.
type OAuthApp struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// RegisterApp creates an OAuth application on the instance.
func RegisterApp(ctx context.Context, httpClient HTTPClient, server string) (*OAuthApp, error) {
	server = strings.TrimRight(server, "/")

	form := url.Values{}
	form.Set("client_name", oauthClientName)
	form.Set("redirect_uris", oauthRedirectOOB)
	form.Set("scopes", oauthScopes)
	form.Set("website", "https://github.com/roost-social/roost")

	req, err := http.NewRequest(http.MethodPost, server+"/api/v1/apps", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var app OAuthApp
	if err := doJSON(ctx, httpClient, newLimiter(), domain.NetworkMastodon, req, &app); err != nil {
		return nil, err
	}
	if app.ClientID == "" || app.ClientSecret == "" {
		return nil, domain.NewFailure(domain.FailProtocol, "mastodon: app registration returned no credentials")
	}

	return &app, nil
}

// AuthorizeURL is the browser URL where the user grants access and receives
// the out-of-band code to paste back.
func (a *OAuthApp) AuthorizeURL(server string) string {
	server = strings.TrimRight(server, "/")

	q := url.Values{}
	q.Set("client_id", a.ClientID)
	q.Set("redirect_uri", oauthRedirectOOB)
	q.Set("response_type", "code")
	q.Set("scope", oauthScopes)

	return server + "/oauth/authorize?" + q.Encode()
}

// ExchangeCode trades the pasted authorization code for an access token.
func (a *OAuthApp) ExchangeCode(ctx context.Context, httpClient HTTPClient, server, code string) (string, error) {
	server = strings.TrimRight(server, "/")

	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	form.Set("redirect_uri", oauthRedirectOOB)
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))
	form.Set("scope", oauthScopes)

	req, err := http.NewRequest(http.MethodPost, server+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload struct {
		AccessToken string `json:"access_token"`
		CreatedAt   int64  `json:"created_at"`
	}
	if err := doJSON(ctx, httpClient, newLimiter(), domain.NetworkMastodon, req, &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", domain.NewFailure(domain.FailProtocol, "mastodon: token exchange returned no token")
	}

	return payload.AccessToken, nil
}

// DefaultHTTPClient is the transport used outside tests.
func DefaultHTTPClient() HTTPClient {
	return &http.Client{Timeout: 30 * time.Second}
}
