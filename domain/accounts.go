package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is one authenticated identity on one network. The raw secret
// never lives here; it is resolved through the auth store by id.
type Account struct {
	Id          uuid.UUID
	Network     Network
	Handle      string
	DisplayName string
	// Server is the Mastodon instance URL or the Bluesky PDS URL.
	Server     string
	IsDefault  bool
	AvatarURL  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// NewAccount creates an account record for a freshly authenticated identity.
func NewAccount(network Network, handle, displayName, server string) *Account {
	return &Account{
		Id:          uuid.New(),
		Network:     network,
		Handle:      handle,
		DisplayName: displayName,
		Server:      server,
		CreatedAt:   time.Now().UTC(),
	}
}

// CredentialKey is the key the account's secret is stored under.
func (a *Account) CredentialKey() string {
	return fmt.Sprintf("%s:%s", a.Network, a.Id)
}

func (a *Account) ToString() string {
	return fmt.Sprintf("@%s (%s, %s)", a.Handle, a.Network.Name(), a.Server)
}
