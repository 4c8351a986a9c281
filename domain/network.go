package domain

import "strings"

// Network identifies one of the supported social networks.
type Network string

const (
	NetworkMastodon Network = "mastodon"
	NetworkBluesky  Network = "bluesky"
)

// AllNetworks returns every supported network.
func AllNetworks() []Network {
	return []Network{NetworkMastodon, NetworkBluesky}
}

// ParseNetwork parses a user-supplied network name. Returns false for
// anything that is not a supported network.
func ParseNetwork(s string) (Network, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mastodon", "masto":
		return NetworkMastodon, true
	case "bluesky", "bsky":
		return NetworkBluesky, true
	default:
		return "", false
	}
}

// Name returns the display name of the network.
func (n Network) Name() string {
	switch n {
	case NetworkMastodon:
		return "Mastodon"
	case NetworkBluesky:
		return "Bluesky"
	default:
		return string(n)
	}
}

// Valid reports whether n is one of the supported networks.
func (n Network) Valid() bool {
	return n == NetworkMastodon || n == NetworkBluesky
}

// NetworksToString serializes a network set as a comma-separated list,
// the form it is stored in.
func NetworksToString(networks []Network) string {
	parts := make([]string, 0, len(networks))
	for _, n := range networks {
		parts = append(parts, string(n))
	}
	return strings.Join(parts, ",")
}

// NetworksFromString parses a comma-separated network list, dropping
// anything unrecognized.
func NetworksFromString(s string) []Network {
	var networks []Network
	for _, part := range strings.Split(s, ",") {
		if n, ok := ParseNetwork(part); ok {
			networks = append(networks, n)
		}
	}
	return networks
}
