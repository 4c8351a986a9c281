package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Visibility is the Mastodon-native audience level of a post. Bluesky
// has no equivalent and normalizes everything to public.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// ParseVisibility parses a visibility level, defaulting to public.
func ParseVisibility(s string) Visibility {
	switch s {
	case string(VisibilityUnlisted):
		return VisibilityUnlisted
	case string(VisibilityPrivate):
		return VisibilityPrivate
	case string(VisibilityDirect):
		return VisibilityDirect
	default:
		return VisibilityPublic
	}
}

// MediaType classifies a media attachment.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaGifv    MediaType = "gifv"
	MediaAudio   MediaType = "audio"
	MediaUnknown MediaType = "unknown"
)

// MediaAttachment is one attachment on a post.
type MediaAttachment struct {
	URL        string    `json:"url"`
	PreviewURL string    `json:"preview_url,omitempty"`
	Type       MediaType `json:"type"`
	AltText    string    `json:"alt_text,omitempty"`
}

// Post is a network-agnostic view of one remote item. Adapters build
// these when deserializing remote responses; the rest of the system
// treats them as read-only.
type Post struct {
	Id             uuid.UUID
	NetworkId      string // id on the originating network
	Network        Network
	AuthorHandle   string
	AuthorName     string
	AuthorAvatar   string
	Content        string
	ContentWarning string
	Visibility     Visibility
	CreatedAt      time.Time
	URL            string
	IsRepost       bool
	RepostAuthor   string
	LikeCount      int
	BoostCount     int
	ReplyCount     int
	Liked          bool
	Boosted        bool
	ReplyToId      string
	Media          []MediaAttachment
	// AT-proto record identity, needed to like/repost on Bluesky.
	Cid string
	Uri string
}

// Ref returns the post's network-local reference for engagement calls.
func (p *Post) Ref() PostRef {
	return PostRef{
		Network:   p.Network,
		NetworkId: p.NetworkId,
		Uri:       p.Uri,
		Cid:       p.Cid,
	}
}

// RelativeTime renders the post age for display ("3h", "2d").
func (p *Post) RelativeTime() string {
	d := time.Since(p.CreatedAt)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// PostRef identifies a remote post for like/boost/reply operations.
type PostRef struct {
	Network   Network
	NetworkId string
	Uri       string // Bluesky record URI
	Cid       string // Bluesky record CID
}
