package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus is the lifecycle state of a scheduled post.
//
// Pending is the only non-terminal state. Posting marks a claimed post
// during a dispatch attempt; a crash mid-attempt leaves it there until
// the operator resubmits. PartiallyFailed may be resubmitted back to
// Pending with the attempt count preserved.
type ScheduleStatus string

const (
	StatusPending         ScheduleStatus = "pending"
	StatusPosting         ScheduleStatus = "posting"
	StatusSent            ScheduleStatus = "sent"
	StatusPartiallyFailed ScheduleStatus = "partially_failed"
	StatusFailed          ScheduleStatus = "failed"
	StatusCancelled       ScheduleStatus = "cancelled"
)

// ParseScheduleStatus parses a stored status string.
func ParseScheduleStatus(s string) (ScheduleStatus, bool) {
	switch ScheduleStatus(s) {
	case StatusPending, StatusPosting, StatusSent,
		StatusPartiallyFailed, StatusFailed, StatusCancelled:
		return ScheduleStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether the status permits no further automatic
// transitions.
func (s ScheduleStatus) Terminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusCancelled, StatusPartiallyFailed:
		return true
	default:
		return false
	}
}

// ScheduledPost is a durable record of a post to deliver in the future.
type ScheduledPost struct {
	Id             uuid.UUID
	Body           string
	ContentWarning string
	Networks       []Network
	Media          []MediaAttachment
	ScheduledFor   time.Time // stored normalized to UTC
	Status         ScheduleStatus
	Attempts       int
	LastError      string
	CreatedAt      time.Time
}

// NewScheduledPost creates a pending scheduled post.
func NewScheduledPost(body, cw string, networks []Network, at time.Time) *ScheduledPost {
	return &ScheduledPost{
		Id:             uuid.New(),
		Body:           body,
		ContentWarning: cw,
		Networks:       networks,
		ScheduledFor:   at.UTC(),
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// Due reports whether the post is pending and its scheduled instant has
// passed.
func (p *ScheduledPost) Due(now time.Time) bool {
	return p.Status == StatusPending && !p.ScheduledFor.After(now)
}

// TimeUntil renders the remaining wait for display ("2h 5m", "now").
func (p *ScheduledPost) TimeUntil(now time.Time) string {
	if !p.ScheduledFor.After(now) {
		return "now"
	}
	d := p.ScheduledFor.Sub(now)
	seconds := int(d.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	case seconds < 86400:
		h, m := seconds/3600, (seconds%3600)/60
		if m > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	default:
		days, h := seconds/86400, (seconds%86400)/3600
		if h > 0 {
			return fmt.Sprintf("%dd %dh", days, h)
		}
		return fmt.Sprintf("%dd", days)
	}
}

// Draft is a saved, unsent compose buffer.
type Draft struct {
	Id             uuid.UUID
	Body           string
	ContentWarning string
	Networks       []Network
	ReplyToId      string
	ReplyToNetwork Network
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewDraft creates a draft from the compose state.
func NewDraft(body, cw string, networks []Network) *Draft {
	now := time.Now().UTC()
	return &Draft{
		Id:             uuid.New(),
		Body:           body,
		ContentWarning: cw,
		Networks:       networks,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
