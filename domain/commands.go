package domain

import "github.com/google/uuid"

// Token correlates a Command with its Result(s).
type Token = uuid.UUID

// NewToken returns a fresh correlation token.
func NewToken() Token {
	return uuid.New()
}

// CommandKind discriminates the closed set of Command variants.
type CommandKind string

const (
	CmdFetchTimeline CommandKind = "fetch_timeline"
	CmdPost          CommandKind = "post"
	CmdReply         CommandKind = "reply"
	CmdLike          CommandKind = "like"
	CmdUnlike        CommandKind = "unlike"
	CmdBoost         CommandKind = "boost"
	CmdUnboost       CommandKind = "unboost"
)

// Command is one capability request submitted to the dispatch bus.
// Commands are immutable after creation and consumed exactly once by a
// worker. Only the fields of the matching variant are set.
type Command struct {
	Token Token
	Kind  CommandKind

	// FetchTimeline
	NetworkFilter Network // empty = all configured networks
	Limit         int
	// Cursors resumes paging per network; nil fetches the newest page.
	Cursors map[Network]string

	// Post / Reply
	Targets        []Network
	Body           string
	ContentWarning string
	Visibility     Visibility
	Media          []MediaAttachment

	// Reply / Like / Unlike / Boost / Unboost
	Target PostRef
}

// ResultKind discriminates success payloads.
type ResultKind string

const (
	ResTimeline ResultKind = "timeline"
	ResPosted   ResultKind = "posted"
	ResAck      ResultKind = "ack"
	ResFailure  ResultKind = "failure"
)

// Result is the outcome of a Command, tagged with the submitting
// correlation token. A fan-out Post command produces one Result per
// target network; every other command produces exactly one.
type Result struct {
	Token   Token
	Kind    ResultKind
	Network Network
	// Posts and Cursors are set for timeline results; Cursors holds the
	// per-network resume point for the next older page.
	Posts   []Post
	Cursors map[Network]string
	// Created is set when a post or reply was created.
	Created *Post
	// Failure is set for failure results.
	Failure *Failure
}

// Ok reports whether the result is a success.
func (r *Result) Ok() bool {
	return r.Kind != ResFailure
}
