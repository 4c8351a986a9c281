// Package scheduler delivers posts at a chosen future instant. Queue state
// lives in sqlite so schedules survive restarts; the atomic claim in the
// database layer keeps an interactive session and a daemon from double
// posting.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/roost-social/roost/api"
	"github.com/roost-social/roost/domain"
)

// Queue is the durable store behind the scheduler. *db.Database satisfies it.
type Queue interface {
	CreateScheduledPost(p domain.ScheduledPost) error
	ReadScheduledPost(id uuid.UUID) (error, *domain.ScheduledPost)
	ReadAllScheduledPosts() (error, []domain.ScheduledPost)
	ReadPendingScheduledPosts() (error, []domain.ScheduledPost)
	ClaimDuePosts(now time.Time) (error, []domain.ScheduledPost)
	FinishScheduledPost(id uuid.UUID, status domain.ScheduleStatus, lastError string) error
	CancelScheduledPost(id uuid.UUID) error
	ResubmitScheduledPost(id uuid.UUID, at time.Time) error
	RecoverStalePosting(claimedBefore time.Time) error
	DeleteScheduledPost(id uuid.UUID) error
}

// Poster fans a draft out to target networks. *api.ClientSet satisfies it.
type Poster interface {
	CrossPost(ctx context.Context, networks []domain.Network, draft api.PostDraft) []api.PostOutcome
}

type Scheduler struct {
	queue    Queue
	poster   Poster
	maxChars int
	now      func() time.Time
}

func New(queue Queue, poster Poster, maxChars int) *Scheduler {
	return &Scheduler{
		queue:    queue,
		poster:   poster,
		maxChars: maxChars,
		now:      time.Now,
	}
}

// Schedule validates the draft, parses the schedule expression and enqueues
// a pending post.
func (s *Scheduler) Schedule(body, cw string, networks []domain.Network, whenExpr string) (*domain.ScheduledPost, error) {
	draft := api.PostDraft{Body: body, ContentWarning: cw}
	if err := draft.Validate(s.maxChars); err != nil {
		return nil, err
	}
	if len(networks) == 0 {
		return nil, domain.NewFailure(domain.FailValidation, "no target networks")
	}

	when, err := ParseWhen(whenExpr, s.now())
	if err != nil {
		return nil, err
	}

	post := domain.NewScheduledPost(body, cw, networks, when)
	if err := s.queue.CreateScheduledPost(*post); err != nil {
		return nil, domain.WrapFailure(domain.FailInternal, err, "enqueueing scheduled post")
	}

	return post, nil
}

// List returns every scheduled post, pending first by fire time.
func (s *Scheduler) List() ([]domain.ScheduledPost, error) {
	err, posts := s.queue.ReadAllScheduledPosts()
	if err != nil {
		return nil, domain.WrapFailure(domain.FailInternal, err, "reading schedule queue")
	}
	return posts, nil
}

// ListPending returns only posts still waiting to fire, earliest first.
func (s *Scheduler) ListPending() ([]domain.ScheduledPost, error) {
	err, posts := s.queue.ReadPendingScheduledPosts()
	if err != nil {
		return nil, domain.WrapFailure(domain.FailInternal, err, "reading schedule queue")
	}
	return posts, nil
}

// Cancel withdraws a pending post. Posts already claimed or finished yield
// a conflict failure.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	err := s.queue.CancelScheduledPost(id)
	if errors.Is(err, sql.ErrNoRows) {
		err2, post := s.queue.ReadScheduledPost(id)
		if errors.Is(err2, sql.ErrNoRows) {
			return domain.NewFailure(domain.FailNotFound, "no scheduled post %s", id)
		}
		if err2 != nil {
			return domain.WrapFailure(domain.FailInternal, err2, "reading scheduled post")
		}
		return domain.NewFailure(domain.FailConflict,
			"scheduled post is %s and can no longer be cancelled", post.Status)
	}
	if err != nil {
		return domain.WrapFailure(domain.FailInternal, err, "cancelling scheduled post")
	}

	return nil
}

// Resubmit returns a failed or partially failed post to the queue at a new
// time. The attempt count carries over.
func (s *Scheduler) Resubmit(id uuid.UUID, whenExpr string) (*domain.ScheduledPost, error) {
	when, err := ParseWhen(whenExpr, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.queue.ResubmitScheduledPost(id, when); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewFailure(domain.FailConflict,
				"scheduled post %s is not in a resubmittable state", id)
		}
		return nil, domain.WrapFailure(domain.FailInternal, err, "resubmitting scheduled post")
	}

	err, post := s.queue.ReadScheduledPost(id)
	if err != nil {
		return nil, domain.WrapFailure(domain.FailInternal, err, "reading scheduled post")
	}

	return post, nil
}

// Remove deletes a scheduled post outright. A post currently being delivered
// cannot be removed.
func (s *Scheduler) Remove(id uuid.UUID) error {
	err, post := s.queue.ReadScheduledPost(id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewFailure(domain.FailNotFound, "no scheduled post %s", id)
	}
	if err != nil {
		return domain.WrapFailure(domain.FailInternal, err, "reading scheduled post")
	}
	if post.Status == domain.StatusPosting {
		return domain.NewFailure(domain.FailConflict, "scheduled post is mid-delivery")
	}

	if err := s.queue.DeleteScheduledPost(id); err != nil {
		return domain.WrapFailure(domain.FailInternal, err, "removing scheduled post")
	}
	return nil
}

// ClaimDue atomically claims every due post. Callers that dispatch through
// the bus record the per-network results with RecordResults; RunOnce does
// both in one pass.
func (s *Scheduler) ClaimDue() ([]domain.ScheduledPost, error) {
	err, due := s.queue.ClaimDuePosts(s.now())
	if err != nil {
		return nil, domain.WrapFailure(domain.FailInternal, err, "claiming due posts")
	}
	return due, nil
}

// RunOnce claims every due post and delivers each one, recording the final
// status. It returns the number of posts processed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.ClaimDue()
	if err != nil {
		return 0, err
	}

	for i := range due {
		s.deliver(ctx, &due[i])
	}

	return len(due), nil
}

// deliver fans one claimed post out and maps the per-network outcomes onto
// the schedule status.
func (s *Scheduler) deliver(ctx context.Context, post *domain.ScheduledPost) {
	draft := api.PostDraft{Body: post.Body, ContentWarning: post.ContentWarning}

	outcomes := s.poster.CrossPost(ctx, post.Networks, draft)

	var failures []string
	succeeded := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, o.Network.Name()+": "+o.Err.Error())
			continue
		}
		succeeded++
	}

	s.record(post, succeeded, failures)
}

// RecordResults maps the drained bus results for a claimed post onto its
// final status. Interactive sessions dispatch claimed posts as fan-out
// commands and call this once every per-network result is in.
func (s *Scheduler) RecordResults(id uuid.UUID, results []domain.Result) error {
	err, post := s.queue.ReadScheduledPost(id)
	if err != nil {
		return domain.WrapFailure(domain.FailInternal, err, "reading scheduled post")
	}

	var failures []string
	succeeded := 0
	for i := range results {
		r := &results[i]
		if r.Ok() {
			succeeded++
			continue
		}
		msg := "command failed"
		if r.Failure != nil {
			msg = r.Failure.Error()
		}
		failures = append(failures, r.Network.Name()+": "+msg)
	}

	s.record(post, succeeded, failures)
	return nil
}

// record maps success counts onto the status machine: all succeeded is sent,
// none is failed, anything in between is partially failed.
func (s *Scheduler) record(post *domain.ScheduledPost, succeeded int, failures []string) {
	status := domain.StatusSent
	switch {
	case succeeded == 0:
		status = domain.StatusFailed
	case len(failures) > 0:
		status = domain.StatusPartiallyFailed
	}

	lastError := strings.Join(failures, "; ")
	if err := s.queue.FinishScheduledPost(post.Id, status, lastError); err != nil {
		log.Error("Could not record schedule outcome", "id", post.Id, "status", status, "err", err)
		return
	}

	if status == domain.StatusSent {
		log.Info("Delivered scheduled post", "id", post.Id, "networks", domain.NetworksToString(post.Networks))
	} else {
		log.Warn("Scheduled post did not fully deliver", "id", post.Id, "status", status, "err", lastError)
	}
}

// staleClaimGrace is how long a posting claim may stand before recovery
// treats its owner as crashed. Several poll intervals, so a live daemon's
// in-flight delivery is never stolen by a concurrent `schedule run`.
const staleClaimGrace = 5 * time.Minute

// RecoverStale returns posts stuck mid-delivery by a crashed process to the
// pending queue. Call once at startup.
func (s *Scheduler) RecoverStale() error {
	return s.queue.RecoverStalePosting(s.now().Add(-staleClaimGrace))
}
