package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roost-social/roost/domain"
)

func (d *Database) CreateScheduledPost(p domain.ScheduledPost) error {
	media, err := marshalMedia(p.Media)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`INSERT INTO scheduled_posts
		(id, body, content_warning, networks, media, scheduled_for, status, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Id.String(), p.Body, p.ContentWarning, domain.NetworksToString(p.Networks),
		media, p.ScheduledFor.UTC(), string(p.Status), p.Attempts, p.LastError, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating scheduled post: %w", err)
	}

	return nil
}

func (d *Database) ReadScheduledPost(id uuid.UUID) (error, *domain.ScheduledPost) {
	row := d.db.QueryRow(sqlSelectScheduled+` WHERE id = ?`, id.String())

	p, err := scanScheduledPost(row)
	if err != nil {
		return err, nil
	}

	return nil, p
}

func (d *Database) ReadAllScheduledPosts() (error, []domain.ScheduledPost) {
	rows, err := d.db.Query(sqlSelectScheduled + ` ORDER BY scheduled_for`)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	return collectScheduled(rows)
}

func (d *Database) ReadPendingScheduledPosts() (error, []domain.ScheduledPost) {
	rows, err := d.db.Query(sqlSelectScheduled+` WHERE status = ? ORDER BY scheduled_for`,
		string(domain.StatusPending))
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	return collectScheduled(rows)
}

const sqlSelectScheduled = `SELECT id, body, content_warning, networks, media,
	scheduled_for, status, attempts, last_error, created_at FROM scheduled_posts`

// ClaimDuePosts atomically flips every due pending post to posting and returns
// the claimed rows, earliest due first. Two processes scanning the same
// database cannot claim the same post twice.
func (d *Database) ClaimDuePosts(now time.Time) (error, []domain.ScheduledPost) {
	tx, err := d.db.Begin()
	if err != nil {
		return err, nil
	}
	defer tx.Rollback()

	rows, err := tx.Query(sqlSelectScheduled+` WHERE status = ? AND scheduled_for <= ?
		ORDER BY scheduled_for`,
		string(domain.StatusPending), now.UTC())
	if err != nil {
		return err, nil
	}

	err, claimed := collectScheduled(rows)
	rows.Close()
	if err != nil {
		return err, nil
	}

	for i := range claimed {
		res, err := tx.Exec(`UPDATE scheduled_posts SET status = ?, attempts = attempts + 1, claimed_at = ?
			WHERE id = ? AND status = ?`,
			string(domain.StatusPosting), now.UTC(), claimed[i].Id.String(), string(domain.StatusPending))
		if err != nil {
			return err, nil
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err, nil
		}
		if n == 0 {
			return fmt.Errorf("scheduled post %s claimed elsewhere", claimed[i].Id), nil
		}

		claimed[i].Status = domain.StatusPosting
		claimed[i].Attempts++
	}

	if err := tx.Commit(); err != nil {
		return err, nil
	}

	return nil, claimed
}

// FinishScheduledPost records the outcome of a claimed post. Only posts in the
// posting state are updated.
func (d *Database) FinishScheduledPost(id uuid.UUID, status domain.ScheduleStatus, lastError string) error {
	res, err := d.db.Exec(`UPDATE scheduled_posts SET status = ?, last_error = ?
		WHERE id = ? AND status = ?`,
		string(status), lastError, id.String(), string(domain.StatusPosting))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("scheduled post %s not in posting state", id)
	}

	return nil
}

// CancelScheduledPost cancels a pending post. Posts already claimed or in a
// terminal state are not touched and the caller gets sql.ErrNoRows.
func (d *Database) CancelScheduledPost(id uuid.UUID) error {
	res, err := d.db.Exec(`UPDATE scheduled_posts SET status = ? WHERE id = ? AND status = ?`,
		string(domain.StatusCancelled), id.String(), string(domain.StatusPending))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// ResubmitScheduledPost returns a partially failed or failed post to the
// pending queue with a new fire time. Attempt count is preserved.
func (d *Database) ResubmitScheduledPost(id uuid.UUID, at time.Time) error {
	res, err := d.db.Exec(`UPDATE scheduled_posts SET status = ?, scheduled_for = ?, last_error = ''
		WHERE id = ? AND status IN (?, ?)`,
		string(domain.StatusPending), at.UTC(), id.String(),
		string(domain.StatusPartiallyFailed), string(domain.StatusFailed))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// RecoverStalePosting returns posts stuck in the posting state (a crashed
// process mid-dispatch) back to pending so the next scan picks them up. Only
// posts claimed before the cutoff are touched, so a post another live process
// claimed moments ago is left alone.
func (d *Database) RecoverStalePosting(claimedBefore time.Time) error {
	_, err := d.db.Exec(`UPDATE scheduled_posts SET status = ?
		WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?`,
		string(domain.StatusPending), string(domain.StatusPosting), claimedBefore.UTC())
	return err
}

func (d *Database) DeleteScheduledPost(id uuid.UUID) error {
	_, err := d.db.Exec(`DELETE FROM scheduled_posts WHERE id = ?`, id.String())
	return err
}

func collectScheduled(rows *sql.Rows) (error, []domain.ScheduledPost) {
	var posts []domain.ScheduledPost
	for rows.Next() {
		p, err := scanScheduledPost(rows)
		if err != nil {
			return err, nil
		}
		posts = append(posts, *p)
	}

	return rows.Err(), posts
}

func scanScheduledPost(row rowScanner) (*domain.ScheduledPost, error) {
	var p domain.ScheduledPost
	var id, networks, media, status string

	err := row.Scan(&id, &p.Body, &p.ContentWarning, &networks, &media,
		&p.ScheduledFor, &status, &p.Attempts, &p.LastError, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	p.Id, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	p.Networks = domain.NetworksFromString(networks)
	p.Status = domain.ScheduleStatus(status)
	p.ScheduledFor = p.ScheduledFor.UTC()

	if media != "" {
		if err := json.Unmarshal([]byte(media), &p.Media); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

func marshalMedia(media []domain.MediaAttachment) (string, error) {
	if len(media) == 0 {
		return "", nil
	}

	buf, err := json.Marshal(media)
	if err != nil {
		return "", err
	}

	return string(buf), nil
}
