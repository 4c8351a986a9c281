package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roost-social/roost/domain"
)

func (d *Database) CreateDraft(dr domain.Draft) error {
	_, err := d.db.Exec(`INSERT INTO drafts
		(id, body, content_warning, networks, reply_to_id, reply_to_network, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dr.Id.String(), dr.Body, dr.ContentWarning, domain.NetworksToString(dr.Networks),
		dr.ReplyToId, string(dr.ReplyToNetwork), dr.CreatedAt.UTC(), dr.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating draft: %w", err)
	}

	return nil
}

func (d *Database) UpdateDraft(dr domain.Draft) error {
	_, err := d.db.Exec(`UPDATE drafts SET body = ?, content_warning = ?, networks = ?, updated_at = ?
		WHERE id = ?`,
		dr.Body, dr.ContentWarning, domain.NetworksToString(dr.Networks),
		time.Now().UTC(), dr.Id.String())
	return err
}

const sqlSelectDraft = `SELECT id, body, content_warning, networks,
	reply_to_id, reply_to_network, created_at, updated_at FROM drafts`

func (d *Database) ReadDraft(id uuid.UUID) (error, *domain.Draft) {
	row := d.db.QueryRow(sqlSelectDraft+` WHERE id = ?`, id.String())

	dr, err := scanDraft(row)
	if err != nil {
		return err, nil
	}

	return nil, dr
}

func (d *Database) ReadAllDrafts() (error, []domain.Draft) {
	rows, err := d.db.Query(sqlSelectDraft + ` ORDER BY updated_at DESC`)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var drafts []domain.Draft
	for rows.Next() {
		dr, err := scanDraft(rows)
		if err != nil {
			return err, nil
		}
		drafts = append(drafts, *dr)
	}

	return rows.Err(), drafts
}

func (d *Database) DeleteDraft(id uuid.UUID) error {
	_, err := d.db.Exec(`DELETE FROM drafts WHERE id = ?`, id.String())
	return err
}

func scanDraft(row rowScanner) (*domain.Draft, error) {
	var dr domain.Draft
	var id, networks, replyNetwork string

	err := row.Scan(&id, &dr.Body, &dr.ContentWarning, &networks,
		&dr.ReplyToId, &replyNetwork, &dr.CreatedAt, &dr.UpdatedAt)
	if err != nil {
		return nil, err
	}

	dr.Id, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	dr.Networks = domain.NetworksFromString(networks)
	dr.ReplyToNetwork = domain.Network(replyNetwork)

	return &dr, nil
}
