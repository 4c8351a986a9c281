package db

import (
	"encoding/json"
	"time"

	"github.com/roost-social/roost/domain"
)

// CachePosts upserts timeline posts so the last fetched view survives restarts
// and offline launches.
func (d *Database) CachePosts(posts []domain.Post) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, p := range posts {
		payload, err := json.Marshal(p)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`INSERT INTO post_cache (network, network_id, payload, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(network, network_id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
			string(p.Network), p.NetworkId, string(payload), now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *Database) ReadCachedPosts(limit int) (error, []domain.Post) {
	rows, err := d.db.Query(`SELECT payload FROM post_cache ORDER BY fetched_at DESC LIMIT ?`, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return err, nil
		}

		var p domain.Post
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return err, nil
		}

		posts = append(posts, p)
	}

	return rows.Err(), posts
}

// PruneCache drops cached posts fetched before the cutoff.
func (d *Database) PruneCache(olderThan time.Time) error {
	_, err := d.db.Exec(`DELETE FROM post_cache WHERE fetched_at < ?`, olderThan.UTC())
	return err
}
