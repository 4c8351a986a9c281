package db

import (
	"database/sql"
	"sync"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/roost-social/roost/util"
)

const sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY NOT NULL,
	network TEXT NOT NULL,
	handle TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	server TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	avatar_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	last_used_at TIMESTAMP,
	UNIQUE(network, handle, server)
);`

const sqlCreateScheduledPostsTable = `CREATE TABLE IF NOT EXISTS scheduled_posts (
	id TEXT PRIMARY KEY NOT NULL,
	body TEXT NOT NULL,
	content_warning TEXT NOT NULL DEFAULT '',
	networks TEXT NOT NULL,
	media TEXT NOT NULL DEFAULT '',
	scheduled_for TIMESTAMP NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	claimed_at TIMESTAMP
);`

const sqlCreateScheduledDueIndex = `CREATE INDEX IF NOT EXISTS idx_scheduled_due
	ON scheduled_posts (status, scheduled_for);`

const sqlCreateDraftsTable = `CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY NOT NULL,
	body TEXT NOT NULL,
	content_warning TEXT NOT NULL DEFAULT '',
	networks TEXT NOT NULL DEFAULT '',
	reply_to_id TEXT NOT NULL DEFAULT '',
	reply_to_network TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

const sqlCreatePostCacheTable = `CREATE TABLE IF NOT EXISTS post_cache (
	network TEXT NOT NULL,
	network_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (network, network_id)
);`

type Database struct {
	db *sql.DB
}

var instance *Database
var once sync.Once

// GetDB returns the shared database handle, opening it on first use.
func GetDB() *Database {
	once.Do(func() {
		path, err := util.DatabasePath()
		if err != nil {
			log.Fatal("Could not resolve database path", "err", err)
		}

		instance, err = Open(path)
		if err != nil {
			log.Fatal("Could not open database", "path", path, "err", err)
		}
	})
	return instance
}

// Open opens (or creates) the sqlite database at path and applies the schema.
func Open(path string) (*Database, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Scheduler daemon and interactive session may share the file.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, err
	}

	d := &Database{db: conn}
	if err := d.createTables(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Database) createTables() error {
	stmts := []string{
		sqlCreateAccountsTable,
		sqlCreateScheduledPostsTable,
		sqlCreateScheduledDueIndex,
		sqlCreateDraftsTable,
		sqlCreatePostCacheTable,
	}

	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
