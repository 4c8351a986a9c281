package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roost-social/roost/domain"
)

func (d *Database) CreateAccount(a domain.Account) error {
	_, err := d.db.Exec(`INSERT INTO accounts
		(id, network, handle, display_name, server, is_default, avatar_url, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Id.String(), string(a.Network), a.Handle, a.DisplayName, a.Server,
		boolToInt(a.IsDefault), a.AvatarURL, a.CreatedAt, a.LastUsedAt)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	if a.IsDefault {
		return d.SetDefaultAccount(a.Id, a.Network)
	}

	return nil
}

func (d *Database) ReadAccount(id uuid.UUID) (error, *domain.Account) {
	row := d.db.QueryRow(`SELECT id, network, handle, display_name, server, is_default, avatar_url, created_at, last_used_at
		FROM accounts WHERE id = ?`, id.String())

	a, err := scanAccount(row)
	if err != nil {
		return err, nil
	}

	return nil, a
}

func (d *Database) ReadAllAccounts() (error, []domain.Account) {
	rows, err := d.db.Query(`SELECT id, network, handle, display_name, server, is_default, avatar_url, created_at, last_used_at
		FROM accounts ORDER BY network, handle`)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return err, nil
		}
		accounts = append(accounts, *a)
	}

	return rows.Err(), accounts
}

func (d *Database) ReadAccountsByNetwork(n domain.Network) (error, []domain.Account) {
	rows, err := d.db.Query(`SELECT id, network, handle, display_name, server, is_default, avatar_url, created_at, last_used_at
		FROM accounts WHERE network = ? ORDER BY handle`, string(n))
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return err, nil
		}
		accounts = append(accounts, *a)
	}

	return rows.Err(), accounts
}

// ReadDefaultAccount returns the default account for a network, falling back
// to the only account when exactly one exists.
func (d *Database) ReadDefaultAccount(n domain.Network) (error, *domain.Account) {
	row := d.db.QueryRow(`SELECT id, network, handle, display_name, server, is_default, avatar_url, created_at, last_used_at
		FROM accounts WHERE network = ? AND is_default = 1`, string(n))

	a, err := scanAccount(row)
	if err == nil {
		return nil, a
	}
	if err != sql.ErrNoRows {
		return err, nil
	}

	err, accounts := d.ReadAccountsByNetwork(n)
	if err != nil {
		return err, nil
	}
	if len(accounts) == 1 {
		return nil, &accounts[0]
	}

	return sql.ErrNoRows, nil
}

// SetDefaultAccount marks one account as the network default, clearing any other.
func (d *Database) SetDefaultAccount(id uuid.UUID, n domain.Network) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE accounts SET is_default = 0 WHERE network = ?`, string(n)); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE accounts SET is_default = 1 WHERE id = ?`, id.String()); err != nil {
		return err
	}

	return tx.Commit()
}

func (d *Database) TouchAccount(id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := d.db.Exec(`UPDATE accounts SET last_used_at = ? WHERE id = ?`, now, id.String())
	return err
}

func (d *Database) DeleteAccount(id uuid.UUID) error {
	_, err := d.db.Exec(`DELETE FROM accounts WHERE id = ?`, id.String())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var id, network string
	var isDefault int
	var lastUsed sql.NullTime

	err := row.Scan(&id, &network, &a.Handle, &a.DisplayName, &a.Server,
		&isDefault, &a.AvatarURL, &a.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}

	a.Id, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	a.Network = domain.Network(network)
	a.IsDefault = isDefault == 1
	if lastUsed.Valid {
		t := lastUsed.Time
		a.LastUsedAt = &t
	}

	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
