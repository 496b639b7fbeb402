package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"ourmate-bot/internal/models"
)

//go:embed schema.sql
var ddl embed.FS

const (
	KeyGreetingLedger  = "greeting_ledger"
	KeyOptInSnapshot   = "optin_snapshot"
	KeyPinnedMessageID = "pinned_message_id"
)

type DB struct{ *sql.DB }

func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{db}, nil
}

func migrate(db *sql.DB) error {
	b, err := ddl.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}

// ---------- roster ----------------------------------------------------------

// ReplaceRoster swaps the whole roster table in one transaction.
func (d *DB) ReplaceRoster(records []models.Record) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM roster`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
        INSERT INTO roster (pos, user_id, name, last_name, birthday, status, username, interacted)
        VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		var uid sql.NullInt64
		if r.UserID != nil {
			uid = sql.NullInt64{Int64: *r.UserID, Valid: true}
		}
		if _, err := stmt.Exec(i, uid, r.Name, r.LastName, r.Birthday, r.Status, r.Username, r.Interacted); err != nil {
			return fmt.Errorf("insert %s: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

func (d *DB) LoadRoster() ([]models.Record, error) {
	rows, err := d.Query(`
        SELECT user_id, name, last_name, birthday, status, username, interacted
        FROM roster ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.Record
	for rows.Next() {
		var (
			r   models.Record
			uid sql.NullInt64
		)
		if err := rows.Scan(&uid, &r.Name, &r.LastName, &r.Birthday, &r.Status, &r.Username, &r.Interacted); err != nil {
			return nil, err
		}
		if uid.Valid {
			id := uid.Int64
			r.UserID = &id
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (d *DB) RosterSize() (int, error) {
	var n int
	err := d.QueryRow(`SELECT COUNT(*) FROM roster`).Scan(&n)
	return n, err
}

// ---------- kv --------------------------------------------------------------

// Get returns the value under key; ok is false when the key is absent.
func (d *DB) Get(key string) (string, bool, error) {
	v, _, ok, err := d.GetAt(key)
	return v, ok, err
}

// GetAt is Get plus the time the value was written.
func (d *DB) GetAt(key string) (value string, at time.Time, ok bool, err error) {
	var unix int64
	err = d.QueryRow(`SELECT value, updated_at FROM kv WHERE key=?`, key).Scan(&value, &unix)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	return value, time.Unix(unix, 0), true, nil
}

func (d *DB) Set(key, value string) error { return d.SetAt(key, value, time.Now()) }

// SetAt stores value with an explicit write time.
func (d *DB) SetAt(key, value string, at time.Time) error {
	_, err := d.Exec(`
        INSERT INTO kv (key, value, updated_at) VALUES (?,?,?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
    `, key, value, at.Unix())
	return err
}

func (d *DB) Delete(key string) error {
	_, err := d.Exec(`DELETE FROM kv WHERE key=?`, key)
	return err
}

// Ledger is the "D.M" of the last day a greeting batch went out and when it
// was recorded. The zero time means no ledger.
func (d *DB) Ledger() (string, time.Time, error) {
	v, at, _, err := d.GetAt(KeyGreetingLedger)
	return v, at, err
}

func (d *DB) SetLedger(dm string, at time.Time) error { return d.SetAt(KeyGreetingLedger, dm, at) }

// PinnedMessageID returns the pinned summary pointer, 0 when none.
func (d *DB) PinnedMessageID() (int, error) {
	v, ok, err := d.Get(KeyPinnedMessageID)
	if err != nil || !ok {
		return 0, err
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("pinned message id %q: %w", v, err)
	}
	return id, nil
}

func (d *DB) SetPinnedMessageID(id int) error {
	return d.Set(KeyPinnedMessageID, strconv.Itoa(id))
}

func (d *DB) ClearPinnedMessageID() error { return d.Delete(KeyPinnedMessageID) }

func (d *DB) OptInSnapshot() ([]models.OptInMember, error) {
	v, ok, err := d.Get(KeyOptInSnapshot)
	if err != nil || !ok {
		return nil, err
	}
	var res []models.OptInMember
	if err := json.Unmarshal([]byte(v), &res); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return res, nil
}

func (d *DB) SetOptInSnapshot(members []models.OptInMember) error {
	if members == nil {
		members = []models.OptInMember{}
	}
	b, err := json.Marshal(members)
	if err != nil {
		return err
	}
	return d.Set(KeyOptInSnapshot, string(b))
}
