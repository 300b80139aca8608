// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package state persists the rules the agent has pushed to the kernel, so
// a restarted daemon can reconcile the kernel against what it last
// installed.
package state

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/nlm"
	"grimm.is/usbwall/internal/rule"
)

// ErrNotFound is returned by Get for an unknown rule.
var ErrNotFound = errors.New(errors.KindNotFound, "rule not stored")

// Record is a stored rule with its last update time.
type Record struct {
	Policy    rule.Policy
	UpdatedAt time.Time
}

// Store handles persistence of installed rules to SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the state database. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to open state db")
	}
	// A second connection to ":memory:" would see a different database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		kind INTEGER NOT NULL, -- payload type discriminant
		name TEXT NOT NULL,
		payload BLOB NOT NULL, -- wire encoding of the rule
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, name)
	);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to init state schema")
	}
	return nil
}

// Put inserts or replaces p.
func (s *Store) Put(p rule.Policy) error {
	kind, payload := nlm.EncodePayload(p)
	_, err := s.db.Exec(`
		INSERT INTO rules (kind, name, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, int32(kind), p.PolicyName(), payload, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to store rule %q", p.PolicyName())
	}
	return nil
}

// Delete removes the stored rule with p's kind and name. Deleting an
// unknown rule is not an error.
func (s *Store) Delete(p rule.Policy) error {
	_, err := s.db.Exec(`DELETE FROM rules WHERE kind = ? AND name = ?`,
		int32(nlm.TypeOf(p)), p.PolicyName())
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to delete rule %q", p.PolicyName())
	}
	return nil
}

// Get returns the stored rule of kind t named name.
func (s *Store) Get(t nlm.PayloadType, name string) (Record, error) {
	var payload []byte
	var ts int64
	err := s.db.QueryRow(`SELECT payload, updated_at FROM rules WHERE kind = ? AND name = ?`,
		int32(t), name).Scan(&payload, &ts)
	if err == sql.ErrNoRows {
		return Record{}, errors.Attr(ErrNotFound, "name", name)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, errors.KindInternal, "failed to read rule")
	}
	return decodeRecord(t, payload, ts)
}

// List returns every stored rule in insertion order.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(`SELECT kind, payload, updated_at FROM rules ORDER BY rowid`)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to list rules")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var kind int32
		var payload []byte
		var ts int64
		if err := rows.Scan(&kind, &payload, &ts); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to scan rule")
		}
		rec, err := decodeRecord(nlm.PayloadType(kind), payload, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Policies returns the stored rules without timestamps.
func (s *Store) Policies() ([]rule.Policy, error) {
	recs, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]rule.Policy, len(recs))
	for i, r := range recs {
		out[i] = r.Policy
	}
	return out, nil
}

// SetSetting records a named value such as the last default behavior.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to store setting %q", key)
	}
	return nil
}

// Setting returns the value stored under key, or ok=false.
func (s *Store) Setting(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, errors.KindInternal, "failed to read setting")
	}
	return value, true, nil
}

func decodeRecord(t nlm.PayloadType, payload []byte, ts int64) (Record, error) {
	p, err := nlm.DecodePayload(t, payload)
	if err != nil {
		return Record{}, errors.Wrap(err, errors.KindInternal, "corrupt stored rule")
	}
	if p == nil {
		return Record{}, errors.New(errors.KindInternal, "corrupt stored rule: empty payload")
	}
	return Record{Policy: p, UpdatedAt: time.Unix(ts, 0)}, nil
}
