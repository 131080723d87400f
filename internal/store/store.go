// Package store persists week statuses and session snapshots across process
// restarts. The scheduling core only needs get/set by opaque string key, so
// the schema is a single key-value table with JSON values, backed by SQLite
// via the pure-Go modernc driver (no CGo, cross-compiles cleanly).
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ptsched/internal/model"
)

// ErrNotFound is returned when no value exists for a key.
var ErrNotFound = errors.New("store: key not found")

// Store is a key-value snapshot store. Construct with Open.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    name       TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens (or creates) the SQLite database at dsn and applies the schema.
// Migrations are idempotent (IF NOT EXISTS), so Open may be called against
// an existing file.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// migrate runs each DDL statement individually; the sqlite driver executes
// only the first statement of a multi-statement Exec.
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores value (JSON-encoded) under name, replacing any previous value.
func (s *Store) Set(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", name, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshots (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC(),
	)
	return err
}

// Get decodes the value stored under name into out. Returns ErrNotFound if
// the key has never been set.
func (s *Store) Get(name string, out any) error {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM snapshots WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// Delete removes the value stored under name. Deleting a missing key is not
// an error.
func (s *Store) Delete(name string) error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE name = ?`, name)
	return err
}

// Typed helpers for the two snapshots the scheduling core cares about.
// Keys are scoped by year so a year rollover does not mix weeks.

func weekStatusKey(year int) string {
	return "week-statuses/" + strconv.Itoa(year)
}

func sessionsKey(year, week int) string {
	return fmt.Sprintf("sessions/%d/%d", year, week)
}

// SaveWeekStatuses persists the full week->status map for a year.
func (s *Store) SaveWeekStatuses(year int, statuses map[int]model.WeekStatus) error {
	return s.Set(weekStatusKey(year), statuses)
}

// LoadWeekStatuses returns the persisted week->status map for a year, or an
// empty map if none was stored. Entries with an unknown status value (stale
// snapshots from an older schema) are dropped rather than surfaced.
func (s *Store) LoadWeekStatuses(year int) (map[int]model.WeekStatus, error) {
	out := make(map[int]model.WeekStatus)
	err := s.Get(weekStatusKey(year), &out)
	if errors.Is(err, ErrNotFound) {
		return out, nil
	}
	for week, st := range out {
		if !st.Valid() {
			delete(out, week)
		}
	}
	return out, err
}

// SaveSessions persists the session list snapshot for (year, week).
func (s *Store) SaveSessions(year, week int, sessions []model.Session) error {
	return s.Set(sessionsKey(year, week), sessions)
}

// LoadSessions returns the persisted session list for (year, week), or nil
// if none was stored.
func (s *Store) LoadSessions(year, week int) ([]model.Session, error) {
	var out []model.Session
	err := s.Get(sessionsKey(year, week), &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return out, err
}
