package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppStateEntry is one row of the key/value state table.
type AppStateEntry struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	UpdatedUTC time.Time `json:"updated_utc"`
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) SetAppState(key, value string) error {
	return setAppState(s.db, key, value)
}

func setAppState(db execer, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := db.Exec(`
		INSERT INTO app_state (key, value, updated_utc)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_utc=excluded.updated_utc
	`, key, value, now); err != nil {
		return fmt.Errorf("set app state %q: %w", key, err)
	}
	return nil
}

func (s *Store) GetAppState(key string) (string, bool, error) {
	return getAppState(s.db, key)
}

func getAppState(db queryRower, key string) (string, bool, error) {
	var value string
	if err := db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get app state %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) ListAppState() ([]AppStateEntry, error) {
	rows, err := s.db.Query(`SELECT key, value, updated_utc FROM app_state ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list app state: %w", err)
	}
	defer rows.Close()
	var out []AppStateEntry
	for rows.Next() {
		var e AppStateEntry
		var updated string
		if err := rows.Scan(&e.Key, &e.Value, &updated); err != nil {
			return nil, fmt.Errorf("scan app state: %w", err)
		}
		e.UpdatedUTC, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app state: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteAppState(key string) error {
	return deleteAppState(s.db, key)
}

func deleteAppState(db execer, key string) error {
	if _, err := db.Exec(`DELETE FROM app_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete app state %q: %w", key, err)
	}
	return nil
}
