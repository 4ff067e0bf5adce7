package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/fluidframe/dbopen"
)

// ErrNoSession is returned when an operation is given an empty session id.
var ErrNoSession = errors.New("state: empty session id")

const schema = `
CREATE TABLE IF NOT EXISTS session_state (
    session_id TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, key)
);
CREATE INDEX IF NOT EXISTS idx_session_state_updated ON session_state(updated_at);
`

// Store keeps per-session key/value state in SQLite. Values are JSON encoded.
type Store struct {
	db *sql.DB
}

// NewStore applies the schema and returns a Store.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("state: DB is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("state: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Set stores v under key for session.
func (s *Store) Set(ctx context.Context, session, key string, v any) error {
	if session == "" {
		return ErrNoSession
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_state (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		session, key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("state: set %s: %w", key, err)
	}
	return nil
}

// Get decodes the value under key into dst. It reports false when the key is
// absent, leaving dst untouched.
func (s *Store) Get(ctx context.Context, session, key string, dst any) (bool, error) {
	if session == "" {
		return false, ErrNoSession
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_state WHERE session_id = ? AND key = ?`, session, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes key for session. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, session, key string) error {
	if session == "" {
		return ErrNoSession
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_state WHERE session_id = ? AND key = ?`, session, key); err != nil {
		return fmt.Errorf("state: remove %s: %w", key, err)
	}
	return nil
}

// Add adds delta to the integer under key (absent counts as 0) inside one
// transaction and returns the new value.
func (s *Store) Add(ctx context.Context, session, key string, delta int64) (int64, error) {
	if session == "" {
		return 0, ErrNoSession
	}
	var next int64
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT value FROM session_state WHERE session_id = ? AND key = ?`, session, key).Scan(&raw)
		var cur int64
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal([]byte(raw), &cur); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}
		next = cur + delta
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_state (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			session, key, fmt.Sprint(next), time.Now().Unix())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("state: add %s: %w", key, err)
	}
	return next, nil
}

// Expire deletes state not updated since before.
func (s *Store) Expire(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE updated_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("state: expire: %w", err)
	}
	return res.RowsAffected()
}
