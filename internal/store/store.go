// Package store handles SQLite persistence of room state.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed width so updated_at values order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for room state.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Room actors write concurrently; SQLite allows one writer.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, clock: clockwork.NewRealClock()}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS room_state (
			room TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (room, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_room_state_updated_at ON room_state(updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Room returns the key-value view scoped to one room code.
func (s *Store) Room(code string) *RoomKV {
	return &RoomKV{store: s, room: code}
}

// ListRooms returns the codes that have persisted state.
func (s *Store) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT room FROM room_state ORDER BY room`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

// PruneBefore deletes rooms whose newest write is older than cutoff and
// returns how many rooms were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	stamp := formatTime(cutoff)
	var stale int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT room FROM room_state GROUP BY room HAVING MAX(updated_at) < ?)`,
		stamp,
	).Scan(&stale)
	if err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM room_state WHERE room IN (SELECT room FROM room_state GROUP BY room HAVING MAX(updated_at) < ?)`,
		stamp,
	)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return stale, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// RoomKV is the durable key-value collaborator of a single room.
type RoomKV struct {
	store *Store
	room  string
}

// Get returns the value stored under key. The boolean is false when the key is unset.
func (kv *RoomKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := kv.store.db.QueryRowContext(ctx,
		`SELECT value FROM room_state WHERE room = ? AND key = ?`, kv.room, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", kv.room, key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (kv *RoomKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := kv.store.db.ExecContext(ctx,
		`INSERT INTO room_state (room, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(room, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		kv.room, key, value, formatTime(kv.store.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", kv.room, key, err)
	}
	return nil
}

// DeleteAll removes every key of the room.
func (kv *RoomKV) DeleteAll(ctx context.Context) error {
	if _, err := kv.store.db.ExecContext(ctx, `DELETE FROM room_state WHERE room = ?`, kv.room); err != nil {
		return fmt.Errorf("delete %s: %w", kv.room, err)
	}
	return nil
}
