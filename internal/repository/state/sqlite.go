package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Registers the pure Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

// schema creates the single table used by the SQLite driver.
const schema = `
CREATE TABLE IF NOT EXISTS watch_state (
	channel_id      TEXT PRIMARY KEY,
	is_online       INTEGER NOT NULL,
	last_changed_at TEXT NOT NULL,
	last_checked_at TEXT NOT NULL
)`

// errChannelRequired is returned when the SQLite driver is opened without a channel.
var errChannelRequired = errors.New("channel id must be provided for the sqlite driver")

// SQLiteRepository persists one state row per channel in an SQLite database.
type SQLiteRepository struct {
	// db is the database handle; SQLite prefers a single writer connection.
	db *sql.DB
	// channelID is the primary key of the row this repository reads and writes.
	// Channel names are case-insensitive, so the key is lower-cased.
	channelID string
}

// NewSQLiteRepository opens (or creates) the database at path and ensures the schema exists.
func NewSQLiteRepository(ctx context.Context, path, channelID string) (*SQLiteRepository, error) {
	channelID = strings.ToLower(strings.TrimSpace(channelID))
	if channelID == "" {
		return nil, errChannelRequired
	}

	path = filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err = db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("configure state database: %w", err)
		}
	}

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrate state database: %w", err)
	}

	return &SQLiteRepository{
		db:        db,
		channelID: channelID,
	}, nil
}

// Load reads the row of the configured channel.
func (r *SQLiteRepository) Load(ctx context.Context) (*channel.StoredState, error) {
	var (
		isOnline      int64
		lastChangedAt string
		lastCheckedAt string
	)

	row := r.db.QueryRowContext(ctx,
		`SELECT is_online, last_changed_at, last_checked_at FROM watch_state WHERE channel_id = ?`,
		r.channelID,
	)

	if err := row.Scan(&isOnline, &lastChangedAt, &lastCheckedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: query state row: %w", ErrCorrupt, err)
	}

	if isOnline != 0 && isOnline != 1 {
		return nil, fmt.Errorf("%w: field %q has value %d", ErrCorrupt, fieldIsOnline, isOnline)
	}

	changed, err := parseTime(fieldLastChangedAt, lastChangedAt)
	if err != nil {
		return nil, err
	}

	checked, err := parseTime(fieldLastCheckedAt, lastCheckedAt)
	if err != nil {
		return nil, err
	}

	return &channel.StoredState{
		ChannelID:     r.channelID,
		IsOnline:      isOnline == 1,
		LastChangedAt: changed,
		LastCheckedAt: checked,
	}, nil
}

// Save upserts the row inside a transaction: either the whole row is committed or nothing is.
func (r *SQLiteRepository) Save(ctx context.Context, state *channel.StoredState) error {
	if state == nil {
		return errNilState
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state transaction: %w", err)
	}

	var isOnline int64
	if state.IsOnline {
		isOnline = 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO watch_state(channel_id, is_online, last_changed_at, last_checked_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
			is_online = excluded.is_online,
			last_changed_at = excluded.last_changed_at,
			last_checked_at = excluded.last_checked_at`,
		r.channelID, isOnline, formatTime(state.LastChangedAt), formatTime(state.LastCheckedAt),
	)
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("upsert state row: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit state transaction: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}

	return r.db.Close()
}
