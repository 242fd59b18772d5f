package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

// Supported storage drivers.
const (
	// DriverFile stores the state as a JSON document on disk.
	DriverFile = "file"
	// DriverSQLite stores the state in an SQLite database.
	DriverSQLite = "sqlite"
)

// DefaultFilePermissions is the permission set used for persisted state files.
const DefaultFilePermissions = 0o600

var (
	// ErrNotFound is returned when nothing has been persisted yet.
	ErrNotFound = errors.New("state not found")
	// ErrCorrupt is wrapped by Load errors caused by unreadable or malformed persisted data.
	ErrCorrupt = errors.New("persisted state is corrupt")
	// errUnknownDriver is returned by Open for an unsupported driver name.
	errUnknownDriver = errors.New("unknown state driver")
	// errNilState is returned when Save is called without a state.
	errNilState = errors.New("state must be provided")
)

// Repository defines persistence operations for the watched channel's state.
type Repository interface {
	Load(ctx context.Context) (*channel.StoredState, error)
	Save(ctx context.Context, state *channel.StoredState) error
}

// Store is a Repository that holds resources until closed.
type Store interface {
	Repository

	Close() error
}

// Options selects and configures a storage driver.
type Options struct {
	// Driver is DriverFile or DriverSQLite. Empty means DriverFile.
	Driver string
	// Path is the state file or database location.
	Path string
	// ChannelID scopes SQLite rows; the file driver stores it inside the document.
	ChannelID string
}

// Open creates the store selected by opts.Driver.
//
//nolint:ireturn // Callers pick the driver at runtime.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverFile:
		return NewFileRepository(opts.Path), nil
	case DriverSQLite:
		return NewSQLiteRepository(ctx, opts.Path, opts.ChannelID)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, opts.Driver)
	}
}
