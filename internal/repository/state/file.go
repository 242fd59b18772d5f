package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

// FileRepository persists the state to a JSON file on disk.
// Every Save replaces the file atomically, so readers observe either the old
// or the new document.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu serializes access to the state file.
	mu sync.Mutex
	// writeFile writes the encoded document into the temp file.
	// Tests swap it to simulate a crash halfway through a write.
	writeFile func(f *os.File, data []byte) error
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path:      filepath.Clean(path),
		writeFile: writeAll,
	}
}

// Path returns the location of the state file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the state from disk.
func (r *FileRepository) Load(_ context.Context) (*channel.StoredState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: read state file: %w", ErrCorrupt, err)
	}

	state, err := decodeState(contents)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.path, err)
	}

	return state, nil
}

// Save writes the state to a temp file in the same directory and renames it over the target.
func (r *FileRepository) Save(_ context.Context, state *channel.StoredState) error {
	if state == nil {
		return errNilState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := encodeState(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	tmpName := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err = r.writeFile(tmp, data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write temp state file: %w", err)
	}

	if err = tmp.Chmod(DefaultFilePermissions); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("chmod temp state file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync temp state file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err = os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	committed = true

	// The rename is durable only once the directory entry is flushed.
	// Not every platform allows syncing a directory, so this is best effort.
	syncDir(dir)

	return nil
}

// Close is a no-op; the file is opened only for the duration of each call.
func (r *FileRepository) Close() error {
	return nil
}

// writeAll writes the whole buffer to f.
func writeAll(f *os.File, data []byte) error {
	_, err := f.Write(data)

	return err
}

// syncDir flushes directory metadata, ignoring platforms that refuse it.
func syncDir(dir string) {
	d, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return
	}

	_ = d.Sync()
	_ = d.Close()
}
