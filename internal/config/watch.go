package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/stream-notifier/internal/logger"
)

// watchDebounce groups the burst of events editors produce for a single save.
const watchDebounce = 250 * time.Millisecond

// Watch observes the settings file and calls onChange with every new valid configuration.
// The directory is watched rather than the file so that atomic "write temp + rename"
// saves are noticed. Invalid edits are logged and skipped; the previous settings stay
// in effect. The overrides are applied to every reloaded configuration.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config), overrides ...Override) error {
	if path == "" {
		path = DefaultPath()
	}

	path = filepath.Clean(path)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}

	defer func() {
		_ = watcher.Close()
	}()

	if err = watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch settings directory: %w", err)
	}

	lastContents, _ := os.ReadFile(absPath)

	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != absPath {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			timer.Reset(watchDebounce)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.WarnKV(ctx, "Settings watcher error", "error", watchErr)
		case <-timer.C:
			contents, readErr := os.ReadFile(absPath)
			if readErr != nil {
				logger.WarnKV(ctx, "Settings file unreadable, keeping current settings", "path", absPath, "error", readErr)

				continue
			}

			if bytes.Equal(contents, lastContents) {
				continue
			}

			cfg, parseErr := Parse(contents, overrides...)
			if parseErr != nil {
				logger.WarnKV(ctx, "Settings file invalid, keeping current settings", "path", absPath, "error", parseErr)

				continue
			}

			lastContents = contents

			logger.InfoKV(ctx, "Settings file changed", "path", absPath)
			onChange(cfg)
		}
	}
}
