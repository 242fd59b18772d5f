package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/oshokin/stream-notifier/internal/config"
	"github.com/oshokin/stream-notifier/internal/logger"
)

// ErrSettingsExist is returned by RunInit when it would replace a settings file.
var ErrSettingsExist = errors.New("settings file already exists")

// InitOptions controls the init command.
type InitOptions struct {
	Options

	// Force replaces an existing settings file.
	Force bool
}

// RunInit writes a settings file with every default spelled out.
func RunInit(ctx context.Context, opts *InitOptions, out io.Writer) error {
	ctx = logger.WithName(ctx, "init")

	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}

	if !opts.Force {
		_, err := os.Stat(path)

		switch {
		case err == nil:
			return fmt.Errorf("%w: %s, use --force to replace it", ErrSettingsExist, path)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("check settings file: %w", err)
		}
	}

	cfg, err := config.Parse(nil, opts.overrides()...)
	if err != nil {
		return fmt.Errorf("build settings: %w", err)
	}

	if err = config.Save(path, cfg); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Settings written", "path", path, "channel_id", cfg.ChannelID)

	_, err = fmt.Fprintf(out, "Settings for %s written to %s\n", cfg.ChannelID, path)

	return err
}
