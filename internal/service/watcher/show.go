package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/stream-notifier/internal/logger"
	"github.com/oshokin/stream-notifier/internal/repository/state"
)

// RunShowState prints the persisted state without touching the network.
func RunShowState(ctx context.Context, opts *Options, out io.Writer) error {
	ctx = logger.WithName(ctx, "state")

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	store, err := state.Open(ctx, state.Options{
		Driver:    cfg.StateDriver,
		Path:      cfg.StateFile,
		ChannelID: cfg.ChannelID,
	})
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	defer func() {
		_ = store.Close()
	}()

	stored, err := store.Load(ctx)
	if errors.Is(err, state.ErrNotFound) {
		_, err = fmt.Fprintf(out, "No state stored for %s in %s\n", cfg.ChannelID, cfg.StateFile)

		return err
	}

	if err != nil {
		return fmt.Errorf("load stored state: %w", err)
	}

	stateText := "offline"
	if stored.IsOnline {
		stateText = "online"
	}

	channelID := stored.ChannelID
	if channelID == "" {
		channelID = cfg.ChannelID
	}

	_, err = fmt.Fprintf(out, "%s is %s since %s (%s)\nlast checked at %s (%s)\n",
		channelID,
		stateText,
		stored.LastChangedAt.Format(time.RFC3339),
		humanize.Time(stored.LastChangedAt),
		stored.LastCheckedAt.Format(time.RFC3339),
		humanize.Time(stored.LastCheckedAt))

	return err
}
