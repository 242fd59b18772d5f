package watcher

import (
	"context"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/oshokin/stream-notifier/internal/logger"
)

// CheckOptions controls the one-shot status check.
type CheckOptions struct {
	Options

	// Raw prints the whole API payload as JSON.
	Raw bool
}

// RunCheck fetches the channel status once and prints it. Nothing is persisted or notified.
func RunCheck(ctx context.Context, opts *CheckOptions, out io.Writer) error {
	ctx = logger.WithName(ctx, "check")

	cfg, err := loadConfig(ctx, &opts.Options)
	if err != nil {
		return err
	}

	client, err := newStatusClient(cfg)
	if err != nil {
		return fmt.Errorf("create status client: %w", err)
	}

	observed, err := client.Fetch(ctx, cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("fetch status of %s: %w", cfg.ChannelID, err)
	}

	if opts.Raw {
		raw, marshalErr := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(observed.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("marshal payload: %w", marshalErr)
		}

		_, err = fmt.Fprintln(out, string(raw))

		return err
	}

	stateText := "offline"
	if observed.IsOnline {
		stateText = "online"
	}

	_, err = fmt.Fprintf(out, "%s is %s (checked at %s)\n",
		cfg.ChannelID, stateText, observed.ObservedAt.Format(time.RFC3339))

	return err
}
