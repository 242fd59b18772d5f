package notify

import (
	"context"
	"time"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
	"github.com/oshokin/stream-notifier/internal/logger"
)

// Log writes transitions to the application log.
type Log struct{}

// NewLog creates the log sink.
func NewLog() *Log {
	return new(Log)
}

// Name implements Notifier.
func (*Log) Name() string {
	return "log"
}

// Notify implements Notifier.
func (*Log) Notify(ctx context.Context, t *channel.Transition) error {
	kvs := []any{
		"channel_id", t.ChannelID,
		"from", stateName(t.From),
		"to", stateName(t.To),
		"occurred_at", t.OccurredAt.Format(time.RFC3339),
	}

	if previous := PreviousStateText(t); previous != "" {
		kvs = append(kvs, "previous_state", previous)
	}

	if title := t.MetadataString("title"); title != "" && t.To {
		kvs = append(kvs, "title", title)
	}

	logger.InfoKV(ctx, Headline(t), kvs...)

	return nil
}

// stateName renders an online flag.
func stateName(online bool) string {
	if online {
		return "online"
	}

	return "offline"
}
